// Command radio is the radio-node binary: it watches the RX data pin,
// runs sync-search/decode/command-receive on a single loop, and plays
// back transmit requests on the TX pin (spec §4.7-§4.9, §5).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/warthog618/go-gpiocdev"

	"github.com/n8kb/rfbridge/internal/command"
	"github.com/n8kb/rfbridge/internal/dispatch"
	"github.com/n8kb/rfbridge/internal/gpio"
	"github.com/n8kb/rfbridge/internal/logx"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
	"github.com/n8kb/rfbridge/internal/serialio"
	"github.com/n8kb/rfbridge/internal/xmit"
)

func main() {
	chipName := pflag.StringP("chip", "c", "/dev/gpiochip0", "GPIO chip device")
	rxOffset := pflag.Int("rx-pin", 17, "GPIO line offset for the RX data pin")
	txOffset := pflag.Int("tx-pin", 27, "GPIO line offset for the TX data pin")
	antennaOffset := pflag.Int("antenna-pin", 22, "GPIO line offset for the antenna switch pin")
	device := pflag.StringP("uart", "u", "/dev/ttyAMA0", "Serial device for the host link")
	baud := pflag.IntP("baud", "b", 9600, "Serial port speed")
	tickPeriod := pflag.Duration("tick", 4*time.Microsecond, "Sampler/transmit tick period")
	cmdTimeout := pflag.Duration("cmd-timeout", 50*time.Millisecond, "UART command-read timeout")
	loopback := pflag.Bool("loopback", false, "Enable RX/TX loopback self-test mode")
	help := pflag.Bool("help", false, "Display help text")
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	log := logx.New("radio")

	chip, err := gpiocdev.NewChip(*chipName)
	if err != nil {
		logx.Event(log, logx.Error, "open gpio chip failed", "err", err)
		os.Exit(1)
	}
	defer chip.Close()

	txPin, err := gpio.NewOutputPin(chip, *txOffset)
	if err != nil {
		logx.Event(log, logx.Error, "open TX pin failed", "err", err)
		os.Exit(1)
	}
	antennaPin, err := gpio.NewOutputPin(chip, *antennaOffset)
	if err != nil {
		logx.Event(log, logx.Error, "open antenna pin failed", "err", err)
		os.Exit(1)
	}

	port, err := serialio.Open(*device, *baud, *cmdTimeout)
	if err != nil {
		logx.Event(log, logx.Error, "open UART failed", "err", err)
		os.Exit(1)
	}
	defer port.Close()

	buf := &pulsebuf.Buffer{}
	d := dispatch.New(buf, port, log)
	d.Loopback = *loopback

	player := xmit.New(buf, txPin, antennaPin)
	receiver := command.NewReceiver(buf, player, d)
	d.DisplayPulses = &receiver.DisplayPulses

	rxLine, err := gpio.NewRXLine(chip, *rxOffset, *tickPeriod, buf, func(cell pulsebuf.Cell, idx uint8) {
		if player.Mode() != xmit.Idle {
			return // sampler masked while Transmitting (spec §3, §6.3)
		}
		d.Sample(cell, idx)
	})
	if err != nil {
		logx.Event(log, logx.Error, "open RX pin failed", "err", err)
		os.Exit(1)
	}
	defer rxLine.Close()

	ticker := gpio.NewSharedTicker(*tickPeriod,
		func() bool { return player.Mode() != xmit.Idle },
		func(ctx context.Context) error { return nil }, // RX edges drive the sampler directly
		func(ctx context.Context) error { return player.Tick() },
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for {
			if err := receiver.Run(port, port); err != nil {
				logx.Event(log, logx.Error, "command receiver stopped", "err", err)
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()

	logx.Event(log, logx.Info, "radio node started", "uart", *device, "chip", *chipName)
	if err := ticker.Run(ctx); err != nil && err != context.Canceled {
		logx.Event(log, logx.Error, "ticker stopped", "err", err)
		os.Exit(1)
	}
}
