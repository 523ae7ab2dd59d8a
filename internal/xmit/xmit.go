// Package xmit implements the transmit player (spec §4.9): it replays
// the circular pulse buffer onto the TX pin, phase by phase, driven by
// the same tick source as the sampler (mutually exclusive with it --
// spec §3, §5, §6.3).
package xmit

import (
	"context"
	"fmt"

	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// Mode is the transceiver_mode of spec §3.
type Mode int

const (
	Idle Mode = iota
	Receiving
	StartTransmit
	Transmitting
)

// Pin is the minimal digital-output surface the player needs (spec
// §6.2): the TX data pin and the antenna switch pin.
type Pin interface {
	Set(high bool) error
}

// MinFramePulses is the shortest buffer the transmitter will bother
// playing back (spec §4.8, §7: "Frame too short to transmit").
const MinFramePulses = 16

// MaxAttempts is the number of transmit retries performed per staged
// frame (spec §4.8).
const MaxAttempts = 3

// ErrFrameTooShort is returned by Stage when the staged frame has fewer
// than MinFramePulses pulses.
var ErrFrameTooShort = fmt.Errorf("xmit: frame shorter than %d pulses, not worth the air time", MinFramePulses)

// Player owns the transmit-side state machine. It shares the pulse
// buffer with the sampler; the caller is responsible for masking the
// sampler's tick source while Mode() != Idle (spec §3 invariant "In
// Transmitting, the sampler timer interrupt is masked").
type Player struct {
	buf     *pulsebuf.Buffer
	tx      Pin
	antenna Pin

	mode                       Mode
	msgStart, msgEnd           uint8
	currentPulse               uint8
	bit                        int
	lowCountdown, highCountdown int
}

// New returns a Player sharing buf and driving the given TX and antenna
// pins.
func New(buf *pulsebuf.Buffer, tx, antenna Pin) *Player {
	return &Player{buf: buf, tx: tx, antenna: antenna, mode: Idle}
}

// Mode reports the player's current transceiver_mode.
func (p *Player) Mode() Mode { return p.mode }

// CurrentPulse reports the cursor the player is currently replaying.
// Nothing in this module reads it; the sampler is masked while the
// player is not Idle, so playback is not fed back into it.
func (p *Player) CurrentPulse() uint8 { return p.currentPulse }

// Stage prepares a frame for transmission: it writes the saturation
// sentinel immediately after the staged pulses, sets msg_end, and
// refuses frames shorter than MinFramePulses (spec §4.8
// "transmit_message"). Staged frames always start at ring index 0,
// where the command receiver accumulates pulses built from "<hexbyte>"
// tokens.
func (p *Player) Stage(bcount uint8) error {
	if int(bcount) < MinFramePulses {
		return ErrFrameTooShort
	}
	p.buf.Set(bcount, pulsebuf.Cell{Low: pulsebuf.Saturated})
	p.msgStart = 0
	p.msgEnd = bcount + 1
	return nil
}

// Start begins playback (spec §4.9 "StartTransmit"): TX pin high, bit
// seeded to 1, first cell's countdowns loaded, current_pulse set to
// msg_start, mode advanced to Transmitting.
func (p *Player) Start() error {
	if p.mode != Idle {
		return fmt.Errorf("xmit: Start called while not idle (mode=%d)", p.mode)
	}
	p.mode = StartTransmit
	p.currentPulse = p.msgStart
	p.bit = 1
	cell := p.buf.At(p.currentPulse)
	p.highCountdown = int(cell.High)
	p.lowCountdown = int(cell.Low)
	if err := p.antenna.Set(true); err != nil {
		return err
	}
	if err := p.tx.Set(true); err != nil {
		return err
	}
	p.mode = Transmitting
	return nil
}

// Tick advances the player by one timer tick (spec §4.9
// "Transmitting"). It is a no-op when the player is Idle.
func (p *Player) Tick() error {
	if p.mode != Transmitting {
		return nil
	}
	if p.bit == 1 {
		p.highCountdown--
		if p.highCountdown <= 0 {
			p.bit = 0
			return p.tx.Set(false)
		}
		return nil
	}

	p.lowCountdown--
	if p.lowCountdown > 0 {
		return nil
	}

	// Low phase exhausted: this is the low->high transition, i.e. a new
	// cell begins.
	p.currentPulse++
	if p.currentPulse == p.msgEnd {
		p.mode = Idle
		if err := p.tx.Set(false); err != nil {
			return err
		}
		return p.antenna.Set(false)
	}
	cell := p.buf.At(p.currentPulse)
	p.highCountdown = int(cell.High)
	p.lowCountdown = int(cell.Low)
	if p.highCountdown == 0 {
		p.bit = 0
		return p.tx.Set(false)
	}
	p.bit = 1
	return p.tx.Set(true)
}

// Ticker is anything that can deliver timer ticks to Run -- normally
// internal/gpio's shared ticker.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Run drives the player to completion over MaxAttempts attempts,
// waiting for Idle after each Start before retrying (spec §4.8
// "performs up to 3 transmit attempts (each enables TX, waits for
// Idle, disables)"). Run does not watch ctx itself: it passes ctx to
// ticks.Tick and stops early only if that call returns an error.
func (p *Player) Run(ctx context.Context, ticks Ticker) error {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := p.Start(); err != nil {
			return err
		}
		for p.mode != Idle {
			if err := ticks.Tick(ctx); err != nil {
				return err
			}
			if err := p.Tick(); err != nil {
				return err
			}
		}
	}
	return nil
}
