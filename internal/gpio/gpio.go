// Package gpio adapts the radio node's digital pins -- TX data, antenna
// switch, and RX data with edge timing -- onto go-gpiocdev, and
// provides the single shared tick source the sampler and transmit
// player take turns on (spec §5, §6.3: "the sampler timer interrupt is
// masked while Transmitting").
package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// OutputPin wraps one gpiocdev output line, matching xmit.Pin and
// command's notion of a settable digital output.
type OutputPin struct {
	line *gpiocdev.Line
}

// NewOutputPin requests offset on chip as an output, initially low.
func NewOutputPin(chip *gpiocdev.Chip, offset int) (*OutputPin, error) {
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("gpio: request output line %d: %w", offset, err)
	}
	return &OutputPin{line: line}, nil
}

// Set drives the pin high or low.
func (p *OutputPin) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return p.line.SetValue(v)
}

// Close releases the underlying line.
func (p *OutputPin) Close() error { return p.line.Close() }

// AdvanceFunc receives a completed (low_ticks, high_ticks) cell and the
// ring index it was written to, once the sampler has advanced past it
// (spec §4.1 step 3). It is the sampler's only output.
type AdvanceFunc func(cell pulsebuf.Cell, idx uint8)

// Sampler replays RX pin levels into buf one tick at a time, exactly as
// the firmware's periodic sampler ISR does (spec §4.1): every tick
// increments the phase counter matching the level just read, and only
// on a rising edge does it decide whether the just-completed cell
// clears the noise floor before advancing the write cursor. Folding a
// sub-floor cell back into the same slot (rather than advancing) is
// the noise-floor rejection spec §4.1 describes.
type Sampler struct {
	buf       *pulsebuf.Buffer
	current   uint8
	lastLevel int
	onAdvance AdvanceFunc
}

// NewSampler returns a Sampler writing into buf, starting at ring index
// 0, invoking onAdvance each time a cell clears the noise floor and the
// write cursor moves on.
func NewSampler(buf *pulsebuf.Buffer, onAdvance AdvanceFunc) *Sampler {
	return &Sampler{buf: buf, onAdvance: onAdvance}
}

// Tick feeds one sampler tick at RX level b (0 or 1), mirroring the
// ISR body in spec §4.1 exactly: increment, then -- only on a
// low-to-high transition -- apply the noise floor and either advance
// or fold back.
func (s *Sampler) Tick(b int) {
	if b != 0 {
		s.buf.IncHigh(s.current)
	} else {
		s.buf.IncLow(s.current)
	}

	risingEdge := s.lastLevel == 0 && b != 0
	s.lastLevel = b
	if !risingEdge {
		return
	}

	cell := s.buf.At(s.current)
	if int(cell.Low) > pulsebuf.NoiseFloor || int(cell.High) > pulsebuf.NoiseFloor {
		committed, idx := cell, s.current
		s.current++
		s.buf.Zero(s.current)
		if s.onAdvance != nil {
			s.onAdvance(committed, idx)
		}
		return
	}
	s.buf.Zero(s.current) // glitch: fold back into the same slot
}

// RXLine watches the RX data pin for edges, converts wall-clock gaps
// between them into tick counts, and replays each of those ticks
// through a Sampler -- the same per-tick noise-floor/advance decision
// the firmware's compare-match ISR makes, not a per-edge substitute
// for it (spec §4.1).
type RXLine struct {
	line       *gpiocdev.Line
	tickPeriod time.Duration
	lastEdge   time.Time
	sampler    *Sampler
}

// NewRXLine requests offset as an edge-sensitive input. tickPeriod is
// the duration of one sampler tick (matching the compare-match period
// the firmware counts in); buf is the shared ring the sampler writes
// into, and onAdvance is called once per committed cell.
func NewRXLine(chip *gpiocdev.Chip, offset int, tickPeriod time.Duration, buf *pulsebuf.Buffer, onAdvance AdvanceFunc) (*RXLine, error) {
	rx := &RXLine{tickPeriod: tickPeriod, sampler: NewSampler(buf, onAdvance)}
	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(rx.handle),
	)
	if err != nil {
		return nil, fmt.Errorf("gpio: request RX line %d: %w", offset, err)
	}
	rx.line = line
	rx.lastEdge = time.Now()
	return rx, nil
}

// ticksFromElapsed converts a wall-clock gap into a tick count, clamped
// to 255 the same way the firmware's compare-match counter saturates
// instead of wrapping (spec §4.1).
func ticksFromElapsed(period, elapsed time.Duration) uint8 {
	ticks := elapsed / period
	if ticks >= 255 {
		return 255
	}
	return uint8(ticks)
}

// handle replays the ticks elapsed since the previous edge through the
// sampler: every tick but the last carries the level that was active
// before this edge, and the last tick carries the new level -- the
// same sequence the firmware's ISR would have seen had it sampled the
// pin every tickPeriod instead of being woken by the edge itself.
func (rx *RXLine) handle(evt gpiocdev.LineEvent) {
	now := time.Now()
	n := ticksFromElapsed(rx.tickPeriod, now.Sub(rx.lastEdge))
	rx.lastEdge = now
	if n == 0 {
		n = 1
	}

	newLevel := 0
	if evt.Type == gpiocdev.LineEventRisingEdge {
		newLevel = 1
	}
	priorLevel := 1 - newLevel

	for i := uint8(0); i < n-1; i++ {
		rx.sampler.Tick(priorLevel)
	}
	rx.sampler.Tick(newLevel)
}

// Close releases the underlying line.
func (rx *RXLine) Close() error { return rx.line.Close() }

// SharedTicker is the single periodic tick source both the sampler and
// the transmit player are driven from; ownership of each tick is
// decided by Transmitting, so each tick goes to exactly one of the two
// (spec §3: "In Transmitting, the sampler timer interrupt is masked").
type SharedTicker struct {
	period time.Duration

	// Transmitting reports whether the transmit player currently owns
	// ticks instead of the sampler.
	Transmitting func() bool

	onSample func(ctx context.Context) error
	onXmit   func(ctx context.Context) error
}

// NewSharedTicker builds a ticker driving onSample when idle and onXmit
// while Transmitting() reports true.
func NewSharedTicker(period time.Duration, transmitting func() bool, onSample, onXmit func(ctx context.Context) error) *SharedTicker {
	return &SharedTicker{period: period, Transmitting: transmitting, onSample: onSample, onXmit: onXmit}
}

// Run drives ticks until ctx is cancelled.
func (s *SharedTicker) Run(ctx context.Context) error {
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *SharedTicker) tick(ctx context.Context) error {
	if s.Transmitting != nil && s.Transmitting() {
		return s.onXmit(ctx)
	}
	return s.onSample(ctx)
}

// Tick implements xmit.Ticker directly, for tests and for composing the
// player's own Run loop with this ticker's period.
func (s *SharedTicker) Tick(ctx context.Context) error {
	return s.tick(ctx)
}
