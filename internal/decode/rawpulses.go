package decode

import (
	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// RawPulses implements the raw-pulse dumper (spec §4.6): it has no
// validation pre-pass, it simply emits each pulse's phase widths
// verbatim until a saturated marker ends the transmission.
type RawPulses struct {
	acc  *frame.Accumulator
	done bool
}

// NewRawPulses starts a raw-pulse dumper.
func NewRawPulses() *RawPulses {
	return &RawPulses{acc: frame.NewAccumulator(frame.RawPulses)}
}

// Resume feeds one more cell at ring index idx.
func (r *RawPulses) Resume(c pulsebuf.Cell, idx uint8) Result {
	if r.done {
		return Result{Status: Done, Acc: r.acc}
	}
	if isSaturatedMarker(c) {
		r.done = true
		return Result{Status: Done, Acc: r.acc}
	}
	r.acc.PushPulsePhases(c.High, c.Low)
	return Result{Status: Continue}
}
