package decode

import (
	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// OokPrepassLen is the number of consecutive matching pulses the OOK
// decoder requires before it will commit to emitting (spec §4.4).
const OokPrepassLen = 20

type ookPhase int

const (
	ookPrepass ookPhase = iota
	ookEmitting
	ookTerminal
)

// OOK implements the OOK demodulator (spec §4.4).
type OOK struct {
	syncDuration int
	margin       int
	phase        ookPhase
	prepass      []pulsebuf.Cell
	acc          *frame.Accumulator
}

// NewOOK starts an OOK decoder against the given estimated sync duration.
func NewOOK(syncDuration int) *OOK {
	return &OOK{
		syncDuration: syncDuration,
		margin:       syncDuration / 8,
		prepass:      make([]pulsebuf.Cell, 0, OokPrepassLen),
	}
}

// NewOOKNoPrepass starts an OOK decoder already emitting, skipping the
// validation pre-pass (spec §4.10).
func NewOOKNoPrepass(syncDuration int) *OOK {
	o := &OOK{syncDuration: syncDuration, margin: syncDuration / 8}
	o.phase = ookEmitting
	o.acc = frame.NewAccumulator(frame.OOK)
	return o
}

// Finish flushes any trailing partial byte and terminates the decoder
// without having observed a saturation marker (spec §4.10).
func (o *OOK) Finish() Result {
	if o.acc != nil {
		o.acc.Flush()
	}
	o.phase = ookTerminal
	return Result{Status: Done, Acc: o.acc}
}

func (o *OOK) matches(phase int) bool {
	if abs(phase-o.syncDuration) <= o.margin {
		return true
	}
	if abs(phase-o.syncDuration/2) <= o.margin {
		return true
	}
	return false
}

func (o *OOK) emit(c pulsebuf.Cell) {
	if abs(int(c.Low)-o.syncDuration) <= o.margin {
		o.acc.PushBit(0)
	}
	if abs(int(c.High)-o.syncDuration) <= o.margin {
		o.acc.PushBit(1)
	}
}

func (o *OOK) startEmitting() {
	o.phase = ookEmitting
	o.acc = frame.NewAccumulator(frame.OOK)
	for _, c := range o.prepass {
		o.emit(c)
	}
	o.prepass = nil
}

// Resume feeds one more cell at ring index idx.
func (o *OOK) Resume(c pulsebuf.Cell, idx uint8) Result {
	switch o.phase {
	case ookTerminal:
		return Result{Status: Done, Acc: o.acc}

	case ookPrepass:
		if isSaturatedMarker(c) {
			o.phase = ookTerminal
			return Result{Status: Aborted, AbortedAt: idx}
		}
		if !o.matches(int(c.Low)) && !o.matches(int(c.High)) {
			o.phase = ookTerminal
			return Result{Status: Aborted, AbortedAt: idx}
		}
		o.prepass = append(o.prepass, c)
		if len(o.prepass) == OokPrepassLen {
			o.startEmitting()
		}
		return Result{Status: Continue}

	default: // ookEmitting
		if isSaturatedMarker(c) {
			o.acc.Flush()
			o.phase = ookTerminal
			return Result{Status: Done, Acc: o.acc}
		}
		o.emit(c)
		return Result{Status: Continue}
	}
}
