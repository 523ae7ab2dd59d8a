package decode

import (
	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// AskPrepassLen is the number of consecutive matching pulses the ASK
// decoder requires before it will commit to emitting (spec §4.3).
const AskPrepassLen = 20

// AskMargin is the allowed deviation from sync_duration during the ASK
// validation pre-pass (spec §4.3).
const AskMargin = 8

type askPhase int

const (
	askPrepass askPhase = iota
	askEmitting
	askTerminal
)

// ASK implements the ASK demodulator (spec §4.3).
type ASK struct {
	syncDuration int
	phase        askPhase
	prepass      []pulsebuf.Cell
	acc          *frame.Accumulator
}

// NewASK starts an ASK decoder against the given estimated sync duration.
func NewASK(syncDuration int) *ASK {
	return &ASK{syncDuration: syncDuration, prepass: make([]pulsebuf.Cell, 0, AskPrepassLen)}
}

// NewASKNoPrepass starts an ASK decoder already in its emitting phase,
// skipping the validation pre-pass (spec §4.10: the host re-decoder
// "mirrors the firmware" but has "no validation pre-pass, always
// emits").
func NewASKNoPrepass(syncDuration int) *ASK {
	a := &ASK{syncDuration: syncDuration}
	a.phase = askEmitting
	a.acc = frame.NewAccumulator(frame.ASK)
	return a
}

// Finish flushes any trailing partial byte and terminates the decoder
// without having observed a saturation marker -- used by the host
// re-decoder, which knows the pulse count up front instead of scanning
// for a sentinel (spec §4.10).
func (a *ASK) Finish() Result {
	if a.acc != nil {
		a.acc.Flush()
	}
	a.phase = askTerminal
	return Result{Status: Done, Acc: a.acc}
}

// Decoded reports whether this decoder ever reached the emitting phase --
// the firmware's "decoded" flag. Neither syncsearch nor dispatch reads
// it: an aborted ASK decode returns to sync-search and is not retried
// as Manchester.
func (a *ASK) Decoded() bool {
	return a.phase != askPrepass
}

func (a *ASK) emit(c pulsebuf.Cell) {
	bit := 0
	if c.High > c.Low {
		bit = 1
	}
	a.acc.PushBit(bit)
}

func (a *ASK) startEmitting() {
	a.phase = askEmitting
	a.acc = frame.NewAccumulator(frame.ASK)
	for _, c := range a.prepass {
		a.emit(c)
	}
	a.prepass = nil
}

// Resume feeds one more cell at ring index idx. See package doc for the
// resumable-cursor contract.
func (a *ASK) Resume(c pulsebuf.Cell, idx uint8) Result {
	switch a.phase {
	case askTerminal:
		return Result{Status: Done, Acc: a.acc}

	case askPrepass:
		if isSaturatedMarker(c) {
			a.phase = askTerminal
			return Result{Status: Aborted, AbortedAt: idx}
		}
		duration := int(c.Low) + int(c.High)
		if abs(duration-a.syncDuration) > AskMargin {
			a.phase = askTerminal
			return Result{Status: Aborted, AbortedAt: idx}
		}
		a.prepass = append(a.prepass, c)
		if len(a.prepass) == AskPrepassLen {
			a.startEmitting()
		}
		return Result{Status: Continue}

	default: // askEmitting
		if isSaturatedMarker(c) {
			a.acc.Flush()
			a.phase = askTerminal
			return Result{Status: Done, Acc: a.acc}
		}
		a.emit(c)
		return Result{Status: Continue}
	}
}
