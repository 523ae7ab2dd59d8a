package decode

import (
	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// ManchesterPrepassLen is the number of consecutive matching pulses the
// Manchester decoder requires before it will commit to emitting (spec
// §4.5).
const ManchesterPrepassLen = 32

// ManchesterMaxBits is the bit-count ceiling at which the Manchester
// decoder gives up and terminates even without a saturation marker
// (spec §4.5).
const ManchesterMaxBits = 0xD0

type manchesterPhase int

const (
	manchesterPrepass manchesterPhase = iota
	manchesterEmitting
	manchesterTerminal
)

// Manchester implements the differential Manchester demodulator (spec
// §4.5). The emission pass recovers the next bit's polarity from
// whichever phase of a cell carried a full clock period, per the
// demiclock/stuffclock recurrence documented as specified-by-fixture
// (spec §9) -- see TestManchesterFinishFlushesDeferredCatchUp in
// manchester_test.go for the golden trace.
type Manchester struct {
	syncDuration int
	margin       int
	phase        manchesterPhase
	prepass      []pulsebuf.Cell
	acc          *frame.Accumulator

	demiclock  int
	stuffclock int
	bit        int
}

// NewManchester starts a Manchester decoder against the given estimated
// sync duration.
func NewManchester(syncDuration int) *Manchester {
	return &Manchester{
		syncDuration: syncDuration,
		margin:       syncDuration / 4,
		prepass:      make([]pulsebuf.Cell, 0, ManchesterPrepassLen),
	}
}

// NewManchesterNoPrepass starts a Manchester decoder already emitting,
// skipping the validation pre-pass (spec §4.10).
func NewManchesterNoPrepass(syncDuration int) *Manchester {
	m := &Manchester{syncDuration: syncDuration, margin: syncDuration / 4}
	m.phase = manchesterEmitting
	m.acc = frame.NewAccumulator(frame.Manchester)
	return m
}

func (m *Manchester) matches(phase int) bool {
	if abs(phase-m.syncDuration) <= m.margin {
		return true
	}
	if abs(phase-m.syncDuration/2) <= m.margin {
		return true
	}
	return false
}

// catchUp stuffs m.bit into acc for every stuffclock step still behind
// demiclock, the same single running catch-up the original's two
// per-phase checkpoints amount to once deferred to the next call
// boundary.
func (m *Manchester) catchUp() {
	for m.stuffclock < m.demiclock {
		if m.stuffclock%2 == 1 {
			m.acc.PushBit(m.bit)
		}
		m.stuffclock++
	}
}

// processCell advances the demiclock/stuffclock state machine over both
// phases of one cell, emitting bits into acc as stuffclock catches up to
// demiclock.
func (m *Manchester) processCell(c pulsebuf.Cell) {
	widths := [2]int{1: int(c.High), 0: int(c.Low)}
	for _, phase := range [2]int{1, 0} {
		width := widths[phase]
		m.catchUp()
		if abs(width-m.syncDuration) < m.margin {
			m.bit = phase
			m.demiclock++
		}
		m.demiclock++
	}
}

func (m *Manchester) startEmitting() {
	m.phase = manchesterEmitting
	m.acc = frame.NewAccumulator(frame.Manchester)
	for _, c := range m.prepass {
		m.processCell(c)
	}
	m.prepass = nil
}

func (m *Manchester) finish() Result {
	// The last cell's demiclock advance has no following phase to flush
	// it: drain the final pending stuffclock steps here, or the last
	// stuffed bit is silently dropped (spec §4.5/§9).
	m.catchUp()
	m.acc.Flush()
	m.phase = manchesterTerminal
	return Result{Status: Done, Acc: m.acc}
}

// Finish flushes any trailing partial byte and terminates the decoder
// without having observed a saturation marker (spec §4.10).
func (m *Manchester) Finish() Result {
	return m.finish()
}

// Resume feeds one more cell at ring index idx.
func (m *Manchester) Resume(c pulsebuf.Cell, idx uint8) Result {
	switch m.phase {
	case manchesterTerminal:
		return Result{Status: Done, Acc: m.acc}

	case manchesterPrepass:
		if isSaturatedMarker(c) {
			m.phase = manchesterTerminal
			return Result{Status: Aborted, AbortedAt: idx}
		}
		if !m.matches(int(c.Low)) && !m.matches(int(c.High)) {
			m.phase = manchesterTerminal
			return Result{Status: Aborted, AbortedAt: idx}
		}
		m.prepass = append(m.prepass, c)
		if len(m.prepass) == ManchesterPrepassLen {
			m.startEmitting()
			if m.acc.BitCount() >= ManchesterMaxBits {
				return m.finish()
			}
		}
		return Result{Status: Continue}

	default: // manchesterEmitting
		if isSaturatedMarker(c) {
			return m.finish()
		}
		m.processCell(c)
		if m.acc.BitCount() >= ManchesterMaxBits {
			return m.finish()
		}
		return Result{Status: Continue}
	}
}
