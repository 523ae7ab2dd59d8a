// Package pulsebuf implements the 256-cell pulse ring buffer shared by the
// sampler, the decoders, and the transmit player (spec §3).
package pulsebuf

// Size is the number of cells in the ring. Cursor arithmetic wraps at Size;
// a uint8 cursor and Size=256 make the wrap free (every uint8 addition
// already wraps mod 256).
const Size = 256

// NoiseFloor is the phase width, in ticks, that at least one phase of a
// completed cell must exceed; a cell with both phases at or below it is
// considered glitch noise rather than a real edge (spec §4.1).
const NoiseFloor = 20

// Saturated is the sentinel phase count meaning "phase pegged at its
// maximum" -- used as the end-of-transmission marker (spec §3).
const Saturated = 255

// Cell is one (low_ticks, high_ticks) pair.
type Cell struct {
	Low  uint8
	High uint8
}

// Duration is the combined low+high width of a cell, saturating at 255+255
// but in practice compared against much smaller thresholds.
func (c Cell) Duration() int {
	return int(c.Low) + int(c.High)
}

// SaturatedLow reports whether the cell's low phase hit the saturation
// sentinel, the documented end-of-message marker.
func (c Cell) SaturatedLow() bool {
	return c.Low == Saturated
}

// Buffer is the 256-cell ring. The zero value is ready to use.
type Buffer struct {
	cells [Size]Cell
}

// At returns the cell at cursor i (mod 256 is automatic: i is a uint8).
func (b *Buffer) At(i uint8) Cell {
	return b.cells[i]
}

// Set overwrites the cell at cursor i.
func (b *Buffer) Set(i uint8, c Cell) {
	b.cells[i] = c
}

// IncLow increments the low phase of cell i, clamping at Saturated.
func (b *Buffer) IncLow(i uint8) {
	if b.cells[i].Low < Saturated {
		b.cells[i].Low++
	}
}

// IncHigh increments the high phase of cell i, clamping at Saturated.
func (b *Buffer) IncHigh(i uint8) {
	if b.cells[i].High < Saturated {
		b.cells[i].High++
	}
}

// Zero clears both phases of cell i, as the sampler does when it opens a
// new cell on a rising edge.
func (b *Buffer) Zero(i uint8) {
	b.cells[i] = Cell{}
}

// Distance returns the number of cells from 'from' up to but not including
// 'to', walking forward with wraparound. Distance(x, x) is 0: "caught up".
func Distance(from, to uint8) uint8 {
	return to - from
}

// Caught reports whether cursor caught up with target -- i.e. there is
// nothing left to consume between them.
func Caught(cursor, target uint8) bool {
	return cursor == target
}
