// Package decode implements the three on-the-fly demodulators (ASK, OOK,
// Manchester) and the raw-pulse dumper (spec §4.3-§4.6). Each decoder
// keeps a private resumable cursor, mirroring the teacher's per-task
// private stack (spec §5): Resume is called once per newly-captured
// pulse cell and returns Continue until the decoder either finishes or
// aborts, so it can be driven directly from the dispatcher's tick loop
// without literal cooperative-task yields.
package decode

import (
	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// Status is the outcome of feeding one more cell to a decoder.
type Status int

const (
	Continue Status = iota
	Done
	Aborted
)

// Result is returned once a decoder leaves Continue.
type Result struct {
	Status Status
	Acc    *frame.Accumulator // valid when Status == Done
	// AbortedAt is the cursor at which validation failed -- the caller
	// (dispatcher) advances msg_start past it and returns to sync-search
	// (spec §4.3/§4.4/§4.5 "advance msg_start past the bad pulse").
	AbortedAt uint8
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// isSaturatedMarker reports whether a cell is the end-of-transmission
// sentinel (spec §3, §4.6).
func isSaturatedMarker(c pulsebuf.Cell) bool {
	return c.SaturatedLow()
}
