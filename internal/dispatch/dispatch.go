// Package dispatch implements the radio node's single-loop running_state
// machine (spec §4.7, §5): it drives a syncsearch.Searcher and whichever
// decoder it selects off the live pulse stream, and emits decoded frames
// to the host. Command lines and transmit requests are handled by
// internal/command, not here.
package dispatch

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/n8kb/rfbridge/internal/decode"
	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/logx"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
	"github.com/n8kb/rfbridge/internal/syncsearch"
)

// decoder is the common surface all of internal/decode's resumable
// cursors share.
type decoder interface {
	Resume(c pulsebuf.Cell, idx uint8) decode.Result
}

// phase is the dispatcher's own two-state view of running_state: either
// hunting for a sync preamble, or resuming an in-flight decode.
type phase int

const (
	phaseSearch phase = iota
	phaseDecode
)

// Dispatcher owns the sync-search/decode cycle for one pulse buffer. It
// is not safe for concurrent use -- like the firmware it's modeled on,
// exactly one goroutine (the sampler's caller) drives Sample.
type Dispatcher struct {
	buf *pulsebuf.Buffer
	out io.Writer
	log *log.Logger

	// DisplayPulses mirrors the shared flag command.Receiver toggles via
	// PULSE/DEMOD; it is read fresh each time a Searcher is (re)created.
	DisplayPulses *bool

	phase   phase
	search  *syncsearch.Searcher
	dec     decoder

	// Loopback self-test (SPEC_FULL.md supplement): when set, Sample
	// also logs a Received event for every cell, so a test harness can
	// confirm the sampler observed transmitted playback.
	Loopback bool

	ticks    uint64
	syncRuns uint64
	frames   uint64
	aborts   uint64
}

// New returns a Dispatcher ready to search for a fresh sync starting at
// ring index 0.
func New(buf *pulsebuf.Buffer, out io.Writer, logger *log.Logger) *Dispatcher {
	displayPulses := false
	d := &Dispatcher{
		buf:           buf,
		out:           out,
		log:           logger,
		DisplayPulses: &displayPulses,
	}
	d.resetToSearch(0)
	return d
}

func (d *Dispatcher) resetToSearch(pi uint8) {
	d.phase = phaseSearch
	d.search = syncsearch.New(pi, *d.DisplayPulses)
	d.dec = nil
}

// Sample feeds one newly-completed pulse cell at ring index idx into the
// dispatcher (spec §4.7). It is called once per pulse by the sampler's
// advance callback; internal/xmit's Player is driven separately, by the
// shared ticker, and the caller skips Sample while the Player is not Idle.
func (d *Dispatcher) Sample(c pulsebuf.Cell, idx uint8) {
	d.ticks++
	if d.Loopback && d.log != nil {
		logx.Event(d.log, logx.Received, "sample", "idx", idx, "low", c.Low, "high", c.High)
	}

	if d.phase == phaseSearch {
		outcome, committed := d.search.FeedCell(idx, c)
		if !committed {
			return
		}
		d.syncRuns++
		d.startDecoder(outcome)
		return
	}

	res := d.dec.Resume(c, idx)
	switch res.Status {
	case decode.Continue:
		return
	case decode.Aborted:
		d.aborts++
		d.resetToSearch(idx)
	case decode.Done:
		d.frames++
		d.emit(res.Acc)
		d.resetToSearch(idx)
	}
}

func (d *Dispatcher) startDecoder(outcome syncsearch.Outcome) {
	sd := d.search.SyncDuration
	switch outcome {
	case syncsearch.DecodeASK:
		d.dec = decode.NewASK(sd)
	case syncsearch.DecodeOOK:
		d.dec = decode.NewOOK(sd)
	case syncsearch.DecodeManchester:
		d.dec = decode.NewManchester(sd)
	case syncsearch.DecodeRawPulses:
		d.dec = decode.NewRawPulses()
	default:
		d.resetToSearch(d.search.SyncStart)
		return
	}
	d.phase = phaseDecode
}

// emit finalizes acc and writes the two-line decoded frame to the host
// (spec §4.7, §6.1): "#<bcount>!<sync_duration>*<chk>" is only worth
// sending once bcount > 0.
func (d *Dispatcher) emit(acc *frame.Accumulator) {
	acc.Flush()
	bcount := acc.BitCount()
	if bcount == 0 {
		return
	}
	line := frame.EncodeDecodedFrame(acc.Type(), acc.Payload(), byte(bcount), byte(d.search.SyncDuration))
	fmt.Fprint(d.out, line)
	if d.log != nil {
		logx.Event(d.log, logx.Decoded, "frame emitted", "type", acc.Type().String(), "bcount", bcount)
	}
}

// Snapshot implements command.StackStats: a diagnostic dump of the
// dispatcher's own run counters, in lieu of the per-task stack
// watermarks the cooperative-multitasking original reported (spec
// §4.8's STACK command; SPEC_FULL.md supplement).
func (d *Dispatcher) Snapshot() map[string]uint32 {
	return map[string]uint32{
		"ticks":    uint32(d.ticks),
		"syncruns": uint32(d.syncRuns),
		"frames":   uint32(d.frames),
		"aborts":   uint32(d.aborts),
	}
}
