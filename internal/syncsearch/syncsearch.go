// Package syncsearch implements the forward sync-search / modulation
// classifier (spec §4.2). It is used both by the radio node's dispatcher,
// which drives it cell-by-cell off the live pulse buffer, and by the
// host's software re-decoder (internal/hostdecode), which runs it once
// over a fully-captured buffer.
package syncsearch

import "github.com/n8kb/rfbridge/internal/pulsebuf"

// Outcome of committing a sync: which decoder the caller should now run.
type Outcome int

const (
	NeedMore Outcome = iota
	DecodeRawPulses
	DecodeOOK
	DecodeManchester
	DecodeASK
)

// thresholds from spec §4.2, preserved exactly -- these are empirically
// tuned against commodity remotes, per spec §9.
const (
	clockAdjustThreshold = 0x70
	tooShort             = 0x20
	commitLen            = 8
	ookDurationThreshold = 0x80
	manchesterMinMatches = 4
)

// Searcher holds the running state of one sync-search pass.
type Searcher struct {
	SyncStart       uint8
	SyncLen         int
	SyncDuration    int
	ManchesterCount int

	// DisplayPulses mirrors the radio's display_pulses flag (spec §3);
	// when set, a committed sync always resolves to DecodeRawPulses
	// regardless of duration/manchester heuristics.
	DisplayPulses bool
}

// New returns a Searcher ready to scan starting at startAt.
func New(startAt uint8, displayPulses bool) *Searcher {
	return &Searcher{SyncStart: startAt, DisplayPulses: displayPulses}
}

// reset restarts the search at pulse index pi with duration d.
func (s *Searcher) reset(pi uint8, d int) {
	s.SyncStart = pi
	s.SyncDuration = d
	s.SyncLen = 0
	s.ManchesterCount = 0
}

// clockAdjust applies the three-way clock correction from spec §4.2,
// in the documented if/else-if precedence (first match wins). It
// returns the possibly-corrected phase widths and combined duration.
func (s *Searcher) clockAdjust(p0, p1 int) (np0, np1, nd int) {
	d := p0 + p1
	if d <= clockAdjustThreshold {
		return p0, p1, d
	}
	// 1. double-low cell: p0' = p0/2
	if hp0 := p0 / 2; abs(hp0-p1) <= d/8 {
		return hp0, p1, hp0 + p1
	}
	// 2. double-high cell: p1' = p1/2
	if hp1 := p1 / 2; abs(p0-hp1) <= d/8 {
		return p0, hp1, p0 + hp1
	}
	// 3. double full cell: d' = d/2, must match current sync_duration
	// within d/16.
	if hd := d / 2; abs(hd-s.SyncDuration) <= d/16 {
		return p0, p1, hd
	}
	return p0, p1, d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Feed processes one new pulse at index pi with phase widths p0 (low),
// p1 (high). It returns (NeedMore, false) while still scanning, or the
// chosen decoder outcome and true once SyncLen reaches 8 -- the caller
// must stop feeding once committed==true and hand off to the returned
// decoder, then create a fresh Searcher afterward (spec §4.2's "wait for
// the chosen decoder to transition state back out of itself").
func (s *Searcher) Feed(pi uint8, p0, p1 int) (outcome Outcome, committed bool) {
	cp0, cp1, d := s.clockAdjust(p0, p1)

	if d < tooShort || abs(d-s.SyncDuration) > 8 {
		s.reset(pi, d)
		return NeedMore, false
	}

	// Accept.
	if abs(cp1-cp0) < d/8 {
		s.ManchesterCount++
	}
	s.SyncDuration += (d - s.SyncDuration) / 2
	s.SyncLen++

	if s.SyncLen < commitLen {
		return NeedMore, false
	}

	return s.commit(), true
}

// commit chooses the next decoder by the documented precedence (spec
// §4.2): raw-pulse display override, then OOK by duration, then
// Manchester by match count, else ASK.
func (s *Searcher) commit() Outcome {
	switch {
	case s.DisplayPulses:
		return DecodeRawPulses
	case s.SyncDuration > ookDurationThreshold:
		return DecodeOOK
	case s.ManchesterCount > manchesterMinMatches:
		return DecodeManchester
	default:
		return DecodeASK
	}
}

// FeedCell is a convenience wrapper around Feed taking a pulsebuf.Cell.
func (s *Searcher) FeedCell(pi uint8, c pulsebuf.Cell) (Outcome, bool) {
	return s.Feed(pi, int(c.Low), int(c.High))
}
