package syncsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedRun feeds n identical (p0, p1) cells starting at index 0 and returns
// the final outcome/committed flag plus the Searcher for inspection.
func feedRun(p0, p1 int, n int) (*Searcher, Outcome, bool) {
	s := New(0, false)
	var outcome Outcome
	var committed bool
	for i := 0; i < n; i++ {
		outcome, committed = s.Feed(uint8(i), p0, p1)
		if committed {
			break
		}
	}
	return s, outcome, committed
}

func TestCommitsAfterEightMatchingCells(t *testing.T) {
	// duration 0x40 (64), ASK-shaped (p0 != p1, not near-equal, duration
	// below the OOK threshold of 0x80).
	s, outcome, committed := feedRun(0x30, 0x10, 9)
	require.True(t, committed)
	assert.Equal(t, DecodeASK, outcome)
	assert.Equal(t, 8, s.SyncLen)
}

func TestOOKClassificationAboveThreshold(t *testing.T) {
	// duration 0x90 > 0x80 => OOK (scenario S5).
	_, outcome, committed := feedRun(0x48, 0x48, 9)
	require.True(t, committed)
	assert.Equal(t, DecodeOOK, outcome)
}

func TestManchesterClassificationOnNearEqualPhases(t *testing.T) {
	// near-equal phases (|p1-p0| < d/8) under the OOK duration threshold
	// accrue manchester_count; after 8 matches count > 4 => Manchester.
	_, outcome, committed := feedRun(0x20, 0x20, 9)
	require.True(t, committed)
	assert.Equal(t, DecodeManchester, outcome)
}

func TestDisplayPulsesOverridesClassification(t *testing.T) {
	s := New(0, true)
	var outcome Outcome
	var committed bool
	for i := 0; i < 9; i++ {
		outcome, committed = s.Feed(uint8(i), 0x48, 0x48) // would be OOK otherwise
		if committed {
			break
		}
	}
	require.True(t, committed)
	assert.Equal(t, DecodeRawPulses, outcome)
}

func TestTooShortOrDivergentResets(t *testing.T) {
	s := New(0, false)
	// Prime with a duration.
	s.Feed(0, 0x30, 0x10)
	// A wildly different duration should reset sync_len to 0, not commit.
	_, committed := s.Feed(1, 0x02, 0x02)
	assert.False(t, committed)
	assert.Equal(t, 0, s.SyncLen)
}

// TestIdempotenceOfStableInput checks that two fresh Searchers fed the
// same unchanging run of cells resolve to the same outcome.
func TestIdempotenceOfStableInput(t *testing.T) {
	_, first, _ := feedRun(0x30, 0x10, 9)
	_, second, _ := feedRun(0x30, 0x10, 9)
	assert.Equal(t, first, second)
}
