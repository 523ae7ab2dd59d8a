package gpio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

func TestTicksFromElapsedSaturatesAt255(t *testing.T) {
	period := 10 * time.Microsecond
	assert.Equal(t, uint8(0), ticksFromElapsed(period, 0))
	assert.Equal(t, uint8(5), ticksFromElapsed(period, 50*time.Microsecond))
	assert.Equal(t, uint8(255), ticksFromElapsed(period, 10000*time.Microsecond))
}

// feedCycle ticks b=1 for highTicks ticks then b=0 for lowTicks ticks,
// simulating one full high-then-low cycle bounded by rising edges.
func feedCycle(s *Sampler, highTicks, lowTicks int) {
	for i := 0; i < highTicks; i++ {
		s.Tick(1)
	}
	for i := 0; i < lowTicks; i++ {
		s.Tick(0)
	}
}

func TestSamplerAccumulatesBothPhasesBeforeCommitting(t *testing.T) {
	buf := &pulsebuf.Buffer{}
	var committed []pulsebuf.Cell
	s := NewSampler(buf, func(c pulsebuf.Cell, idx uint8) {
		committed = append(committed, c)
	})

	// First rising edge (level 0 -> 1) just starts the first cell; no
	// commit fires until the *next* rising edge completes a full cycle.
	feedCycle(s, 30, 40)
	require.Empty(t, committed)

	s.Tick(1) // next rising edge: completes the (high~30, low~40) cell
	require.Len(t, committed, 1)
	// Both phases must have been accumulated (not just one, with the
	// other left at zero as a pre-fix synthetic Cell would have it), and
	// both comfortably clear the noise floor.
	assert.Greater(t, int(committed[0].Low), pulsebuf.NoiseFloor)
	assert.Greater(t, int(committed[0].High), pulsebuf.NoiseFloor)
	assert.InDelta(t, 40, committed[0].Low, 1)
	assert.InDelta(t, 30, committed[0].High, 1)
}

func TestSamplerFoldsSubFloorCellsBackIntoSameSlot(t *testing.T) {
	buf := &pulsebuf.Buffer{}
	var committed []pulsebuf.Cell
	s := NewSampler(buf, func(c pulsebuf.Cell, idx uint8) {
		committed = append(committed, c)
	})

	feedCycle(s, 5, 3) // both phases under the 20-tick noise floor
	s.Tick(1)           // rising edge: glitch folds back, no commit
	require.Empty(t, committed)
	assert.Equal(t, uint8(0), s.current)

	feedCycle(s, 30, 40) // a real cycle following the discarded glitch
	s.Tick(1)
	require.Len(t, committed, 1)
	assert.Greater(t, int(committed[0].Low), pulsebuf.NoiseFloor)
	assert.Greater(t, int(committed[0].High), pulsebuf.NoiseFloor)
	assert.Equal(t, uint8(1), s.current) // advanced past the committed slot
}

// TestSharedTickerRoutesExclusively exercises spec §8 property 5: every
// tick goes to exactly one of the sampler or the transmit player, never
// both.
func TestSharedTickerRoutesExclusively(t *testing.T) {
	transmitting := false
	var sampleCalls, xmitCalls int
	s := NewSharedTicker(time.Millisecond, func() bool { return transmitting },
		func(ctx context.Context) error { sampleCalls++; return nil },
		func(ctx context.Context) error { xmitCalls++; return nil },
	)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Tick(context.Background()))
	}
	assert.Equal(t, 5, sampleCalls)
	assert.Equal(t, 0, xmitCalls)

	transmitting = true
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Tick(context.Background()))
	}
	assert.Equal(t, 5, sampleCalls)
	assert.Equal(t, 3, xmitCalls)
}
