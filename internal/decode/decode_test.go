package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

func saturatedCell() pulsebuf.Cell { return pulsebuf.Cell{Low: pulsebuf.Saturated, High: 0} }

func TestASKEmitsBitFromDominantPhase(t *testing.T) {
	a := NewASK(0x40)
	// 20 prepass cells matching duration 0x40 (within margin 8), encoding
	// bits: high-dominant (1,0,1,0,...).
	cells := []pulsebuf.Cell{
		{Low: 0x08, High: 0x38}, // 1
		{Low: 0x38, High: 0x08}, // 0
	}
	var last Result
	for i := 0; i < AskPrepassLen; i++ {
		last = a.Resume(cells[i%2], uint8(i))
		require.Equal(t, Continue, last.Status)
	}
	require.True(t, a.Decoded())
	// End of frame.
	last = a.Resume(saturatedCell(), uint8(AskPrepassLen))
	require.Equal(t, Done, last.Status)
	require.NotNil(t, last.Acc)
	assert.Equal(t, AskPrepassLen, last.Acc.BitCount())
	// First byte should start 1,0,1,0,1,0,1,0 = 0xAA.
	assert.Equal(t, byte(0xAA), last.Acc.Payload()[0])
}

func TestASKAbortsOnPrepassFailure(t *testing.T) {
	a := NewASK(0x40)
	a.Resume(pulsebuf.Cell{Low: 0x20, High: 0x20}, 0) // matches, duration 0x40
	r := a.Resume(pulsebuf.Cell{Low: 0x01, High: 0x01}, 1) // duration 2, way off
	assert.Equal(t, Aborted, r.Status)
	assert.Equal(t, uint8(1), r.AbortedAt)
	assert.False(t, a.Decoded())
}

func TestOOKStuffsBothBitsOnFullCell(t *testing.T) {
	sync := 0x40
	o := NewOOK(sync)
	var last Result
	for i := 0; i < OokPrepassLen; i++ {
		// A cell where both phases match the full sync_duration: both
		// bits are stuffed, in order (0 then 1).
		last = o.Resume(pulsebuf.Cell{Low: uint8(sync), High: uint8(sync)}, uint8(i))
		require.Equal(t, Continue, last.Status)
	}
	last = o.Resume(saturatedCell(), uint8(OokPrepassLen))
	require.Equal(t, Done, last.Status)
	// Every prepass cell stuffed a 0 then a 1.
	assert.Equal(t, OokPrepassLen*2, last.Acc.BitCount())
}

func TestRawPulsesDumpsPhasesVerbatimUntilSaturation(t *testing.T) {
	r := NewRawPulses()
	r.Resume(pulsebuf.Cell{Low: 0x11, High: 0x22}, 0)
	r.Resume(pulsebuf.Cell{Low: 0x33, High: 0x44}, 1)
	res := r.Resume(saturatedCell(), 2)
	require.Equal(t, Done, res.Status)
	assert.Equal(t, []byte{0x22, 0x11, 0x44, 0x33}, res.Acc.Payload())
	assert.Equal(t, 2, res.Acc.BitCount())
}

// TestSaturationAlwaysTerminatesWithinOneIteration exercises spec §8
// property 4 across all four decoder kinds.
func TestSaturationAlwaysTerminatesWithinOneIteration(t *testing.T) {
	t.Run("ASK", func(t *testing.T) {
		a := NewASK(0x40)
		r := a.Resume(saturatedCell(), 0)
		assert.Equal(t, Aborted, r.Status)
	})
	t.Run("OOK", func(t *testing.T) {
		o := NewOOK(0x40)
		r := o.Resume(saturatedCell(), 0)
		assert.Equal(t, Aborted, r.Status)
	})
	t.Run("Manchester", func(t *testing.T) {
		m := NewManchester(0x40)
		r := m.Resume(saturatedCell(), 0)
		assert.Equal(t, Aborted, r.Status)
	})
	t.Run("RawPulses", func(t *testing.T) {
		r := NewRawPulses()
		res := r.Resume(saturatedCell(), 0)
		assert.Equal(t, Done, res.Status)
	})
}

func TestManchesterTerminatesAtBitCeiling(t *testing.T) {
	m := NewManchester(0x40)
	i := 0
	var last Result
	for last.Status != Done {
		last = m.Resume(pulsebuf.Cell{Low: 0x40, High: 0x40}, uint8(i))
		i++
		if i > 255 {
			t.Fatal("manchester decoder never terminated")
		}
	}
	assert.GreaterOrEqual(t, last.Acc.BitCount(), ManchesterMaxBits)
}
