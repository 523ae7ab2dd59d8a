package dispatch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

func askLikeCell() pulsebuf.Cell { return pulsebuf.Cell{Low: 0x10, High: 0x30} }

// feedUntilCommitted feeds the sync-biased cell repeatedly until the
// dispatcher leaves phaseSearch, returning the next free index.
func feedUntilCommitted(t *testing.T, d *Dispatcher) uint8 {
	t.Helper()
	var idx uint8
	for i := 0; i < 64; i++ {
		d.Sample(askLikeCell(), idx)
		idx++
		if d.phase == phaseDecode {
			return idx
		}
	}
	t.Fatal("sync search never committed")
	return 0
}

func TestDispatcherEmitsASKFrameOnSaturation(t *testing.T) {
	var out bytes.Buffer
	d := New(&pulsebuf.Buffer{}, &out, nil)

	idx := feedUntilCommitted(t, d)
	for i := 0; i < 20; i++ {
		d.Sample(askLikeCell(), idx)
		idx++
	}
	d.Sample(pulsebuf.Cell{Low: pulsebuf.Saturated}, idx)

	require.Equal(t, uint64(1), d.frames)
	lines := strings.SplitN(out.String(), "\n", 3)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "MA:"))
	assert.True(t, strings.HasPrefix(lines[1], "#"))

	typ, payload, err := frame.ParseHeaderLine(lines[0])
	require.NoError(t, err)
	assert.Equal(t, frame.ASK, typ)
	bcount, syncDuration, checksum, err := frame.ParseTrailerLine(lines[1])
	require.NoError(t, err)
	assert.Equal(t, frame.Checksum(payload, bcount, syncDuration), checksum)
	assert.Equal(t, d.phase, phaseSearch, "dispatcher returns to searching after a frame")
}

func TestDispatcherAbortsMidDecodeAndResumesSearch(t *testing.T) {
	var out bytes.Buffer
	d := New(&pulsebuf.Buffer{}, &out, nil)

	idx := feedUntilCommitted(t, d)
	d.Sample(pulsebuf.Cell{Low: 0x01, High: 0x01}, idx) // way off sync_duration: aborts prepass
	assert.Equal(t, uint64(1), d.aborts)
	assert.Equal(t, phaseSearch, d.phase)
	assert.Equal(t, uint64(0), d.frames)
}

func TestDispatcherSnapshotTracksCounters(t *testing.T) {
	d := New(&pulsebuf.Buffer{}, &bytes.Buffer{}, nil)
	feedUntilCommitted(t, d)
	snap := d.Snapshot()
	assert.Greater(t, snap["ticks"], uint32(0))
	assert.Equal(t, uint32(1), snap["syncruns"])
}

func TestDispatcherPulseDisplayOverridesClassification(t *testing.T) {
	var out bytes.Buffer
	displayPulses := true
	d := New(&pulsebuf.Buffer{}, &out, nil)
	d.DisplayPulses = &displayPulses
	d.resetToSearch(0)

	idx := feedUntilCommitted(t, d)
	d.Sample(pulsebuf.Cell{Low: 0x11, High: 0x22}, idx)
	idx++
	d.Sample(pulsebuf.Cell{Low: pulsebuf.Saturated}, idx)

	lines := strings.SplitN(out.String(), "\n", 3)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "MP:"))
}
