package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

// TestManchesterFinishFlushesDeferredCatchUp is a bit-exact golden test
// for the demiclock/stuffclock emit pass (spec §4.5/§9 "specified by
// fixture"). Three cells whose phases all sit at the full sync
// duration -- abs_sub(pulse, syncduration) < margin on every phase --
// drive demiclock forward by two on every phase, one phase ahead of
// what catchUp has drained; each PushBit lags by exactly one phase. By
// hand-tracing the original's stuffclock/demiclock recurrence
// (original_source/avr/rf_bridge_common.c cr_decode_manchester) over
// six phases (High,Low,High,Low,High,Low of 0x40 each) the expected
// stuffed sequence is 1,0,1,0,1,0 -- six bits, not five. The sixth bit
// only reaches the accumulator via the deferred catch-up in Finish.
func TestManchesterFinishFlushesDeferredCatchUp(t *testing.T) {
	m := NewManchesterNoPrepass(0x40)
	cell := pulsebuf.Cell{Low: 0x40, High: 0x40}
	for i := uint8(0); i < 3; i++ {
		r := m.Resume(cell, i)
		require.Equal(t, Continue, r.Status)
	}

	res := m.Finish()
	require.Equal(t, Done, res.Status)
	require.NotNil(t, res.Acc)
	assert.Equal(t, 6, res.Acc.BitCount())
	// 0b101010 left-justified into a byte: 0b10101000 = 0xA8.
	assert.Equal(t, []byte{0xA8}, res.Acc.Payload())
}
