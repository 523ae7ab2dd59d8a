package xmit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8kb/rfbridge/internal/pulsebuf"
)

type fakePin struct {
	levels []bool
}

func (p *fakePin) Set(high bool) error {
	p.levels = append(p.levels, high)
	return nil
}

type fakeTicker struct{ n int }

func (f *fakeTicker) Tick(ctx context.Context) error {
	f.n++
	return nil
}

func TestStageRejectsShortFrames(t *testing.T) {
	var buf pulsebuf.Buffer
	p := New(&buf, &fakePin{}, &fakePin{})
	err := p.Stage(5)
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestStageWritesSaturationSentinelAndMsgEnd(t *testing.T) {
	var buf pulsebuf.Buffer
	p := New(&buf, &fakePin{}, &fakePin{})
	require.NoError(t, p.Stage(20))
	assert.True(t, buf.At(20).SaturatedLow())
	assert.Equal(t, uint8(21), p.msgEnd)
}

func TestRunReplaysStagedFrameAndReturnsIdle(t *testing.T) {
	var buf pulsebuf.Buffer
	buf.Set(0, pulsebuf.Cell{Low: 2, High: 3})
	buf.Set(1, pulsebuf.Cell{Low: 1, High: 1})
	tx := &fakePin{}
	ant := &fakePin{}
	p := New(&buf, tx, ant)
	require.NoError(t, p.Stage(MinFramePulses))

	err := p.Run(context.Background(), &fakeTicker{})
	require.NoError(t, err)
	assert.Equal(t, Idle, p.Mode())
	// Antenna should have gone high at least once and end low.
	require.NotEmpty(t, ant.levels)
	assert.False(t, ant.levels[len(ant.levels)-1])
	assert.False(t, tx.levels[len(tx.levels)-1])
}

func TestTickNoOpWhenIdle(t *testing.T) {
	var buf pulsebuf.Buffer
	p := New(&buf, &fakePin{}, &fakePin{})
	assert.NoError(t, p.Tick())
	assert.Equal(t, Idle, p.Mode())
}
