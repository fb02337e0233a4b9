package input

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		got, err := ParseMethod(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMethod("PoSt")
	require.NoError(t, err)
	assert.Equal(t, MethodPost, got)

	_, err = ParseMethod("telepathy")
	assert.Error(t, err)
}

func TestJitterValidate(t *testing.T) {
	assert.NoError(t, DefaultJitter().Validate())

	j := DefaultJitter()
	j.HoldMax = j.HoldMin - time.Millisecond
	assert.Error(t, j.Validate())

	j = DefaultJitter()
	j.ReleaseMin = 5 * time.Millisecond
	assert.Error(t, j.Validate())

	j = DefaultJitter()
	j.CursorPx = -1
	assert.Error(t, j.Validate())
}

func TestJitterDrawWithinBounds(t *testing.T) {
	j := DefaultJitter()
	j.CursorPx = 2
	rng := newRand()

	for i := 0; i < 500; i++ {
		tm := j.Draw(rng)
		require.GreaterOrEqual(t, tm.Hold, 8*time.Millisecond)
		require.LessOrEqual(t, tm.Hold, 15*time.Millisecond)
		require.GreaterOrEqual(t, tm.Release, time.Millisecond)
		require.LessOrEqual(t, tm.Release, 3*time.Millisecond)
		require.LessOrEqual(t, abs(tm.DX), 2)
		require.LessOrEqual(t, abs(tm.DY), 2)
	}
}

func TestJitterNoCursor(t *testing.T) {
	tm := DefaultJitter().Draw(newRand())
	assert.Zero(t, tm.DX)
	assert.Zero(t, tm.DY)
}

func TestDryRunClick(t *testing.T) {
	inj, err := Open(Options{Method: MethodHardware, Jitter: DefaultJitter(), DryRun: true})
	require.NoError(t, err)
	d := inj.(*DryRun)

	start := time.Now()
	require.NoError(t, d.Click(context.Background()))
	require.NoError(t, d.Click(context.Background()))

	assert.EqualValues(t, 2, d.Clicks())
	assert.GreaterOrEqual(t, time.Since(start), 18*time.Millisecond)
	assert.GreaterOrEqual(t, d.Last().Hold, 8*time.Millisecond)
	assert.NoError(t, d.Close())
}

func TestDryRunCancelled(t *testing.T) {
	d := NewDryRun(Jitter{HoldMin: time.Second, HoldMax: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.Click(ctx), context.Canceled)
	assert.Zero(t, d.Clicks())
}

func TestOpenRejectsBadOptions(t *testing.T) {
	_, err := Open(Options{Method: "bogus", Jitter: DefaultJitter()})
	assert.Error(t, err)

	bad := DefaultJitter()
	bad.HoldMax = 0
	_, err = Open(Options{Method: MethodHardware, Jitter: bad, DryRun: true})
	assert.Error(t, err)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
