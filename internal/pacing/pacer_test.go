package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerFansOutFeedback(t *testing.T) {
	t.Parallel()

	local, err := NewGovernor("slot-0", testConfig())
	require.NoError(t, err)
	global, err := NewGovernor("global", Config{Floor: 500 * time.Millisecond, Ceiling: 10 * time.Second, BackoffFactor: 3, RecoverFactor: 0.9})
	require.NoError(t, err)

	p := NewPacer(local, global, nil)
	p.Backoff()
	assert.Equal(t, 2*time.Second, local.Current())
	assert.Equal(t, 1500*time.Millisecond, global.Current())

	p.Recover()
	assert.Equal(t, time.Second, local.Current())
	assert.Equal(t, 1350*time.Millisecond, global.Current())

	p.Reset()
	assert.Equal(t, time.Second, local.Current())
	assert.Equal(t, 500*time.Millisecond, global.Current())
	assert.Same(t, local, p.Local())
}

func TestPacerWaitSumsTiers(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	localSleeper := &recordingSleeper{}
	globalSleeper := &recordingSleeper{}
	local := newTestGovernor(t, clock, localSleeper, 0)
	global, err := NewGovernor("global", Config{Floor: 2 * time.Second, Ceiling: time.Minute, BackoffFactor: 2, RecoverFactor: 0.5},
		WithClock(clock.Now), WithSleeper(globalSleeper.Sleep), WithJitter(func() float64 { return 0 }))
	require.NoError(t, err)

	p := NewPacer(local, global, nil)
	_, err = p.Wait(context.Background())
	require.NoError(t, err)

	total, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, total)
}

func TestCap(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewCap(0, 1))
	var none *Cap
	require.NoError(t, none.Wait(context.Background()))

	c := NewCap(1000, 1)
	require.NotNil(t, c)
	require.NoError(t, c.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewCap(0.001, 1)
	require.NoError(t, slow.Wait(context.Background()))
	require.Error(t, slow.Wait(ctx))
}
