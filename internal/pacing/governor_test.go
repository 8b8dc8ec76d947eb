package pacing

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

func testConfig() Config {
	return Config{Floor: time.Second, Ceiling: 30 * time.Second, BackoffFactor: 2, RecoverFactor: 0.5}
}

func newTestGovernor(t *testing.T, clock *fakeClock, sleeper *recordingSleeper, jitter float64) *Governor {
	t.Helper()
	g, err := NewGovernor("test", testConfig(),
		WithClock(clock.Now),
		WithSleeper(sleeper.Sleep),
		WithJitter(func() float64 { return jitter }),
	)
	require.NoError(t, err)
	return g
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"zero floor", func(c *Config) { c.Floor = 0 }, "floor"},
		{"ceiling below floor", func(c *Config) { c.Ceiling = c.Floor / 2 }, "ceiling"},
		{"shrinking backoff", func(c *Config) { c.BackoffFactor = 0.5 }, "backoff factor"},
		{"recover of one", func(c *Config) { c.RecoverFactor = 1 }, "recover factor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mut(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
	require.NoError(t, DefaultConfig().Validate())
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	for k := 1; k <= 8; k++ {
		g, err := NewGovernor("bounds", cfg)
		require.NoError(t, err)
		for i := 0; i < k; i++ {
			g.Backoff()
		}
		want := time.Duration(math.Min(float64(cfg.Floor)*math.Pow(cfg.BackoffFactor, float64(k)), float64(cfg.Ceiling)))
		assert.Equal(t, want, g.Current(), "after %d backoffs", k)

		before := g.Current()
		g.Recover()
		assert.Less(t, g.Current(), before)
		assert.GreaterOrEqual(t, g.Current(), cfg.Floor)
	}
}

func TestRecoverNeverBelowFloor(t *testing.T) {
	t.Parallel()

	g, err := NewGovernor("floor", testConfig())
	require.NoError(t, err)
	g.Backoff()
	for i := 0; i < 10; i++ {
		g.Recover()
	}
	assert.Equal(t, time.Second, g.Current())

	g.Backoff()
	g.Backoff()
	g.Reset()
	assert.Equal(t, time.Second, g.Current())
}

func TestWaitSubtractsElapsedTime(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sleeper := &recordingSleeper{}
	g := newTestGovernor(t, clock, sleeper, 0)

	d, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, d, "first request goes out immediately")

	clock.Advance(400 * time.Millisecond)
	d, err = g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 600*time.Millisecond, d)

	clock.Advance(5 * time.Second)
	d, err = g.Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, d, "processing already took longer than the delay")
}

func TestWaitJitterRange(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sleeper := &recordingSleeper{}
	g := newTestGovernor(t, clock, sleeper, 0.999999)

	_, err := g.Wait(context.Background())
	require.NoError(t, err)
	d, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Greater(t, d, time.Second)
	assert.LessOrEqual(t, d, 1500*time.Millisecond)
}

func TestWaitReservesSlotsForConcurrentCallers(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	sleeper := &recordingSleeper{}
	g := newTestGovernor(t, clock, sleeper, 0)

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Wait(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// With a frozen clock each caller is pushed one full delay behind the previous.
	got := map[time.Duration]bool{}
	for _, d := range sleeper.slept {
		got[d] = true
	}
	require.Len(t, sleeper.slept, callers-1)
	for i := 1; i < callers; i++ {
		assert.True(t, got[time.Duration(i)*time.Second], "missing slot %d", i)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	t.Parallel()

	g, err := NewGovernor("cancel", Config{Floor: time.Hour, Ceiling: time.Hour, BackoffFactor: 1, RecoverFactor: 0.5})
	require.NoError(t, err)
	_, err = g.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
