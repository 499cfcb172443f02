package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/jobdeck/pkg/ratelimiter"
)

// fakeClock is a manually advanced time source for deterministic refill tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryStore_Consume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := ratelimiter.Config{
		MaxRequests: 5,
		Window:      time.Minute,
	}

	t.Run("creates new bucket at full capacity", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore()

		d, err := store.Consume(ctx, "fresh", 1, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.InDelta(t, 4.0, d.Remaining, 0.01)
		assert.Zero(t, d.RetryAfter)
	})

	t.Run("admits exactly max requests in a burst", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		for i := range 5 {
			d, err := store.Consume(ctx, "burst", 1, cfg)
			require.NoError(t, err)
			assert.True(t, d.Allowed, "request %d should be admitted", i+1)
		}

		d, err := store.Consume(ctx, "burst", 1, cfg)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Positive(t, d.RetryAfter)
	})

	t.Run("tokens never exceed capacity", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		_, err := store.Consume(ctx, "cap", 3, cfg)
		require.NoError(t, err)

		clock.Advance(24 * time.Hour)

		d, err := store.Status(ctx, "cap", cfg)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, d.Remaining, 0.01)
	})

	t.Run("refill admits one more after window/max elapsed", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		for range 5 {
			d, err := store.Consume(ctx, "refill", 1, cfg)
			require.NoError(t, err)
			require.True(t, d.Allowed)
		}

		d, err := store.Consume(ctx, "refill", 1, cfg)
		require.NoError(t, err)
		require.False(t, d.Allowed)

		// One token accrues every window/max = 12s.
		clock.Advance(12 * time.Second)

		d, err = store.Consume(ctx, "refill", 1, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)

		d, err = store.Consume(ctx, "refill", 1, cfg)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})

	t.Run("retry after reflects token deficit", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		for range 5 {
			_, err := store.Consume(ctx, "deficit", 1, cfg)
			require.NoError(t, err)
		}

		d, err := store.Consume(ctx, "deficit", 1, cfg)
		require.NoError(t, err)
		require.False(t, d.Allowed)
		// Empty bucket, rate is 1 token per 12s.
		assert.InDelta(t, 12.0, d.RetryAfter.Seconds(), 0.1)
	})

	t.Run("per-key isolation", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		for range 5 {
			_, err := store.Consume(ctx, "client-a", 1, cfg)
			require.NoError(t, err)
		}
		d, err := store.Consume(ctx, "client-a", 1, cfg)
		require.NoError(t, err)
		require.False(t, d.Allowed)

		d, err = store.Consume(ctx, "client-b", 1, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.InDelta(t, 4.0, d.Remaining, 0.01)
	})

	t.Run("fractional refill rate accumulates", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		// 5 per 15 minutes: one token per 180s.
		slow := ratelimiter.Config{MaxRequests: 5, Window: 15 * time.Minute}

		for range 5 {
			_, err := store.Consume(ctx, "slow", 1, slow)
			require.NoError(t, err)
		}

		clock.Advance(90 * time.Second)
		d, err := store.Consume(ctx, "slow", 1, slow)
		require.NoError(t, err)
		require.False(t, d.Allowed)

		clock.Advance(90 * time.Second)
		d, err = store.Consume(ctx, "slow", 1, slow)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "half-tokens from both waits should add up")
	})

	t.Run("explicit capacity allows extra burst", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		burst := ratelimiter.Config{MaxRequests: 5, Window: time.Minute, Capacity: 8}

		admitted := 0
		for range 10 {
			d, err := store.Consume(ctx, "bursty", 1, burst)
			require.NoError(t, err)
			if d.Allowed {
				admitted++
			}
		}
		assert.Equal(t, 8, admitted)
	})
}

func TestMemoryStore_Status(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := ratelimiter.Config{MaxRequests: 5, Window: time.Minute}

	t.Run("does not consume", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore()

		for range 3 {
			d, err := store.Status(ctx, "status", cfg)
			require.NoError(t, err)
			assert.InDelta(t, 5.0, d.Remaining, 0.01)
		}
	})

	t.Run("projection does not discard fractional credit", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(clock.Now))

		for range 5 {
			_, err := store.Consume(ctx, "proj", 1, cfg)
			require.NoError(t, err)
		}

		// Half a token accrues; a status read must not persist (and
		// thereby re-anchor) the refill timestamp.
		clock.Advance(6 * time.Second)
		d, err := store.Status(ctx, "proj", cfg)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, d.Remaining, 0.01)

		clock.Advance(6 * time.Second)
		d, err = store.Consume(ctx, "proj", 1, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})
}

func TestMemoryStore_Reset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := ratelimiter.Config{MaxRequests: 5, Window: time.Minute}

	t.Run("restores full capacity", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore()

		for range 5 {
			_, err := store.Consume(ctx, "reset", 1, cfg)
			require.NoError(t, err)
		}

		require.NoError(t, store.Reset(ctx, "reset"))

		d, err := store.Consume(ctx, "reset", 1, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.InDelta(t, 4.0, d.Remaining, 0.01)
	})

	t.Run("reset of unknown key succeeds", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore()
		assert.NoError(t, store.Reset(ctx, "unknown"))
	})
}

func TestMemoryStore_EvictIdle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := ratelimiter.Config{MaxRequests: 5, Window: time.Minute}

	t.Run("evicts idle buckets and keeps active ones", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(
			ratelimiter.WithClock(clock.Now),
			ratelimiter.WithSweepInterval(time.Minute),
		)

		_, err := store.Consume(ctx, "idle", 1, cfg)
		require.NoError(t, err)

		clock.Advance(2 * time.Hour)
		_, err = store.Consume(ctx, "active", 1, cfg)
		require.NoError(t, err)

		evicted, err := store.EvictIdle(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, evicted)
		assert.Equal(t, 1, store.Stats().ActiveBuckets)
	})

	t.Run("sweeps are throttled to the sweep interval", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(
			ratelimiter.WithClock(clock.Now),
			ratelimiter.WithSweepInterval(5*time.Minute),
		)

		_, err := store.Consume(ctx, "one", 1, cfg)
		require.NoError(t, err)

		clock.Advance(2 * time.Hour)
		evicted, err := store.EvictIdle(ctx, time.Hour)
		require.NoError(t, err)
		require.Equal(t, 1, evicted)

		// A new bucket immediately goes idle, but the next sweep is
		// suppressed until the interval passes.
		_, err = store.Consume(ctx, "two", 1, cfg)
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)

		evicted, err = store.EvictIdle(ctx, time.Nanosecond)
		require.NoError(t, err)
		assert.Zero(t, evicted)

		clock.Advance(5 * time.Minute)
		evicted, err = store.EvictIdle(ctx, time.Nanosecond)
		require.NoError(t, err)
		assert.Equal(t, 1, evicted)
	})

	t.Run("evicted bucket is recreated at capacity", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		store := ratelimiter.NewMemoryStore(
			ratelimiter.WithClock(clock.Now),
			ratelimiter.WithSweepInterval(time.Minute),
		)

		for range 5 {
			_, err := store.Consume(ctx, "reborn", 1, cfg)
			require.NoError(t, err)
		}

		clock.Advance(2 * time.Hour)
		_, err := store.EvictIdle(ctx, time.Hour)
		require.NoError(t, err)

		d, err := store.Consume(ctx, "reborn", 1, cfg)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.InDelta(t, 4.0, d.Remaining, 0.01)
	})
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("stop before start errors", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore()
		assert.Error(t, store.Stop())
	})

	t.Run("start and stop", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore(
			ratelimiter.WithSweepInterval(10 * time.Millisecond),
		)

		errCh := make(chan error, 1)
		go func() { errCh <- store.Start(context.Background()) }()

		assert.Eventually(t, func() bool {
			return store.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, store.Stop())

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Start did not return after Stop")
		}
	})

	t.Run("double start errors", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore(
			ratelimiter.WithSweepInterval(10 * time.Millisecond),
		)

		go func() { _ = store.Start(context.Background()) }()
		assert.Eventually(t, func() bool {
			return store.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)

		assert.Error(t, store.Start(context.Background()))
		require.NoError(t, store.Stop())
	})

	t.Run("run exits cleanly on context cancel", func(t *testing.T) {
		t.Parallel()
		store := ratelimiter.NewMemoryStore(
			ratelimiter.WithSweepInterval(10 * time.Millisecond),
		)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- store.Run(ctx)() }()

		assert.Eventually(t, func() bool {
			return store.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})
}
