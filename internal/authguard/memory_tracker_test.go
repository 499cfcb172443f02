package authguard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/jobdeck/internal/authguard"
)

func TestMemoryTracker_Attempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("counts respect the cutoff", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		tracker := authguard.NewMemoryTracker(authguard.WithTrackerClock(clock.Now))

		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))
		clock.Advance(10 * time.Minute)
		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))
		clock.Advance(10 * time.Minute)
		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))

		// Cutoff 15 minutes back excludes the first attempt.
		recent, err := tracker.RecentFailureCount(ctx, "alice", clock.Now().Add(-15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, recent)

		total, err := tracker.TotalFailureCount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})

	t.Run("oldest failure since cutoff", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		tracker := authguard.NewMemoryTracker(authguard.WithTrackerClock(clock.Now))
		start := clock.Now()

		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))
		clock.Advance(5 * time.Minute)
		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))

		oldest, ok, err := tracker.OldestFailureSince(ctx, "alice", start.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, start.Add(5*time.Minute), oldest)

		_, ok, err = tracker.OldestFailureSince(ctx, "alice", clock.Now())
		require.NoError(t, err)
		assert.False(t, ok, "cutoff at the last attempt excludes it")

		_, ok, err = tracker.OldestFailureSince(ctx, "bob", start)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clear history removes one username only", func(t *testing.T) {
		t.Parallel()
		tracker := authguard.NewMemoryTracker()

		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))
		require.NoError(t, tracker.RecordFailure(ctx, "bob", "203.0.113.8", "ua"))

		require.NoError(t, tracker.ClearHistory(ctx, "alice"))

		total, err := tracker.TotalFailureCount(ctx, "alice")
		require.NoError(t, err)
		assert.Zero(t, total)

		total, err = tracker.TotalFailureCount(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("purge removes only attempts before the cutoff", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		tracker := authguard.NewMemoryTracker(authguard.WithTrackerClock(clock.Now))

		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))
		require.NoError(t, tracker.RecordFailure(ctx, "bob", "203.0.113.8", "ua"))
		clock.Advance(time.Hour)
		require.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))

		purged, err := tracker.PurgeOld(ctx, clock.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 2, purged)

		total, err := tracker.TotalFailureCount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		total, err = tracker.TotalFailureCount(ctx, "bob")
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestMemoryTracker_Lockouts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("lock is idempotent", func(t *testing.T) {
		t.Parallel()
		tracker := authguard.NewMemoryTracker()

		require.NoError(t, tracker.Lock(ctx, "alice", "first reason"))
		require.NoError(t, tracker.Lock(ctx, "alice", "second reason"))

		lock, err := tracker.ActiveLockout(ctx, "alice")
		require.NoError(t, err)
		require.True(t, lock.Active())
		assert.Equal(t, "first reason", lock.Reason, "second lock must not replace the first")

		lockouts, err := tracker.ActiveLockouts(ctx)
		require.NoError(t, err)
		assert.Len(t, lockouts, 1)
	})

	t.Run("unlock then relock creates a fresh lockout", func(t *testing.T) {
		t.Parallel()
		tracker := authguard.NewMemoryTracker()

		require.NoError(t, tracker.Lock(ctx, "alice", "first"))
		first, err := tracker.ActiveLockout(ctx, "alice")
		require.NoError(t, err)

		require.NoError(t, tracker.Unlock(ctx, "alice"))
		lock, err := tracker.ActiveLockout(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, lock)

		require.NoError(t, tracker.Lock(ctx, "alice", "second"))
		second, err := tracker.ActiveLockout(ctx, "alice")
		require.NoError(t, err)
		require.True(t, second.Active())
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, "second", second.Reason)
	})

	t.Run("unlock without a lock is a no-op", func(t *testing.T) {
		t.Parallel()
		tracker := authguard.NewMemoryTracker()
		assert.NoError(t, tracker.Unlock(ctx, "alice"))
	})

	t.Run("active lockouts are newest first", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		tracker := authguard.NewMemoryTracker(authguard.WithTrackerClock(clock.Now))

		require.NoError(t, tracker.Lock(ctx, "alice", "r"))
		clock.Advance(time.Minute)
		require.NoError(t, tracker.Lock(ctx, "bob", "r"))
		clock.Advance(time.Minute)
		require.NoError(t, tracker.Lock(ctx, "carol", "r"))

		require.NoError(t, tracker.Unlock(ctx, "bob"))

		lockouts, err := tracker.ActiveLockouts(ctx)
		require.NoError(t, err)
		require.Len(t, lockouts, 2)
		assert.Equal(t, "carol", lockouts[0].Username)
		assert.Equal(t, "alice", lockouts[1].Username)
	})

	t.Run("returned lockout is a copy", func(t *testing.T) {
		t.Parallel()
		tracker := authguard.NewMemoryTracker()
		require.NoError(t, tracker.Lock(ctx, "alice", "reason"))

		lock, err := tracker.ActiveLockout(ctx, "alice")
		require.NoError(t, err)
		lock.Reason = "mutated"

		again, err := tracker.ActiveLockout(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "reason", again.Reason)
	})
}

func TestMemoryTracker_Concurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("concurrent lock keeps a single active lockout", func(t *testing.T) {
		t.Parallel()
		tracker := authguard.NewMemoryTracker()

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, tracker.Lock(ctx, "alice", "race"))
			}()
		}
		wg.Wait()

		lockouts, err := tracker.ActiveLockouts(ctx)
		require.NoError(t, err)
		assert.Len(t, lockouts, 1)
	})

	t.Run("concurrent record and count", func(t *testing.T) {
		t.Parallel()
		tracker := authguard.NewMemoryTracker()

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, tracker.RecordFailure(ctx, "alice", "203.0.113.7", "ua"))
				_, err := tracker.TotalFailureCount(ctx, "alice")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		total, err := tracker.TotalFailureCount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 50, total)
	})
}
