package authguard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTracker implements Tracker in process memory. It backs tests and
// single-node development; production deployments use PostgresTracker so
// lockout state survives restarts and is shared across instances.
type MemoryTracker struct {
	mu       sync.Mutex
	attempts map[string][]FailedAttempt
	lockouts map[string]*Lockout // active locks only
	now      func() time.Time
}

// MemoryTrackerOption configures a MemoryTracker.
type MemoryTrackerOption func(*MemoryTracker)

// WithTrackerClock overrides the time source, used by tests.
func WithTrackerClock(now func() time.Time) MemoryTrackerOption {
	return func(mt *MemoryTracker) {
		if now != nil {
			mt.now = now
		}
	}
}

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker(opts ...MemoryTrackerOption) *MemoryTracker {
	mt := &MemoryTracker{
		attempts: make(map[string][]FailedAttempt),
		lockouts: make(map[string]*Lockout),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(mt)
	}
	return mt
}

// RecordFailure implements Tracker.
func (mt *MemoryTracker) RecordFailure(ctx context.Context, username, ipAddress, userAgent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.attempts[username] = append(mt.attempts[username], FailedAttempt{
		ID:          uuid.New(),
		Username:    username,
		AttemptTime: mt.now(),
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	})
	return nil
}

// RecentFailureCount implements Tracker.
func (mt *MemoryTracker) RecentFailureCount(ctx context.Context, username string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	count := 0
	for _, a := range mt.attempts[username] {
		if a.AttemptTime.After(since) {
			count++
		}
	}
	return count, nil
}

// OldestFailureSince implements Tracker.
func (mt *MemoryTracker) OldestFailureSince(ctx context.Context, username string, since time.Time) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	var oldest time.Time
	found := false
	for _, a := range mt.attempts[username] {
		if a.AttemptTime.After(since) && (!found || a.AttemptTime.Before(oldest)) {
			oldest = a.AttemptTime
			found = true
		}
	}
	return oldest, found, nil
}

// TotalFailureCount implements Tracker.
func (mt *MemoryTracker) TotalFailureCount(ctx context.Context, username string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.attempts[username]), nil
}

// ActiveLockout implements Tracker.
func (mt *MemoryTracker) ActiveLockout(ctx context.Context, username string) (*Lockout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	lock, ok := mt.lockouts[username]
	if !ok {
		return nil, nil
	}
	copied := *lock
	return &copied, nil
}

// Lock implements Tracker. The active-lock map makes idempotency trivial:
// the key either exists or it does not.
func (mt *MemoryTracker) Lock(ctx context.Context, username, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if _, ok := mt.lockouts[username]; ok {
		return nil
	}
	mt.lockouts[username] = &Lockout{
		ID:       uuid.New(),
		Username: username,
		LockedAt: mt.now(),
		Reason:   reason,
	}
	return nil
}

// Unlock implements Tracker.
func (mt *MemoryTracker) Unlock(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if lock, ok := mt.lockouts[username]; ok {
		at := mt.now()
		lock.UnlockedAt = &at
		delete(mt.lockouts, username)
	}
	return nil
}

// ClearHistory implements Tracker.
func (mt *MemoryTracker) ClearHistory(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	delete(mt.attempts, username)
	return nil
}

// PurgeOld implements Tracker.
func (mt *MemoryTracker) PurgeOld(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	var purged int64
	for username, attempts := range mt.attempts {
		kept := attempts[:0]
		for _, a := range attempts {
			if a.AttemptTime.Before(before) {
				purged++
			} else {
				kept = append(kept, a)
			}
		}
		if len(kept) == 0 {
			delete(mt.attempts, username)
		} else {
			mt.attempts[username] = kept
		}
	}
	return purged, nil
}

// ActiveLockouts implements Tracker.
func (mt *MemoryTracker) ActiveLockouts(ctx context.Context) ([]Lockout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make([]Lockout, 0, len(mt.lockouts))
	for _, lock := range mt.lockouts {
		out = append(out, *lock)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LockedAt.After(out[j].LockedAt)
	})
	return out, nil
}
