package authguard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Package-level error definitions for login protection operations.
var (
	ErrTrackerUnavailable = errors.New("login attempt tracker unavailable")
)

// FailedAttempt is one recorded failed login. Append-only: rows are never
// mutated, only purged by retention or cleared on successful login.
type FailedAttempt struct {
	ID          uuid.UUID
	Username    string
	AttemptTime time.Time
	IPAddress   string
	UserAgent   string
}

// Lockout is a durable, admin-reversible block on a username.
// UnlockedAt nil means the lock is active; at most one active lock exists
// per username at any time.
type Lockout struct {
	ID         uuid.UUID
	Username   string
	LockedAt   time.Time
	Reason     string
	UnlockedAt *time.Time
}

// Active reports whether the lockout is still in force.
func (l *Lockout) Active() bool { return l != nil && l.UnlockedAt == nil }

// Tracker is the durable store of failed login attempts and lockouts.
//
// Time-bounded queries take an explicit cutoff instead of a window so the
// caller owns the clock; implementations stay deterministic under test.
// Implementations must be safe for concurrent use, and Lock must stay
// idempotent under concurrent callers (two racing lock attempts produce
// exactly one active row).
type Tracker interface {
	// RecordFailure appends a failed attempt with the current timestamp.
	// Appends are unconditional: no deduplication.
	RecordFailure(ctx context.Context, username, ipAddress, userAgent string) error

	// RecentFailureCount counts failures for username after the cutoff.
	RecentFailureCount(ctx context.Context, username string, since time.Time) (int, error)

	// OldestFailureSince returns the earliest failure after the cutoff.
	// The boolean is false when there are none.
	OldestFailureSince(ctx context.Context, username string, since time.Time) (time.Time, bool, error)

	// TotalFailureCount counts all recorded failures for username.
	TotalFailureCount(ctx context.Context, username string) (int, error)

	// ActiveLockout returns the active lock for username, or nil.
	ActiveLockout(ctx context.Context, username string) (*Lockout, error)

	// Lock inserts an active lockout unless one already exists.
	// A second call while locked is a no-op, not an error.
	Lock(ctx context.Context, username, reason string) error

	// Unlock closes the active lock, if any. Unlock is the only route out
	// of a lock; locks never expire on their own.
	Unlock(ctx context.Context, username string) error

	// ClearHistory deletes all failed attempts for username.
	ClearHistory(ctx context.Context, username string) error

	// PurgeOld deletes failed attempts older than the cutoff and reports
	// how many were removed. Housekeeping, not correctness-critical.
	PurgeOld(ctx context.Context, before time.Time) (int64, error)

	// ActiveLockouts lists every account currently locked, newest first.
	ActiveLockouts(ctx context.Context) ([]Lockout, error)
}
