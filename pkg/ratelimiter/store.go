package ratelimiter

import (
	"context"
	"time"
)

// Decision is the storage-level outcome of a token operation.
type Decision struct {
	// Allowed reports whether the requested tokens were debited.
	Allowed bool
	// Remaining is the token balance after the operation. Fractional credit
	// is preserved so small windows do not lose tokens to quantization.
	Remaining float64
	// RetryAfter is how long until enough tokens accumulate for the
	// rejected cost. Zero when Allowed.
	RetryAfter time.Duration
	// ResetAt is when the bucket reaches full capacity again.
	ResetAt time.Time
}

// Store persists token bucket state. Implementations must be safe for
// concurrent use and must serialize the refill+decide step per key so two
// concurrent callers can never double-spend the same credit.
type Store interface {
	// Consume refills the bucket for key and attempts to debit cost tokens.
	// A bucket is created at full capacity on first access.
	Consume(ctx context.Context, key string, cost int, cfg Config) (Decision, error)

	// Status returns a refill-aware projection of the bucket without
	// persisting the recomputed balance: a read must not advance the
	// refill timestamp or discard fractional credit.
	Status(ctx context.Context, key string, cfg Config) (Decision, error)

	// Reset removes the bucket for key, restoring full capacity on next use.
	Reset(ctx context.Context, key string) error

	// EvictIdle removes buckets idle longer than maxAge and returns how
	// many were removed. Implementations may throttle sweeps internally.
	EvictIdle(ctx context.Context, maxAge time.Duration) (int, error)
}
