package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RateLimiter decides whether requests identified by a key are allowed.
type RateLimiter interface {
	// Allow consumes one token for key.
	Allow(ctx context.Context, key string) (*Result, error)
	// AllowN consumes n tokens for key.
	AllowN(ctx context.Context, key string, n int) (*Result, error)
}

// Result reports the outcome of a rate limit check.
type Result struct {
	// Limit is the configured request ceiling per window.
	Limit int
	// Remaining is the whole-token balance left in the bucket, floored.
	Remaining int
	// ResetAt is when the bucket refills to capacity.
	ResetAt time.Time

	allowed    bool
	retryAfter time.Duration
}

// Allowed reports whether the request was admitted.
func (r *Result) Allowed() bool { return r.allowed }

// RetryAfter returns how long the caller should wait before retrying.
// Zero when the request was admitted.
func (r *Result) RetryAfter() time.Duration { return r.retryAfter }

// Bucket is a token bucket rate limiter over a pluggable Store.
type Bucket struct {
	store  Store
	config Config
}

// NewBucket creates a rate limiter backed by store.
func NewBucket(store Store, config Config) (*Bucket, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, config: config}, nil
}

// Config returns the bucket's rate configuration.
func (b *Bucket) Config() Config { return b.config }

// Allow consumes a single token for key.
func (b *Bucket) Allow(ctx context.Context, key string) (*Result, error) {
	return b.AllowN(ctx, key, 1)
}

// AllowN consumes n tokens for key. The refill and the admit decision are
// applied atomically by the store.
func (b *Bucket) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTokenCount, n)
	}

	decision, err := b.store.Consume(ctx, key, n, b.config)
	if err != nil {
		return nil, err
	}
	return b.result(decision), nil
}

// Status reports the current bucket state for key without consuming tokens.
func (b *Bucket) Status(ctx context.Context, key string) (*Result, error) {
	decision, err := b.store.Status(ctx, key, b.config)
	if err != nil {
		return nil, err
	}
	return b.result(decision), nil
}

// Reset clears the bucket for key, an administrative override restoring
// full capacity.
func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}

func (b *Bucket) result(d Decision) *Result {
	return &Result{
		Limit:      b.config.MaxRequests,
		Remaining:  int(math.Floor(d.Remaining)),
		ResetAt:    d.ResetAt,
		allowed:    d.Allowed,
		retryAfter: d.RetryAfter,
	}
}
