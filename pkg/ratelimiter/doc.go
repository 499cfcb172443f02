// Package ratelimiter provides token bucket rate limiting with pluggable
// storage backends.
//
// The token bucket algorithm maintains a credit pool per key that refills
// continuously at a fixed rate up to a cap; each request debits the pool.
// Balances are floating point so fractional refill rates (for example
// 5 requests per 15 minutes) never lose credit to quantization.
//
// # Core Types
//
// RateLimiter is the consumer-facing contract:
//   - Allow(ctx, key): consume 1 token
//   - AllowN(ctx, key, n): consume n tokens
//
// Bucket implements RateLimiter over a Store, adding Status (a refill-aware
// read that never consumes) and Reset (administrative override).
//
// # Usage
//
//	store := ratelimiter.NewMemoryStore()
//
//	// 100 requests per minute, no extra burst.
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		MaxRequests: 100,
//		Window:      time.Minute,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := limiter.Allow(ctx, "user:123")
//	if err != nil {
//		// storage failure, not a rate limit decision
//	}
//	if !result.Allowed() {
//		log.Printf("rate limited, retry after %s", result.RetryAfter())
//	}
//
// # Storage Backends
//
// MemoryStore keeps buckets in-process with per-key locking and periodic
// eviction of idle entries; it is fast and dependency-free but limits are
// not shared across instances. RedisStore runs the same algorithm inside an
// atomic Lua script, sharing limits across every process that points at the
// same Redis.
//
// Both stores guarantee that the refill and the admit/deny decision for one
// key are serialized: concurrent callers can never double-spend a credit or
// observe an inconsistent balance.
package ratelimiter
