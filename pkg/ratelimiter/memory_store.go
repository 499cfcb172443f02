package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// memoryBucket is the state for one key: a fractional token balance and the
// timestamp of the last persisted refill.
type memoryBucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryStore implements Store with in-process storage.
//
// Locking is two-tier: ms.mu guards the key->lock and key->bucket maps, and
// a per-key mutex serializes the refill+decide step for that key. Unrelated
// keys never contend on the same lock once their entries exist. Lock
// ordering is always per-key lock first, then ms.mu, so the two tiers
// cannot deadlock. Because eviction removes lock entries, acquirers must
// re-validate after locking that their mutex is still the one registered
// for the key (lockKey); holding a replaced mutex serializes nothing.
//
// Buckets are process-local and never persisted: state is lost on restart,
// which is acceptable for request throttling. Use RedisStore when limits
// must be shared across instances.
type MemoryStore struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	buckets map[string]*memoryBucket

	// Configuration
	sweepInterval   time.Duration
	maxIdle         time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time

	// Eviction throttle
	lastSweep time.Time

	// State management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	// Observability metrics
	bucketsCreated atomic.Int64
	bucketsEvicted atomic.Int64
}

// MemoryStoreStats provides observability metrics for monitoring and debugging.
type MemoryStoreStats struct {
	BucketsCreated int64 // Total number of buckets created
	BucketsEvicted int64 // Total number of idle buckets evicted
	ActiveBuckets  int   // Current number of active buckets
	IsRunning      bool  // Whether the eviction goroutine is running
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval sets the minimum gap between idle-bucket sweeps.
// EvictIdle calls arriving inside the gap are no-ops, bounding sweep
// overhead regardless of how often callers trigger housekeeping.
func WithSweepInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.sweepInterval = interval
	}
}

// WithMaxIdle sets how long a bucket may go untouched before eviction.
func WithMaxIdle(maxIdle time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if maxIdle > 0 {
			ms.maxIdle = maxIdle
		}
	}
}

// WithMemoryStoreShutdownTimeout sets the graceful shutdown timeout.
func WithMemoryStoreShutdownTimeout(timeout time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if timeout > 0 {
			ms.shutdownTimeout = timeout
		}
	}
}

// WithMemoryStoreLogger sets the logger for internal operations.
func WithMemoryStoreLogger(logger *slog.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// WithClock overrides the time source, used by tests to simulate refill.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

// NewMemoryStore creates a new in-memory store.
// Call Start() or Run() to begin background eviction of idle buckets.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		locks:           make(map[string]*sync.Mutex),
		buckets:         make(map[string]*memoryBucket),
		sweepInterval:   5 * time.Minute,
		maxIdle:         time.Hour,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// keyLock returns the mutex for key, creating it under ms.mu on first use.
// The caller must Lock/Unlock the returned mutex itself.
func (ms *MemoryStore) keyLock(key string) *sync.Mutex {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	l, ok := ms.locks[key]
	if !ok {
		l = &sync.Mutex{}
		ms.locks[key] = l
	}
	return l
}

// lockKey acquires the current mutex for key and returns it locked.
//
// An eviction sweep may delete the lock entry between the map lookup and
// the Lock call; a waiter that then acquires the orphaned mutex would run
// unserialized against anyone holding the key's replacement. Re-checking
// the registration after acquisition closes that window: on a mismatch the
// acquirer drops the stale mutex and retries against the current one.
func (ms *MemoryStore) lockKey(key string) *sync.Mutex {
	for {
		l := ms.keyLock(key)
		l.Lock()

		ms.mu.Lock()
		current, ok := ms.locks[key]
		ms.mu.Unlock()
		if ok && current == l {
			return l
		}
		l.Unlock()
	}
}

// bucketFor returns the bucket for key, creating it at full capacity when
// absent. Must be called while holding the key's lock.
func (ms *MemoryStore) bucketFor(key string, cfg Config) *memoryBucket {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.buckets[key]
	if !ok {
		b = &memoryBucket{
			tokens:     float64(cfg.BucketCapacity()),
			lastUpdate: ms.now(),
		}
		ms.buckets[key] = b
		ms.bucketsCreated.Add(1)
	}
	return b
}

// Consume implements Store.
func (ms *MemoryStore) Consume(ctx context.Context, key string, cost int, cfg Config) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	lock := ms.lockKey(key)
	defer lock.Unlock()

	b := ms.bucketFor(key, cfg)

	now := ms.now()
	capacity := float64(cfg.BucketCapacity())
	rate := cfg.RefillRate()

	// Continuous linear refill, bounded by capacity.
	if elapsed := now.Sub(b.lastUpdate).Seconds(); elapsed > 0 {
		b.tokens = min(capacity, b.tokens+elapsed*rate)
	}
	b.lastUpdate = now

	d := Decision{Remaining: b.tokens}
	if b.tokens >= float64(cost) {
		b.tokens -= float64(cost)
		d.Allowed = true
		d.Remaining = b.tokens
	} else {
		d.RetryAfter = durationForTokens(float64(cost)-b.tokens, rate)
	}
	d.ResetAt = now.Add(durationForTokens(capacity-b.tokens, rate))

	return d, nil
}

// Status implements Store. The projected balance is display-only: neither
// tokens nor lastUpdate are persisted, so fractional credit accrued between
// a status query and a later consume is not lost.
func (ms *MemoryStore) Status(ctx context.Context, key string, cfg Config) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	lock := ms.lockKey(key)
	defer lock.Unlock()

	b := ms.bucketFor(key, cfg)

	now := ms.now()
	capacity := float64(cfg.BucketCapacity())
	rate := cfg.RefillRate()

	projected := b.tokens
	if elapsed := now.Sub(b.lastUpdate).Seconds(); elapsed > 0 {
		projected = min(capacity, projected+elapsed*rate)
	}

	return Decision{
		Allowed:   true,
		Remaining: projected,
		ResetAt:   now.Add(durationForTokens(capacity-projected, rate)),
	}, nil
}

// Reset implements Store.
func (ms *MemoryStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := ms.lockKey(key)
	defer lock.Unlock()

	ms.mu.Lock()
	delete(ms.buckets, key)
	ms.mu.Unlock()
	return nil
}

// EvictIdle implements Store. Sweeps are throttled to at most one per sweep
// interval; calls inside the gap return 0 without scanning.
func (ms *MemoryStore) EvictIdle(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := ms.now()

	ms.mu.Lock()
	if ms.sweepInterval > 0 && !ms.lastSweep.IsZero() && now.Sub(ms.lastSweep) < ms.sweepInterval {
		ms.mu.Unlock()
		return 0, nil
	}
	ms.lastSweep = now

	keys := make([]string, 0, len(ms.buckets))
	for key := range ms.buckets {
		keys = append(keys, key)
	}
	ms.mu.Unlock()

	evicted := 0
	for _, key := range keys {
		lock := ms.lockKey(key)

		ms.mu.Lock()
		if b, ok := ms.buckets[key]; ok && now.Sub(b.lastUpdate) > maxAge {
			delete(ms.buckets, key)
			delete(ms.locks, key)
			evicted++
		}
		ms.mu.Unlock()

		lock.Unlock()
	}

	if evicted > 0 {
		ms.bucketsEvicted.Add(int64(evicted))
	}
	return evicted, nil
}

// Start begins the background eviction goroutine. This is a blocking
// operation that runs until the context is cancelled. Use Run() for the
// errgroup pattern or call this in a goroutine.
func (ms *MemoryStore) Start(ctx context.Context) error {
	ms.mu.Lock()
	if ms.cancel != nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store already started")
	}
	if ms.sweepInterval <= 0 {
		ms.mu.Unlock()
		return fmt.Errorf("sweep interval must be > 0, got %v (use WithSweepInterval to configure)", ms.sweepInterval)
	}

	ms.ctx, ms.cancel = context.WithCancel(ctx)
	ms.mu.Unlock()

	ms.running.Store(true)
	defer ms.running.Store(false)

	ms.logger.InfoContext(ms.ctx, "memory store eviction started",
		slog.Duration("sweep_interval", ms.sweepInterval),
		slog.Duration("max_idle", ms.maxIdle))

	ticker := time.NewTicker(ms.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.ctx.Done():
			ms.logger.InfoContext(context.Background(), "memory store eviction stopping")
			return ms.ctx.Err()
		case <-ticker.C:
			ms.sweepWithWait()
		}
	}
}

// Stop gracefully shuts down the background eviction with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (ms *MemoryStore) Stop() error {
	ms.mu.Lock()
	if ms.cancel == nil {
		ms.mu.Unlock()
		return fmt.Errorf("memory store not started")
	}

	cancel := ms.cancel
	ms.cancel = nil
	ms.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), ms.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		ms.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded after %s", ms.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// The returned function starts eviction, monitors context cancellation, and
// shuts down gracefully when the context is cancelled.
func (ms *MemoryStore) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- ms.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = ms.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (ms *MemoryStore) sweepWithWait() {
	ms.mu.Lock()
	if ms.cancel == nil {
		ms.mu.Unlock()
		return
	}
	ms.wg.Add(1)
	ms.mu.Unlock()
	defer ms.wg.Done()

	if n, err := ms.EvictIdle(ms.ctx, ms.maxIdle); err == nil && n > 0 {
		ms.logger.DebugContext(ms.ctx, "evicted idle buckets", slog.Int("count", n))
	}
}

// Stats returns current memory store statistics for observability.
// This method is thread-safe and can be called at any time.
func (ms *MemoryStore) Stats() MemoryStoreStats {
	ms.mu.Lock()
	isRunning := ms.cancel != nil
	activeBuckets := len(ms.buckets)
	ms.mu.Unlock()

	return MemoryStoreStats{
		BucketsCreated: ms.bucketsCreated.Load(),
		BucketsEvicted: ms.bucketsEvicted.Load(),
		ActiveBuckets:  activeBuckets,
		IsRunning:      isRunning,
	}
}

// Healthcheck validates that the memory store is operational, suitable for
// readiness endpoints.
func (ms *MemoryStore) Healthcheck(ctx context.Context) error {
	stats := ms.Stats()
	if ms.sweepInterval > 0 && !stats.IsRunning {
		return fmt.Errorf("eviction is configured but not running")
	}
	return nil
}

// durationForTokens converts a token deficit into wall time at the given
// refill rate, rounding up so callers never retry too early.
func durationForTokens(tokens, rate float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	d := time.Duration(tokens / rate * float64(time.Second))
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}
