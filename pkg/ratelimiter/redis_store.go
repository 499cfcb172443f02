package ratelimiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript runs the refill+decide step atomically on the Redis side.
// State is a hash of {tokens, ts} where ts is microseconds since epoch.
// Returns {allowed, remaining, retry_after_seconds} with floats as strings
// because Lua numbers lose precision through the RESP integer path.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local elapsed = (now - ts) / 1000000.0
if elapsed > 0 then
  tokens = math.min(capacity, tokens + elapsed * rate)
end

local allowed = 0
local retry = 0.0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  retry = (cost - tokens) / rate
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', key, ttl_ms)

return {allowed, tostring(tokens), tostring(retry)}
`)

// RedisStore implements Store on Redis, sharing bucket state across
// processes. Atomicity per key comes from Redis single-threaded script
// execution instead of in-process locks. Idle buckets expire natively via
// PEXPIRE, so EvictIdle has nothing to sweep.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	maxIdle   time.Duration
	now       func() time.Time
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the Redis key namespace (default "ratelimit:").
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(rs *RedisStore) {
		if prefix != "" {
			rs.keyPrefix = prefix
		}
	}
}

// WithRedisMaxIdle sets the TTL applied to bucket keys on every touch.
func WithRedisMaxIdle(maxIdle time.Duration) RedisStoreOption {
	return func(rs *RedisStore) {
		if maxIdle > 0 {
			rs.maxIdle = maxIdle
		}
	}
}

// WithRedisClock overrides the time source, used by tests.
func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(rs *RedisStore) {
		if now != nil {
			rs.now = now
		}
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrInvalidConfig)
	}

	rs := &RedisStore{
		client:    client,
		keyPrefix: "ratelimit:",
		maxIdle:   time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs, nil
}

// Consume implements Store.
func (rs *RedisStore) Consume(ctx context.Context, key string, cost int, cfg Config) (Decision, error) {
	now := rs.now()

	raw, err := consumeScript.Run(ctx, rs.client, []string{rs.keyPrefix + key},
		now.UnixMicro(),
		cfg.RefillRate(),
		cfg.BucketCapacity(),
		cost,
		rs.maxIdle.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: redis consume: %v", ErrStoreUnavailable, err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %T", ErrStoreUnavailable, raw)
	}

	allowed, _ := reply[0].(int64)
	remaining, err := parseScriptFloat(reply[1])
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	retry, err := parseScriptFloat(reply[2])
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var retryAfter time.Duration
	if retry > 0 {
		retryAfter = max(time.Duration(retry*float64(time.Second)), time.Nanosecond)
	}

	d := Decision{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAt:    now.Add(durationForTokens(float64(cfg.BucketCapacity())-remaining, cfg.RefillRate())),
	}
	return d, nil
}

// Status implements Store. The projection is computed client-side from the
// stored state without writing anything back.
func (rs *RedisStore) Status(ctx context.Context, key string, cfg Config) (Decision, error) {
	now := rs.now()
	capacity := float64(cfg.BucketCapacity())
	rate := cfg.RefillRate()

	vals, err := rs.client.HMGet(ctx, rs.keyPrefix+key, "tokens", "ts").Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: redis status: %v", ErrStoreUnavailable, err)
	}

	projected := capacity
	if len(vals) == 2 && vals[0] != nil && vals[1] != nil {
		tokens, terr := parseScriptFloat(vals[0])
		ts, serr := parseScriptFloat(vals[1])
		if terr == nil && serr == nil {
			elapsed := float64(now.UnixMicro())/1e6 - ts/1e6
			projected = tokens
			if elapsed > 0 {
				projected = min(capacity, projected+elapsed*rate)
			}
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: projected,
		ResetAt:   now.Add(durationForTokens(capacity-projected, rate)),
	}, nil
}

// Reset implements Store.
func (rs *RedisStore) Reset(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: redis reset: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// EvictIdle implements Store. Redis expires bucket keys via the TTL set on
// every touch, so there is nothing to do here.
func (rs *RedisStore) EvictIdle(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}

// Healthcheck validates Redis connectivity, suitable for readiness endpoints.
func (rs *RedisStore) Healthcheck(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func parseScriptFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected script value %T", v)
	}
}
