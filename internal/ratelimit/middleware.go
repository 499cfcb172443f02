package ratelimit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/jobdeck/jobdeck/core/logger"
	"github.com/jobdeck/jobdeck/pkg/ratelimiter"
)

// Gate admits or rejects requests per (class, client) token bucket.
//
// Storage failures fail open: a broken limiter store degrades throttling,
// not availability. The login gate in authguard makes the opposite call
// for the security-critical path.
type Gate struct {
	buckets         map[Class]*ratelimiter.Bucket
	exclude         map[string]struct{}
	excludePrefixes []string
	logger          *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithExcludePaths sets exact paths the middleware skips entirely,
// typically health checks.
func WithExcludePaths(paths ...string) GateOption {
	return func(g *Gate) {
		for _, p := range paths {
			g.exclude[normalizePath(p)] = struct{}{}
		}
	}
}

// WithExcludePrefixes sets path prefixes the middleware skips, typically
// docs and static assets.
func WithExcludePrefixes(prefixes ...string) GateOption {
	return func(g *Gate) {
		g.excludePrefixes = append(g.excludePrefixes, prefixes...)
	}
}

// WithGateLogger sets the logger for limiter decisions and failures.
func WithGateLogger(log *slog.Logger) GateOption {
	return func(g *Gate) {
		if log != nil {
			g.logger = log
		}
	}
}

// NewGate builds a request gate over store with per-class configs.
// The general class is mandatory: classes with missing or invalid configs
// fall back to it instead of failing the request path.
func NewGate(store ratelimiter.Store, classes map[Class]ratelimiter.Config, opts ...GateOption) (*Gate, error) {
	general, ok := classes[ClassGeneral]
	if !ok {
		return nil, fmt.Errorf("%w: general class config is required", ratelimiter.ErrInvalidConfig)
	}
	generalBucket, err := ratelimiter.NewBucket(store, general)
	if err != nil {
		return nil, fmt.Errorf("general class: %w", err)
	}

	g := &Gate{
		buckets: map[Class]*ratelimiter.Bucket{ClassGeneral: generalBucket},
		exclude: make(map[string]struct{}),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}

	for class, cfg := range classes {
		if class == ClassGeneral {
			continue
		}
		bucket, err := ratelimiter.NewBucket(store, cfg)
		if err != nil {
			// Misconfigured class degrades to the general limits.
			g.logger.Warn("invalid rate config, falling back to general",
				logger.LimitType(string(class)),
				logger.Error(err))
			continue
		}
		g.buckets[class] = bucket
	}

	return g, nil
}

// Middleware returns the whole-request gate. Each admitted response carries
// X-RateLimit-Limit/-Remaining/-Reset headers; rejections add Retry-After
// and a machine-readable JSON body.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		class := ClassifyPath(r.URL.Path)
		client := ClientIdentity(r)
		key := string(class) + ":" + client

		result, err := g.bucket(class).Allow(r.Context(), key)
		if err != nil {
			g.logger.WarnContext(r.Context(), "rate limit store failure, admitting request",
				logger.Path(r.URL.Path),
				logger.BucketKey(key),
				logger.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, result)

		if !result.Allowed() {
			g.logger.InfoContext(r.Context(), "request throttled",
				logger.Path(r.URL.Path),
				logger.LimitType(string(class)),
				logger.BucketKey(key),
				logger.Wait(result.RetryAfter()))
			writeThrottled(w, result, string(class))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gate) bucket(class Class) *ratelimiter.Bucket {
	if b, ok := g.buckets[class]; ok {
		return b
	}
	return g.buckets[ClassGeneral]
}

func (g *Gate) skip(path string) bool {
	path = normalizePath(path)
	if _, ok := g.exclude[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// throttledPayload is the machine-readable 429 body.
type throttledPayload struct {
	Error      string  `json:"error"`
	Detail     string  `json:"detail"`
	RetryAfter float64 `json:"retry_after"`
	LimitType  string  `json:"limit_type"`
}

// setRateLimitHeaders attaches the standard limit headers to admitted and
// rejected responses alike.
func setRateLimitHeaders(w http.ResponseWriter, result *ratelimiter.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	// Clamp to zero to avoid confusing negative values in API responses.
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// writeThrottled renders the 429 response with retry guidance.
func writeThrottled(w http.ResponseWriter, result *ratelimiter.Result, limitType string) {
	retry := result.RetryAfter().Seconds()
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry))))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(throttledPayload{
		Error:      "rate_limit_exceeded",
		Detail:     fmt.Sprintf("too many requests, retry in %.0f seconds", math.Ceil(retry)),
		RetryAfter: retry,
		LimitType:  limitType,
	})
}
