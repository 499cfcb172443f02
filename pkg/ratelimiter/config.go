package ratelimiter

import (
	"fmt"
	"time"
)

// Config describes one rate limit: MaxRequests per Window with an optional
// burst Capacity. When Capacity is zero it defaults to MaxRequests, meaning
// no extra burst beyond the per-window rate.
type Config struct {
	MaxRequests int           `env:"MAX_REQUESTS"`
	Window      time.Duration `env:"WINDOW"`
	Capacity    int           `env:"CAPACITY"`
}

// Validate reports whether the configuration can drive a bucket.
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidConfig, c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative, got %d", ErrInvalidConfig, c.Capacity)
	}
	return nil
}

// BucketCapacity returns the effective burst size.
func (c Config) BucketCapacity() int {
	if c.Capacity > 0 {
		return c.Capacity
	}
	return c.MaxRequests
}

// RefillRate returns tokens added per second. The rate may be fractional
// (e.g. 5 requests per 15 minutes), which is why bucket state is float64.
func (c Config) RefillRate() float64 {
	return float64(c.MaxRequests) / c.Window.Seconds()
}
