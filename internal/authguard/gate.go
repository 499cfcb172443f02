package authguard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jobdeck/jobdeck/core/logger"
)

// Config maps the login protection thresholds to environment variables.
// The variable names are the recognized configuration surface; the
// _MINUTES/_DAYS suffixes are kept for compatibility with existing
// deployments.
type Config struct {
	MaxRecentFailures  int `env:"AUTH_MAX_RECENT_FAILURES" envDefault:"5"`
	RateLimitWindowMin int `env:"AUTH_RATE_LIMIT_WINDOW_MINUTES" envDefault:"15"`
	LockoutThreshold   int `env:"AUTH_LOCKOUT_THRESHOLD" envDefault:"10"`
	CleanupDays        int `env:"AUTH_CLEANUP_DAYS" envDefault:"30"`
}

// Window returns the sliding window for the recent-failure throttle.
func (c Config) Window() time.Duration {
	return time.Duration(c.RateLimitWindowMin) * time.Minute
}

// Retention returns how long failed attempts are kept before purging.
func (c Config) Retention() time.Duration {
	return time.Duration(c.CleanupDays) * 24 * time.Hour
}

// State is the derived per-username protection state. It is computed from
// the attempt and lockout rows on every check, never stored.
type State string

const (
	// StateOpen lets the attempt proceed to the credential check.
	StateOpen State = "open"
	// StateThrottled is a temporary, self-expiring sliding-window block.
	StateThrottled State = "throttled"
	// StateLocked is permanent until an administrator unlocks the account.
	StateLocked State = "locked"
)

// Decision is the outcome of a login admission check.
type Decision struct {
	Allowed bool
	State   State
	// Reason is human-readable and safe to surface to the end user.
	Reason string
	// Wait is how long until a throttled account may retry. Zero for
	// locked accounts: there is no self-service recovery from a lock.
	Wait time.Duration
}

// Gate decides whether a login attempt may proceed and records outcomes.
//
// The gate fails closed: when the tracker is unreachable the attempt is
// denied. Over-admitting credential guesses is the one failure mode this
// subsystem exists to prevent, so uncertainty resolves to denial.
type Gate struct {
	tracker Tracker
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger for gate decisions.
func WithLogger(log *slog.Logger) GateOption {
	return func(g *Gate) {
		if log != nil {
			g.logger = log
		}
	}
}

// WithClock overrides the time source, used by tests to drive the window.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate creates a login gate over the given tracker.
func NewGate(tracker Tracker, config Config, opts ...GateOption) (*Gate, error) {
	if tracker == nil {
		return nil, fmt.Errorf("authguard: tracker is required")
	}
	if config.MaxRecentFailures <= 0 || config.RateLimitWindowMin <= 0 || config.LockoutThreshold <= 0 {
		return nil, fmt.Errorf("authguard: thresholds must be positive, got %+v", config)
	}

	g := &Gate{
		tracker: tracker,
		config:  config,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CheckLoginAllowed answers "may this login attempt proceed right now".
//
// Order matters: an existing lock wins over everything, then the absolute
// failure total (which materializes a new lock lazily, on this check rather
// than at record time), then the sliding-window throttle. The returned
// decision always denies when err is non-nil.
func (g *Gate) CheckLoginAllowed(ctx context.Context, username string) (Decision, error) {
	lock, err := g.tracker.ActiveLockout(ctx, username)
	if err != nil {
		return g.deny(ctx, username, err)
	}
	if lock.Active() {
		return Decision{
			Allowed: false,
			State:   StateLocked,
			Reason:  lockedReason(lock.Reason),
		}, nil
	}

	total, err := g.tracker.TotalFailureCount(ctx, username)
	if err != nil {
		return g.deny(ctx, username, err)
	}
	if total >= g.config.LockoutThreshold {
		reason := fmt.Sprintf("%d+ failed login attempts", g.config.LockoutThreshold)
		if err := g.tracker.Lock(ctx, username, reason); err != nil {
			return g.deny(ctx, username, err)
		}
		g.logger.WarnContext(ctx, "account locked",
			logger.Username(username),
			logger.Count("total_failures", total))
		return Decision{
			Allowed: false,
			State:   StateLocked,
			Reason:  lockedReason(reason),
		}, nil
	}

	now := g.now()
	windowStart := now.Add(-g.config.Window())

	recent, err := g.tracker.RecentFailureCount(ctx, username, windowStart)
	if err != nil {
		return g.deny(ctx, username, err)
	}
	if recent >= g.config.MaxRecentFailures {
		// Sliding-window cooldown: the block lifts when the oldest
		// failure inside the window ages out, not after a fixed delay.
		wait := g.config.Window()
		if oldest, ok, err := g.tracker.OldestFailureSince(ctx, username, windowStart); err != nil {
			return g.deny(ctx, username, err)
		} else if ok {
			wait = max(oldest.Add(g.config.Window()).Sub(now), 0)
		}
		return Decision{
			Allowed: false,
			State:   StateThrottled,
			Reason: fmt.Sprintf("too many failed login attempts, try again in %d minutes",
				int(wait.Minutes())+1),
			Wait: wait,
		}, nil
	}

	return Decision{Allowed: true, State: StateOpen}, nil
}

// RecordFailure stores a failed attempt. The lock for a threshold-crossing
// failure materializes on the next CheckLoginAllowed call.
func (g *Gate) RecordFailure(ctx context.Context, username, ipAddress, userAgent string) error {
	if err := g.tracker.RecordFailure(ctx, username, ipAddress, userAgent); err != nil {
		return fmt.Errorf("%w: record failure: %v", ErrTrackerUnavailable, err)
	}
	g.logger.InfoContext(ctx, "failed login recorded",
		logger.Username(username),
		logger.ClientIP(ipAddress))
	return nil
}

// RecordSuccess clears the failure history for username. Deliberate
// amnesty: one successful login resets both the sliding window and the
// path toward the absolute threshold.
func (g *Gate) RecordSuccess(ctx context.Context, username string) error {
	if err := g.tracker.ClearHistory(ctx, username); err != nil {
		return fmt.Errorf("%w: clear history: %v", ErrTrackerUnavailable, err)
	}
	return nil
}

// Unlock is the administrative escape hatch. It closes the active lock and
// clears the failure history, so the freshly unlocked account is not
// re-locked by the next check while its old failure total still stands.
func (g *Gate) Unlock(ctx context.Context, username string) error {
	if err := g.tracker.Unlock(ctx, username); err != nil {
		return fmt.Errorf("%w: unlock: %v", ErrTrackerUnavailable, err)
	}
	if err := g.tracker.ClearHistory(ctx, username); err != nil {
		return fmt.Errorf("%w: clear history: %v", ErrTrackerUnavailable, err)
	}
	g.logger.InfoContext(ctx, "account unlocked", logger.Username(username))
	return nil
}

// AttemptCounts reports the recent-window and all-time failure counts,
// the administrative read used by the admin surface.
func (g *Gate) AttemptCounts(ctx context.Context, username string) (recent, total int, err error) {
	windowStart := g.now().Add(-g.config.Window())
	if recent, err = g.tracker.RecentFailureCount(ctx, username, windowStart); err != nil {
		return 0, 0, fmt.Errorf("%w: recent count: %v", ErrTrackerUnavailable, err)
	}
	if total, err = g.tracker.TotalFailureCount(ctx, username); err != nil {
		return 0, 0, fmt.Errorf("%w: total count: %v", ErrTrackerUnavailable, err)
	}
	return recent, total, nil
}

// ActiveLockouts lists currently locked accounts for the admin surface.
func (g *Gate) ActiveLockouts(ctx context.Context) ([]Lockout, error) {
	lockouts, err := g.tracker.ActiveLockouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list lockouts: %v", ErrTrackerUnavailable, err)
	}
	return lockouts, nil
}

// deny is the fail-closed path for tracker errors.
func (g *Gate) deny(ctx context.Context, username string, err error) (Decision, error) {
	g.logger.ErrorContext(ctx, "login tracker failure, denying attempt",
		logger.Username(username),
		logger.Error(err))
	return Decision{
		Allowed: false,
		State:   StateThrottled,
		Reason:  "login is temporarily unavailable, try again shortly",
	}, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
}

func lockedReason(reason string) string {
	return fmt.Sprintf("account locked (%s), contact an administrator to restore access", reason)
}
