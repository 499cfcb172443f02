package authguard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobdeck/jobdeck/core/logger"
)

// PurgeWorker periodically deletes failed login attempts older than the
// retention cutoff. Purging trims storage only; it never touches lockout
// rows, so a locked account stays locked even after its triggering
// attempts age out.
type PurgeWorker struct {
	tracker   Tracker
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	shutdownTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	running bool

	runs   atomic.Int64
	purged atomic.Int64
}

// PurgeWorkerOption configures a PurgeWorker.
type PurgeWorkerOption func(*PurgeWorker)

// WithPurgeInterval sets how often the worker runs. Default is 24h.
func WithPurgeInterval(interval time.Duration) PurgeWorkerOption {
	return func(w *PurgeWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithPurgeLogger sets the logger for purge runs.
func WithPurgeLogger(log *slog.Logger) PurgeWorkerOption {
	return func(w *PurgeWorker) {
		if log != nil {
			w.logger = log
		}
	}
}

// WithPurgeShutdownTimeout bounds how long Stop waits for an in-flight
// purge. Default is 5s.
func WithPurgeShutdownTimeout(timeout time.Duration) PurgeWorkerOption {
	return func(w *PurgeWorker) {
		if timeout > 0 {
			w.shutdownTimeout = timeout
		}
	}
}

// WithPurgeClock overrides the time source, used by tests.
func WithPurgeClock(now func() time.Time) PurgeWorkerOption {
	return func(w *PurgeWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewPurgeWorker creates a retention worker over the given tracker.
func NewPurgeWorker(tracker Tracker, retention time.Duration, opts ...PurgeWorkerOption) (*PurgeWorker, error) {
	if tracker == nil {
		return nil, fmt.Errorf("authguard: tracker is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("authguard: retention must be positive, got %s", retention)
	}

	w := &PurgeWorker{
		tracker:         tracker,
		retention:       retention,
		interval:        24 * time.Hour,
		shutdownTimeout: 5 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start launches the periodic purge loop. The first purge runs on the
// first tick, not immediately.
func (w *PurgeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("authguard: purge worker already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.done)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.purge(runCtx)
			}
		}
	}()

	return nil
}

// Stop halts the loop and waits for an in-flight purge, bounded by the
// shutdown timeout.
func (w *PurgeWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("authguard: purge worker not started")
	}
	w.running = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(w.shutdownTimeout):
		return fmt.Errorf("authguard: purge worker shutdown timed out after %s", w.shutdownTimeout)
	}
}

// Run starts the worker and blocks until ctx is cancelled, then stops it.
// Designed for errgroup-managed lifecycles.
func (w *PurgeWorker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return w.Stop()
	})
	return g.Wait()
}

// Purge deletes attempts older than the retention cutoff once, outside
// the periodic loop. Used at startup and by tests.
func (w *PurgeWorker) Purge(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.retention)
	n, err := w.tracker.PurgeOld(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %v", ErrTrackerUnavailable, err)
	}
	w.runs.Add(1)
	w.purged.Add(n)
	return n, nil
}

func (w *PurgeWorker) purge(ctx context.Context) {
	n, err := w.Purge(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "login attempt purge failed", logger.Error(err))
		return
	}
	if n > 0 {
		w.logger.InfoContext(ctx, "purged old login attempts",
			logger.Count("purged", int(n)))
	}
}

// PurgeWorkerStats reports counters for monitoring.
type PurgeWorkerStats struct {
	Runs        int64
	TotalPurged int64
}

// Stats returns cumulative purge counters.
func (w *PurgeWorker) Stats() PurgeWorkerStats {
	return PurgeWorkerStats{
		Runs:        w.runs.Load(),
		TotalPurged: w.purged.Load(),
	}
}
