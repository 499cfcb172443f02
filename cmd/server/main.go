package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/jobdeck/jobdeck/core/config"
	"github.com/jobdeck/jobdeck/core/logger"
	"github.com/jobdeck/jobdeck/integration/database/pg"
	"github.com/jobdeck/jobdeck/integration/database/redis"
	"github.com/jobdeck/jobdeck/internal/authguard"
	"github.com/jobdeck/jobdeck/internal/db/migrations"
	"github.com/jobdeck/jobdeck/internal/httpapi"
	"github.com/jobdeck/jobdeck/internal/ratelimit"
	"github.com/jobdeck/jobdeck/pkg/ratelimiter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, logger.WithAttr(logger.Component(cfg.AppName)))

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Application failed", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Application stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	db, err := pg.Connect(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := pg.MigrateFS(ctx, db, cfg.DB, migrations.FS, ".", log.With(logger.Component("migration"))); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)

	handler, err := buildHandler(ctx, cfg, log, db, eg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	eg.Go(func() error {
		log.InfoContext(ctx, "HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// buildHandler assembles the middleware chain and routes, and registers
// background workers on eg.
func buildHandler(ctx context.Context, cfg appConfig, log *slog.Logger, db *pgxpool.Pool, eg *errgroup.Group) (http.Handler, error) {
	tracker, err := authguard.NewPostgresTracker(db)
	if err != nil {
		return nil, err
	}
	authGate, err := authguard.NewGate(tracker, cfg.Auth,
		authguard.WithLogger(log.With(logger.Component("authguard"))))
	if err != nil {
		return nil, err
	}

	purger, err := authguard.NewPurgeWorker(tracker, cfg.Auth.Retention(),
		authguard.WithPurgeLogger(log.With(logger.Component("authguard.purge"))))
	if err != nil {
		return nil, err
	}
	eg.Go(func() error { return purger.Run(ctx) })

	store, probes, err := buildStore(ctx, cfg, log, eg)
	if err != nil {
		return nil, err
	}
	probes["postgres"] = pg.Healthcheck(db)

	requestGate, err := ratelimit.NewGate(store, cfg.RateLimit.Classes(),
		ratelimit.WithExcludePaths("/healthz", "/readyz"),
		ratelimit.WithGateLogger(log.With(logger.Component("ratelimit"))))
	if err != nil {
		return nil, err
	}

	uploadGuard, err := ratelimit.NewOperationGuard(store,
		ratelimiter.Config{MaxRequests: 10, Window: cfg.RateLimit.GeneralWindow},
		"upload",
		ratelimit.WithOperationLogger(log.With(logger.Component("ratelimit.upload"))))
	if err != nil {
		return nil, err
	}

	adminGuard, err := httpapi.NewAdminGuard(cfg.Admin)
	if err != nil {
		return nil, err
	}

	handlerOpts := []httpapi.HandlerOption{
		httpapi.WithHandlerLogger(log.With(logger.Component("httpapi"))),
	}
	for name, probe := range probes {
		handlerOpts = append(handlerOpts, httpapi.WithReadinessProbe(name, probe))
	}

	api, err := httpapi.NewHandler(authGate, verifier(cfg.User), handlerOpts...)
	if err != nil {
		return nil, err
	}

	return requestGate.Middleware(api.Routes(adminGuard, uploadGuard.Middleware)), nil
}

// buildStore picks the bucket store backend and registers its background
// sweep when it has one.
func buildStore(ctx context.Context, cfg appConfig, log *slog.Logger, eg *errgroup.Group) (ratelimiter.Store, map[string]func(context.Context) error, error) {
	probes := make(map[string]func(context.Context) error)

	switch cfg.Store {
	case "memory":
		store := ratelimiter.NewMemoryStore(
			ratelimiter.WithSweepInterval(cfg.RateLimit.SweepInterval),
			ratelimiter.WithMaxIdle(cfg.RateLimit.BucketMaxIdle),
			ratelimiter.WithMemoryStoreLogger(log.With(logger.Component("ratelimit.store"))))
		eg.Go(store.Run(ctx))
		return store, probes, nil

	case "redis":
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		eg.Go(func() error {
			<-ctx.Done()
			return client.Close()
		})
		store, err := ratelimiter.NewRedisStore(client,
			ratelimiter.WithRedisMaxIdle(cfg.RateLimit.BucketMaxIdle))
		if err != nil {
			return nil, nil, err
		}
		probes["redis"] = redis.Healthcheck(client)
		return store, probes, nil

	default:
		return nil, nil, fmt.Errorf("unknown RATELIMIT_STORE %q, want memory or redis", cfg.Store)
	}
}

// verifier checks logins against the configured single-tenant account.
func verifier(user userConfig) httpapi.CredentialVerifier {
	return func(_ context.Context, username, password string) (bool, error) {
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(user.Username)) == 1
		passOK := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
		return userOK && passOK, nil
	}
}
