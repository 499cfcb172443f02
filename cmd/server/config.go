package main

import (
	"time"

	"github.com/jobdeck/jobdeck/core/logger"
	"github.com/jobdeck/jobdeck/integration/database/pg"
	"github.com/jobdeck/jobdeck/integration/database/redis"
	"github.com/jobdeck/jobdeck/internal/authguard"
	"github.com/jobdeck/jobdeck/internal/httpapi"
	"github.com/jobdeck/jobdeck/internal/ratelimit"
)

// appConfig aggregates every component's env-mapped settings.
type appConfig struct {
	AppName         string        `env:"APP_NAME" envDefault:"jobdeck"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Store selects the rate-limit backend: "memory" for a single
	// instance, "redis" when instances must share budgets.
	Store string `env:"RATELIMIT_STORE" envDefault:"memory"`

	Log       logger.Config
	DB        pg.Config
	Redis     redis.Config
	RateLimit ratelimit.Config
	Auth      authguard.Config
	Admin     httpapi.AdminConfig
	User      userConfig
}

// userConfig holds the single-tenant account credentials. The password
// is configured as a bcrypt hash.
type userConfig struct {
	Username     string `env:"AUTH_USERNAME,required"`
	PasswordHash string `env:"AUTH_PASSWORD_BCRYPT_HASH,required"`
}
