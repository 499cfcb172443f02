package ratelimit

import (
	"time"

	"github.com/jobdeck/jobdeck/pkg/ratelimiter"
)

// Config maps the per-class rate limits and store housekeeping knobs to
// environment variables.
type Config struct {
	AuthMaxRequests    int           `env:"RATELIMIT_AUTH_MAX_REQUESTS" envDefault:"10"`
	AuthWindow         time.Duration `env:"RATELIMIT_AUTH_WINDOW" envDefault:"1m"`
	AIMaxRequests      int           `env:"RATELIMIT_AI_MAX_REQUESTS" envDefault:"20"`
	AIWindow           time.Duration `env:"RATELIMIT_AI_WINDOW" envDefault:"1m"`
	GeneralMaxRequests int           `env:"RATELIMIT_GENERAL_MAX_REQUESTS" envDefault:"100"`
	GeneralWindow      time.Duration `env:"RATELIMIT_GENERAL_WINDOW" envDefault:"1m"`

	SweepInterval time.Duration `env:"RATELIMIT_SWEEP_INTERVAL" envDefault:"5m"`
	BucketMaxIdle time.Duration `env:"RATELIMIT_BUCKET_MAX_IDLE" envDefault:"1h"`
}

// Classes expands the flat env mapping into per-class bucket configs.
func (c Config) Classes() map[Class]ratelimiter.Config {
	return map[Class]ratelimiter.Config{
		ClassAuth: {
			MaxRequests: c.AuthMaxRequests,
			Window:      c.AuthWindow,
		},
		ClassAI: {
			MaxRequests: c.AIMaxRequests,
			Window:      c.AIWindow,
		},
		ClassGeneral: {
			MaxRequests: c.GeneralMaxRequests,
			Window:      c.GeneralWindow,
		},
	}
}
