package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/jobdeck/core/config"
)

func TestLoad(t *testing.T) {
	t.Run("parses defaults", func(t *testing.T) {
		type serverConfig struct {
			Addr            string        `env:"TEST_SERVER_ADDR" envDefault:":8080"`
			ShutdownTimeout time.Duration `env:"TEST_SERVER_SHUTDOWN" envDefault:"10s"`
		}

		var cfg serverConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	})

	t.Run("reads environment over defaults", func(t *testing.T) {
		t.Setenv("TEST_RATE_MAX", "42")

		type rateConfig struct {
			Max int `env:"TEST_RATE_MAX" envDefault:"5"`
		}

		var cfg rateConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 42, cfg.Max)
	})

	t.Run("caches per type", func(t *testing.T) {
		type cachedConfig struct {
			Value string `env:"TEST_CACHED_VALUE" envDefault:"first"`
		}

		var first cachedConfig
		require.NoError(t, config.Load(&first))

		// The environment changes, but the cached value is returned.
		t.Setenv("TEST_CACHED_VALUE", "second")

		var second cachedConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first, second)
	})

	t.Run("rejects non-pointer", func(t *testing.T) {
		type badConfig struct{}
		assert.Error(t, config.Load(badConfig{}))
	})

	t.Run("rejects required missing", func(t *testing.T) {
		type requiredConfig struct {
			Secret string `env:"TEST_REQUIRED_SECRET,required"`
		}

		var cfg requiredConfig
		assert.Error(t, config.Load(&cfg))
	})
}

func TestMustLoad(t *testing.T) {
	type panicConfig struct {
		Token string `env:"TEST_MUST_TOKEN,required"`
	}

	assert.Panics(t, func() {
		var cfg panicConfig
		config.MustLoad(&cfg)
	})
}
