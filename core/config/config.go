package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// cache holds one parsed value per configuration type.
	cache sync.Map // reflect.Type -> any

	loadEnvOnce sync.Once
)

// Load parses environment variables into cfg, which must be a non-nil
// pointer to a struct. Each configuration type is parsed once per process;
// subsequent calls for the same type return the cached value.
//
// A .env file in the working directory, if present, is loaded into the
// process environment before the first parse. Existing environment
// variables always win over .env values.
func Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: Load expects a non-nil struct pointer, got %T", cfg)
	}

	loadEnvOnce.Do(func() {
		// Missing .env is the normal case in production.
		_ = godotenv.Load()
	})

	typ := rv.Elem().Type()
	if cached, ok := cache.Load(typ); ok {
		rv.Elem().Set(reflect.ValueOf(cached))
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", typ, err)
	}

	// First writer wins so concurrent loaders observe identical values.
	actual, _ := cache.LoadOrStore(typ, rv.Elem().Interface())
	rv.Elem().Set(reflect.ValueOf(actual))
	return nil
}

// MustLoad is Load that panics on failure. Intended for application startup
// where a missing required variable should stop the process.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
