// Package config loads environment variables into tagged structs, with a
// .env bootstrap and per-type caching.
//
// Load reflects over the pointed-to struct type and parses it with
// caarlos0/env; a .env file in the working directory, if present, is read
// into the process environment once before the first parse. Each config
// type is parsed once per process, so components can load their own
// config independently and still observe identical values:
//
//	type serverConfig struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg serverConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// MustLoad panics on failure, which is the right behavior at startup
// where a missing required variable should stop the process.
package config
