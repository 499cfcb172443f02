// Package logger provides structured logging built on Go's standard slog
// package: a small factory with environment-driven configuration and a set
// of pre-built attribute helpers for common fields.
//
// # Basic Usage
//
// Create a logger with functional options:
//
//	import "github.com/jobdeck/jobdeck/core/logger"
//
//	log := logger.New(
//		logger.WithLevel(slog.LevelDebug),
//		logger.WithTextFormatter(),
//	)
//
//	log.Info("server starting",
//		logger.Component("server"),
//	)
//
// Or from environment configuration (LOG_LEVEL, LOG_FORMAT):
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//	log := logger.NewFromConfig(cfg)
//
// # Attribute Helpers
//
// Helpers return empty slog.Attr for zero values, so they are safe to pass
// unconditionally:
//
//	log.Warn("login throttled",
//		logger.Username(username),
//		logger.ClientIP(ip),
//		logger.Wait(decision.Wait),
//		logger.Error(err), // no-op when err is nil
//	)
package logger
