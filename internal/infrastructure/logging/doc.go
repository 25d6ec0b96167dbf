// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Diagnostics are written to stderr by default; stdout is reserved for the
// rendered call trees produced by the console sink. Child loggers share the
// root's level, which SetLevel adjusts at runtime.
//
// Throttle wraps a token bucket (golang.org/x/time/rate) for diagnostics that
// can fire once per dropped item, such as queue overflow or serialization
// failures.
//
// Example Usage:
//
//	logger := logging.FromEnv("info", false, nil).Named("snapshot")
//	logger.Warn("snapshot write failed", zap.String("path", path), zap.Error(err))
package logging
