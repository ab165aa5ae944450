// Package logging provides structured logging using uber/zap.
//
// The client runs inside someone else's process, so it logs to stderr and
// never panics on a bad configuration: an unparsable level falls back to
// info, and a build failure falls back to a no-op logger.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Each subsystem takes a named child logger:
//
//	logger := logging.FromLevel("info", false)
//	transportLog := logger.Component("transport")
//	transportLog.Warn("agent unreachable", zap.String("socket", path), zap.Error(err))
package logging
