// Package logging provides the structured logging facility used across
// milecal. It wraps log/slog with subsystem-tagged, printf-style helpers
// so call sites read as logging.Info("Gateway", "listening on %d", port).
//
// Init must be called once at startup; helpers used before that fall
// back to stderr instead of silently dropping entries. Provider error
// detail is logged here and never forwarded to HTTP clients.
package logging
