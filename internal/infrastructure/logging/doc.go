// Package logging provides structured logging for fireplaced.
//
// It wraps log/slog with configuration-driven level filtering, output
// format selection (JSON for production, text for development), and
// default service/version fields. Component loggers are derived with
// With("component", ...) so every line is attributable.
package logging
