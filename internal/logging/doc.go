// Package logging assembles structured slog loggers and formatting helpers used
// across pixelpath.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so ingest code can tag log lines
// with correlation IDs, source paths, and media types. Retention helpers prune
// and compress old daemon logs. A no-op logger is provided for tests and wiring
// code that cannot fail.
package logging
