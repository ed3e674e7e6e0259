// Package logging assembles structured slog loggers and formatting helpers used
// across the corpus tooling.
//
// It owns the console (key=value) and JSON handlers, centralizes level and
// output plumbing, and exposes context-aware helpers so alignment code can tag
// log lines with episode IDs, run IDs, and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
