// Package logging assembles structured slog loggers and formatting helpers used
// across Subtrove components.
//
// It owns the configurable console/JSON handlers, rotates file output through
// lumberjack, and exposes context-aware helpers so engine code can tag log
// lines with provider sources, stages, media identifiers, and correlation IDs.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
