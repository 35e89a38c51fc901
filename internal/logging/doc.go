// Package logging assembles the structured slog loggers and formatting
// helpers used across showrunner.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code can automatically tag log
// lines with session IDs, stage names, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail, and a
// bounded StreamHub that feeds the daemon's log endpoints.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the system.
package logging
