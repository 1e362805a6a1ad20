// Package logging assembles structured slog loggers and formatting helpers used
// across npprobes components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code automatically
// tags log lines with session ids, probe names, and correlation ids. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
