// Package logging assembles structured slog loggers and formatting helpers used
// across storyreel.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so workflow code can automatically
// tag log lines with project/chapter scope, stages, operations, and correlation
// IDs. The package also provides a no-op logger for tests and wiring code that
// cannot fail, plus a sampler that keeps long task polls from flooding logs.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
