// Package services defines the shared error taxonomy and context helpers used
// by the backend client, the task poller, and the stage workflows.
//
// Key responsibilities:
//   - Context helpers that stamp project/chapter scope, stage names, operation
//     kinds, and correlation identifiers for logging and tracing.
//   - Structured error markers, the typed task failure and timeout errors, and
//     the Wrap helper that keeps stage context attached to a classified error.
//   - Outcome mapping so every caller records the same terminal state for the
//     same failure.
//
// Use these helpers when wiring new stage logic so failure handling stays
// uniform across the pipeline.
package services
