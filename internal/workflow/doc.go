// Package workflow drives a chapter through the production pipeline stages.
//
// Each stage (Characters, Scenes, Shots, Transitions) caches the entities it
// owns and submits generation work to the backend. Every task-backed call
// goes through the same path: acquire an in-flight marker for the
// (operation, target) pair, submit, poll the returned task until it resolves,
// then re-fetch exactly the data the task invalidated. Markers are released
// on every exit path, including submission errors, task failures, timeouts,
// cancellation, and panics in a refresh handler.
//
// The Manager owns the session identity (project and chapter), sequences the
// initial LoadAll, and recomputes the current pipeline stage whenever a stage
// refreshes its cache. Stage derivation and gate predicates live in
// internal/stage; this package only feeds them snapshots.
//
// When a ledger store is attached, each submission is recorded with its
// correlation id, backend task id, attempt count, and terminal outcome so the
// CLI can list recent work or resume waiting on a task.
package workflow
