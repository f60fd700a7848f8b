// Package stage derives the current pipeline stage and the action gates from
// a Snapshot of loaded data. Nothing here is stored: callers rebuild a
// Snapshot after every reload and recompute.
package stage
