// Package ledger persists a local record of every submitted backend task.
//
// Each submission gets an entry keyed by a generated request id. The entry
// moves from submitting to polling once the backend returns a task id, and
// ends in one terminal status (succeeded, failed, timed_out, canceled,
// rejected). The CLI uses the ledger to list recent work and to resume
// waiting on a task after a restart.
//
// The database lives at <state_dir>/tasks.db. Concurrent CLI processes are
// tolerated through WAL mode and busy-retry on writes.
package ledger
