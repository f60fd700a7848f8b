// Package inflight tracks which submissions are awaiting a backend task.
//
// Every operation is keyed by its kind and an optional target id. Batch
// operations use an empty target, so "one batch at a time" and "many
// independent single-item operations" share the same bookkeeping. The
// duplicate policy decides whether a second submission for a held key is
// rejected or reference-counted.
package inflight
