// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Per-event toggles
// in the [notifications] section decide which of submissions, completions,
// and failures are pushed.
//
// Workflow code depends only on the Service interface.
package notifications
