package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storyreel/internal/config"
)

// Event identifies a user-facing pipeline notification.
type Event string

const (
	EventTaskSubmitted  Event = "task_submitted"
	EventTaskCompleted  Event = "task_completed"
	EventBatchCompleted Event = "batch_completed"
	EventTaskFailed     Event = "task_failed"
	EventTaskTimedOut   Event = "task_timed_out"
	EventLoadFailed     Event = "load_failed"
	EventTest           Event = "test"
)

// Payload carries event fields. Well-known keys: operation, target, taskID,
// chapter, error, success, failed.
type Payload map[string]any

// Service publishes pipeline notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService returns an ntfy publisher for the configured topic URL, or a
// service that drops everything when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return NewNoop()
	}
	n := cfg.Notifications
	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfy{
		topicURL: strings.TrimSpace(n.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
		allow: map[category]bool{
			categorySubmission: n.Submissions,
			categoryCompletion: n.Completions,
			categoryError:      n.Errors,
			categoryAlways:     true,
		},
	}
}

// NewNoop returns a service that drops every event.
func NewNoop() Service { return noop{} }

type noop struct{}

func (noop) Publish(context.Context, Event, Payload) error { return nil }

func (p Payload) text(key string) string {
	var s string
	switch v := p[key].(type) {
	case nil:
	case string:
		s = v
	case error:
		s = v.Error()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
