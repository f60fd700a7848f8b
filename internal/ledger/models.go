package ledger

import "time"

// Status is the lifecycle state of a ledger entry.
type Status string

const (
	StatusSubmitting Status = "submitting"
	StatusPolling    Status = "polling"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusTimedOut   Status = "timed_out"
	StatusCanceled   Status = "canceled"
	StatusRejected   Status = "rejected"
	// StatusAbandoned marks entries whose process exited before a terminal
	// outcome was recorded.
	StatusAbandoned Status = "abandoned"
)

// IsTerminal reports whether no further updates are expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSubmitting, StatusPolling:
		return false
	default:
		return true
	}
}

// Entry is one submitted operation.
type Entry struct {
	ID         int64
	RequestID  string
	Operation  string
	TargetID   string
	ProjectID  string
	ChapterID  string
	TaskID     string
	Status     Status
	Message    string
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time from creation to finish, or zero while the
// entry is still open.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() || e.CreatedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.CreatedAt)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ChapterID string
	Status    Status
	Limit     int
}
