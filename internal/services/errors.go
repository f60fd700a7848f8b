package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTaskFailed    = errors.New("task failed")
	ErrTaskTimeout   = errors.New("task timed out")
	ErrSubmission    = errors.New("submission failed")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrDuplicate     = errors.New("operation already in flight")
	ErrCanceled      = errors.New("canceled")
	ErrTransient     = errors.New("transient failure")
)

const defaultTaskFailureMessage = "task execution failed"

// TaskFailedError reports a task the backend resolved with FAILURE.
type TaskFailedError struct {
	TaskID  string
	Message string
}

func (e *TaskFailedError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = defaultTaskFailureMessage
	}
	if e.TaskID == "" {
		return msg
	}
	return fmt.Sprintf("task %s: %s", e.TaskID, msg)
}

func (e *TaskFailedError) Is(target error) bool { return target == ErrTaskFailed }

// TaskTimeoutError reports a task that never reached a terminal status within
// the attempt budget. Last carries the final query error when the last attempt
// could not reach the backend.
type TaskTimeoutError struct {
	TaskID   string
	Attempts int
	Interval time.Duration
	Last     error
}

func (e *TaskTimeoutError) Error() string {
	msg := fmt.Sprintf("task %s timed out: attempted %d times, interval %dms", e.TaskID, e.Attempts, e.Interval.Milliseconds())
	if e.Last != nil {
		msg = fmt.Sprintf("%s: unable to query task status: %v", msg, e.Last)
	}
	return msg
}

func (e *TaskTimeoutError) Is(target error) bool { return target == ErrTaskTimeout }

func (e *TaskTimeoutError) Unwrap() error { return e.Last }

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Outcome is the terminal classification recorded for a submitted operation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeRejected  Outcome = "rejected"
)

// OutcomeOf maps an operation error to the outcome persisted in the task ledger.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, ErrTaskTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimedOut
	case errors.Is(err, ErrDuplicate):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// Hint returns a short operator-facing next step for a classified error.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "refresh backend.api_token or STORYREEL_API_TOKEN"
	case errors.Is(err, ErrConfiguration):
		return "run 'storyreel config show' and fix the reported key"
	case errors.Is(err, ErrDuplicate):
		return "wait for the running operation to finish"
	case errors.Is(err, ErrTaskTimeout):
		return "raise poller.max_attempts or check the backend worker"
	case errors.Is(err, ErrTaskFailed):
		return "inspect the backend task result for details"
	case errors.Is(err, ErrValidation):
		return "check the request parameters"
	case errors.Is(err, ErrNotFound):
		return "verify the project, chapter, and entity ids"
	case errors.Is(err, ErrTransient):
		return "retry once the backend is reachable"
	default:
		return "check logs for details"
	}
}

// buildDetail joins the non-blank parts as "stage: operation: message".
func buildDetail(parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "service failure"
	}
	return strings.Join(kept, ": ")
}
