package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"storyreel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrSubmission, "scenes", "extract", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrSubmission) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"scenes", "extract", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestTaskFailedErrorMessage(t *testing.T) {
	err := error(&services.TaskFailedError{TaskID: "t1", Message: "gpu out of memory"})
	if !errors.Is(err, services.ErrTaskFailed) {
		t.Fatal("expected ErrTaskFailed classification")
	}
	if got := err.Error(); got != "task t1: gpu out of memory" {
		t.Fatalf("unexpected message %q", got)
	}

	blank := &services.TaskFailedError{}
	if got := blank.Error(); got != "task execution failed" {
		t.Fatalf("unexpected default message %q", got)
	}
}

func TestTaskTimeoutErrorCarriesLastQueryError(t *testing.T) {
	queryErr := errors.New("connection refused")
	err := error(&services.TaskTimeoutError{TaskID: "t9", Attempts: 3, Interval: 250 * time.Millisecond, Last: queryErr})
	if !errors.Is(err, services.ErrTaskTimeout) {
		t.Fatal("expected ErrTaskTimeout classification")
	}
	if !errors.Is(err, queryErr) {
		t.Fatal("expected last query error to unwrap")
	}
	msg := err.Error()
	for _, fragment := range []string{"attempted 3 times", "250ms", "unable to query task status"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in %q", fragment, msg)
		}
	}
	var timeout *services.TaskTimeoutError
	if !errors.As(fmt.Errorf("outer: %w", err), &timeout) || timeout.Attempts != 3 {
		t.Fatalf("expected errors.As to recover timeout, got %#v", timeout)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Outcome
	}{
		{"nil", nil, services.OutcomeSucceeded},
		{"task failure", &services.TaskFailedError{Message: "x"}, services.OutcomeFailed},
		{"timeout", &services.TaskTimeoutError{Attempts: 1}, services.OutcomeTimedOut},
		{"canceled", fmt.Errorf("%w: %w", services.ErrCanceled, context.Canceled), services.OutcomeCanceled},
		{"context canceled", context.Canceled, services.OutcomeCanceled},
		{"duplicate", services.Wrap(services.ErrDuplicate, "shots", "keyframes", "", nil), services.OutcomeRejected},
		{"submission", services.Wrap(services.ErrSubmission, "", "", "", errors.New("x")), services.OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.OutcomeOf(tt.err); got != tt.want {
				t.Fatalf("OutcomeOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHintCoversTaxonomy(t *testing.T) {
	if services.Hint(nil) != "" {
		t.Fatal("expected empty hint for nil error")
	}
	if hint := services.Hint(services.Wrap(services.ErrUnauthorized, "", "", "", nil)); !strings.Contains(hint, "api_token") {
		t.Fatalf("unexpected unauthorized hint %q", hint)
	}
	if hint := services.Hint(errors.New("other")); hint != "check logs for details" {
		t.Fatalf("unexpected fallback hint %q", hint)
	}
}
