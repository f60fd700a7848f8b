package logging

import "strings"

// ProgressSampler suppresses repetitive poll progress logs while preserving
// signal when the task status changes or the attempt count crosses a bucket
// boundary.
type ProgressSampler struct {
	every      int
	lastStatus string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the status changes
// or every `every` attempts (default 10).
func NewProgressSampler(every int) *ProgressSampler {
	if every <= 0 {
		every = 10
	}
	return &ProgressSampler{every: every, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Attempt is
// 1-based; status is trimmed and upper-cased before comparison.
func (s *ProgressSampler) ShouldLog(status string, attempt int) bool {
	if s == nil {
		return true
	}
	status = strings.ToUpper(strings.TrimSpace(status))
	emit := false
	if status != s.lastStatus {
		s.lastStatus = status
		emit = true
	}
	if attempt > 0 {
		bucket := (attempt - 1) / s.every
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new poll starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStatus = ""
	s.lastBucket = -1
}
