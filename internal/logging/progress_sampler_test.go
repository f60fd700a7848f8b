package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name      string
		every     int
		wantEvery int
	}{
		{"default for zero", 0, 10},
		{"default for negative", -1, 10},
		{"custom", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.every)
			if s.every != tt.wantEvery {
				t.Errorf("every = %d, want %d", s.every, tt.wantEvery)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("PENDING", 1) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset() // should not panic
}

func TestProgressSampler_StatusChange(t *testing.T) {
	s := NewProgressSampler(100)

	if !s.ShouldLog("PENDING", 1) {
		t.Error("first status should log")
	}
	if s.ShouldLog("pending ", 2) {
		t.Error("same status should not log again")
	}
	if !s.ShouldLog("PROGRESS", 3) {
		t.Error("status change should log")
	}
	if s.lastStatus != "PROGRESS" {
		t.Errorf("lastStatus = %q, want PROGRESS", s.lastStatus)
	}
}

func TestProgressSampler_AttemptBuckets(t *testing.T) {
	s := NewProgressSampler(5)
	var logged []int
	for attempt := 1; attempt <= 12; attempt++ {
		if s.ShouldLog("PENDING", attempt) {
			logged = append(logged, attempt)
		}
	}
	want := []int{1, 6, 11}
	if len(logged) != len(want) {
		t.Fatalf("logged attempts = %v, want %v", logged, want)
	}
	for i := range want {
		if logged[i] != want[i] {
			t.Fatalf("logged attempts = %v, want %v", logged, want)
		}
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog("STARTED", 1)
	s.Reset()
	if s.lastStatus != "" || s.lastBucket != -1 {
		t.Fatalf("reset did not clear state: %+v", s)
	}
	if !s.ShouldLog("STARTED", 1) {
		t.Error("expected log after reset")
	}
}
