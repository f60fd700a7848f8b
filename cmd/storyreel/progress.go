package main

import (
	"fmt"
	"io"
	"sync"

	"storyreel/internal/inflight"
	"storyreel/internal/logging"
	"storyreel/internal/taskpoll"
)

// progressPrinter echoes sampled poll progress so long video polls show
// signs of life without flooding the terminal.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	samplers map[inflight.Key]*logging.ProgressSampler
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, samplers: make(map[inflight.Key]*logging.ProgressSampler)}
}

func (p *progressPrinter) observe(key inflight.Key, progress taskpoll.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sampler, ok := p.samplers[key]
	if !ok || progress.Attempt == 1 {
		sampler = logging.NewProgressSampler(10)
		p.samplers[key] = sampler
	}
	if !sampler.ShouldLog(string(progress.Status), progress.Attempt) {
		return
	}
	fmt.Fprintf(p.out, "  %s: %s (attempt %d/%d, task %s)\n",
		key, progress.Status, progress.Attempt, progress.MaxAttempts, progress.TaskID)
}
