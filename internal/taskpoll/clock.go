package taskpoll

import (
	"context"
	"time"
)

// Clock paces poll attempts. Wait returns ctx.Err() when the context ends
// first.
type Clock interface {
	Wait(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock waits on wall-clock timers.
func RealClock() Clock { return realClock{} }

func (realClock) Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
