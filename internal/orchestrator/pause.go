package orchestrator

import (
	"context"
	"time"
)

// pauser waits between sources. It returns early when ctx ends or stop is
// closed.
type pauser interface {
	Pause(ctx context.Context, stop <-chan struct{}, delay time.Duration)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, stop <-chan struct{}, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-stop:
	case <-timer.C:
	}
}
