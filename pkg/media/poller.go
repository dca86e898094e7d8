package media

import (
	"context"
	"time"
)

// CheckFunc fetches the current status of a remote task.
type CheckFunc func(ctx context.Context) (TaskStatus, error)

// Poller drives an async task toward a terminal state with a fixed
// attempt budget. A check error or non-terminal state consumes one
// attempt; only an exhausted budget yields StateTimedOut, so transient
// remote failures never abort the wait early.
type Poller struct {
	Attempts int
	Interval time.Duration
	// Sleep is swapped out in tests to avoid real delays. Nil means wait
	// on a timer honoring ctx cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poll invokes check up to Attempts times, sleeping Interval before each
// call, and returns the first terminal status observed. It only errors on
// context cancellation.
func (p Poller) Poll(ctx context.Context, taskID string, check CheckFunc) (TaskStatus, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	last := TaskStatus{TaskID: taskID, State: StatePending}
	for i := 0; i < attempts; i++ {
		if err := sleep(ctx, p.Interval); err != nil {
			return last, err
		}
		status, err := check(ctx)
		if err != nil {
			continue
		}
		last = status
		if status.State.Terminal() {
			return status, nil
		}
	}
	last.TaskID = taskID
	last.State = StateTimedOut
	return last, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
