package browser

import (
	"context"
	"time"
)

const minPollInterval = 10 * time.Millisecond

// Sleep pauses for d or until ctx is done. A non-positive d only reports
// whether ctx is already done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pollUntil evaluates cond every interval until it holds or budget elapses.
// cond is always evaluated at least once. It returns ErrTimeout when the
// budget runs out and the context error when ctx is cancelled first.
func pollUntil(ctx context.Context, interval, budget time.Duration, cond func() bool) error {
	if interval < minPollInterval {
		interval = minPollInterval
	}
	deadline := time.Now().Add(budget)
	for {
		if cond() {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		if remaining > interval {
			remaining = interval
		}
		if err := Sleep(ctx, remaining); err != nil {
			return err
		}
	}
}
