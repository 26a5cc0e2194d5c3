package ingest

import (
	"context"
	"time"
)

// Line is one raw limit-log line and the source that delivered it.
type Line struct {
	Text   string
	Source string
}

// Send blocks until the line is queued or ctx is done. Lines are never
// dropped, since the violation records depend on seeing all of them in order.
func Send(ctx context.Context, out chan<- Line, line Line) bool {
	select {
	case out <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
