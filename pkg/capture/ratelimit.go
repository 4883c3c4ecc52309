package capture

import (
	"context"
	"time"
)

// RateLimiter paces capture iterations to a target frame rate. Pacing is
// advisory: it bounds how often the engine asks for a frame, not how often
// the device produces one.
type RateLimiter struct {
	interval time.Duration
	timer    *time.Timer
}

// NewRateLimiter returns a limiter for fps frames per second; fps <= 0 disables pacing.
func NewRateLimiter(fps int) *RateLimiter {
	r := &RateLimiter{}
	if fps > 0 {
		r.interval = time.Second / time.Duration(fps)
	}
	return r
}

func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Wait sleeps for one interval or until ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.interval <= 0 {
		return ctx.Err()
	}
	if r.timer == nil {
		r.timer = time.NewTimer(r.interval)
	} else {
		r.timer.Reset(r.interval)
	}

	select {
	case <-r.timer.C:
		return nil
	case <-ctx.Done():
		r.timer.Stop()
		return ctx.Err()
	}
}
