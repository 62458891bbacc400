package quote

import (
	"context"
	"time"
)

// BackoffStage is one rung of the polling schedule: poll every Interval
// until Until has elapsed since polling started.
type BackoffStage struct {
	Interval time.Duration
	Until    time.Duration
}

// Backoff is the adaptive polling policy used while waiting for a
// subscription's greeks payload to arrive. The schedule starts tight and
// widens; past the last stage the final interval repeats until the deadline.
type Backoff struct {
	Stages []BackoffStage
}

// DefaultBackoff polls every 50ms for the first 500ms, every 100ms until
// 1.5s, then every 200ms until the caller's timeout.
func DefaultBackoff() Backoff {
	return Backoff{Stages: []BackoffStage{
		{Interval: 50 * time.Millisecond, Until: 500 * time.Millisecond},
		{Interval: 100 * time.Millisecond, Until: 1500 * time.Millisecond},
		{Interval: 200 * time.Millisecond, Until: 0},
	}}
}

// interval returns the polling interval for the given elapsed time.
func (b Backoff) interval(elapsed time.Duration) time.Duration {
	for _, s := range b.Stages {
		if s.Until <= 0 || elapsed < s.Until {
			return s.Interval
		}
	}
	if n := len(b.Stages); n > 0 {
		return b.Stages[n-1].Interval
	}
	return 100 * time.Millisecond
}

// poller runs a backoff schedule against an injectable clock and sleeper so
// tests never depend on wall time.
type poller struct {
	backoff Backoff
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

func newPoller(b Backoff) *poller {
	return &poller{
		backoff: b,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// waitUntil polls ready until it returns true or timeout elapses. Returns
// false on timeout or context cancellation.
func (p *poller) waitUntil(ctx context.Context, timeout time.Duration, ready func() bool) bool {
	start := p.now()
	for {
		if ready() {
			return true
		}
		elapsed := p.now().Sub(start)
		if elapsed >= timeout {
			return false
		}
		interval := p.backoff.interval(elapsed)
		if remaining := timeout - elapsed; interval > remaining {
			interval = remaining
		}
		if err := p.sleep(ctx, interval); err != nil {
			return false
		}
	}
}
