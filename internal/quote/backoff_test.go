package quote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSchedule(t *testing.T) {
	b := DefaultBackoff()

	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
	}{
		{"start", 0, 50 * time.Millisecond},
		{"inside first stage", 499 * time.Millisecond, 50 * time.Millisecond},
		{"second stage boundary", 500 * time.Millisecond, 100 * time.Millisecond},
		{"inside second stage", 1499 * time.Millisecond, 100 * time.Millisecond},
		{"final stage", 1500 * time.Millisecond, 200 * time.Millisecond},
		{"far past schedule", 10 * time.Second, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.interval(tt.elapsed))
		})
	}
}

func TestBackoffEmptySchedule(t *testing.T) {
	b := Backoff{}
	assert.Equal(t, 100*time.Millisecond, b.interval(0))
}

func TestWaitUntilFollowsSchedule(t *testing.T) {
	p := newPoller(DefaultBackoff())

	// Virtual clock advanced only by recorded sleeps.
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	var slept []time.Duration
	p.now = func() time.Time { return now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	calls := 0
	ok := p.waitUntil(context.Background(), 3*time.Second, func() bool {
		calls++
		return calls == 13
	})

	assert.True(t, ok)
	// 50ms x10 covers the first 500ms, then 100ms picks up the second stage.
	assert.Equal(t, 12, len(slept))
	for _, d := range slept[:10] {
		assert.Equal(t, 50*time.Millisecond, d)
	}
	assert.Equal(t, 100*time.Millisecond, slept[10])
	assert.Equal(t, 100*time.Millisecond, slept[11])
}

func TestWaitUntilTimesOut(t *testing.T) {
	p := newPoller(DefaultBackoff())

	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	var slept []time.Duration
	p.now = func() time.Time { return now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	ok := p.waitUntil(context.Background(), 120*time.Millisecond, func() bool { return false })

	assert.False(t, ok)
	// The last sleep is clamped to the remaining budget.
	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,
		50 * time.Millisecond,
		20 * time.Millisecond,
	}, slept)
}

func TestWaitUntilCanceled(t *testing.T) {
	p := newPoller(DefaultBackoff())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := p.waitUntil(ctx, time.Second, func() bool { return false })
	assert.False(t, ok)
}
