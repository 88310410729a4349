package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock advances manually; sleeps advance it instead of blocking.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.current = c.current.Add(d)
	return nil
}

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(max, window)
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestLimiterWindowBound(t *testing.T) {
	const max = 3
	window := time.Minute
	l, clock := newTestLimiter(max, window)

	ctx := context.Background()
	granted := make([]time.Time, 0, 10)
	for i := 0; i < 10; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		granted = append(granted, clock.current)
		clock.current = clock.current.Add(time.Second)
	}

	// No trailing window may contain more than max grants.
	for i := range granted {
		count := 0
		for j := range granted {
			diff := granted[j].Sub(granted[i])
			if diff >= 0 && diff < window {
				count++
			}
		}
		if count > max {
			t.Fatalf("window starting at grant %d contains %d grants, cap is %d", i, count, max)
		}
	}
}

func TestLimiterBurstAfterIdle(t *testing.T) {
	const max = 5
	l, clock := newTestLimiter(max, time.Minute)

	ctx := context.Background()
	for i := 0; i < max; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if len(clock.slept) != 0 {
		t.Fatalf("first burst should not sleep, slept %d times", len(clock.slept))
	}

	// Idle for a full window, then the whole budget is free again.
	clock.current = clock.current.Add(2 * time.Minute)
	for i := 0; i < max; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait failed after idle: %v", err)
		}
	}
	if len(clock.slept) != 0 {
		t.Fatalf("burst after idle should not sleep, slept %d times", len(clock.slept))
	}
}

func TestLimiterBlocksAtCap(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if len(clock.slept) == 0 {
		t.Fatal("third call within the window should have slept")
	}
	if clock.slept[0] != time.Minute {
		t.Fatalf("expected one-window sleep, got %s", clock.slept[0])
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	l.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("Wait should fail once the context is cancelled")
	}
}
