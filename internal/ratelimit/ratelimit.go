package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter grants at most maxCalls outbound calls in any trailing window.
// It keeps a log of grant timestamps and blocks callers until the oldest
// grant falls out of the window. After an idle period of at least one
// window the full budget is available again, so callers may burst up to
// the cap.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	grants []time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New constructs a sliding-window limiter.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls <= 0 {
		panic("ratelimit: maxCalls must be positive")
	}
	if window <= 0 {
		panic("ratelimit: window must be positive")
	}
	return &Limiter{
		max:    maxCalls,
		window: window,
		grants: make([]time.Time, 0, maxCalls),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Wait blocks until one more call fits within the window, then records the
// grant. It returns early only when ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)

		if len(l.grants) < l.max {
			l.grants = append(l.grants, now)
			l.mu.Unlock()
			return nil
		}

		// The window is full; sleep until the oldest grant expires,
		// then re-check under the lock.
		wait := l.grants[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// evict drops grants older than now minus the window. Callers hold l.mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.grants) && !l.grants[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.grants = append(l.grants[:0], l.grants[idx:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
