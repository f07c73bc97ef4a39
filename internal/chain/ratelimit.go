package chain

import (
	"context"
	"sync"
	"time"
)

// DefaultRateWindow is the sliding window length for outbound calls.
const DefaultRateWindow = 10 * time.Second

// SlidingWindow admits at most limit calls in any trailing window.
// Callers over the limit sleep until the oldest call leaves the window and
// then re-check, so bursts are smoothed without a queue.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSlidingWindow creates a limiter. limit <= 0 disables limiting.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until a call is admitted or ctx is done.
func (w *SlidingWindow) Wait(ctx context.Context) error {
	if w == nil || w.limit <= 0 {
		return nil
	}
	for {
		wait := w.tryAcquire()
		if wait <= 0 {
			return nil
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InFlight returns the number of calls currently inside the window.
func (w *SlidingWindow) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(w.now())
	return len(w.calls)
}

// tryAcquire records a call and returns 0, or returns how long to wait.
func (w *SlidingWindow) tryAcquire() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evictLocked(now)
	if len(w.calls) < w.limit {
		w.calls = append(w.calls, now)
		return 0
	}
	wait := w.calls[0].Add(w.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

func (w *SlidingWindow) evictLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
