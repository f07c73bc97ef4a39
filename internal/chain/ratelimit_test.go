package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (f *fakeClock) install(w *SlidingWindow) {
	w.now = func() time.Time { return f.now }
	w.sleep = func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		f.now = f.now.Add(d)
		return ctx.Err()
	}
}

func TestSlidingWindow_AdmitsUpToLimit(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	w := NewSlidingWindow(3, 10*time.Second)
	clock.install(w)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Wait(ctx))
	}
	assert.Empty(t, clock.slept)
	assert.Equal(t, 3, w.InFlight())
}

func TestSlidingWindow_WaitsForOldestToExpire(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	w := NewSlidingWindow(2, 10*time.Second)
	clock.install(w)

	ctx := context.Background()
	require.NoError(t, w.Wait(ctx))
	clock.now = clock.now.Add(4 * time.Second)
	require.NoError(t, w.Wait(ctx))

	// Third call waits until the first leaves the window.
	require.NoError(t, w.Wait(ctx))
	assert.Equal(t, []time.Duration{6 * time.Second}, clock.slept)
	assert.Equal(t, 2, w.InFlight())
}

func TestSlidingWindow_Disabled(t *testing.T) {
	w := NewSlidingWindow(0, time.Second)
	for i := 0; i < 1000; i++ {
		require.NoError(t, w.Wait(context.Background()))
	}
}

func TestSlidingWindow_ContextCanceled(t *testing.T) {
	w := NewSlidingWindow(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, w.Wait(ctx))
	cancel()
	assert.ErrorIs(t, w.Wait(ctx), context.Canceled)
}
