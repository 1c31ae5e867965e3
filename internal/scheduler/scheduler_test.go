package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRepeatsAfterFailingTicks(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		if calls.Add(1) >= 3 {
			cancel()
		}
		return errors.New("upstream unavailable")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunSurvivesPanickingTick(t *testing.T) {
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunFirstTickIsImmediate(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	var first time.Time
	_ = s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		first = tick
		cancel()
		return nil
	})

	require.False(t, first.IsZero())
	assert.Less(t, first.Sub(start), time.Second)
	assert.Equal(t, time.UTC, first.Location())
}

func TestRunCancelAbortsSleep(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ticked := make(chan struct{}, 1)

	go func() {
		done <- s.Run(ctx, func(ctx context.Context, tick time.Time) error {
			ticked <- struct{}{}
			return nil
		})
	}()

	<-ticked
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunCancelledDuringStartupDelay(t *testing.T) {
	s := New(Options{Interval: time.Second, StartupDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		calls.Add(1)
		return nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls.Load())
}

func TestTicksNeverOverlap(t *testing.T) {
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, calls atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, tick time.Time) error {
		if running.Add(1) != 1 {
			t.Error("tick started while another was running")
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		if calls.Add(1) == 5 {
			cancel()
		}
		return nil
	})
	assert.Equal(t, int32(5), calls.Load())
}

func TestNextTick(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC)

	plain := New(Options{Interval: time.Minute}, zerolog.Nop())
	assert.Equal(t, now.Add(time.Minute), plain.nextTick(now))

	aligned := New(Options{Interval: time.Minute, AlignToInterval: true}, zerolog.Nop())
	assert.Equal(t, time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC), aligned.nextTick(now))
	assert.Equal(t, time.Date(2024, 1, 1, 10, 2, 0, 0, time.UTC), aligned.nextTick(time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC)))
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
