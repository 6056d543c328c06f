package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobsIndependently(t *testing.T) {
	var fast, slow atomic.Int32
	s := NewScheduler(discardLogger(),
		Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "slow", Interval: time.Hour, Run: func(ctx context.Context) error {
			slow.Add(1)
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return fast.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), slow.Load(), "first run is immediate, the next waits a full interval")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func TestScheduler_FixedDelayNeverOverlaps(t *testing.T) {
	var mu sync.Mutex
	var running, maxRunning, runs int
	job := Job{Name: "overrun", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		runs++
		mu.Unlock()

		time.Sleep(5 * time.Millisecond) // longer than the interval

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewScheduler(discardLogger(), job).Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 3
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxRunning)
}

func TestScheduler_SurvivesErrorsAndPanics(t *testing.T) {
	var calls atomic.Int32
	job := Job{Name: "flaky", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("storage unavailable")
		case 2:
			panic("boom")
		}
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewScheduler(discardLogger(), job).Run(ctx) }()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler(discardLogger(), Job{Name: "bad", Run: func(ctx context.Context) error { return nil }})
	assert.Error(t, s.Run(context.Background()))
}

func TestSessionGate_Ready(t *testing.T) {
	t.Run("Active", func(t *testing.T) {
		session := new(MockSession)
		session.On("IsActive").Return(true)

		assert.True(t, NewSessionGate(session, discardLogger()).Ready(context.Background(), JobDispatch))
		session.AssertNotCalled(t, "Restart")
	})

	t.Run("InactiveRestartsWithoutWaiting", func(t *testing.T) {
		session := new(MockSession)
		session.On("IsActive").Return(false)
		session.On("Restart").Return().Once()

		assert.False(t, NewSessionGate(session, discardLogger()).Ready(context.Background(), JobReconcile))
		session.AssertExpectations(t)
	})
}
