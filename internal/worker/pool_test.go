package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(2, 8, zerolog.Nop())
	pool.Start(context.Background())
	defer pool.Stop()

	var ran atomic.Int32
	done := make(chan struct{})
	ok := pool.Submit(Task{
		Name: "test",
		Run: func(ctx context.Context) error {
			ran.Add(1)
			close(done)
			return nil
		},
	})
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	assert.Equal(t, int32(1), ran.Load())
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	pool := NewPool(1, 1, zerolog.Nop())
	// Not started: the queue fills immediately.

	block := Task{Name: "blocker", Run: func(ctx context.Context) error { return nil }}
	require.True(t, pool.Submit(block))
	assert.False(t, pool.Submit(block), "second submit must be dropped, not block")
}

func TestPoolStopWaitsForInFlightTask(t *testing.T) {
	pool := NewPool(1, 8, zerolog.Nop())
	pool.Start(context.Background())

	started := make(chan struct{})
	var finished atomic.Bool
	pool.Submit(Task{
		Name: "slow",
		Run: func(ctx context.Context) error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return nil
		},
	})

	<-started
	pool.Stop()
	assert.True(t, finished.Load(), "Stop must wait for the in-flight task")
}
