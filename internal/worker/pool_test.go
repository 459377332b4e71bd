package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllTasks(t *testing.T) {
	pool := NewPool(3, zerolog.Nop())

	var counter int64
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt64(&counter, 1)
			return nil
		}
	}

	errs := pool.Run(context.Background(), tasks)

	assert.EqualValues(t, 20, counter)
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 2
	pool := NewPool(size, zerolog.Nop())

	var mu sync.Mutex
	var running, peak int

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}
	}

	pool.Run(context.Background(), tasks)

	assert.LessOrEqual(t, peak, size)
	assert.Greater(t, peak, 0)
}

func TestPoolIsolatesFailures(t *testing.T) {
	pool := NewPool(4, zerolog.Nop())
	boom := errors.New("boom")

	tasks := []Task{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { return nil },
	}

	errs := pool.Run(context.Background(), tasks)

	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := NewPool(2, zerolog.Nop())

	tasks := []Task{
		func(ctx context.Context) error { panic("exploded") },
		func(ctx context.Context) error { return nil },
	}

	errs := pool.Run(context.Background(), tasks)

	require.Len(t, errs, 2)
	assert.ErrorContains(t, errs[0], "exploded")
	assert.NoError(t, errs[1])
}

func TestPoolSkipsTasksAfterCancellation(t *testing.T) {
	pool := NewPool(1, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := pool.Run(ctx, []Task{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return nil },
	})

	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNewPoolMinimumSize(t *testing.T) {
	pool := NewPool(0, zerolog.Nop())

	errs := pool.Run(context.Background(), []Task{
		func(ctx context.Context) error { return nil },
	})
	require.Len(t, errs, 1)
	assert.NoError(t, errs[0])
}
