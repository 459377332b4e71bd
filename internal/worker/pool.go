package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Task is one unit of work executed by the pool.
type Task func(ctx context.Context) error

// Pool runs batches of tasks with bounded concurrency.
type Pool struct {
	size   int
	logger zerolog.Logger
}

func NewPool(size int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, logger: logger}
}

// Run executes all tasks, at most size at a time, and waits for them to
// finish. The returned slice holds the outcome of each task at its
// original index. A panicking task is recovered and reported as an
// error without affecting the others.
func (p *Pool) Run(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))
	sem := make(chan struct{}, p.size)

	var wg sync.WaitGroup
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error().Interface("panic", r).Msg("Worker task panicked")
					errs[i] = fmt.Errorf("task panicked: %v", r)
				}
			}()

			errs[i] = task(ctx)
		}(i, task)
	}
	wg.Wait()

	return errs
}
