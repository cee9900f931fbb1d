// Package async runs fire-and-forget tasks. A task's failure is logged and
// counted; it never reaches the code that spawned it.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaharia-lab/bookwell/internal/metrics"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Spawner starts background tasks.
type Spawner interface {
	// Go runs task in the background under name. It never blocks on the
	// task and never reports its result.
	Go(ctx context.Context, name string, task Task)
}

// Runner is the default Spawner. Tasks run on their own goroutine with a
// context detached from the caller's cancellation, so unsubscribing a
// listener or finishing a request does not cancel writes already issued.
type Runner struct {
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Runner.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With("component", "async")}
}

// Go starts task. After Close, tasks are dropped with a warning.
func (r *Runner) Go(ctx context.Context, name string, task Task) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("runner closed, dropping task", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	metrics.TasksInFlight.Inc()
	go func() {
		defer r.wg.Done()
		defer metrics.TasksInFlight.Dec()

		if err := run(ctx, task); err != nil {
			metrics.TaskFailures.WithLabelValues(name).Inc()
			r.logger.ErrorContext(ctx, "background task failed", "task", name, "error", err)
		}
	}()
}

// run invokes task, converting a panic into an error.
func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return task(ctx)
}

// Close stops accepting tasks and waits for running ones to finish or for
// ctx to be done.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

// Wait blocks until every task started so far has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
