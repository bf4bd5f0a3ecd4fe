package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes detached units of work: cache populates and telemetry
// sends that must not delay the response they follow. Tasks run on a context
// independent of the request, bounded by a per-task timeout. Completion
// after the response is flushed is guaranteed by process lifetime plus the
// Shutdown drain, which makes an explicit contract out of what hosted
// runtimes leave implicit.
type Runner struct {
	wg          sync.WaitGroup
	taskTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewRunner builds a Runner. Non-positive timeout defaults to 30s.
func NewRunner(taskTimeout time.Duration, logger *zap.Logger) *Runner {
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		taskTimeout: taskTimeout,
		logger:      logger.Named("tasks"),
	}
}

// Go schedules fn as a detached task. The caller never waits on it; panics
// are recovered and failures logged. After Shutdown new tasks are dropped
// with a log line.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("task dropped, runner shut down", zap.String("task", name))
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.taskTimeout)
		defer cancel()

		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("task panicked",
					zap.String("task", name),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()

		if err := fn(ctx); err != nil {
			r.logger.Warn("task failed",
				zap.String("task", name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
			)
			return
		}

		r.logger.Debug("task completed",
			zap.String("task", name),
			zap.Duration("duration", time.Since(start)),
		)
	}()
}

// Shutdown stops accepting tasks and waits for in-flight ones, up to ctx's
// deadline.
func (r *Runner) Shutdown(ctx context.Context) error {
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
		return fmt.Errorf("tasks: drain interrupted: %w", ctx.Err())
	}
}
