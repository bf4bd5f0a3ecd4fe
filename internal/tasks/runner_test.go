package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestRunnerRunsDetachedTasks(t *testing.T) {
	r := NewRunner(time.Second, zaptest.NewLogger(t))

	var ran atomic.Bool
	r.Go("mark", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !ran.Load() {
		t.Fatalf("task did not run before drain completed")
	}
}

func TestRunnerSurvivesPanicsAndErrors(t *testing.T) {
	r := NewRunner(time.Second, zaptest.NewLogger(t))

	r.Go("panics", func(ctx context.Context) error {
		panic("boom")
	})
	r.Go("fails", func(ctx context.Context) error {
		return errors.New("nope")
	})

	var ran atomic.Bool
	r.Go("after", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !ran.Load() {
		t.Fatalf("a panicking sibling must not take down other tasks")
	}
}

func TestRunnerDropsTasksAfterShutdown(t *testing.T) {
	r := NewRunner(time.Second, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	var ran atomic.Bool
	r.Go("late", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Fatalf("tasks scheduled after shutdown must be dropped")
	}
}

func TestRunnerShutdownTimesOut(t *testing.T) {
	r := NewRunner(5*time.Second, zaptest.NewLogger(t))

	release := make(chan struct{})
	r.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := r.Shutdown(ctx); err == nil {
		t.Fatalf("expected drain timeout error")
	}
	close(release)
}
