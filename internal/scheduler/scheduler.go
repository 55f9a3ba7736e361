// Package scheduler runs periodic tasks, one goroutine and ticker per task.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a named periodic job. Run is called inline from the task's loop,
// so runs of the same task never overlap and a slow run delays the next one.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of tasks until its context is cancelled
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
}

// New creates a scheduler
func New(logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks:  tasks,
		logger: logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is done. Each task runs once immediately and then on
// every tick of its interval. Task errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		g.Go(func() error {
			s.loop(ctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	logger := s.logger.With("task", task.Name)
	logger.Info("task started", "interval", task.Interval)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx, logger, task)

		select {
		case <-ctx.Done():
			logger.Info("task stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, logger *slog.Logger, task Task) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := task.Run(ctx); err != nil {
		logger.Error("task failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("task completed", "duration", time.Since(start))
}
