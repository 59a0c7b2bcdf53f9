// Package scheduler executes backup tasks with bounded parallelism and
// per-task failure isolation.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/glsafe/glsafe/internal/models"
)

// ExecFunc runs one task to completion and reports its outcome. It must not
// panic; if it does, the scheduler records the task as failed and carries on.
type ExecFunc func(ctx context.Context, task models.BackupTask) models.TaskResult

// Service defines the task scheduling operation.
type Service interface {
	Run(ctx context.Context, tasks <-chan models.BackupTask, exec ExecFunc) models.RunSummary
}

// Impl implements the scheduler Service interface.
type Impl struct {
	workers int64
	logger  zerolog.Logger
}

// New creates a scheduler running at most workers tasks concurrently.
func New(logger zerolog.Logger, workers int) *Impl {
	if workers < 1 {
		workers = 1
	}
	return &Impl{workers: int64(workers), logger: logger}
}

// Run dispatches tasks in arrival order and collects results as they
// complete. One task's failure never aborts the run; cancellation stops new
// dispatch while in-flight tasks drain. The aggregated summary is returned
// once the stream is exhausted and all workers finished.
func (s *Impl) Run(ctx context.Context, tasks <-chan models.BackupTask, exec ExecFunc) models.RunSummary {
	start := time.Now()
	sem := semaphore.NewWeighted(s.workers)
	results := make(chan models.TaskResult)

	var wg sync.WaitGroup
	go func() {
		defer func() {
			wg.Wait()
			close(results)
		}()
		for task := range tasks {
			if err := sem.Acquire(ctx, 1); err != nil {
				s.logger.Warn().Err(ctx.Err()).Msg("run cancelled, not dispatching further tasks")
				return
			}
			wg.Add(1)
			go func(task models.BackupTask) {
				defer wg.Done()
				defer sem.Release(1)
				results <- s.runOne(ctx, task, exec)
			}(task)
		}
	}()

	var summary models.RunSummary
	for result := range results {
		logTaskResult(s.logger, result)
		summary.Record(result)
	}
	summary.Duration = time.Since(start)
	return summary
}

// runOne executes a single task inside the isolation boundary.
func (s *Impl) runOne(ctx context.Context, task models.BackupTask, exec ExecFunc) (result models.TaskResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = models.TaskResult{
				Ref:    task.Ref,
				Path:   task.Ref.FullPath,
				Status: models.StatusFailed,
				Errors: []models.PartError{{Part: "task", Err: fmt.Sprintf("panic: %v", r)}},
			}
		}
		result.Duration = time.Since(start)
	}()

	s.logger.Debug().Stringer("task", task.Ref).Msg("task started")
	return exec(ctx, task)
}

func logTaskResult(logger zerolog.Logger, result models.TaskResult) {
	event := logger.Info()
	if result.Status != models.StatusSuccess {
		event = logger.Warn()
	}
	event.
		Str("path", result.Path).
		Str("status", string(result.Status)).
		Dur("duration", result.Duration).
		Int("errors", len(result.Errors)).
		Msg("task finished")
}
