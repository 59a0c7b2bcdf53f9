// Package runner wires the services together and orchestrates a backup run.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/glsafe/glsafe/internal/gitlab"
	"github.com/glsafe/glsafe/internal/models"
	"github.com/glsafe/glsafe/internal/services/cloner"
	"github.com/glsafe/glsafe/internal/services/fetcher"
	"github.com/glsafe/glsafe/internal/services/scheduler"
	"github.com/glsafe/glsafe/internal/services/walker"
	"github.com/glsafe/glsafe/internal/services/writer"
)

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	fetcherSvc   fetcher.Service
	walkerSvc    walker.Service
	schedulerSvc scheduler.Service
	writerSvc    writer.Service
	clonerSvc    cloner.Service
	cfg          models.BackupConfig
	logger       zerolog.Logger
}

// New creates a runner with the full service stack for the given config.
func New(logger zerolog.Logger, cfg models.BackupConfig) *Impl {
	throttle := gitlab.NewThrottle(cfg.Limits.RequestsPerSecond, clock.WallClock)
	client := gitlab.NewClient(cfg.GitLab.Server, cfg.GitLab.Token, throttle)
	fetcherSvc := fetcher.New(logger, client, throttle, cfg.Retry)

	return &Impl{
		fetcherSvc:   fetcherSvc,
		walkerSvc:    walker.New(logger, fetcherSvc, cfg.Scope, cfg.Backup.Parts),
		schedulerSvc: scheduler.New(logger, cfg.Concurrency.Workers),
		writerSvc:    writer.New(logger, cfg.Backup.Dest),
		clonerSvc:    cloner.New(logger, cfg.GitLab.Token),
		cfg:          cfg,
		logger:       logger,
	}
}

// NewWithServices creates a runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.BackupConfig,
	fetcherSvc fetcher.Service,
	walkerSvc walker.Service,
	schedulerSvc scheduler.Service,
	writerSvc writer.Service,
	clonerSvc cloner.Service,
) *Impl {
	return &Impl{
		fetcherSvc:   fetcherSvc,
		walkerSvc:    walkerSvc,
		schedulerSvc: schedulerSvc,
		writerSvc:    writerSvc,
		clonerSvc:    clonerSvc,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run executes one backup run: credential check, destination check, tree
// walk, scheduled task execution and the final report. Individual task
// failures never abort the run; an unusable destination root or a failed
// login do.
func (s *Impl) Run(ctx context.Context) (*models.RunSummary, error) {
	start := time.Now()

	if s.cfg.Limits.RunDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Limits.RunDeadline)
		defer cancel()
	}

	user, err := s.fetcherSvc.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	s.logger.Info().Str("user", user.Username).Int("uid", user.ID).Msg("logged in")

	if err := s.writerSvc.CheckRoot(); err != nil {
		return nil, fmt.Errorf("destination unusable: %w", err)
	}

	tasks := make(chan models.BackupTask)
	walkDone := make(chan error, 1)
	go func() {
		defer close(tasks)
		walkDone <- s.walkerSvc.Walk(ctx, user.ID, func(task models.BackupTask) error {
			select {
			case tasks <- task:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	summary := s.schedulerSvc.Run(ctx, tasks, s.backupOne)
	summary.Duration = time.Since(start)

	if err := <-walkDone; err != nil {
		s.logger.Error().Err(err).Msg("tree walk ended early")
	}

	if err := s.writerSvc.WriteSummary(summary); err != nil {
		s.logger.Error().Err(err).Msg("failed to write run report")
	}

	s.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("partial", summary.Partial).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("backup run completed")

	return &summary, nil
}
