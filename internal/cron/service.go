package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the registered maintenance jobs on a fixed cadence. Only the
// replica holding the lock runs a cycle, and the cycle is cut off when the
// lease runs out.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if params.Registry != nil {
		svc.jobs = params.Registry.Jobs()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run executes a cycle right away and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job once if the lock is free and reports whether the
// cycle ran. A failing job does not stop the cycle; every job failure comes
// back combined in the returned error.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	lease, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if lease == nil {
		s.logg.Info(ctx, "another cron instance holds the lock; skipping cycle")
		return false, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), lease); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	cycleCtx := s.logg.WithField(ctx, "cycle_id", uuid.NewString())
	if !lease.Deadline.IsZero() {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithDeadline(cycleCtx, lease.Deadline)
		defer cancel()
	}

	s.logg.Info(cycleCtx, "scheduled run starting")
	var failures error
	for _, job := range s.jobs {
		if err := cycleCtx.Err(); err != nil {
			failures = multierr.Append(failures, fmt.Errorf("cycle stopped before %s: %w", job.Name(), err))
			break
		}
		if err := s.runJob(cycleCtx, job); err != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	s.logg.Info(s.logg.WithField(cycleCtx, "failed_jobs", len(multierr.Errors(failures))), "scheduled run complete")
	return true, failures
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return err
	}
	s.logg.Info(ctx, "job completed")
	return nil
}
