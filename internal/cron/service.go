package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds each job. It should stay below the lock TTL so a slow
	// expiry scan never runs unlocked. Zero disables the bound.
	JobTimeout time.Duration
}

// ErrLockLost stops a run whose lease expired or was taken over mid-cycle.
var ErrLockLost = errors.New("cron lock lost")

// Report summarizes one cycle.
type Report struct {
	Skipped bool
	Ran     []string
	Failed  []string
}

// Service runs the registered sweeps under the shared lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.Registry == nil || len(params.Registry.Jobs()) == 0 {
		return nil, fmt.Errorf("at least one cron job required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithField(ctx, "jobs", s.registry.Names()), "cron schedule started")
	s.cycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
		return
	}
	if len(report.Failed) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "failed_jobs", report.Failed), "scheduled run finished with failures")
	}
}

// RunOnce runs every job once if the lock is free. A job failure does not
// stop later jobs; it is listed in the report. The lease is extended between
// jobs and the run stops with ErrLockLost once it is gone.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return Report{Skipped: true}, nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	var report Report
	jobs := s.registry.Jobs()
	for i, job := range jobs {
		report.Ran = append(report.Ran, job.Name())
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
		}
		if i == len(jobs)-1 {
			break
		}
		held, err := s.lock.Extend(ctx)
		if err != nil {
			return report, fmt.Errorf("lock extend: %w", err)
		}
		if !held {
			return report, ErrLockLost
		}
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.record(job.Name(), duration, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.logg.Error(jobCtx, "job timed out", err)
	case err != nil:
		s.logg.Error(jobCtx, "job failed", err)
	default:
		s.logg.Info(jobCtx, "job completed")
	}
	return err
}

func (s *Service) record(job string, duration time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
	if err != nil {
		s.metrics.IncFailure(job)
		return
	}
	s.metrics.IncSuccess(job)
}
