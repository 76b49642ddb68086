// Package scheduler runs periodic jobs on a fixed interval until the context
// is cancelled. Job failures are logged and the schedule continues; a
// background job must never take the process down.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler drives a named job at a fixed interval.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	logger   *slog.Logger
}

func New(name string, interval time.Duration, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{name: name, interval: interval, job: job, logger: logger}
}

// Run blocks until ctx is cancelled, invoking the job every interval. The
// first invocation waits one full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "job", s.name, "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "job", s.name)
			return ctx.Err()
		case <-ticker.C:
			if err := s.job(ctx); err != nil {
				s.logger.Error("scheduled job failed", "job", s.name, "error", err)
			}
		}
	}
}
