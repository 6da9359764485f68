package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"finledger/internal/log"
)

// Job is anything the Scheduler can trigger.
type Job interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler triggers every job once at start and then on each tick. Jobs
// are idempotent per period, so an interval shorter than a day is safe.
type Scheduler struct {
	jobs     []Job
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(interval time.Duration, logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{jobs: jobs, interval: interval, logger: log.WithComponent(logger, log.ComponentJobs)}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Running initial job pass")
	s.RunAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case now := <-ticker.C:
			s.RunAll(ctx)
			s.logger.Info("Job pass complete", "next_check", now.Add(s.interval).Format("15:04:05"))
		}
	}
}

// RunAll runs the jobs sequentially and returns their reports.
func (s *Scheduler) RunAll(ctx context.Context) []Report {
	reports := make([]Report, 0, len(s.jobs))
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		rep, err := j.Run(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			s.logger.Warn("Job still running, skipping trigger", log.FieldJob, rep.Job)
			continue
		case err != nil:
			s.logger.Error("Job run failed", log.FieldJob, rep.Job, log.FieldError, err)
		}
		reports = append(reports, rep)
	}
	return reports
}
