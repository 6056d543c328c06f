package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Job is a periodic task. Interval is the delay between the end of one run
// and the start of the next, so runs of the same job never overlap.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own fixed delay timer.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger.With("component", "scheduler")}
}

// Run blocks until ctx is cancelled. A job's first run starts immediately.
// Job errors and panics are logged and never stop the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive", job.Name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			s.loop(gctx, job)
			return nil
		})
	}
	s.logger.InfoContext(ctx, "Scheduler started", "jobs", len(s.jobs))
	err := g.Wait()
	s.logger.Info("Scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.runOnce(ctx, job)

		timer := time.NewTimer(job.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	timer := prometheus.NewTimer(jobDurationHist.WithLabelValues(job.Name))
	defer timer.ObserveDuration()
	defer func() {
		if rec := recover(); rec != nil {
			jobRunsCounter.WithLabelValues(job.Name, "panic").Inc()
			s.logger.ErrorContext(ctx, "Job panicked", "job", job.Name, "panic", fmt.Sprint(rec))
		}
	}()

	if err := job.Run(ctx); err != nil {
		jobRunsCounter.WithLabelValues(job.Name, "error").Inc()
		s.logger.ErrorContext(ctx, "Job run failed", "job", job.Name, "error", err)
		return
	}
	jobRunsCounter.WithLabelValues(job.Name, "success").Inc()
}
