package usecase

import (
	"context"
	"log/slog"
	"time"

	"EthnoCards/internal/ports"
)

// Job is one recurring unit of work.
type Job func(ctx context.Context, trigger time.Time)

// Scheduler wires a recurring driver with a use case job.
type Scheduler struct {
	name   string
	driver ports.Scheduler
	job    Job
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop a recurring job.
func NewScheduler(name string, driver ports.Scheduler, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{name: name, driver: driver, job: job, logger: logger}
}

// Start registers the job with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.job == nil {
		return nil
	}

	run := func(trigger time.Time) {
		s.logger.Debug("scheduled job triggered", "job", s.name, "at", trigger)
		s.job(ctx, trigger)
	}

	return s.driver.Start(ctx, run)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// PostJob posts once to every channel per trigger.
func PostJob(poster *Poster, channels []Channel, logger *slog.Logger) Job {
	return func(ctx context.Context, _ time.Time) {
		for _, ch := range channels {
			res := poster.SelectAndPost(ctx, ch)
			logger.Info("scheduled post", "channel_id", ch.ID, "ok", res.OK, "reason", res.Reason, "card_id", res.CardID)
		}
	}
}

// EnrichJob runs one candidate batch per trigger.
func EnrichJob(o *Orchestrator, limit int, logger *slog.Logger) Job {
	return func(ctx context.Context, _ time.Time) {
		sum, err := o.RunBatch(ctx, limit)
		if err != nil {
			logger.Error("scheduled enrichment failed", "error", err)
			return
		}
		logger.Info("scheduled enrichment", "picked", sum.Picked, "ready", sum.Ready, "failed", sum.Failed)
	}
}
