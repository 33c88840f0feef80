package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs every cron job concurrently under one errgroup.
type Orchestrator struct {
	jobs   []CronJob
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator for the given jobs.
func NewOrchestrator(jobs []CronJob, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx is cancelled or a job loop fails. Cancellation is a
// clean shutdown and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "scheduler starting", slog.Int("jobs", len(o.jobs)))

	g, ctx := errgroup.WithContext(ctx)
	for _, job := range o.jobs {
		job := job
		g.Go(func() error {
			err := RunCron(ctx, job, o.logger)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: %w", job.Name, err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.ErrorContext(ctx, "scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.InfoContext(ctx, "scheduler stopped cleanly")
	return nil
}
