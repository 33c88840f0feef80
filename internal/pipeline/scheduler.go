package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CronJob is a named task fired on a Schedule.
type CronJob struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

// RunCron fires job at every matching minute until ctx is cancelled. Runs are
// sequential: a run that overlaps its next trigger delays it. A failed run is
// logged and does not stop the loop.
func RunCron(ctx context.Context, job CronJob, logger *slog.Logger) error {
	log := logger.With(slog.String("job", job.Name))
	log.InfoContext(ctx, "cron started",
		slog.String("cron", job.Schedule.String()),
		slog.String("tz", job.Schedule.Location().String()),
	)

	for {
		next, err := job.Schedule.Next(time.Now())
		if err != nil {
			return fmt.Errorf("cron %s: %w", job.Name, err)
		}

		wait := time.Until(next)
		log.InfoContext(ctx, "waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.InfoContext(ctx, "cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := job.Run(ctx); err != nil {
				log.ErrorContext(ctx, "scheduled run failed", slog.String("error", err.Error()))
			}
		}
	}
}
