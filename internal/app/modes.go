package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/barrierbot/internal/bot"
	"github.com/alanyoungcy/barrierbot/internal/pipeline"
	"github.com/alanyoungcy/barrierbot/internal/server"
	"github.com/alanyoungcy/barrierbot/internal/server/handler"
	"github.com/alanyoungcy/barrierbot/internal/server/ws"
	"github.com/alanyoungcy/barrierbot/internal/service"
)

// passJob adapts a pass to the cron loop. The pass logs its own report.
func passJob(name, expr string, run func(context.Context) (service.Report, error), loc *time.Location) (pipeline.CronJob, error) {
	sched, err := pipeline.ParseSchedule(expr, loc)
	if err != nil {
		return pipeline.CronJob{}, fmt.Errorf("app: schedule %s: %w", name, err)
	}
	return pipeline.CronJob{
		Name:     name,
		Schedule: sched,
		Run: func(ctx context.Context) error {
			_, err := run(ctx)
			return err
		},
	}, nil
}

// startScheduler runs the daily passes and, when enabled, the monthly archive.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	check, err := passJob(service.JobBarrierCheck, a.cfg.Schedule.BarrierCron, deps.BarrierCheck.Run, deps.Location)
	if err != nil {
		return err
	}
	roll, err := passJob(service.JobRollover, a.cfg.Schedule.RolloverCron, deps.Rollover.Run, deps.Location)
	if err != nil {
		return err
	}
	jobs := []pipeline.CronJob{check, roll}

	if deps.Archiver != nil {
		sched, err := pipeline.ParseSchedule(a.cfg.Archive.Cron, deps.Location)
		if err != nil {
			return fmt.Errorf("app: schedule archive: %w", err)
		}
		archiver := pipeline.NewArchiver(deps.Archiver, deps.Location, a.logger)
		jobs = append(jobs, pipeline.CronJob{Name: "archive", Schedule: sched, Run: archiver.Run})
	}

	orch := pipeline.NewOrchestrator(jobs, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	return nil
}

// startBot long-polls the chat bot.
func (a *App) startBot(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Telegram == nil {
		return fmt.Errorf("app: bot mode needs telegram.token")
	}
	router := bot.NewRouter(deps.Forms, deps.PositionSvc, deps.Symbols, a.cfg.Telegram.FormTTL.Duration, a.cfg.Currency, a.logger)
	listener := bot.NewListener(deps.Telegram, router, deps.Limiter, bot.ListenerConfig{
		PollTimeout: a.cfg.Telegram.PollTimeout.Duration,
		ChatLimit:   a.cfg.Telegram.ChatLimit,
		ChatWindow:  a.cfg.Telegram.ChatWindow.Duration,
	}, a.logger)

	g.Go(func() error {
		return listener.Run(ctx)
	})
	return nil
}

// startHTTPServer serves the API and live feed until ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	checks := map[string]handler.Pinger{
		"postgres": deps.Postgres.Ping,
		"redis":    deps.Redis.Ping,
	}
	if deps.S3 != nil {
		checks["s3"] = deps.S3.Health
	}

	hub := ws.NewHub(deps.Bus, ws.Config{Mode: a.cfg.Mode, StartedAt: time.Now().UTC()}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(checks, a.logger),
		Positions: handler.NewPositionHandler(deps.PositionSvc, a.logger),
		Jobs:      handler.NewJobHandler(a.logger, a.cfg.Schedule.LockTTL.Duration, deps.BarrierCheck, deps.Rollover),
		Quotes:    handler.NewQuoteHandler(deps.Oracle, a.logger),
		Symbols:   handler.NewSymbolHandler(deps.Symbols, a.logger),
	}, hub, deps.Limiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// RunCheck runs one barrier check pass and returns its report.
func (a *App) RunCheck(ctx context.Context) (service.Report, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return service.Report{}, err
	}
	r, err := deps.BarrierCheck.Run(ctx)
	a.logReport(ctx, r)
	return r, err
}

// RunRollover runs one rollover pass for the calendar date of day in the
// schedule timezone, or for today when day is zero.
func (a *App) RunRollover(ctx context.Context, day time.Time) (service.Report, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return service.Report{}, err
	}
	if day.IsZero() {
		day = time.Now().In(deps.Location)
	} else {
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, deps.Location)
	}
	r, err := deps.Rollover.RunOn(ctx, day)
	a.logReport(ctx, r)
	return r, err
}

// logReport logs a one-shot pass summary.
func (a *App) logReport(ctx context.Context, r service.Report) {
	a.logger.InfoContext(ctx, "pass finished",
		slog.String("job", r.Job),
		slog.Int("evaluated", r.Evaluated),
		slog.Int("changed", r.Changed),
		slog.Int("stale", r.Stale),
		slog.Int("failed", r.Failed),
		slog.Bool("skipped_lock", r.SkippedLock),
	)
}
