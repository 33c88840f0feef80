// Package app provides the top-level application lifecycle for barrierbot.
// It wires stores, caches, price sources, notifications and services, then
// starts the goroutines of the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/barrierbot/internal/config"
	"github.com/alanyoungcy/barrierbot/internal/store/postgres"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Run wires all dependencies, starts the goroutines of the configured mode
// and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("timezone", a.cfg.Schedule.Timezone),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.RunsScheduler() {
		if err := a.startScheduler(gctx, g, deps); err != nil {
			return err
		}
	}
	if a.cfg.RunsBot() {
		if err := a.startBot(gctx, g, deps); err != nil {
			return err
		}
	}
	if a.cfg.RunsServer() {
		a.startHTTPServer(gctx, g, deps)
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Migrate applies the embedded SQL migrations and returns.
func (a *App) Migrate(ctx context.Context) error {
	c, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      a.cfg.Database.DSN,
		Host:     a.cfg.Database.Host,
		Port:     a.cfg.Database.Port,
		Database: a.cfg.Database.Database,
		User:     a.cfg.Database.User,
		Password: a.cfg.Database.Password,
		SSLMode:  a.cfg.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	defer c.Close()
	return c.RunMigrations(ctx)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
