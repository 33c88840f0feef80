// Command barrierbot is the entry point of the barrier note monitor. It loads
// and validates configuration, sets up logging and signal handling, and
// dispatches to the requested subcommand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/barrierbot/internal/app"
	"github.com/alanyoungcy/barrierbot/internal/config"
	"github.com/alanyoungcy/barrierbot/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "barrierbot",
		Short:         "Monitor barrier notes and alert on knock-out, knock-in and monthly checkpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the configured mode (full, scheduler, bot or server)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run one barrier check pass now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
				r, err := a.RunCheck(ctx)
				if err != nil {
					return err
				}
				return printReport(cmd, r)
			})
		},
	}

	var date string
	rolloverCmd := &cobra.Command{
		Use:   "rollover",
		Short: "Run one monthly rollover pass now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var day time.Time
			if date != "" {
				d, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				day = d
			}
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
				r, err := a.RunRollover(ctx, day)
				if err != nil {
					return err
				}
				return printReport(cmd, r)
			})
		},
	}
	rolloverCmd.Flags().StringVar(&date, "date", "", "treat this date (YYYY-MM-DD) as today")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
				return a.Migrate(ctx)
			})
		},
	}

	root.AddCommand(runCmd, checkCmd, rolloverCmd, migrateCmd)
	root.RunE = runCmd.RunE
	return root
}

// withApp loads configuration, sets up the logger and runs fn against a new
// App, closing it afterwards.
func withApp(ctx context.Context, configPath string, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}

	redacted := config.RedactedConfig(cfg)
	logger.Debug("configuration loaded", slog.String("config", configPath), slog.Any("effective", redacted))

	a := app.New(cfg, logger)
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("barrierbot stopped")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printReport(cmd *cobra.Command, r service.Report) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
