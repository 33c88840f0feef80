package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/barrier"
	s3blob "github.com/alanyoungcy/barrierbot/internal/blob/s3"
	"github.com/alanyoungcy/barrierbot/internal/cache/redis"
	"github.com/alanyoungcy/barrierbot/internal/config"
	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/notify"
	"github.com/alanyoungcy/barrierbot/internal/platform/alpaca"
	"github.com/alanyoungcy/barrierbot/internal/platform/binance"
	"github.com/alanyoungcy/barrierbot/internal/platform/telegram"
	"github.com/alanyoungcy/barrierbot/internal/service"
	"github.com/alanyoungcy/barrierbot/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Location *time.Location

	// Infrastructure clients, kept for health checks.
	Postgres *postgres.Client
	Redis    *redis.Client
	S3       *s3blob.Client

	// Stores
	Positions domain.PositionStore
	Events    domain.EventStore

	// Redis-backed adapters
	Quotes  domain.QuoteCache
	Forms   domain.FormStore
	Limiter domain.RateLimiter
	Locks   domain.LockManager
	Bus     domain.EventBus

	// Archiver is nil unless the archive is enabled.
	Archiver domain.Archiver

	Telegram *telegram.Client
	Notifier *notify.Notifier
	Symbols  domain.SymbolSearcher

	// Services
	Oracle       *service.PriceOracle
	PositionSvc  *service.PositionService
	BarrierCheck *service.BarrierCheck
	Rollover     *service.Rollover
}

// Wire constructs all concrete dependency implementations from cfg and returns
// them together with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps := &Dependencies{Location: loc}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}
	deps.Positions = postgres.NewPositionStore(pgClient.Pool())
	deps.Events = postgres.NewEventStore(pgClient.Pool())

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient
	deps.Quotes = redis.NewQuoteCache(redisClient)
	deps.Forms = redis.NewFormStore(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewEventBus(redisClient)

	// --- S3 archive ---
	if cfg.Archive.Enabled && cfg.RunsScheduler() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.S3 = s3Client
		deps.Archiver = s3blob.NewEventArchiver(s3blob.NewWriter(s3Client), deps.Events, s3Client.Layout())
	}

	// --- Notifications ---
	var sender notify.Sender
	if cfg.Telegram.Token != "" {
		deps.Telegram = telegram.NewClient(cfg.Telegram.BaseURL, cfg.Telegram.Token)
		sender = notify.NewTelegramSender(deps.Telegram)
	}
	var mirrors []notify.Mirror
	if cfg.Notify.DiscordWebhookURL != "" {
		mirrors = append(mirrors, notify.NewDiscordMirror(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	deps.Notifier = notify.NewNotifier(sender, mirrors, cfg.Notify.Events, cfg.Notify.Timeout.Duration, logger)
	closers = append(closers, func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Notify.Timeout.Duration+time.Second)
		defer cancel()
		deps.Notifier.Wait(waitCtx)
	})

	// --- Price oracle ---
	stocks := alpaca.NewClient(alpaca.Config{
		APIKey:        cfg.Alpaca.APIKey,
		APISecret:     cfg.Alpaca.APISecret,
		BaseURL:       cfg.Alpaca.DataURL,
		TradingURL:    cfg.Alpaca.TradingURL,
		Timeout:       cfg.Alpaca.Timeout.Duration,
		AssetCacheTTL: cfg.Alpaca.AssetCacheTTL.Duration,
	})
	deps.Symbols = stocks
	sources := map[domain.MarketKind]domain.PriceSource{
		domain.MarketStock: stocks,
		domain.MarketCrypto: binance.NewClient(binance.Config{
			BaseURL:       cfg.Crypto.BaseURL,
			Timeout:       cfg.Crypto.Timeout.Duration,
			RatePerSecond: cfg.Crypto.RatePerSecond,
			Burst:         cfg.Crypto.Burst,
		}, logger),
	}
	deps.Oracle = service.NewPriceOracle(service.OracleConfig{
		Timeout:  cfg.Oracle.Timeout.Duration,
		CacheTTL: cfg.Oracle.CacheTTL.Duration,
	}, sources, deps.Quotes, logger)

	// --- Services ---
	format := barrier.Formatter{Currency: cfg.Currency}
	deps.PositionSvc = service.NewPositionService(
		deps.Positions, deps.Events, deps.Oracle, deps.Bus, format,
		service.PositionConfig{
			BroadcastChat:    cfg.Telegram.BroadcastChatID,
			Location:         loc,
			PriceRetries:     uint(cfg.Oracle.EntranceRetries),
			PriceRetryWindow: cfg.Oracle.EntranceRetryWindow.Duration,
		},
		logger,
	)

	jobDeps := service.JobDeps{
		Positions: deps.Positions,
		Events:    deps.Events,
		Bus:       deps.Bus,
		Locks:     deps.Locks,
		Notifier:  deps.Notifier,
		Formatter: format,
		LockTTL:   cfg.Schedule.LockTTL.Duration,
	}
	deps.BarrierCheck = service.NewBarrierCheck(jobDeps, deps.Oracle, logger)
	deps.Rollover = service.NewRollover(jobDeps, loc, logger)

	return deps, cleanup, nil
}
