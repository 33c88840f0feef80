package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/platform/telegram"
)

// Updater is the Telegram client surface the listener drives.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID, text string) error
}

// ListenerConfig tunes the long-poll loop.
type ListenerConfig struct {
	PollTimeout time.Duration
	// ChatLimit messages per ChatWindow are processed per chat; extra
	// messages are dropped.
	ChatLimit  int
	ChatWindow time.Duration
}

// Listener long-polls Telegram and answers each message through the Router.
type Listener struct {
	client  Updater
	router  *Router
	limiter domain.RateLimiter
	cfg     ListenerConfig
	logger  *slog.Logger
	retry   time.Duration
}

// NewListener creates a Listener. limiter may be nil.
func NewListener(client Updater, router *Router, limiter domain.RateLimiter, cfg ListenerConfig, logger *slog.Logger) *Listener {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 25 * time.Second
	}
	if cfg.ChatLimit <= 0 {
		cfg.ChatLimit = 20
	}
	if cfg.ChatWindow <= 0 {
		cfg.ChatWindow = time.Minute
	}
	return &Listener{
		client:  client,
		router:  router,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "bot_listener")),
		retry:   3 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "bot listener started")
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pollCtx, cancel := context.WithTimeout(ctx, l.cfg.PollTimeout+10*time.Second)
		updates, err := l.client.GetUpdates(pollCtx, offset, l.cfg.PollTimeout)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := l.retry
			var apiErr *telegram.APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			l.logger.WarnContext(ctx, "get updates failed",
				slog.Duration("retry_in", wait),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			l.handle(ctx, u)
		}
	}
}

func (l *Listener) handle(ctx context.Context, u telegram.Update) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}
	chatID := telegram.ChatIDString(u.Message.Chat.ID)

	if l.limiter != nil {
		ok, err := l.limiter.Allow(ctx, "chat:"+chatID, l.cfg.ChatLimit, l.cfg.ChatWindow)
		if err != nil {
			l.logger.WarnContext(ctx, "chat rate limit unavailable",
				slog.String("chat", chatID),
				slog.String("error", err.Error()),
			)
		} else if !ok {
			l.logger.InfoContext(ctx, "chat rate limited, dropping message", slog.String("chat", chatID))
			return
		}
	}

	reply := l.router.Handle(ctx, chatID, u.Message.Text)
	if reply == "" {
		return
	}
	if err := l.client.SendMessage(ctx, chatID, reply); err != nil {
		l.logger.ErrorContext(ctx, "send reply failed",
			slog.String("chat", chatID),
			slog.String("error", err.Error()),
		)
	}
}
