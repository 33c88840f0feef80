// Package notify delivers position alerts. Every message goes to each of its
// destination chats through the primary Sender; mirrors (e.g. a Discord
// webhook) receive one copy per message, filtered by event type. Delivery is
// fire-and-forget: callers never block on it and failures are only logged.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/metrics"
)

// Sender delivers text to an addressed destination (a chat id).
type Sender interface {
	Send(ctx context.Context, destination, text string) error
	Name() string
}

// Mirror delivers a copy of a message to a fixed channel.
type Mirror interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Message is one alert bound for one or more destinations.
type Message struct {
	Event        string
	Title        string
	Destinations []string
	Text         string
}

// Notifier dispatches messages asynchronously.
type Notifier struct {
	sender  Sender
	mirrors []Mirror
	events  map[string]bool // event types forwarded to mirrors
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewNotifier creates a Notifier. sender may be nil, in which case messages
// are logged and dropped. Only events listed in mirrorEvents reach mirrors;
// an empty list forwards every event.
func NewNotifier(sender Sender, mirrors []Mirror, mirrorEvents []string, timeout time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(mirrorEvents))
	for _, e := range mirrorEvents {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Notifier{
		sender:  sender,
		mirrors: mirrors,
		events:  allowed,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends text to a single destination without waiting for delivery.
func (n *Notifier) Notify(ctx context.Context, destination, text string) {
	if n.sender == nil {
		n.logger.WarnContext(ctx, "no sender configured, dropping notification",
			slog.String("destination", destination),
		)
		return
	}
	n.goDeliver(ctx, n.sender.Name(), func(c context.Context) error {
		return n.sender.Send(c, destination, text)
	}, slog.String("destination", destination))
}

// Publish sends msg to each of its destinations and to the mirrors. Each
// delivery is independent of the others.
func (n *Notifier) Publish(ctx context.Context, msg Message) {
	seen := make(map[string]bool, len(msg.Destinations))
	for _, d := range msg.Destinations {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		n.Notify(ctx, d, msg.Text)
	}

	if len(n.events) > 0 && !n.events[msg.Event] {
		return
	}
	title := msg.Title
	if title == "" {
		title = msg.Event
	}
	for _, m := range n.mirrors {
		m := m
		n.goDeliver(ctx, m.Name(), func(c context.Context) error {
			return m.Send(c, title, msg.Text)
		}, slog.String("event", msg.Event))
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		n.logger.WarnContext(ctx, "shutdown before notifications drained")
	}
}

func (n *Notifier) goDeliver(ctx context.Context, name string, send func(context.Context) error, attr slog.Attr) {
	// Detach from the caller: a finished job must not cancel its alerts.
	base := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		c, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()

		if err := send(c); err != nil {
			metrics.Notifications.WithLabelValues(name, "error").Inc()
			n.logger.ErrorContext(c, "notification failed",
				slog.String("sender", name),
				attr,
				slog.String("error", err.Error()),
			)
			return
		}
		metrics.Notifications.WithLabelValues(name, "ok").Inc()
		n.logger.DebugContext(c, "notification sent",
			slog.String("sender", name),
			attr,
		)
	}()
}
