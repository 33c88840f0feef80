package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/barrier"
	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/metrics"
	"github.com/alanyoungcy/barrierbot/internal/notify"
)

// Job names, used for locks, metrics and the HTTP trigger.
const (
	JobBarrierCheck = "barrier-check"
	JobRollover     = "rollover"
)

// Publisher is the fire-and-forget side of the notifier.
type Publisher interface {
	Publish(ctx context.Context, msg notify.Message)
}

// JobDeps are the collaborators shared by both scheduled passes. Events, Bus,
// Locks and Notifier may be nil.
type JobDeps struct {
	Positions domain.PositionStore
	Events    domain.EventStore
	Bus       domain.EventBus
	Locks     domain.LockManager
	Notifier  Publisher
	Formatter barrier.Formatter
	LockTTL   time.Duration
}

// Report summarises one pass.
type Report struct {
	Job         string        `json:"job"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Evaluated   int           `json:"evaluated"`
	Changed     int           `json:"changed"`
	Stale       int           `json:"stale"`
	Failed      int           `json:"failed"`
	SkippedLock bool          `json:"skipped_lock,omitempty"`
}

// jobRunner holds the plumbing common to both passes.
type jobRunner struct {
	JobDeps
	name   string
	logger *slog.Logger
}

// lock takes the pass lock. A held lock skips the pass; an unreachable lock
// backend does not, the store's compare-and-swap still arbitrates.
func (j *jobRunner) lock(ctx context.Context) (unlock func(), skip bool) {
	noop := func() {}
	if j.Locks == nil {
		return noop, false
	}
	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	unlock, err := j.Locks.Acquire(ctx, "job:"+j.name, ttl)
	switch {
	case err == nil:
		return unlock, false
	case errors.Is(err, domain.ErrLockHeld):
		j.logger.InfoContext(ctx, "pass already running elsewhere, skipping")
		return noop, true
	default:
		j.logger.WarnContext(ctx, "job lock unavailable, running unlocked",
			slog.String("error", err.Error()),
		)
		return noop, false
	}
}

// finish stamps the report and records metrics.
func (j *jobRunner) finish(ctx context.Context, r *Report, err error) {
	r.Duration = time.Since(r.StartedAt)
	outcome := "ok"
	switch {
	case r.SkippedLock:
		outcome = "skipped"
	case err != nil || r.Failed > 0:
		outcome = "error"
	}
	metrics.JobRuns.WithLabelValues(j.name, outcome).Inc()
	metrics.JobDuration.WithLabelValues(j.name).Observe(r.Duration.Seconds())
	metrics.RecordsEvaluated.WithLabelValues(j.name).Add(float64(r.Evaluated))

	attrs := []any{
		slog.Int("evaluated", r.Evaluated),
		slog.Int("changed", r.Changed),
		slog.Int("stale", r.Stale),
		slog.Int("failed", r.Failed),
		slog.Duration("duration", r.Duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		j.logger.ErrorContext(ctx, "pass aborted", attrs...)
		return
	}
	j.logger.InfoContext(ctx, "pass complete", attrs...)
}

// announce records the event, notifies the position's chats and pushes the
// live update. Failures here never undo the persisted change.
func (j *jobRunner) announce(ctx context.Context, p domain.Position, evt domain.PositionEvent, title string) {
	if j.Events != nil {
		if err := j.Events.Append(ctx, evt); err != nil {
			j.logger.ErrorContext(ctx, "append position event failed",
				slog.String("position_id", p.ID),
				slog.String("kind", string(evt.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}

	if j.Notifier != nil {
		event := string(evt.Kind)
		if evt.ToStatus == domain.StatusMatured {
			event = string(domain.StatusMatured)
		}
		j.Notifier.Publish(ctx, notify.Message{
			Event:        event,
			Title:        title,
			Destinations: p.Destinations(),
			Text:         evt.Message,
		})
	}

	if j.Bus != nil {
		payload, _ := json.Marshal(domain.PositionUpdate{
			Event:     evt,
			Symbol:    p.Symbol,
			OwnerChat: p.OwnerChat,
			Status:    evt.ToStatus,
		})
		if err := j.Bus.Publish(ctx, domain.ChannelPositions, payload); err != nil {
			j.logger.WarnContext(ctx, "publish position update failed",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func floatPtr(v float64) *float64 { return &v }
