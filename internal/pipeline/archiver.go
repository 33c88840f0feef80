package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// Archiver exports the previous calendar month of position events to cold
// storage.
type Archiver struct {
	blob   domain.Archiver
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates an Archiver. loc decides month boundaries.
func NewArchiver(blob domain.Archiver, loc *time.Location, logger *slog.Logger) *Archiver {
	if loc == nil {
		loc = time.UTC
	}
	return &Archiver{
		blob:   blob,
		loc:    loc,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Run archives the month before the current one.
func (a *Archiver) Run(ctx context.Context) error {
	return a.RunMonth(ctx, PreviousMonth(a.now(), a.loc))
}

// RunMonth archives the month that starts at month.
func (a *Archiver) RunMonth(ctx context.Context, month time.Time) error {
	a.logger.InfoContext(ctx, "starting archive run", slog.String("month", month.Format("2006-01")))
	n, err := a.blob.ArchiveEvents(ctx, month)
	if err != nil {
		return fmt.Errorf("archiving events of %s: %w", month.Format("2006-01"), err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.String("month", month.Format("2006-01")),
		slog.Int64("events_archived", n),
	)
	return nil
}

// PreviousMonth returns midnight on the first day of the month before now,
// in loc.
func PreviousMonth(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return first.AddDate(0, -1, 0)
}
