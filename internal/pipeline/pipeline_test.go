package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_DailyInTimezone(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*3600)
	s, err := ParseSchedule("0 9 * * *", sgt)
	require.NoError(t, err)

	// 02:00 UTC is 10:00 SGT, so the next 09:00 SGT is tomorrow.
	next, err := s.Next(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, sgt).Unix(), next.Unix())
	assert.Equal(t, time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC), next.UTC())
}

func TestSchedule_StrictlyAfter(t *testing.T) {
	s, err := ParseSchedule("5 9 * * *", time.UTC)
	require.NoError(t, err)

	at := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	next, err := s.Next(at)
	require.NoError(t, err)
	assert.Equal(t, at.AddDate(0, 0, 1), next)

	next, err = s.Next(at.Add(-30 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, at, next)
}

func TestSchedule_RangesAndSteps(t *testing.T) {
	s, err := ParseSchedule("*/15 9-10 1 * 1-5", time.UTC)
	require.NoError(t, err)

	// 2026-06-01 is a Monday.
	next, err := s.Next(time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), next)

	next, err = s.Next(next)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 9, 15, 0, 0, time.UTC), next)
}

func TestParseSchedule_Errors(t *testing.T) {
	for _, expr := range []string{"", "0 9 * *", "60 9 * * *", "0 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := ParseSchedule(expr, nil)
		assert.Error(t, err, expr)
	}
}

func TestPreviousMonth(t *testing.T) {
	sgt := time.FixedZone("SGT", 8*3600)
	// 2026-01-31 20:00 UTC is already February 1st in Singapore.
	got := PreviousMonth(time.Date(2026, 1, 31, 20, 0, 0, 0, time.UTC), sgt)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, sgt), got)

	got = PreviousMonth(time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got)
}

type stubArchiver struct {
	months []time.Time
	err    error
}

func (s *stubArchiver) ArchiveEvents(_ context.Context, month time.Time) (int64, error) {
	s.months = append(s.months, month)
	return 12, s.err
}

func TestArchiver_Run(t *testing.T) {
	blob := &stubArchiver{}
	a := NewArchiver(blob, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC) }

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []time.Time{time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}, blob.months)

	blob.err = errors.New("s3 down")
	assert.ErrorContains(t, a.Run(context.Background()), "2026-04")
}

func TestOrchestrator_CleanShutdown(t *testing.T) {
	s, err := ParseSchedule("0 0 1 1 *", time.UTC)
	require.NoError(t, err)
	o := NewOrchestrator([]CronJob{
		{Name: "a", Schedule: s, Run: func(context.Context) error { return nil }},
		{Name: "b", Schedule: s, Run: func(context.Context) error { return nil }},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, o.Run(ctx))
}
