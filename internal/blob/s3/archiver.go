package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

const eventsKind = "position_events"

// EventArchiver implements domain.Archiver: it exports one calendar month of
// position events as JSONL to the layout's month key. Rows are left in the
// database; pruning is a separate decision.
type EventArchiver struct {
	writer domain.BlobWriter
	events domain.EventStore
	layout Layout
}

// NewEventArchiver creates an EventArchiver writing keys from layout.
func NewEventArchiver(writer domain.BlobWriter, events domain.EventStore, layout Layout) *EventArchiver {
	return &EventArchiver{writer: writer, events: events, layout: layout}
}

// ArchiveEvents uploads the events created in the month starting at month and
// returns how many were written. An empty month uploads nothing.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, month time.Time) (int64, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	to := from.AddDate(0, 1, 0)

	events, err := a.events.ListBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := a.layout.MonthKey(eventsKind, from)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}
	return int64(len(events)), nil
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*EventArchiver)(nil)
