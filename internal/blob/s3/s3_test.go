package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

type fakeUploadAPI struct {
	manager.UploadAPIClient
	key, bucket, contentType string
	body                     []byte
	err                      error
}

func (f *fakeUploadAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key, f.bucket = aws.ToString(in.Key), aws.ToString(in.Bucket)
	f.contentType = aws.ToString(in.ContentType)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestWriter_Put(t *testing.T) {
	api := &fakeUploadAPI{}
	w := &Writer{api: api, bucket: "archive"}

	require.NoError(t, w.Put(context.Background(), "a/b.jsonl", strings.NewReader("x\n"), jsonlContentType))
	assert.Equal(t, "archive", api.bucket)
	assert.Equal(t, "a/b.jsonl", api.key)
	assert.Equal(t, jsonlContentType, api.contentType)
	assert.Equal(t, "x\n", string(api.body))
}

type memBlob struct {
	path string
	data []byte
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	m.path = path
	m.data, _ = io.ReadAll(data)
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

type rangeEvents struct {
	domain.EventStore
	events   []domain.PositionEvent
	from, to time.Time
}

func (r *rangeEvents) ListBetween(_ context.Context, from, to time.Time) ([]domain.PositionEvent, error) {
	r.from, r.to = from, to
	return r.events, nil
}

func TestEventArchiver(t *testing.T) {
	blob := &memBlob{}
	events := &rangeEvents{events: []domain.PositionEvent{
		{ID: 1, PositionID: "p1", Kind: domain.EventKnockOut, Message: "🚀 AAPL KO hit! 104.0000 ≥ 103.0000"},
		{ID: 2, PositionID: "p2", Kind: domain.EventCoupon},
	}}
	a := NewEventArchiver(blob, events, Layout{})

	n, err := a.ArchiveEvents(context.Background(), time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), events.from)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), events.to)
	assert.Equal(t, "archive/position_events/2026-01.jsonl", blob.path)

	lines := bytes.Split(bytes.TrimSpace(blob.data), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"kind":"knock_out"`)
	assert.Contains(t, string(lines[0]), "≥")
}

func TestEventArchiver_EmptyMonth(t *testing.T) {
	blob := &memBlob{}
	a := NewEventArchiver(blob, &rangeEvents{}, Layout{})

	n, err := a.ArchiveEvents(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.path)
}

func TestEventArchiver_CustomPrefix(t *testing.T) {
	blob := &memBlob{}
	events := &rangeEvents{events: []domain.PositionEvent{{ID: 1, PositionID: "p1", Kind: domain.EventCoupon}}}
	a := NewEventArchiver(blob, events, Layout{Prefix: "/prod/barrier/"})

	_, err := a.ArchiveEvents(context.Background(), time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "prod/barrier/position_events/2026-03.jsonl", blob.path)
}

func TestClient_HealthWritesUnderPrefix(t *testing.T) {
	api := &fakeUploadAPI{}
	c := &Client{api: api, bucket: "notes", layout: Layout{Prefix: "cold"}}

	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "notes", api.bucket)
	assert.Equal(t, "cold/.health", api.key)
	assert.NotEmpty(t, api.body)

	api.err = errors.New("AccessDenied")
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://notes/cold/.health")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
