package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

func TestQuoteCache_SetAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	qc := NewQuoteCache(Wrap(db))
	ctx := context.Background()

	fetched := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	q := domain.Quote{Symbol: "AAPL", MarketKind: domain.MarketStock, Price: 187.25, Source: "alpaca", FetchedAt: fetched}
	ts := "1772413200000000000"

	mock.ExpectTxPipeline()
	mock.ExpectHSet("quote:stock:AAPL", "price", "187.25", "source", "alpaca", "ts", ts).SetVal(3)
	mock.ExpectExpire("quote:stock:AAPL", 15*time.Second).SetVal(true)
	mock.ExpectTxPipelineExec()

	require.NoError(t, qc.SetQuote(ctx, q, 15*time.Second))

	mock.ExpectHGetAll("quote:stock:AAPL").SetVal(map[string]string{
		"price": "187.25", "source": "alpaca", "ts": ts,
	})
	got, err := qc.GetQuote(ctx, "aapl", domain.MarketStock)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 187.25, got.Price)
	assert.Equal(t, "alpaca", got.Source)
	assert.True(t, got.FetchedAt.Equal(fetched))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteCache_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	qc := NewQuoteCache(Wrap(db))

	mock.ExpectHGetAll("quote:crypto:BTC/USDT").SetVal(map[string]string{})
	_, err := qc.GetQuote(context.Background(), "BTC/USDT", domain.MarketCrypto)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	fs := NewFormStore(Wrap(db))
	ctx := context.Background()
	data := []byte(`{"step":"market"}`)

	mock.ExpectSet("form:42", data, 30*time.Minute).SetVal("OK")
	require.NoError(t, fs.Save(ctx, "42", data, 30*time.Minute))

	mock.ExpectGet("form:42").SetVal(string(data))
	got, err := fs.Load(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	mock.ExpectDel("form:42").SetVal(1)
	require.NoError(t, fs.Delete(ctx, "42"))

	mock.ExpectGet("form:42").RedisNil()
	_, err = fs.Load(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectGet("form:43").SetErr(errors.New("connection refused"))
	_, err = fs.Load(ctx, "43")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockManager(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lm := NewLockManager(Wrap(db))
	lm.newToken = func() string { return "tok-1" }
	ctx := context.Background()

	mock.ExpectSetNX("lock:job:barrier-check", "tok-1", time.Minute).SetVal(true)
	mock.ExpectEvalSha(lm.release.Hash(), []string{"lock:job:barrier-check"}, "tok-1").SetVal(int64(1))

	unlock, err := lm.Acquire(ctx, "job:barrier-check", time.Minute)
	require.NoError(t, err)
	unlock()
	unlock()

	mock.ExpectSetNX("lock:job:barrier-check", "tok-1", time.Minute).SetVal(false)
	_, err = lm.Acquire(ctx, "job:barrier-check", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(Wrap(db))
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	sha := rl.slidingWindow.Hash()

	mock.ExpectEvalSha(sha, []string{"ratelimit:chat:42"}, now.UnixMicro(), time.Minute.Microseconds(), 5).
		SetVal([]interface{}{int64(1), int64(3)})
	ok, err := rl.Allow(context.Background(), "chat:42", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectEvalSha(sha, []string{"ratelimit:chat:42"}, now.UnixMicro(), time.Minute.Microseconds(), 5).
		SetVal([]interface{}{int64(0), int64(5)})
	ok, err = rl.Allow(context.Background(), "chat:42", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventBus_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	bus := NewEventBus(Wrap(db))

	payload := []byte(`{"kind":"knock_out"}`)
	mock.ExpectPublish("positions", payload).SetVal(1)
	require.NoError(t, bus.Publish(context.Background(), "positions", payload))

	mock.ExpectPublish("positions", payload).SetErr(redis.ErrClosed)
	assert.Error(t, bus.Publish(context.Background(), "positions", payload))

	assert.NoError(t, mock.ExpectationsWereMet())
}
