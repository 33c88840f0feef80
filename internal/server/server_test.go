package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/barrierbot/internal/barrier"
	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/server/handler"
	"github.com/alanyoungcy/barrierbot/internal/service"
)

type fakePositions struct {
	positions map[string]domain.Position
	events    []domain.PositionEvent
	created   domain.CreatePositionRequest
	createErr error
}

func (f *fakePositions) Create(_ context.Context, req domain.CreatePositionRequest) (domain.Position, error) {
	f.created = req
	if f.createErr != nil {
		return domain.Position{}, f.createErr
	}
	return domain.Position{ID: "new", Symbol: req.Symbol, EntrancePrice: 100, Status: domain.StatusActive}, nil
}

func (f *fakePositions) Get(_ context.Context, id string) (domain.Position, error) {
	p, ok := f.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("position_service: get %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakePositions) ListByOwner(_ context.Context, owner string, _ domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range f.positions {
		if p.OwnerChat == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePositions) Events(ctx context.Context, id string, _ domain.ListOpts) ([]domain.PositionEvent, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	return f.events, nil
}

func (f *fakePositions) Levels(ctx context.Context, id string) (service.LevelsView, error) {
	p, err := f.Get(ctx, id)
	if err != nil {
		return service.LevelsView{}, err
	}
	price := 101.0
	return service.LevelsView{Position: p, Levels: barrier.ForPosition(p), Price: &price}, nil
}

type fakeJob struct {
	name   string
	report service.Report
	runs   int
	ctxErr error
	bound  bool
}

func (j *fakeJob) Name() string { return j.name }

func (j *fakeJob) Run(ctx context.Context) (service.Report, error) {
	j.runs++
	j.ctxErr = ctx.Err()
	_, j.bound = ctx.Deadline()
	return j.report, nil
}

type fakeSymbols struct{}

func (fakeSymbols) SearchSymbols(_ context.Context, query string, limit int) ([]domain.Asset, error) {
	switch query {
	case "down":
		return nil, fmt.Errorf("alpaca: %w", domain.ErrSourceUnavailable)
	case "zzz":
		return nil, nil
	}
	items := []domain.Asset{
		{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ", Class: "us_equity"},
		{Symbol: "APLE", Name: "Apple Hospitality REIT", Exchange: "NYSE", Class: "us_equity"},
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

type fakeQuotes struct{}

func (fakeQuotes) Quote(_ context.Context, symbol string, kind domain.MarketKind) (domain.Quote, error) {
	if symbol == "NOPE" {
		return domain.Quote{}, fmt.Errorf("price_oracle: %w", domain.ErrNoPrice)
	}
	return domain.Quote{Symbol: strings.ToUpper(symbol), MarketKind: kind, Price: 42.5, Source: "stub"}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func newTestServer(t *testing.T, cfg Config, limiter domain.RateLimiter) (*Server, *fakePositions, *fakeJob) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	positions := &fakePositions{
		positions: map[string]domain.Position{
			"p1": {
				ID: "p1", OwnerChat: "42", Symbol: "AAPL", MarketKind: domain.MarketStock,
				EntrancePrice: 100, KnockOutPct: 3, KnockInPct: -10, DecayPctPerMonth: 0.5,
				PeriodMonths: 6, Status: domain.StatusActive,
			},
		},
		events: []domain.PositionEvent{{ID: 1, PositionID: "p1", Kind: domain.EventCreated}},
	}
	job := &fakeJob{name: service.JobBarrierCheck, report: service.Report{Job: service.JobBarrierCheck, Evaluated: 3}}
	srv := NewServer(cfg, Handlers{
		Health:    handler.NewHealthHandler(map[string]handler.Pinger{"postgres": func(context.Context) error { return nil }}, logger),
		Positions: handler.NewPositionHandler(positions, logger),
		Jobs:      handler.NewJobHandler(logger, time.Minute, job),
		Quotes:    handler.NewQuoteHandler(fakeQuotes{}, logger),
		Symbols:   handler.NewSymbolHandler(fakeSymbols{}, logger),
	}, nil, limiter, logger)
	return srv, positions, job
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{APIKey: "secret"}, nil)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)
}

func TestServer_HealthDegraded(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewHealthHandler(map[string]handler.Pinger{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, logger)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestServer_Positions(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/positions?owner=42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Positions []domain.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Positions, 1)
	assert.Equal(t, "AAPL", list.Positions[0].Symbol)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/positions", "").Code)

	rec = do(t, h, http.MethodGet, "/api/positions/p1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/positions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/positions/p1/levels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view service.LevelsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.InDelta(t, 103.0, view.Levels.KnockOutPrice, 1e-9)
	assert.InDelta(t, 90.0, view.Levels.KnockInPrice, 1e-9)

	rec = do(t, h, http.MethodGet, "/api/positions/p1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"created"`)
}

func TestServer_CreatePosition(t *testing.T) {
	srv, positions, _ := newTestServer(t, Config{}, nil)

	body := `{"owner_chat":"42","symbol":"aapl","market_kind":"stock","knock_out_pct":3,
		"knock_in_pct":-10,"period_months":6,"fund":10000,"payout_kind":"coupon",
		"coupon_rate_pct":5,"decay_pct_per_month":0.5}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/positions", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "aapl", positions.created.Symbol)
	assert.Equal(t, domain.PayoutCoupon, positions.created.PayoutKind)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/positions", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	positions.createErr = fmt.Errorf("position_service: %w", domain.ErrInvalidInput)
	rec = do(t, srv.Handler(), http.MethodPost, "/api/positions", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	positions.createErr = fmt.Errorf("position_service: %w", domain.ErrSourceUnavailable)
	rec = do(t, srv.Handler(), http.MethodPost, "/api/positions", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_RunJob(t *testing.T) {
	srv, _, job := newTestServer(t, Config{}, nil)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/jobs/barrier-check/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, job.runs)
	assert.Contains(t, rec.Body.String(), `"evaluated":3`)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/jobs/nope/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	job.report.SkippedLock = true
	rec = do(t, srv.Handler(), http.MethodPost, "/api/jobs/barrier-check/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_RunJobOutlivesRequest(t *testing.T) {
	srv, _, job := newTestServer(t, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/barrier-check/run", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 1, job.runs)
	assert.NoError(t, job.ctxErr)
	assert.True(t, job.bound)
}

func TestServer_SymbolSearch(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/symbols/search?q=apple", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []domain.Asset `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "AAPL", body.Items[0].Symbol)
	assert.Equal(t, "NASDAQ", body.Items[0].Exchange)

	rec = do(t, h, http.MethodGet, "/api/symbols/search?q=apple&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Items, 1)

	rec = do(t, h, http.MethodGet, "/api/symbols/search?q=zzz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/symbols/search", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/symbols/search?q=a&limit=x", "").Code)
	assert.Equal(t, http.StatusBadGateway, do(t, h, http.MethodGet, "/api/symbols/search?q=down", "").Code)
}

func TestServer_Quote(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/quote?symbol=btc&market=crypto", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"BTC"`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/quote", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/quote?symbol=X&market=fx", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, http.MethodGet, "/api/quote?symbol=NOPE", "").Code)
}

func TestServer_Auth(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{APIKey: "secret"}, nil)
	h := srv.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/positions/p1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/positions/p1", "", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/positions/p1", "", "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{APIKey: "secret", CORSOrigins: []string{"https://app.example"}}, nil)

	rec := do(t, srv.Handler(), http.MethodOptions, "/api/positions", "", "Origin", "https://app.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, srv.Handler(), http.MethodOptions, "/api/positions", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{RateLimit: 10, RateWindow: time.Minute}, denyAll{})
	rec := do(t, srv.Handler(), http.MethodGet, "/api/positions/p1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	srv, _, _ = newTestServer(t, Config{RateLimit: 10, RateWindow: time.Minute}, brokenLimiter{})
	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/api/positions/p1", "").Code)
}
