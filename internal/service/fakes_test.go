package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memPositions is an in-memory PositionStore with the same compare-and-swap
// semantics as the postgres store.
type memPositions struct {
	mu        sync.Mutex
	byID      map[string]domain.Position
	failWrite map[string]error
	// beforeUpdate runs inside UpdateStatus before the CAS, to simulate a
	// concurrent writer.
	beforeUpdate func(id string)
}

func newMemPositions(ps ...domain.Position) *memPositions {
	m := &memPositions{byID: map[string]domain.Position{}, failWrite: map[string]error{}}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memPositions) Insert(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	return nil
}

func (m *memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) AllActive(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.byID {
		if p.Status == domain.StatusActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPositions) ListByOwner(_ context.Context, owner string, _ domain.ListOpts) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.byID {
		if p.OwnerChat == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPositions) UpdateStatus(_ context.Context, id string, from, to domain.PositionStatus) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite[id]; err != nil {
		return err
	}
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return fmt.Errorf("mem: %w", domain.ErrStaleStatus)
	}
	p.Status = to
	m.byID[id] = p
	return nil
}

func (m *memPositions) UpdateMonthsAndStatus(_ context.Context, id string, fromMonths, months int, status domain.PositionStatus, on time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite[id]; err != nil {
		return err
	}
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	y, mo, d := on.Date()
	date := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	if p.Status != domain.StatusActive || p.MonthsElapsed != fromMonths {
		return fmt.Errorf("mem: %w", domain.ErrStaleStatus)
	}
	if p.LastRolloverDate != nil && !p.LastRolloverDate.Before(date) {
		return fmt.Errorf("mem: %w", domain.ErrStaleStatus)
	}
	p.MonthsElapsed, p.Status, p.LastRolloverDate = months, status, &date
	m.byID[id] = p
	return nil
}

func (m *memPositions) get(id string) domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memPositions) setStatus(id string, s domain.PositionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	p.Status = s
	m.byID[id] = p
}

type memEvents struct {
	mu        sync.Mutex
	events    []domain.PositionEvent
	now       func() time.Time
	appendErr error
}

func (e *memEvents) Append(_ context.Context, evt domain.PositionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.appendErr != nil {
		return e.appendErr
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
		if e.now != nil {
			evt.CreatedAt = e.now()
		}
	}
	evt.ID = int64(len(e.events) + 1)
	e.events = append(e.events, evt)
	return nil
}

func (e *memEvents) ListByPosition(_ context.Context, id string, opts domain.ListOpts) ([]domain.PositionEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.PositionEvent
	for _, evt := range e.events {
		if evt.PositionID != id {
			continue
		}
		if opts.Since != nil && evt.CreatedAt.Before(*opts.Since) {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

func (e *memEvents) ListBetween(_ context.Context, from, to time.Time) ([]domain.PositionEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.PositionEvent
	for _, evt := range e.events {
		if !evt.CreatedAt.Before(from) && evt.CreatedAt.Before(to) {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (e *memEvents) kinds() []domain.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventKind, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Kind)
	}
	return out
}

// stubOracle returns fixed prices per symbol, or an error.
type stubOracle struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
	// failFirst makes the first n calls per symbol fail transiently.
	failFirst int
}

func (o *stubOracle) GetPrice(_ context.Context, symbol string, _ domain.MarketKind) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[symbol]++
	if o.calls[symbol] <= o.failFirst {
		return 0, fmt.Errorf("stub: %w", domain.ErrSourceUnavailable)
	}
	if err := o.errs[symbol]; err != nil {
		return 0, err
	}
	p, ok := o.prices[symbol]
	if !ok {
		return 0, domain.ErrNoPrice
	}
	return p, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingPublisher) Publish(_ context.Context, msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingPublisher) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Text)
	}
	return out
}

type recordingBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, fmt.Errorf("not supported")
}

type stubLocks struct {
	err      error
	acquired []string
	released int
}

func (l *stubLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

func activePosition(id, symbol string) domain.Position {
	return domain.Position{
		ID:               id,
		OwnerChat:        "100",
		Symbol:           symbol,
		MarketKind:       domain.MarketStock,
		EntranceDate:     time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		EntrancePrice:    100,
		KnockOutPct:      5,
		KnockInPct:       -10,
		DecayPctPerMonth: 1,
		PeriodMonths:     6,
		PayoutKind:       domain.PayoutBullet,
		Fund:             10000,
		MonthsElapsed:    2,
		Status:           domain.StatusActive,
	}
}
