package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/alanyoungcy/barrierbot/internal/barrier"
	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// PositionConfig holds creation-time settings.
type PositionConfig struct {
	// BroadcastChat, when set, is copied onto every new position.
	BroadcastChat string
	// Location decides the calendar date recorded as the entrance date.
	Location *time.Location
	// PriceRetries bounds entrance price attempts.
	PriceRetries uint
	// PriceRetryWindow bounds total time spent fetching the entrance price.
	PriceRetryWindow time.Duration
}

// PositionService creates positions and serves read views of them.
type PositionService struct {
	positions domain.PositionStore
	events    domain.EventStore
	oracle    domain.PriceOracle
	bus       domain.EventBus
	format    barrier.Formatter
	cfg       PositionConfig
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	retryBase time.Duration
}

// NewPositionService creates a PositionService. events and bus may be nil.
func NewPositionService(
	positions domain.PositionStore,
	events domain.EventStore,
	oracle domain.PriceOracle,
	bus domain.EventBus,
	format barrier.Formatter,
	cfg PositionConfig,
	logger *slog.Logger,
) *PositionService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PriceRetries == 0 {
		cfg.PriceRetries = 3
	}
	if cfg.PriceRetryWindow <= 0 {
		cfg.PriceRetryWindow = 30 * time.Second
	}
	return &PositionService{
		positions: positions,
		events:    events,
		oracle:    oracle,
		bus:       bus,
		format:    format,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "position_service")),
		now:       time.Now,
		newID:     uuid.NewString,
		retryBase: 500 * time.Millisecond,
	}
}

// Create validates req, captures the entrance price and date, and stores an
// active position.
func (s *PositionService) Create(ctx context.Context, req domain.CreatePositionRequest) (domain.Position, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.PayoutKind == domain.PayoutBullet {
		req.CouponRatePct = 0
	}
	if err := req.Validate(); err != nil {
		return domain.Position{}, err
	}

	price, err := s.entrancePrice(ctx, req.Symbol, req.MarketKind)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: entrance price %s: %w", req.Symbol, err)
	}

	now := s.now()
	local := now.In(s.cfg.Location)
	pos := domain.Position{
		ID:               s.newID(),
		OwnerChat:        strings.TrimSpace(req.OwnerChat),
		Symbol:           req.Symbol,
		MarketKind:       req.MarketKind,
		EntranceDate:     time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
		EntrancePrice:    price,
		KnockOutPct:      req.KnockOutPct,
		KnockInPct:       req.KnockInPct,
		DecayPctPerMonth: req.DecayPctPerMonth,
		PeriodMonths:     req.PeriodMonths,
		PayoutKind:       req.PayoutKind,
		CouponRatePct:    req.CouponRatePct,
		Fund:             req.Fund,
		MonthsElapsed:    0,
		Status:           domain.StatusActive,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
	if b := strings.TrimSpace(s.cfg.BroadcastChat); b != "" {
		pos.BroadcastChat = &b
	}

	if err := s.positions.Insert(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: insert %s: %w", pos.Symbol, err)
	}
	s.logger.InfoContext(ctx, "position created",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("owner", pos.OwnerChat),
		slog.Float64("entrance_price", pos.EntrancePrice),
	)

	evt := domain.PositionEvent{
		PositionID: pos.ID,
		Kind:       domain.EventCreated,
		ToStatus:   domain.StatusActive,
		Price:      floatPtr(price),
		Message:    s.format.Saved(pos),
	}
	if s.events != nil {
		if err := s.events.Append(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "append created event failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		payload, _ := json.Marshal(domain.PositionUpdate{
			Event:     evt,
			Symbol:    pos.Symbol,
			OwnerChat: pos.OwnerChat,
			Status:    pos.Status,
		})
		if err := s.bus.Publish(ctx, domain.ChannelPositions, payload); err != nil {
			s.logger.WarnContext(ctx, "publish created event failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return pos, nil
}

// entrancePrice fetches the creation price, retrying transient failures with
// exponential backoff.
func (s *PositionService) entrancePrice(ctx context.Context, symbol string, kind domain.MarketKind) (float64, error) {
	op := func() (float64, error) {
		p, err := s.oracle.GetPrice(ctx, symbol, kind)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, domain.ErrUnsupportedMarket) ||
			errors.Is(err, domain.ErrNoPrice) ||
			errors.Is(err, domain.ErrInvalidInput) {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryBase
	eb.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(s.cfg.PriceRetries),
		backoff.WithMaxElapsedTime(s.cfg.PriceRetryWindow),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.WarnContext(ctx, "entrance price fetch failed, retrying",
				slog.String("symbol", symbol),
				slog.Duration("next", next),
				slog.String("error", err.Error()),
			)
		}),
	)
}

// Get returns one position.
func (s *PositionService) Get(ctx context.Context, id string) (domain.Position, error) {
	p, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %s: %w", id, err)
	}
	return p, nil
}

// ListByOwner returns the positions of one chat, newest first.
func (s *PositionService) ListByOwner(ctx context.Context, ownerChat string, opts domain.ListOpts) ([]domain.Position, error) {
	ps, err := s.positions.ListByOwner(ctx, ownerChat, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list %s: %w", ownerChat, err)
	}
	return ps, nil
}

// Events returns the history of one position.
func (s *PositionService) Events(ctx context.Context, id string, opts domain.ListOpts) ([]domain.PositionEvent, error) {
	if s.events == nil {
		return nil, nil
	}
	if _, err := s.positions.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("position_service: events %s: %w", id, err)
	}
	evts, err := s.events.ListByPosition(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: events %s: %w", id, err)
	}
	return evts, nil
}

// LevelsView is a position with its current barrier levels and, when it
// could be fetched, the live price.
type LevelsView struct {
	Position  domain.Position `json:"position"`
	Levels    barrier.Levels  `json:"levels"`
	Price     *float64        `json:"price,omitempty"`
	ChangePct *float64        `json:"change_pct,omitempty"`
	PriceErr  string          `json:"price_error,omitempty"`
}

// View computes the levels view of p. A price failure is reported in the view
// rather than returned.
func (s *PositionService) View(ctx context.Context, p domain.Position) LevelsView {
	v := LevelsView{Position: p, Levels: barrier.ForPosition(p)}
	price, err := s.oracle.GetPrice(ctx, p.Symbol, p.MarketKind)
	if err != nil {
		v.PriceErr = err.Error()
		return v
	}
	change := barrier.ChangePct(p, price)
	v.Price, v.ChangePct = &price, &change
	return v
}

// Levels loads a position and returns its levels view.
func (s *PositionService) Levels(ctx context.Context, id string) (LevelsView, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return LevelsView{}, err
	}
	return s.View(ctx, p), nil
}

// StatusReport renders the status listing of one chat.
func (s *PositionService) StatusReport(ctx context.Context, ownerChat string) (string, error) {
	ps, err := s.ListByOwner(ctx, ownerChat, domain.ListOpts{Limit: 50})
	if err != nil {
		return "", err
	}
	if len(ps) == 0 {
		return "No positions yet. Use /add to track one.", nil
	}
	blocks := make([]string, 0, len(ps))
	for _, p := range ps {
		v := s.View(ctx, p)
		blocks = append(blocks, s.format.Status(p, v.Price))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// Saved renders the creation confirmation for p.
func (s *PositionService) Saved(p domain.Position) string {
	return s.format.Saved(p)
}
