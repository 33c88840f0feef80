package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/barrierbot/internal/domain"
	"github.com/alanyoungcy/barrierbot/internal/service"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Create(ctx context.Context, req domain.CreatePositionRequest) (domain.Position, error)
	Get(ctx context.Context, id string) (domain.Position, error)
	ListByOwner(ctx context.Context, ownerChat string, opts domain.ListOpts) ([]domain.Position, error)
	Events(ctx context.Context, id string, opts domain.ListOpts) ([]domain.PositionEvent, error)
	Levels(ctx context.Context, id string) (service.LevelsView, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

type listEventsResponse struct {
	Events []domain.PositionEvent `json:"events"`
}

// ListPositions returns the positions of one owner chat.
// GET /api/positions?owner=12345
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	positions, err := h.positions.ListByOwner(r.Context(), owner, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one position.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to load position")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// GetLevels returns the current barrier levels and live price of a position.
// GET /api/positions/{id}/levels
func (h *PositionHandler) GetLevels(w http.ResponseWriter, r *http.Request) {
	view, err := h.positions.Levels(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to compute levels")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListEvents returns the event history of a position.
// GET /api/positions/{id}/events
func (h *PositionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.positions.Events(r.Context(), r.PathValue("id"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.PositionEvent{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}

// CreatePosition captures the entrance price and stores a new position.
// POST /api/positions
func (h *PositionHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePositionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	pos, err := h.positions.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to create position")
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}
