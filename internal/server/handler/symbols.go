package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// SymbolHandler serves ticker lookup.
type SymbolHandler struct {
	symbols domain.SymbolSearcher
	logger  *slog.Logger
}

// NewSymbolHandler creates a SymbolHandler.
func NewSymbolHandler(symbols domain.SymbolSearcher, logger *slog.Logger) *SymbolHandler {
	return &SymbolHandler{symbols: symbols, logger: logHandler(logger, "symbols")}
}

// SearchSymbols returns instruments whose ticker or name matches q. An empty
// q yields an empty list.
// GET /api/symbols/search?q=apple&limit=5
func (h *SymbolHandler) SearchSymbols(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusOK, map[string]any{"items": []domain.Asset{}})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := h.symbols.SearchSymbols(r.Context(), q, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "symbol search failed")
		return
	}
	if items == nil {
		items = []domain.Asset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
