package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// QuoteService resolves live quotes.
type QuoteService interface {
	Quote(ctx context.Context, symbol string, kind domain.MarketKind) (domain.Quote, error)
}

// QuoteHandler serves the quote endpoint.
type QuoteHandler struct {
	quotes QuoteService
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes QuoteService, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, logger: logHandler(logger, "quote")}
}

// GetQuote returns the current price of a symbol.
// GET /api/quote?symbol=AAPL&market=stock
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := strings.TrimSpace(q.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}
	market := q.Get("market")
	if market == "" {
		market = string(domain.MarketStock)
	}
	kind, err := domain.ParseMarketKind(market)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.quotes.Quote(r.Context(), symbol, kind)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to fetch quote")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
