package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

const (
	msgWelcome   = "Welcome! Use /add to add an investment, /status to view all, /search <name> to look up a ticker."
	msgSearchUse = "Usage: /search <company name or ticker>"
	msgCancelled = "Setup cancelled."
	msgUnknown   = "Unknown command. Use /add to add an investment or /status to view all."
)

// PositionService is what the router needs from the position service.
type PositionService interface {
	Create(ctx context.Context, req domain.CreatePositionRequest) (domain.Position, error)
	StatusReport(ctx context.Context, ownerChat string) (string, error)
	Saved(p domain.Position) string
}

// Router turns one incoming chat message into one reply.
type Router struct {
	forms     domain.FormStore
	positions PositionService
	symbols   domain.SymbolSearcher
	formTTL   time.Duration
	currency  string
	logger    *slog.Logger
}

// NewRouter creates a Router. Forms left idle for formTTL are dropped. A nil
// symbols disables /search.
func NewRouter(forms domain.FormStore, positions PositionService, symbols domain.SymbolSearcher, formTTL time.Duration, currency string, logger *slog.Logger) *Router {
	if formTTL <= 0 {
		formTTL = 30 * time.Minute
	}
	return &Router{
		forms:     forms,
		positions: positions,
		symbols:   symbols,
		formTTL:   formTTL,
		currency:  currency,
		logger:    logger.With(slog.String("component", "bot_router")),
	}
}

// Handle processes text sent by chatID and returns the reply.
func (r *Router) Handle(ctx context.Context, chatID, text string) string {
	text = strings.TrimSpace(text)
	if cmd, ok := command(text); ok {
		switch cmd {
		case "start", "help":
			return msgWelcome
		case "add":
			return r.startForm(ctx, chatID)
		case "cancel":
			if err := r.forms.Delete(ctx, chatID); err != nil {
				r.logger.WarnContext(ctx, "delete form failed",
					slog.String("chat", chatID),
					slog.String("error", err.Error()),
				)
			}
			return msgCancelled
		case "status":
			return r.status(ctx, chatID)
		case "search":
			return r.search(ctx, commandArgs(text))
		default:
			return msgUnknown
		}
	}
	return r.continueForm(ctx, chatID, text)
}

func (r *Router) startForm(ctx context.Context, chatID string) string {
	f := NewForm(chatID)
	if err := r.save(ctx, chatID, f); err != nil {
		return "Sorry, could not start the form. Please try again."
	}
	return f.Prompt(r.currency)
}

func (r *Router) continueForm(ctx context.Context, chatID, text string) string {
	f, err := r.load(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return msgUnknown
	}
	if err != nil {
		return "Sorry, something went wrong. Please try again."
	}

	if err := f.Advance(text); err != nil {
		return fmt.Sprintf("%s\n%s", userError(err), f.Prompt(r.currency))
	}
	if !f.Done() {
		if err := r.save(ctx, chatID, f); err != nil {
			return "Sorry, could not save your answer. Please try again."
		}
		return f.Prompt(r.currency)
	}

	// The form is consumed whether or not creation succeeds.
	if err := r.forms.Delete(ctx, chatID); err != nil {
		r.logger.WarnContext(ctx, "delete form failed",
			slog.String("chat", chatID),
			slog.String("error", err.Error()),
		)
	}
	pos, err := r.positions.Create(ctx, f.Request)
	if err != nil {
		r.logger.WarnContext(ctx, "create position failed",
			slog.String("chat", chatID),
			slog.String("symbol", f.Request.Symbol),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return fmt.Sprintf("Not saved: %s\nUse /add to start again.", userError(err))
		case errors.Is(err, domain.ErrNoPrice), errors.Is(err, domain.ErrUnsupportedMarket):
			return fmt.Sprintf("Not saved: no price found for %s (%s). Use /add to start again.", f.Request.Symbol, f.Request.MarketKind)
		}
		return "Not saved: price source unavailable right now. Use /add to try again later."
	}
	return r.positions.Saved(pos)
}

func (r *Router) status(ctx context.Context, chatID string) string {
	text, err := r.positions.StatusReport(ctx, chatID)
	if err != nil {
		r.logger.ErrorContext(ctx, "status report failed",
			slog.String("chat", chatID),
			slog.String("error", err.Error()),
		)
		return "Sorry, could not load your positions."
	}
	return text
}

// search answers /search without touching an open form, so it can be used
// in the middle of /add to find the symbol.
func (r *Router) search(ctx context.Context, query string) string {
	if query == "" {
		return msgSearchUse
	}
	if r.symbols == nil {
		return "Symbol search is not available."
	}
	assets, err := r.symbols.SearchSymbols(ctx, query, 5)
	if err != nil {
		r.logger.WarnContext(ctx, "symbol search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return "⚠️ Could not search symbols right now."
	}
	if len(assets) == 0 {
		return fmt.Sprintf("🔍 No results found for '%s'.", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 Results for '%s'", query)
	for _, a := range assets {
		fmt.Fprintf(&sb, "\n- %s: %s", a.Symbol, a.Name)
		if a.Exchange != "" {
			fmt.Fprintf(&sb, " (%s)", a.Exchange)
		}
	}
	return sb.String()
}

func (r *Router) load(ctx context.Context, chatID string) (*Form, error) {
	data, err := r.forms.Load(ctx, chatID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.ErrorContext(ctx, "load form failed",
				slog.String("chat", chatID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	var f Form
	if err := json.Unmarshal(data, &f); err != nil {
		r.logger.WarnContext(ctx, "discarding unreadable form",
			slog.String("chat", chatID),
			slog.String("error", err.Error()),
		)
		_ = r.forms.Delete(ctx, chatID)
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (r *Router) save(ctx context.Context, chatID string, f *Form) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("bot: marshal form: %w", err)
	}
	if err := r.forms.Save(ctx, chatID, data, r.formTTL); err != nil {
		r.logger.ErrorContext(ctx, "save form failed",
			slog.String("chat", chatID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// command extracts "add" from "/add" or "/add@SomeBot args".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := strings.Fields(text)[0][1:]
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), true
}

// commandArgs returns the text after the command word.
func commandArgs(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

// userError strips the sentinel prefix from validation errors.
func userError(err error) string {
	msg := err.Error()
	prefix := domain.ErrInvalidInput.Error() + ": "
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		msg = msg[i+len(prefix):]
	}
	return msg
}
