package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// LedgerReader is the read side of the bet ledger.
type LedgerReader interface {
	Summary(ctx context.Context, now time.Time) (domain.LedgerSummary, error)
	History(ctx context.Context, limit int) ([]domain.BetRecord, error)
}

// LedgerHandler serves ledger summary and history.
type LedgerHandler struct {
	ledger LedgerReader
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledger LedgerReader, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger.With(slog.String("handler", "ledger"))}
}

// Summary returns totals across the ledger.
// GET /api/ledger/summary
func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.ledger.Summary(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ledger summary failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_bets":       sum.TotalBets,
		"total_stake":      sum.TotalStake.StringFixed(2),
		"potential_return": sum.PotentialReturn.StringFixed(2),
		"status_counts":    sum.StatusCounts,
		"recent_bets_24h":  sum.RecentCount,
		"recent_stake_24h": sum.RecentStake.StringFixed(2),
	})
}

// History returns the most recent ledger records, newest first.
// GET /api/ledger/history?limit=N
func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	recs, err := h.ledger.History(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ledger history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	if recs == nil {
		recs = []domain.BetRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bets":  recs,
		"count": len(recs),
	})
}
