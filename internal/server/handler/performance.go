package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/history"
)

// PerformanceReader reports performance over the settled-bet log.
type PerformanceReader interface {
	Performance(ctx context.Context) (history.Report, error)
}

// PerformanceHandler serves betting performance.
type PerformanceHandler struct {
	tracker PerformanceReader
	logger  *slog.Logger
}

// NewPerformanceHandler creates a PerformanceHandler.
func NewPerformanceHandler(tracker PerformanceReader, logger *slog.Logger) *PerformanceHandler {
	return &PerformanceHandler{tracker: tracker, logger: logger.With(slog.String("handler", "performance"))}
}

// Performance returns won/lost/pending counts, P&L, ROI and the per-market
// breakdown. Stale is true when the platform could not be reached.
// GET /api/performance
func (h *PerformanceHandler) Performance(w http.ResponseWriter, r *http.Request) {
	rep, err := h.tracker.Performance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "performance failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "bet history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, performanceJSON(rep.Performance, len(rep.Bets)))
}

func performanceJSON(p domain.Performance, stored int) map[string]any {
	markets := make(map[string]any, len(p.ByMarket))
	for name, m := range p.ByMarket {
		markets[name] = map[string]any{
			"bets":        m.Bets,
			"won":         m.Won,
			"stake":       m.Stake.StringFixed(2),
			"profit_loss": m.ProfitLoss.StringFixed(2),
		}
	}
	out := map[string]any{
		"total_bets":   p.TotalBets,
		"won":          p.Won,
		"lost":         p.Lost,
		"pending":      p.Pending,
		"total_stake":  p.TotalStake.StringFixed(2),
		"profit_loss":  p.ProfitLoss.StringFixed(2),
		"win_rate":     p.WinRate.StringFixed(2),
		"roi":          p.ROI.StringFixed(2),
		"by_market":    markets,
		"bets_stored":  stored,
		"refreshed_at": p.RefreshedAt,
		"stale":        p.Stale,
	}
	if p.Error != "" {
		out["error"] = p.Error
	}
	return out
}
