package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// Options configures a Tracker.
type Options struct {
	Hours int
	// MinInterval is how long Performance reuses the last refresh.
	MinInterval time.Duration
}

// Tracker pulls the platform's bet page into the Store and reports
// performance over the merged log. When the platform is unreachable it falls
// back to the stored log and marks the result stale.
type Tracker struct {
	source domain.BetHistorySource
	store  *Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *Report
}

// Report is one refresh result.
type Report struct {
	Performance domain.Performance  `json:"performance"`
	Bets        []domain.SettledBet `json:"bets"`
}

// NewTracker creates a Tracker. source may be nil, in which case every
// refresh reads the stored log only.
func NewTracker(source domain.BetHistorySource, store *Store, opts Options, logger *slog.Logger) *Tracker {
	if opts.Hours <= 0 {
		opts.Hours = 24
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 5 * time.Minute
	}
	return &Tracker{
		source: source,
		store:  store,
		opts:   opts,
		logger: logger.With(slog.String("component", "history")),
		now:    time.Now,
	}
}

// Refresh fetches recent bets, merges them and recomputes performance. It
// fails only when the stored log cannot be read.
func (t *Tracker) Refresh(ctx context.Context) (Report, error) {
	bets, fetchErr := t.fetchAndMerge(ctx)
	if fetchErr != nil {
		if errors.Is(fetchErr, context.Canceled) {
			return Report{}, fetchErr
		}
		t.logger.WarnContext(ctx, "bet history fetch failed; using stored log",
			slog.String("error", fetchErr.Error()),
		)
		var err error
		if bets, err = t.store.Load(ctx); err != nil {
			return Report{}, err
		}
	}

	rep := Report{Performance: Compute(bets, t.now()), Bets: bets}
	if fetchErr != nil {
		rep.Performance.Stale = true
		rep.Performance.Error = fetchErr.Error()
	}

	t.mu.Lock()
	t.last = &rep
	t.mu.Unlock()
	return rep, nil
}

// Performance returns the last report when it is younger than MinInterval
// and refreshes otherwise.
func (t *Tracker) Performance(ctx context.Context) (Report, error) {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()
	if last != nil && t.now().Sub(last.Performance.RefreshedAt) < t.opts.MinInterval {
		return *last, nil
	}
	return t.Refresh(ctx)
}

func (t *Tracker) fetchAndMerge(ctx context.Context) ([]domain.SettledBet, error) {
	if t.source == nil {
		return nil, errors.New("history: no bet history source")
	}
	fetched, err := t.source.ListSettledBets(ctx, t.opts.Hours)
	if err != nil {
		return nil, err
	}
	merged, changed, err := t.store.Merge(ctx, fetched)
	if err != nil {
		return nil, err
	}
	t.logger.InfoContext(ctx, "bet history refreshed",
		slog.Int("fetched", len(fetched)),
		slog.Int("changed", changed),
		slog.Int("stored", len(merged)),
	)
	return merged, nil
}
