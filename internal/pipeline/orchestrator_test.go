package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/executor"
	"github.com/alanyoungcy/cricbot/internal/ledger"
	"github.com/alanyoungcy/cricbot/internal/sanction"
)

func discard() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

type sessions struct{ err error }

func (s sessions) Token(context.Context) (domain.Session, error) {
	if s.err != nil {
		return domain.Session{}, s.err
	}
	return domain.Session{Token: "tok", PlayerID: "p1"}, nil
}

type eventSource struct {
	events []domain.Event
	err    error
	calls  int
}

func (e *eventSource) ListUpcomingEvents(context.Context, string) ([]domain.Event, error) {
	e.calls++
	return e.events, e.err
}

type marketSource struct {
	payloads map[string]string
	failing  map[string]error
	calls    map[string]int
}

func (m *marketSource) GetMarkets(_ context.Context, eventID string) ([]byte, error) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[eventID]++
	if err, ok := m.failing[eventID]; ok {
		return nil, err
	}
	p, ok := m.payloads[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: no payload", domain.ErrFetch)
	}
	return []byte(p), nil
}

type countingExecutor struct {
	calls int
	err   error
	bets  []domain.SanctionedBet
}

func (c *countingExecutor) Execute(_ context.Context, bet domain.SanctionedBet, dryRun bool) (domain.BetRecord, error) {
	c.calls++
	c.bets = append(c.bets, bet)
	if c.err != nil {
		return domain.BetRecord{}, c.err
	}
	status := domain.BetStatusPlaced
	if dryRun {
		status = domain.BetStatusDryRun
	}
	return domain.BetRecord{ID: fmt.Sprint(c.calls), Bet: bet, Status: status}, nil
}

type brokenLedger struct{}

func (brokenLedger) Snapshot(context.Context) (*ledger.Index, error) {
	return nil, fmt.Errorf("ledger: read: %w", domain.ErrLedgerIO)
}

func winnerPayload(eventID, miOdds string) string {
	return fmt.Sprintf(`{"data":{"lazyEvent":{"sportEvent":{
		"id": %q, "name": "MI vs CSK",
		"expandedMarkets": [{
			"id": "mkt-1", "name": "Match Winner",
			"marketLines": [{
				"id": "line-1", "name": "Match Winner", "isSuspended": false,
				"marketLineStatus": "MARKET_LINE_STATUS_ACTIVE",
				"selections": [
					{"id": "sel-mi", "name": "Mumbai Indians", "odds": %q, "isActive": true},
					{"id": "sel-csk", "name": "Chennai Super Kings", "odds": "2.10", "isActive": true}
				]
			}]
		}]
	}}}}`, eventID, miOdds)
}

func mumbaiRules() ([]domain.SanctionRule, error) {
	return []domain.SanctionRule{{
		MarketType:           "Match Winner",
		SelectionNamePattern: "Mumbai Indians",
		MinOdds:              decimal.RequireFromString("1.50"),
		MaxOdds:              decimal.RequireFromString("2.00"),
		Stake:                decimal.NewFromInt(100),
	}}, nil
}

type harness struct {
	dir      string
	events   *eventSource
	markets  *marketSource
	exec     *countingExecutor
	ledger   *ledger.FileLedger
	schedule *ScheduleCache
	deps     Deps
	opts     Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:      dir,
		events:   &eventSource{},
		markets:  &marketSource{payloads: map[string]string{}},
		exec:     &countingExecutor{},
		ledger:   ledger.New(ledger.Options{Path: filepath.Join(dir, "bets.json")}, discard()),
		schedule: NewScheduleCache(filepath.Join(dir, "cache", "schedule.json")),
	}
	h.deps = Deps{
		Sessions:  sessions{},
		Events:    h.events,
		Markets:   h.markets,
		Ledger:    h.ledger,
		Matcher:   sanction.NewMatcher(),
		Executor:  h.exec,
		Rules:     mumbaiRules,
		Schedule:  h.schedule,
		Snapshots: NewSnapshotWriter(filepath.Join(dir, "snapshots"), nil, nil, discard()),
	}
	h.opts = Options{
		LeagueID:        "ipl",
		BettingWindow:   3 * time.Hour,
		FetchRetries:    2,
		RetryBackoff:    time.Millisecond,
		CallTimeout:     time.Second,
		SanctionEnabled: true,
	}
	return h
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(h.deps, h.opts, discard())
}

func TestRunPrefetch_CachesScheduleAndSnapshots(t *testing.T) {
	h := newHarness(t)
	start := time.Now().UTC().Add(2 * time.Hour)
	h.events.events = []domain.Event{{ID: "ev-1", Name: "MI vs CSK", StartTime: start, Status: domain.EventStatusUpcoming}}
	h.markets.payloads["ev-1"] = winnerPayload("ev-1", "1.85")

	report, err := h.orchestrator().RunPrefetch(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, PhasePrefetch, report.Phase)
	require.Len(t, report.Events, 1)
	assert.Equal(t, 1, report.Events[0].Markets)
	assert.Equal(t, 0, report.Events[0].Matched)
	assert.Equal(t, 0, h.exec.calls, "prefetch never executes")

	cached, ok, err := h.schedule.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, "ev-1", cached[0].ID)

	_, err = os.Stat(filepath.Join(h.dir, "snapshots", "markets_ev-1.json"))
	assert.NoError(t, err)
}

func TestRunPrefetch_AuthFallsBackToCachedSchedule(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.schedule.Save([]domain.Event{{ID: "ev-cached", Name: "RR vs DC"}}))
	h.events.err = domain.ErrAuthRequired
	h.markets.payloads["ev-cached"] = winnerPayload("ev-cached", "1.85")

	report, err := h.orchestrator().RunPrefetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, report.Events, 1)
	assert.Equal(t, "ev-cached", report.Events[0].EventID)
	assert.Equal(t, 1, h.events.calls, "auth failures are not retried")
}

func TestRunPrefetch_AuthWithoutCacheFails(t *testing.T) {
	h := newHarness(t)
	h.events.err = domain.ErrUnauthorized

	_, err := h.orchestrator().RunPrefetch(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestRunBettingPass_RequiresSession(t *testing.T) {
	h := newHarness(t)
	h.deps.Sessions = sessions{err: domain.ErrAuthRequired}

	report, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-1"})
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.NotEmpty(t, report.Error)
	assert.Empty(t, h.markets.calls)
	assert.Equal(t, 0, h.exec.calls)
}

func TestRunBettingPass_LedgerFailureAbortsBeforeExecution(t *testing.T) {
	h := newHarness(t)
	h.deps.Ledger = brokenLedger{}
	h.markets.payloads["ev-1"] = winnerPayload("ev-1", "1.85")

	_, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-1"})
	assert.ErrorIs(t, err, domain.ErrLedgerIO)
	assert.Equal(t, 0, h.exec.calls)
	assert.Empty(t, h.markets.calls)
}

func TestRunBettingPass_IsolatesFailingEvent(t *testing.T) {
	h := newHarness(t)
	h.markets.failing = map[string]error{"ev-bad": fmt.Errorf("%w: timeout", domain.ErrFetch)}
	h.markets.payloads["ev-good"] = winnerPayload("ev-good", "1.85")

	report, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-bad", "ev-good"})
	require.NoError(t, err)
	require.Len(t, report.Events, 2)

	assert.True(t, report.Events[0].HasErrors())
	assert.Equal(t, 3, h.markets.calls["ev-bad"], "one attempt plus two retries")

	assert.False(t, report.Events[1].HasErrors())
	assert.Equal(t, 1, report.Events[1].Matched)
	assert.Equal(t, 1, report.Events[1].Placed)
	require.Len(t, h.exec.bets, 1)
	assert.Equal(t, "sel-mi", h.exec.bets[0].SelectionID)
}

func TestRunBettingPass_MalformedPayloadIsolated(t *testing.T) {
	h := newHarness(t)
	h.markets.payloads["ev-bad"] = `{"data": {}}`
	h.markets.payloads["ev-good"] = winnerPayload("ev-good", "1.85")

	report, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-bad", "ev-good"})
	require.NoError(t, err)
	assert.True(t, report.Events[0].HasErrors())
	assert.Equal(t, 1, h.exec.calls)
}

func TestRunBettingPass_BettingWindowFromSchedule(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()
	require.NoError(t, h.schedule.Save([]domain.Event{
		{ID: "ev-live", StartTime: now.Add(-time.Hour)},
		{ID: "ev-later", StartTime: now.Add(5 * time.Hour)},
		{ID: "ev-over", StartTime: now.Add(-4 * time.Hour)},
	}))
	h.markets.payloads["ev-live"] = winnerPayload("ev-live", "1.85")

	report, err := h.orchestrator().RunBettingPass(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, report.Events, 1)
	assert.Equal(t, "ev-live", report.Events[0].EventID)
	assert.Equal(t, 0, h.events.calls, "cached schedule replaces discovery")
}

func TestRunBettingPass_SanctioningDisabled(t *testing.T) {
	h := newHarness(t)
	h.opts.SanctionEnabled = false
	h.markets.payloads["ev-1"] = winnerPayload("ev-1", "1.85")

	report, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Events[0].Markets)
	assert.Equal(t, 0, h.exec.calls)
}

func TestRunBettingPass_DuplicateFromExecutorIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.exec.err = fmt.Errorf("executor: reserve: %w", domain.ErrDuplicateBet)
	h.markets.payloads["ev-1"] = winnerPayload("ev-1", "1.85")

	report, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Events[0].Duplicates)
	assert.False(t, report.Events[0].HasErrors())
}

func TestRunBettingPass_LedgerFailureDuringExecutionAborts(t *testing.T) {
	h := newHarness(t)
	h.exec.err = fmt.Errorf("executor: reserve: %w", domain.ErrLedgerIO)
	h.markets.payloads["ev-1"] = winnerPayload("ev-1", "1.85")
	h.markets.payloads["ev-2"] = winnerPayload("ev-2", "1.85")

	report, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-1", "ev-2"})
	assert.ErrorIs(t, err, domain.ErrLedgerIO)
	assert.Len(t, report.Events, 1)
	assert.Equal(t, 1, h.exec.calls)
}

type recordingPlacer struct{ calls int }

func (p *recordingPlacer) Submit(context.Context, domain.Session, []byte) (domain.PlacementResult, error) {
	p.calls++
	return domain.PlacementResult{BetID: fmt.Sprintf("bet-%d", p.calls)}, nil
}

// Repeated passes over the same event never record a second non-failed bet.
func TestRunBettingPass_NoDoubleBetAcrossPasses(t *testing.T) {
	for _, dryRun := range []bool{false, true} {
		t.Run(fmt.Sprintf("dry_run=%v", dryRun), func(t *testing.T) {
			h := newHarness(t)
			placer := &recordingPlacer{}
			h.deps.Executor = executor.New(h.ledger, placer, sessions{}, executor.Options{OddsMaxAge: time.Minute}, discard())
			h.opts.DryRun = dryRun
			h.markets.payloads["ev-1"] = winnerPayload("ev-1", "1.85")

			for i := 0; i < 3; i++ {
				_, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-1"})
				require.NoError(t, err)
			}

			recs, err := h.ledger.Load(context.Background())
			require.NoError(t, err)
			require.Len(t, recs, 1)
			if dryRun {
				assert.Equal(t, domain.BetStatusDryRun, recs[0].Status)
				assert.Equal(t, 0, placer.calls)
			} else {
				assert.Equal(t, domain.BetStatusPlaced, recs[0].Status)
				assert.Equal(t, 1, placer.calls)
			}
		})
	}
}

func TestOverrideEventsBorrowCachedDetails(t *testing.T) {
	got := overrideEvents([]string{"a", "b"}, []domain.Event{{ID: "b", Name: "known"}})
	require.Len(t, got, 2)
	assert.Equal(t, domain.EventStatusUnknown, got[0].Status)
	assert.Equal(t, "known", got[1].Name)
}

func TestPassReportTotals(t *testing.T) {
	r := PassReport{Events: []EventReport{
		{Markets: 2, Matched: 1, Placed: 1},
		{Markets: 3, Failed: 1, Errors: []string{"x"}},
	}}
	tot := r.Totals()
	assert.Equal(t, 5, tot.Markets)
	assert.Equal(t, 1, tot.Placed)
	assert.Equal(t, 1, tot.Failed)
	assert.Len(t, tot.Errors, 1)
}

func TestRunBettingPass_ExpiredSessionMidPassAborts(t *testing.T) {
	h := newHarness(t)
	h.markets.failing = map[string]error{"ev-1": fmt.Errorf("tencric: %w: token expired", domain.ErrUnauthorized)}
	h.markets.payloads["ev-2"] = winnerPayload("ev-2", "1.85")

	report, err := h.orchestrator().RunBettingPass(context.Background(), []string{"ev-1", "ev-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.Equal(t, 1, h.markets.calls["ev-1"], "auth failures are not retried")
	assert.Zero(t, h.markets.calls["ev-2"], "remaining events are not fetched")
	require.Len(t, report.Events, 1)
	assert.True(t, report.Events[0].HasErrors())
	assert.NotEmpty(t, report.Error)
	assert.Zero(t, h.exec.calls)
}

type memoryCache struct {
	markets map[string][]domain.Market
	reads   int
}

func (c *memoryCache) SetMarkets(_ context.Context, eventID string, markets []domain.Market) error {
	if c.markets == nil {
		c.markets = make(map[string][]domain.Market)
	}
	c.markets[eventID] = markets
	return nil
}

func (c *memoryCache) GetMarkets(_ context.Context, eventID string) ([]domain.Market, error) {
	c.reads++
	m, ok := c.markets[eventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func TestRunPrefetch_FetchFailureUsesMarketCache(t *testing.T) {
	h := newHarness(t)
	cache := &memoryCache{}
	h.deps.Snapshots = NewSnapshotWriter(filepath.Join(h.dir, "snapshots"), cache, nil, discard())
	h.markets.payloads["ev-1"] = winnerPayload("ev-1", "1.85")

	_, err := h.orchestrator().RunPrefetch(context.Background(), []string{"ev-1"})
	require.NoError(t, err)
	require.Len(t, cache.markets["ev-1"], 1)

	delete(h.markets.payloads, "ev-1")
	h.markets.failing = map[string]error{
		"ev-1": fmt.Errorf("%w: login required", domain.ErrAuthRequired),
		"ev-2": fmt.Errorf("%w: timeout", domain.ErrFetch),
	}
	report, err := h.orchestrator().RunPrefetch(context.Background(), []string{"ev-1", "ev-2"})
	require.NoError(t, err)
	require.Len(t, report.Events, 2)

	assert.Equal(t, 1, report.Events[0].Markets, "served from the cache")
	assert.True(t, report.Events[0].HasErrors())
	assert.Zero(t, report.Events[1].Markets, "nothing cached for ev-2")
	assert.Equal(t, 2, cache.reads)
}
