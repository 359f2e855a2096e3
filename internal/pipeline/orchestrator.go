// Package pipeline sequences the prefetch and betting passes: discover
// events, fetch and normalize their markets, then match and execute bets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/ledger"
	"github.com/alanyoungcy/cricbot/internal/normalize"
	"github.com/alanyoungcy/cricbot/internal/sanction"
)

// LedgerView loads the point-in-time ledger used for matching.
type LedgerView interface {
	Snapshot(ctx context.Context) (*ledger.Index, error)
}

// Matcher selects sanctioned bets.
type Matcher interface {
	Match(ev domain.Event, markets []domain.Market, rules []domain.SanctionRule, committed sanction.Committed) ([]domain.SanctionedBet, []error)
}

// BetExecutor records one bet per call.
type BetExecutor interface {
	Execute(ctx context.Context, bet domain.SanctionedBet, dryRun bool) (domain.BetRecord, error)
}

// RuleLoader returns the current sanctioning policy.
type RuleLoader func() ([]domain.SanctionRule, error)

// Recorder receives pass metrics.
type Recorder interface {
	ObservePass(phase string, start time.Time, err error)
	EventFailed(phase, stage string)
	MarketNormalized(category string)
	Matched(n int)
}

// Options configures passes.
type Options struct {
	LeagueID        string
	BettingWindow   time.Duration
	FetchRetries    int
	RetryBackoff    time.Duration
	CallTimeout     time.Duration
	SanctionEnabled bool
	DryRun          bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Sessions  domain.SessionProvider
	Events    domain.EventSource
	Markets   domain.MarketSource
	Ledger    LedgerView
	Matcher   Matcher
	Executor  BetExecutor
	Rules     RuleLoader
	Schedule  *ScheduleCache
	Snapshots *SnapshotWriter
	Recorder  Recorder
}

// Orchestrator runs passes. It is not safe for concurrent passes; separate
// processes are serialized by the ledger lock.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.BettingWindow <= 0 {
		opts.BettingWindow = 3 * time.Hour
	}
	if opts.FetchRetries < 0 {
		opts.FetchRetries = 0
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.With(slog.String("component", "pipeline")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunPrefetch discovers events, refreshes the schedule cache and writes
// market snapshots. It never matches or executes. eventIDs, when given,
// replace discovery.
func (o *Orchestrator) RunPrefetch(ctx context.Context, eventIDs []string) (report PassReport, err error) {
	report = o.startReport(PhasePrefetch)
	defer func() { o.finish(&report, err) }()

	events, err := o.prefetchEvents(ctx, eventIDs)
	if err != nil {
		return report, err
	}
	o.logger.Info("prefetch started", slog.Int("events", len(events)))

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		er := EventReport{EventID: ev.ID, EventName: ev.Name}
		if _, ok, _ := o.loadMarkets(ctx, PhasePrefetch, ev, &er); ok {
			o.logger.Info("markets cached",
				slog.String("event_id", ev.ID),
				slog.Int("markets", er.Markets),
				slog.Any("categories", er.Categories),
			)
		}
		report.Events = append(report.Events, er)
	}
	return report, nil
}

// RunBettingPass matches fresh markets against the rules and executes the
// sanctioned bets. It aborts with domain.ErrAuthRequired when no session is
// available and with domain.ErrLedgerIO before any execution when the ledger
// cannot be read.
func (o *Orchestrator) RunBettingPass(ctx context.Context, eventIDs []string) (report PassReport, err error) {
	report = o.startReport(PhaseBetting)
	defer func() { o.finish(&report, err) }()

	if _, err := o.deps.Sessions.Token(ctx); err != nil {
		return report, fmt.Errorf("pipeline: betting pass: %w", toAuthErr(err))
	}

	var rules []domain.SanctionRule
	if o.opts.SanctionEnabled {
		rules, err = o.deps.Rules()
		if err != nil {
			return report, fmt.Errorf("pipeline: load rules: %w", err)
		}
	} else {
		o.logger.Warn("sanctioning disabled, bets will not be matched")
	}

	committed, err := o.deps.Ledger.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("pipeline: load ledger: %w", err)
	}

	events, err := o.bettingEvents(ctx, eventIDs)
	if err != nil {
		return report, err
	}
	o.logger.Info("betting pass started",
		slog.Int("events", len(events)),
		slog.Int("rules", len(rules)),
		slog.Int("ledger_blocked", committed.Len()),
		slog.Bool("dry_run", o.opts.DryRun),
	)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		er := EventReport{EventID: ev.ID, EventName: ev.Name}
		markets, ok, err := o.loadMarkets(ctx, PhaseBetting, ev, &er)
		if err != nil {
			report.Events = append(report.Events, er)
			return report, fmt.Errorf("pipeline: betting pass: %w", err)
		}
		if ok && len(rules) > 0 {
			if err := o.matchAndExecute(ctx, ev, markets, rules, committed, &er); err != nil {
				report.Events = append(report.Events, er)
				return report, err
			}
		}
		report.Events = append(report.Events, er)
	}
	return report, nil
}

func (o *Orchestrator) matchAndExecute(ctx context.Context, ev domain.Event, markets []domain.Market, rules []domain.SanctionRule, committed *ledger.Index, er *EventReport) error {
	bets, warnings := o.deps.Matcher.Match(ev, markets, rules, committed)
	for _, w := range warnings {
		o.logger.Warn("sanction rule skipped", slog.String("event_id", ev.ID), slog.String("error", w.Error()))
	}
	er.Matched = len(bets)
	if o.deps.Recorder != nil {
		o.deps.Recorder.Matched(len(bets))
	}

	for _, bet := range bets {
		rec, err := o.deps.Executor.Execute(ctx, bet, o.opts.DryRun)
		switch {
		case errors.Is(err, domain.ErrDuplicateBet):
			er.Duplicates++
			o.logger.Info("bet skipped, already recorded",
				slog.String("event_id", bet.EventID),
				slog.String("selection_id", bet.SelectionID),
			)
			continue
		case errors.Is(err, domain.ErrAuthRequired), errors.Is(err, domain.ErrLedgerIO):
			er.Errors = append(er.Errors, err.Error())
			o.countOutcome(rec, er)
			return fmt.Errorf("pipeline: execute %s/%s: %w", bet.EventID, bet.SelectionID, err)
		case err != nil:
			er.Errors = append(er.Errors, err.Error())
			o.logger.Error("bet execution failed",
				slog.String("event_id", bet.EventID),
				slog.String("selection_id", bet.SelectionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		committed.Add(rec)
		o.countOutcome(rec, er)
	}
	return nil
}

func (o *Orchestrator) countOutcome(rec domain.BetRecord, er *EventReport) {
	switch rec.Status {
	case domain.BetStatusPlaced:
		er.Placed++
	case domain.BetStatusFailed:
		er.Failed++
	case domain.BetStatusDryRun:
		er.DryRun++
	}
}

// loadMarkets fetches, normalizes and snapshots one event's markets. Failures
// are recorded on er and reported as !ok. A rejected session during a
// betting pass is returned as an error that aborts the pass; prefetch falls
// back to the market cache instead.
func (o *Orchestrator) loadMarkets(ctx context.Context, phase Phase, ev domain.Event, er *EventReport) ([]domain.Market, bool, error) {
	log := o.logger.With(slog.String("event_id", ev.ID), slog.String("phase", string(phase)))

	raw, err := o.fetchMarkets(ctx, ev.ID)
	if err != nil {
		log.Error("market fetch failed", slog.String("error", err.Error()))
		er.Errors = append(er.Errors, err.Error())
		o.eventFailed(phase, "fetch")
		if isAuthErr(err) && phase == PhaseBetting {
			return nil, false, toAuthErr(err)
		}
		if phase == PhasePrefetch {
			if markets, ok := o.cachedMarkets(ctx, ev.ID, er); ok {
				log.Warn("using cached markets", slog.Int("markets", len(markets)))
				return markets, true, nil
			}
		}
		return nil, false, nil
	}

	res, err := normalize.Normalize(raw)
	if err != nil {
		log.Error("market normalization failed", slog.String("error", err.Error()))
		er.Errors = append(er.Errors, err.Error())
		o.eventFailed(phase, "normalize")
		return nil, false, nil
	}
	for _, skipped := range res.Skipped {
		log.Warn("selection skipped", slog.String("error", skipped.Error()))
	}
	if er.EventName == "" {
		er.EventName = res.EventName
	}

	er.Markets = len(res.Markets)
	er.Skipped = len(res.Skipped)
	er.Categories = make(map[string]int)
	for cat, n := range normalize.Summary(res.Markets) {
		er.Categories[string(cat)] = n
	}
	if o.deps.Recorder != nil {
		for _, m := range res.Markets {
			o.deps.Recorder.MarketNormalized(string(m.Category))
		}
	}

	if o.deps.Snapshots != nil {
		if err := o.deps.Snapshots.Write(ctx, ev.ID, res.Markets, o.now()); err != nil {
			log.Warn("snapshot write failed", slog.String("error", err.Error()))
			er.Errors = append(er.Errors, err.Error())
		}
	}
	return res.Markets, true, nil
}

// cachedMarkets reads the last markets written to the market cache.
func (o *Orchestrator) cachedMarkets(ctx context.Context, eventID string, er *EventReport) ([]domain.Market, bool) {
	if o.deps.Snapshots == nil || o.deps.Snapshots.cache == nil {
		return nil, false
	}
	markets, err := o.deps.Snapshots.cache.GetMarkets(ctx, eventID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("market cache read failed",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}
	er.Markets = len(markets)
	er.Categories = make(map[string]int)
	for cat, n := range normalize.Summary(markets) {
		er.Categories[string(cat)] = n
	}
	return markets, true
}

// fetchMarkets retries transient failures with linear backoff. Each attempt
// has its own deadline.
func (o *Orchestrator) fetchMarkets(ctx context.Context, eventID string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= o.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * o.opts.RetryBackoff):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		raw, err := o.deps.Markets.GetMarkets(callCtx, eventID)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if isAuthErr(err) {
			break
		}
		o.logger.Warn("market fetch attempt failed",
			slog.String("event_id", eventID),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return nil, fmt.Errorf("pipeline: fetch markets %s: %w", eventID, lastErr)
}

func (o *Orchestrator) discover(ctx context.Context) ([]domain.Event, error) {
	var lastErr error
	for attempt := 0; attempt <= o.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * o.opts.RetryBackoff):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		events, err := o.deps.Events.ListUpcomingEvents(callCtx, o.opts.LeagueID)
		cancel()
		if err == nil {
			return events, nil
		}
		lastErr = err
		if isAuthErr(err) {
			return nil, toAuthErr(err)
		}
	}
	return nil, fmt.Errorf("pipeline: discover events: %w", lastErr)
}

func (o *Orchestrator) prefetchEvents(ctx context.Context, eventIDs []string) ([]domain.Event, error) {
	cached, hasCache, cacheErr := o.deps.Schedule.Load()
	if cacheErr != nil {
		o.logger.Warn("schedule cache unreadable", slog.String("error", cacheErr.Error()))
		hasCache = false
	}
	if len(eventIDs) > 0 {
		return overrideEvents(eventIDs, cached), nil
	}

	events, err := o.discover(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrAuthRequired) && hasCache {
			o.logger.Warn("discovery needs authentication, using cached schedule",
				slog.Int("events", len(cached)),
			)
			return cached, nil
		}
		return nil, err
	}
	if err := o.deps.Schedule.Save(events); err != nil {
		o.logger.Warn("schedule cache not written", slog.String("error", err.Error()))
	}
	return events, nil
}

// bettingEvents picks overrides, else the cached schedule, else live
// discovery, keeping only events inside the betting window.
func (o *Orchestrator) bettingEvents(ctx context.Context, eventIDs []string) ([]domain.Event, error) {
	cached, hasCache, cacheErr := o.deps.Schedule.Load()
	if cacheErr != nil {
		o.logger.Warn("schedule cache unreadable", slog.String("error", cacheErr.Error()))
		hasCache = false
	}
	if len(eventIDs) > 0 {
		return overrideEvents(eventIDs, cached), nil
	}

	source := cached
	if !hasCache {
		events, err := o.discover(ctx)
		if err != nil {
			return nil, err
		}
		source = events
	}

	now := o.now()
	var out []domain.Event
	for _, ev := range source {
		if ev.InBettingWindow(now, o.opts.BettingWindow) {
			out = append(out, ev)
		}
	}
	if len(out) == 0 {
		o.logger.Info("no events inside the betting window",
			slog.Int("scheduled", len(source)),
			slog.Duration("window", o.opts.BettingWindow),
		)
	}
	return out, nil
}

// overrideEvents builds events for explicit ids, borrowing details from the
// cached schedule when present.
func overrideEvents(ids []string, cached []domain.Event) []domain.Event {
	byID := make(map[string]domain.Event, len(cached))
	for _, ev := range cached {
		byID[ev.ID] = ev
	}
	out := make([]domain.Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := byID[id]; ok {
			out = append(out, ev)
			continue
		}
		out = append(out, domain.Event{ID: id, Status: domain.EventStatusUnknown})
	}
	return out
}

func (o *Orchestrator) startReport(phase Phase) PassReport {
	return PassReport{Phase: phase, DryRun: o.opts.DryRun, StartedAt: o.now()}
}

func (o *Orchestrator) finish(report *PassReport, err error) {
	report.FinishedAt = o.now()
	if report.Events == nil {
		report.Events = []EventReport{}
	}
	if o.deps.Recorder != nil {
		o.deps.Recorder.ObservePass(string(report.Phase), report.StartedAt, err)
	}
	t := report.Totals()
	attrs := []any{
		slog.String("phase", string(report.Phase)),
		slog.Bool("dry_run", report.DryRun),
		slog.Int("events", len(report.Events)),
		slog.Int("markets", t.Markets),
		slog.Int("matched", t.Matched),
		slog.Int("placed", t.Placed),
		slog.Int("failed", t.Failed),
		slog.Int("dry_run_bets", t.DryRun),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if err != nil {
		report.Error = err.Error()
		o.logger.Error("pass aborted", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	o.logger.Info("pass complete", attrs...)
}

func (o *Orchestrator) eventFailed(phase Phase, stage string) {
	if o.deps.Recorder != nil {
		o.deps.Recorder.EventFailed(string(phase), stage)
	}
}

func isAuthErr(err error) bool {
	return errors.Is(err, domain.ErrAuthRequired) || errors.Is(err, domain.ErrUnauthorized)
}

func toAuthErr(err error) error {
	if errors.Is(err, domain.ErrAuthRequired) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrAuthRequired, err)
}
