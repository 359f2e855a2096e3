package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/notify"
	"github.com/alanyoungcy/cricbot/internal/pipeline"
	"github.com/alanyoungcy/cricbot/internal/scheduler"
	"github.com/alanyoungcy/cricbot/internal/server"
	"github.com/alanyoungcy/cricbot/internal/server/handler"
)

const (
	historyLimit    = 50
	recentPassLimit = 20
	serverRateLimit = 5
	shutdownTimeout = 10 * time.Second
)

// PrefetchMode runs one prefetch pass: discover events, refresh the schedule
// cache and write market snapshots.
func (a *App) PrefetchMode(ctx context.Context, deps *Dependencies) error {
	_, err := a.runPass(ctx, deps, pipeline.PhasePrefetch, nil)
	return err
}

// BetMode runs one betting pass over the events inside the betting window.
func (a *App) BetMode(ctx context.Context, deps *Dependencies) error {
	_, err := a.runPass(ctx, deps, pipeline.PhaseBetting, nil)
	return err
}

// HistoryMode prints the ledger summary, the most recent records and the
// settled-bet performance as JSON.
func (a *App) HistoryMode(ctx context.Context, deps *Dependencies) error {
	summary, err := deps.Ledger.Summary(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("app: ledger summary: %w", err)
	}
	records, err := deps.Ledger.History(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("app: ledger history: %w", err)
	}
	if records == nil {
		records = []domain.BetRecord{}
	}
	perf, err := deps.Tracker.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("app: bet history: %w", err)
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"ledger":      deps.Ledger.Path(),
		"summary":     summary,
		"records":     records,
		"performance": perf.Performance,
	})
}

// ScheduleMode runs the prefetch and betting passes on their cron schedules
// until ctx is cancelled. When enabled, the status server runs alongside and
// can trigger passes on demand.
func (a *App) ScheduleMode(ctx context.Context, deps *Dependencies) error {
	loc, err := time.LoadLocation(a.cfg.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("app: schedule timezone: %w", err)
	}

	reports := pipeline.NewReportLog(recentPassLimit)
	runner := scheduler.New(loc, a.logger)
	jobs := []struct {
		phase pipeline.Phase
		spec  string
	}{
		{pipeline.PhasePrefetch, a.cfg.Schedule.PrefetchCron},
		{pipeline.PhaseBetting, a.cfg.Schedule.BettingCron},
	}
	for _, j := range jobs {
		phase := j.phase
		job := func(ctx context.Context) error {
			_, err := a.runPass(ctx, deps, phase, reports)
			return err
		}
		if err := runner.Add(string(phase), j.spec, job); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "scheduler configured",
		slog.String("prefetch_cron", a.cfg.Schedule.PrefetchCron),
		slog.String("betting_cron", a.cfg.Schedule.BettingCron),
		slog.String("timezone", loc.String()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })

	if a.cfg.Server.Enabled {
		pipelineHandler := handler.NewPipelineHandler(reports, a.logger).
			WithTrigger(pipeline.PhasePrefetch, runner.Trigger(string(pipeline.PhasePrefetch))).
			WithTrigger(pipeline.PhaseBetting, runner.Trigger(string(pipeline.PhaseBetting)))
		health := handler.NewHealthHandler(a.cfg.Mode, a.cfg.Executor.DryRun)
		for name, check := range deps.HealthChecks {
			health.WithCheck(name, check)
		}
		handlers := server.Handlers{
			Health:      health,
			Performance: handler.NewPerformanceHandler(deps.Tracker, a.logger),
			Ledger:      handler.NewLedgerHandler(deps.Ledger, a.logger),
			Pipeline:    pipelineHandler,
			Metrics:     deps.Metrics.Handler(),
		}
		if deps.Audit != nil {
			handlers.Audit = handler.NewAuditHandler(deps.Audit, a.logger)
		}
		a.startHTTPServer(gctx, g, server.NewServer(server.Config{
			Port:              a.cfg.Server.Port,
			APIKey:            a.cfg.Server.AuthToken,
			RequestsPerSecond: serverRateLimit,
		}, handlers, a.logger))
	}

	return g.Wait()
}

// startHTTPServer runs srv in g and shuts it down once ctx is done.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, srv *server.Server) {
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runPass executes one pass of phase and publishes its outcome to the report
// log, the audit store and the error notification channel.
func (a *App) runPass(ctx context.Context, deps *Dependencies, phase pipeline.Phase, reports *pipeline.ReportLog) (pipeline.PassReport, error) {
	var (
		report pipeline.PassReport
		err    error
	)
	switch phase {
	case pipeline.PhasePrefetch:
		report, err = deps.Orchestrator.RunPrefetch(ctx, a.eventIDs)
	case pipeline.PhaseBetting:
		report, err = deps.Orchestrator.RunBettingPass(ctx, a.eventIDs)
	default:
		return report, fmt.Errorf("app: unknown phase %q", phase)
	}

	if reports != nil {
		reports.Add(report)
	}
	a.auditPass(ctx, deps, report)

	if err != nil && !errors.Is(err, context.Canceled) {
		a.notifyError(ctx, deps, fmt.Sprintf("%s pass aborted", phase), err)
		return report, fmt.Errorf("app: %s pass: %w", phase, err)
	}
	return report, err
}

func (a *App) auditPass(ctx context.Context, deps *Dependencies, report pipeline.PassReport) {
	if deps.Audit == nil {
		return
	}
	t := report.Totals()
	detail := map[string]any{
		"dry_run":     report.DryRun,
		"events":      len(report.Events),
		"markets":     t.Markets,
		"matched":     t.Matched,
		"placed":      t.Placed,
		"failed":      t.Failed,
		"duplicates":  t.Duplicates,
		"started_at":  report.StartedAt,
		"finished_at": report.FinishedAt,
	}
	if report.Error != "" {
		detail["error"] = report.Error
	}
	if len(t.Errors) > 0 {
		detail["event_errors"] = t.Errors
	}
	if err := deps.Audit.Log(ctx, "pass_"+string(report.Phase), detail); err != nil {
		a.logger.WarnContext(ctx, "audit pass failed",
			slog.String("phase", string(report.Phase)),
			slog.String("error", err.Error()),
		)
	}
}

func (a *App) notifyError(ctx context.Context, deps *Dependencies, title string, cause error) {
	if deps.Notifier == nil {
		return
	}
	if err := deps.Notifier.Notify(ctx, notify.EventError, title, cause.Error()); err != nil {
		a.logger.WarnContext(ctx, "error notification failed", slog.String("error", err.Error()))
	}
}
