package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/cricbot/internal/blob/s3"
	"github.com/alanyoungcy/cricbot/internal/cache/redis"
	"github.com/alanyoungcy/cricbot/internal/config"
	"github.com/alanyoungcy/cricbot/internal/domain"
	"github.com/alanyoungcy/cricbot/internal/executor"
	"github.com/alanyoungcy/cricbot/internal/history"
	"github.com/alanyoungcy/cricbot/internal/ledger"
	"github.com/alanyoungcy/cricbot/internal/metrics"
	"github.com/alanyoungcy/cricbot/internal/notify"
	"github.com/alanyoungcy/cricbot/internal/pipeline"
	"github.com/alanyoungcy/cricbot/internal/platform/tencric"
	"github.com/alanyoungcy/cricbot/internal/sanction"
	"github.com/alanyoungcy/cricbot/internal/session"
	"github.com/alanyoungcy/cricbot/internal/store/postgres"
)

// Dependencies holds every wired collaborator. Optional backends are nil
// when their storage switch is off.
type Dependencies struct {
	Sessions     *session.Provider
	Platform     *tencric.Client
	Ledger       *ledger.FileLedger
	Executor     *executor.Executor
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.Metrics
	Tracker      *history.Tracker

	MarketCache domain.MarketCache
	Locks       domain.LockManager
	Blob        domain.BlobWriter
	Audit       domain.AuditStore
	Notifier    *notify.Notifier

	// HealthChecks maps backend names to the checks surfaced by /api/health.
	HealthChecks map[string]func(context.Context) error
}

// Wire creates every dependency needed by mode, connecting the optional
// backends the configuration enables. The returned cleanup function closes
// them in reverse order. The history mode only touches the ledger and the
// settled-bet tracker.
func Wire(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: make(map[string]func(context.Context) error)}

	// ── Redis (market cache, distributed ledger lock) ──
	if cfg.Storage.RedisCache && mode != "history" {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     "cricbot:",
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.HealthChecks["redis"] = rc.Ping
		deps.MarketCache = redis.NewMarketCache(rc, cfg.Redis.MarketTTL.Duration)
		if cfg.Ledger.DistributedLock {
			deps.Locks = redis.NewLockManager(rc)
		}
		logger.InfoContext(ctx, "redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// ── Postgres audit log ──
	if cfg.Storage.PostgresAudit {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		deps.HealthChecks["postgres"] = pg.Ping
		if cfg.Supabase.RunMigrations {
			applied, err := pg.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "audit migrations applied",
					slog.String("set", postgres.MigrationSet),
					slog.String("files", strings.Join(applied, ",")),
				)
			}
		}
		deps.Audit = postgres.NewAuditStore(pg.Pool())
		logger.InfoContext(ctx, "postgres connected")
	}

	// ── S3 archive ──
	if cfg.Storage.S3Archive && mode != "history" {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         "cricbot/",
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = sc.Close() })
		deps.HealthChecks["s3"] = sc.Health
		deps.Blob = s3blob.NewWriter(sc)
		logger.InfoContext(ctx, "s3 archive enabled", slog.String("bucket", cfg.S3.Bucket))
	}

	deps.Notifier = notify.New(notify.Config{
		TelegramToken:     cfg.Notify.TelegramToken,
		TelegramChatID:    cfg.Notify.TelegramChatID,
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
		Events:            cfg.Notify.Events,
	}, logger)

	// ── Ledger ──
	// Dry-run passes write to their own file so simulated bets never block
	// live ones.
	ledgerPath := cfg.Ledger.Path
	if cfg.Executor.DryRun {
		ledgerPath = cfg.Ledger.DryRunPath
	}
	deps.Ledger = ledger.New(ledger.Options{
		Path:        ledgerPath,
		LockTimeout: cfg.Ledger.LockTimeout.Duration,
		Locks:       deps.Locks,
		LockTTL:     cfg.Ledger.LockTTL.Duration,
	}, logger)

	// ── Platform and settled-bet history ──
	deps.Sessions = session.New(session.Config{
		PlayerID:        cfg.Session.PlayerID,
		Token:           cfg.Session.Token,
		CredentialsFile: cfg.Session.CredentialsFile,
		MaxAge:          cfg.Session.MaxAge.Duration,
	})
	deps.Platform = tencric.New(tencric.Config{
		BaseURL:           cfg.Platform.BaseURL,
		Tenant:            cfg.Platform.Tenant,
		SportID:           cfg.Platform.SportID,
		LeagueName:        cfg.Platform.LeagueName,
		Timeout:           cfg.Platform.Timeout.Duration,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
		Burst:             cfg.Platform.Burst,
		HistoryMaxPages:   cfg.History.MaxPages,
	}, deps.Sessions)
	deps.Tracker = history.NewTracker(deps.Platform,
		history.NewStore(cfg.History.SettledPath, cfg.Ledger.LockTimeout.Duration),
		history.Options{Hours: cfg.History.Hours},
		logger,
	)

	if mode == "history" {
		return deps, cleanup, nil
	}

	// ── Execution ──
	deps.Metrics = metrics.New()

	deps.Executor = executor.New(deps.Ledger, deps.Platform, deps.Sessions, executor.Options{
		Constants: executor.Constants{
			SportID:    cfg.Platform.SportID,
			SportName:  cfg.Platform.SportName,
			LeagueID:   cfg.Platform.LeagueID,
			LeagueName: cfg.Platform.LeagueName,
			Currency:   cfg.Platform.Currency,
		},
		OddsMaxAge:    cfg.Executor.OddsMaxAge.Duration,
		SubmitTimeout: cfg.Executor.SubmitTimeout.Duration,
	}, logger)
	deps.Executor.SetRecorder(deps.Metrics)
	if deps.Blob != nil {
		deps.Executor.SetArchive(deps.Blob)
	}
	if deps.Audit != nil {
		deps.Executor.SetAudit(deps.Audit)
	}
	if deps.Notifier != nil {
		deps.Executor.SetNotifier(deps.Notifier)
	}

	rulesFile := cfg.Sanction.RulesFile
	deps.Orchestrator = pipeline.NewOrchestrator(pipeline.Deps{
		Sessions:  deps.Sessions,
		Events:    deps.Platform,
		Markets:   deps.Platform,
		Ledger:    deps.Ledger,
		Matcher:   sanction.NewMatcher(),
		Executor:  deps.Executor,
		Rules:     func() ([]domain.SanctionRule, error) { return sanction.LoadRules(rulesFile) },
		Schedule:  pipeline.NewScheduleCache(cfg.Pipeline.ScheduleCache),
		Snapshots: pipeline.NewSnapshotWriter(cfg.Pipeline.SnapshotDir, deps.MarketCache, deps.Blob, logger),
		Recorder:  deps.Metrics,
	}, pipeline.Options{
		LeagueID:        cfg.Platform.LeagueID,
		BettingWindow:   cfg.Pipeline.BettingWindow.Duration,
		FetchRetries:    cfg.Pipeline.FetchRetries,
		RetryBackoff:    cfg.Pipeline.RetryBackoff.Duration,
		CallTimeout:     cfg.Pipeline.CallTimeout.Duration,
		SanctionEnabled: cfg.Sanction.Enabled,
		DryRun:          cfg.Executor.DryRun,
	}, logger)

	return deps, cleanup, nil
}
