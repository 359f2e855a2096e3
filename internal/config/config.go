// Package config defines the top-level configuration for cricbot and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CRICBOT_* environment variables.
type Config struct {
	Platform PlatformConfig `toml:"platform"`
	Session  SessionConfig  `toml:"session"`
	Sanction SanctionConfig `toml:"sanction"`
	Ledger   LedgerConfig   `toml:"ledger"`
	History  HistoryConfig  `toml:"history"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Executor ExecutorConfig `toml:"executor"`
	Storage  StorageConfig  `toml:"storage"`
	Redis    RedisConfig    `toml:"redis"`
	Supabase SupabaseConfig `toml:"supabase"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Schedule ScheduleConfig `toml:"schedule"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	LogFile  string         `toml:"log_file"`
}

// PlatformConfig holds the 10CRIC GraphQL endpoint and the fixed identifiers
// of the sport and league being traded.
type PlatformConfig struct {
	BaseURL           string   `toml:"base_url"`
	Tenant            string   `toml:"tenant"`
	SportID           string   `toml:"sport_id"`
	SportName         string   `toml:"sport_name"`
	LeagueID          string   `toml:"league_id"`
	LeagueName        string   `toml:"league_name"`
	Currency          string   `toml:"currency"`
	Timeout           duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

// SessionConfig tells the session provider where credentials come from.
// Explicit PlayerID/Token win over the credentials file.
type SessionConfig struct {
	PlayerID        string   `toml:"player_id"`
	Token           string   `toml:"token"`
	CredentialsFile string   `toml:"credentials_file"`
	MaxAge          duration `toml:"max_age"`
}

// SanctionConfig holds the sanctioning master switch and the rules file.
type SanctionConfig struct {
	Enabled   bool   `toml:"enabled"`
	RulesFile string `toml:"rules_file"`
}

// LedgerConfig holds the bet ledger location and locking parameters.
type LedgerConfig struct {
	Path            string   `toml:"path"`
	DryRunPath      string   `toml:"dry_run_path"`
	LockTimeout     duration `toml:"lock_timeout"`
	DistributedLock bool     `toml:"distributed_lock"`
	LockTTL         duration `toml:"lock_ttl"`
}

// HistoryConfig controls the settled-bet history pulled from the platform.
type HistoryConfig struct {
	Hours       int    `toml:"hours"`
	SettledPath string `toml:"settled_path"`
	MaxPages    int    `toml:"max_pages"`
}

// PipelineConfig holds the pass orchestration parameters.
type PipelineConfig struct {
	BettingWindow duration `toml:"betting_window"`
	FetchRetries  int      `toml:"fetch_retries"`
	RetryBackoff  duration `toml:"retry_backoff"`
	CallTimeout   duration `toml:"call_timeout"`
	ScheduleCache string   `toml:"schedule_cache"`
	SnapshotDir   string   `toml:"snapshot_dir"`
}

// ExecutorConfig holds bet submission parameters.
type ExecutorConfig struct {
	DryRun        bool     `toml:"dry_run"`
	OddsMaxAge    duration `toml:"odds_max_age"`
	SubmitTimeout duration `toml:"submit_timeout"`
}

// StorageConfig switches the optional external backends on.
type StorageConfig struct {
	RedisCache    bool `toml:"redis_cache"`
	PostgresAudit bool `toml:"postgres_audit"`
	S3Archive     bool `toml:"s3_archive"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	MarketTTL  duration `toml:"market_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds status HTTP server parameters.
type ServerConfig struct {
	Enabled   bool   `toml:"enabled"`
	Port      int    `toml:"port"`
	AuthToken string `toml:"auth_token"`
}

// ScheduleConfig holds the cron expressions used in schedule mode.
type ScheduleConfig struct {
	PrefetchCron string `toml:"prefetch_cron"`
	BettingCron  string `toml:"betting_cron"`
	Timezone     string `toml:"timezone"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Platform: PlatformConfig{
			BaseURL:           "https://www.my10cric.com/graphql",
			Tenant:            "10CRIC",
			SportID:           "51ba17ce-bf66-352f-a3bc-1e8984e1d4a7",
			SportName:         "Cricket",
			LeagueID:          "30a6e759-f406-33ac-ba2c-a11c9d161898",
			LeagueName:        "Indian Premier League",
			Currency:          "INR",
			Timeout:           duration{30 * time.Second},
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Session: SessionConfig{
			CredentialsFile: ".credentials.json",
			MaxAge:          duration{12 * time.Hour},
		},
		Sanction: SanctionConfig{
			Enabled:   true,
			RulesFile: "data/sanction_rules.json",
		},
		Ledger: LedgerConfig{
			Path:        "data/ledger.json",
			DryRunPath:  "data/ledger_dry_run.json",
			LockTimeout: duration{10 * time.Second},
			LockTTL:     duration{30 * time.Second},
		},
		History: HistoryConfig{
			Hours:       24,
			SettledPath: "data/bet_history.json",
			MaxPages:    10,
		},
		Pipeline: PipelineConfig{
			BettingWindow: duration{3 * time.Hour},
			FetchRetries:  3,
			RetryBackoff:  duration{2 * time.Second},
			CallTimeout:   duration{30 * time.Second},
			ScheduleCache: "data/cache/schedule.json",
			SnapshotDir:   "data/snapshots",
		},
		Executor: ExecutorConfig{
			DryRun:        true,
			OddsMaxAge:    duration{2 * time.Minute},
			SubmitTimeout: duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			MarketTTL:  duration{10 * time.Minute},
		},
		Supabase: SupabaseConfig{
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "require",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "cricbot",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"bet_placed", "bet_failed", "error"},
		},
		Server: ServerConfig{
			Enabled: false,
			Port:    8000,
		},
		Schedule: ScheduleConfig{
			PrefetchCron: "0 10 * * *",
			BettingCron:  "*/5 * * * *",
			Timezone:     "Asia/Kolkata",
		},
		Mode:     "bet",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"prefetch": true,
	"bet":      true,
	"schedule": true,
	"history":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: prefetch, bet, schedule, history)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Platform
	if c.Platform.BaseURL == "" {
		errs = append(errs, "platform: base_url must not be empty")
	}
	if c.Platform.SportID == "" || c.Platform.LeagueID == "" {
		errs = append(errs, "platform: sport_id and league_id must be set")
	}
	if c.Platform.Currency == "" {
		errs = append(errs, "platform: currency must not be empty")
	}
	if c.Platform.Timeout.Duration <= 0 {
		errs = append(errs, "platform: timeout must be > 0")
	}
	if c.Platform.RequestsPerSecond < 0 {
		errs = append(errs, "platform: requests_per_second must be >= 0")
	}

	// Session: a half-specified explicit credential is always a mistake.
	if (c.Session.PlayerID == "") != (c.Session.Token == "") {
		errs = append(errs, "session: player_id and token must be set together")
	}
	if c.Session.PlayerID == "" && c.Session.CredentialsFile == "" {
		errs = append(errs, "session: either player_id/token or credentials_file must be set")
	}

	// Sanction
	if c.Sanction.Enabled && c.Sanction.RulesFile == "" {
		errs = append(errs, "sanction: rules_file must be set when enabled")
	}

	// Ledger
	if c.Ledger.Path == "" {
		errs = append(errs, "ledger: path must not be empty")
	}
	if c.Ledger.DryRunPath == "" {
		errs = append(errs, "ledger: dry_run_path must not be empty")
	} else if c.Ledger.DryRunPath == c.Ledger.Path {
		errs = append(errs, "ledger: dry_run_path must differ from path")
	}
	if c.Ledger.LockTimeout.Duration <= 0 {
		errs = append(errs, "ledger: lock_timeout must be > 0")
	}
	if c.Ledger.DistributedLock && !c.Storage.RedisCache {
		errs = append(errs, "ledger: distributed_lock requires storage.redis_cache")
	}

	// History
	if c.History.Hours <= 0 {
		errs = append(errs, "history: hours must be > 0")
	}
	if c.History.SettledPath == "" {
		errs = append(errs, "history: settled_path must not be empty")
	}
	if c.History.MaxPages <= 0 {
		errs = append(errs, "history: max_pages must be > 0")
	}

	// Pipeline
	if c.Pipeline.BettingWindow.Duration <= 0 {
		errs = append(errs, "pipeline: betting_window must be > 0")
	}
	if c.Pipeline.FetchRetries < 1 {
		errs = append(errs, "pipeline: fetch_retries must be >= 1")
	}
	if c.Pipeline.RetryBackoff.Duration < 0 {
		errs = append(errs, "pipeline: retry_backoff must be >= 0")
	}
	if c.Pipeline.ScheduleCache == "" || c.Pipeline.SnapshotDir == "" {
		errs = append(errs, "pipeline: schedule_cache and snapshot_dir must be set")
	}

	// Executor
	if c.Executor.SubmitTimeout.Duration <= 0 {
		errs = append(errs, "executor: submit_timeout must be > 0")
	}
	if c.Executor.OddsMaxAge.Duration < 0 {
		errs = append(errs, "executor: odds_max_age must be >= 0")
	}

	// Redis
	if c.Storage.RedisCache {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Supabase
	if c.Storage.PostgresAudit {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// S3
	if c.Storage.S3Archive {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Schedule
	if strings.EqualFold(c.Mode, "schedule") {
		if _, err := cron.ParseStandard(c.Schedule.PrefetchCron); err != nil {
			errs = append(errs, fmt.Sprintf("schedule: invalid prefetch_cron %q: %v", c.Schedule.PrefetchCron, err))
		}
		if _, err := cron.ParseStandard(c.Schedule.BettingCron); err != nil {
			errs = append(errs, fmt.Sprintf("schedule: invalid betting_cron %q: %v", c.Schedule.BettingCron, err))
		}
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("schedule: unknown timezone %q", c.Schedule.Timezone))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
