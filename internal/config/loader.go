package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CRICBOT_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CRICBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Platform ──
	setStr(&cfg.Platform.BaseURL, "CRICBOT_PLATFORM_BASE_URL")
	setStr(&cfg.Platform.Tenant, "CRICBOT_PLATFORM_TENANT")
	setStr(&cfg.Platform.SportID, "CRICBOT_PLATFORM_SPORT_ID")
	setStr(&cfg.Platform.LeagueID, "CRICBOT_PLATFORM_LEAGUE_ID")
	setStr(&cfg.Platform.LeagueName, "CRICBOT_PLATFORM_LEAGUE_NAME")
	setStr(&cfg.Platform.Currency, "CRICBOT_PLATFORM_CURRENCY")
	setDuration(&cfg.Platform.Timeout, "CRICBOT_PLATFORM_TIMEOUT")
	setFloat64(&cfg.Platform.RequestsPerSecond, "CRICBOT_PLATFORM_REQUESTS_PER_SECOND")
	setInt(&cfg.Platform.Burst, "CRICBOT_PLATFORM_BURST")

	// ── Session ──
	setStr(&cfg.Session.PlayerID, "PLAYER_ID") // name used by the login helper
	setStr(&cfg.Session.Token, "SPORTSBOOK_TOKEN")
	setStr(&cfg.Session.PlayerID, "CRICBOT_SESSION_PLAYER_ID")
	setStr(&cfg.Session.Token, "CRICBOT_SESSION_TOKEN")
	setStr(&cfg.Session.CredentialsFile, "CRICBOT_SESSION_CREDENTIALS_FILE")
	setDuration(&cfg.Session.MaxAge, "CRICBOT_SESSION_MAX_AGE")

	// ── Sanction ──
	setBool(&cfg.Sanction.Enabled, "CRICBOT_SANCTION_ENABLED")
	setStr(&cfg.Sanction.RulesFile, "CRICBOT_SANCTION_RULES_FILE")

	// ── Ledger ──
	setStr(&cfg.Ledger.Path, "CRICBOT_LEDGER_PATH")
	setStr(&cfg.Ledger.DryRunPath, "CRICBOT_LEDGER_DRY_RUN_PATH")
	setDuration(&cfg.Ledger.LockTimeout, "CRICBOT_LEDGER_LOCK_TIMEOUT")
	setBool(&cfg.Ledger.DistributedLock, "CRICBOT_LEDGER_DISTRIBUTED_LOCK")
	setDuration(&cfg.Ledger.LockTTL, "CRICBOT_LEDGER_LOCK_TTL")

	// ── History ──
	setInt(&cfg.History.Hours, "CRICBOT_HISTORY_HOURS")
	setStr(&cfg.History.SettledPath, "CRICBOT_HISTORY_SETTLED_PATH")
	setInt(&cfg.History.MaxPages, "CRICBOT_HISTORY_MAX_PAGES")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.BettingWindow, "CRICBOT_PIPELINE_BETTING_WINDOW")
	setInt(&cfg.Pipeline.FetchRetries, "CRICBOT_PIPELINE_FETCH_RETRIES")
	setDuration(&cfg.Pipeline.RetryBackoff, "CRICBOT_PIPELINE_RETRY_BACKOFF")
	setDuration(&cfg.Pipeline.CallTimeout, "CRICBOT_PIPELINE_CALL_TIMEOUT")
	setStr(&cfg.Pipeline.ScheduleCache, "CRICBOT_PIPELINE_SCHEDULE_CACHE")
	setStr(&cfg.Pipeline.SnapshotDir, "CRICBOT_PIPELINE_SNAPSHOT_DIR")

	// ── Executor ──
	setBool(&cfg.Executor.DryRun, "CRICBOT_EXECUTOR_DRY_RUN")
	setDuration(&cfg.Executor.OddsMaxAge, "CRICBOT_EXECUTOR_ODDS_MAX_AGE")
	setDuration(&cfg.Executor.SubmitTimeout, "CRICBOT_EXECUTOR_SUBMIT_TIMEOUT")

	// ── Storage ──
	setBool(&cfg.Storage.RedisCache, "CRICBOT_STORAGE_REDIS_CACHE")
	setBool(&cfg.Storage.PostgresAudit, "CRICBOT_STORAGE_POSTGRES_AUDIT")
	setBool(&cfg.Storage.S3Archive, "CRICBOT_STORAGE_S3_ARCHIVE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CRICBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRICBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRICBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRICBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CRICBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CRICBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MarketTTL, "CRICBOT_REDIS_MARKET_TTL")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "CRICBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "CRICBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "CRICBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "CRICBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "CRICBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "CRICBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "CRICBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "CRICBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "CRICBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "CRICBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "CRICBOT_SUPABASE_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CRICBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CRICBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CRICBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CRICBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CRICBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CRICBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CRICBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CRICBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CRICBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CRICBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CRICBOT_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CRICBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CRICBOT_SERVER_PORT")
	setStr(&cfg.Server.AuthToken, "CRICBOT_SERVER_AUTH_TOKEN")

	// ── Schedule ──
	setStr(&cfg.Schedule.PrefetchCron, "CRICBOT_SCHEDULE_PREFETCH_CRON")
	setStr(&cfg.Schedule.BettingCron, "CRICBOT_SCHEDULE_BETTING_CRON")
	setStr(&cfg.Schedule.Timezone, "CRICBOT_SCHEDULE_TIMEZONE")

	// ── Top-level ──
	setStr(&cfg.Mode, "CRICBOT_MODE")
	setStr(&cfg.LogLevel, "CRICBOT_LOG_LEVEL")
	setStr(&cfg.LogFile, "CRICBOT_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
