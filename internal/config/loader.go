package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DOTATRACKER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DOTATRACKER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Steam ──
	setStr(&cfg.Steam.APIKey, "DOTATRACKER_STEAM_API_KEY")
	setStr(&cfg.Steam.BaseURL, "DOTATRACKER_STEAM_BASE_URL")
	setStringSlice(&cfg.Steam.LeagueIDs, "DOTATRACKER_STEAM_LEAGUE_IDS")

	// ── OpenDota ──
	setStr(&cfg.OpenDota.BaseURL, "DOTATRACKER_OPENDOTA_BASE_URL")
	setInt(&cfg.OpenDota.RatePerSecond, "DOTATRACKER_OPENDOTA_RATE_PER_SECOND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DOTATRACKER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DOTATRACKER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DOTATRACKER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DOTATRACKER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DOTATRACKER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DOTATRACKER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DOTATRACKER_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "DOTATRACKER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DOTATRACKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DOTATRACKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DOTATRACKER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "DOTATRACKER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DOTATRACKER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DOTATRACKER_S3_REGION")
	setStr(&cfg.S3.Bucket, "DOTATRACKER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DOTATRACKER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DOTATRACKER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "DOTATRACKER_S3_FORCE_PATH_STYLE")

	// ── Tracker ──
	setDuration(&cfg.Tracker.PollInterval, "DOTATRACKER_TRACKER_POLL_INTERVAL")
	setFloat64(&cfg.Tracker.OverlapThreshold, "DOTATRACKER_TRACKER_OVERLAP_THRESHOLD")
	setInt(&cfg.Tracker.MinRosterSize, "DOTATRACKER_TRACKER_MIN_ROSTER_SIZE")
	setDuration(&cfg.Tracker.RecencyWindow, "DOTATRACKER_TRACKER_RECENCY_WINDOW")
	setInt64(&cfg.Tracker.MaxIDDistance, "DOTATRACKER_TRACKER_MAX_ID_DISTANCE")
	setBool(&cfg.Tracker.Locking, "DOTATRACKER_TRACKER_LOCKING")

	// ── Enrich ──
	setDuration(&cfg.Enrich.TickInterval, "DOTATRACKER_ENRICH_TICK_INTERVAL")
	setDuration(&cfg.Enrich.InitialDelay, "DOTATRACKER_ENRICH_INITIAL_DELAY")
	setDuration(&cfg.Enrich.RetryDelay, "DOTATRACKER_ENRICH_RETRY_DELAY")
	setInt(&cfg.Enrich.MaxAttempts, "DOTATRACKER_ENRICH_MAX_ATTEMPTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DOTATRACKER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "DOTATRACKER_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "DOTATRACKER_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DOTATRACKER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DOTATRACKER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DOTATRACKER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DOTATRACKER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DOTATRACKER_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DOTATRACKER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DOTATRACKER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DOTATRACKER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DOTATRACKER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DOTATRACKER_MODE")
	setStr(&cfg.LogLevel, "DOTATRACKER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
