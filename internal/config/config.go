// Package config defines the top-level configuration for the tracker and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DOTATRACKER_* environment
// variables.
type Config struct {
	Steam    SteamConfig    `toml:"steam"`
	OpenDota OpenDotaConfig `toml:"opendota"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Enrich   EnrichConfig   `toml:"enrich"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// SteamConfig holds live feed parameters.
type SteamConfig struct {
	APIKey    string   `toml:"api_key"`
	BaseURL   string   `toml:"base_url"`
	LeagueIDs []string `toml:"league_ids"`
}

// OpenDotaConfig holds detail backfill parameters.
type OpenDotaConfig struct {
	BaseURL string `toml:"base_url"`
	// RatePerSecond caps outbound requests; OpenDota's free tier allows
	// one call per second.
	RatePerSecond int `toml:"rate_per_second"`
}

// PostgresConfig holds PostgreSQL connection parameters for the historical
// tier.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters for the live tier.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for cold archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TrackerConfig holds polling and series-correlation parameters.
type TrackerConfig struct {
	PollInterval duration `toml:"poll_interval"`
	// OverlapThreshold is the minimum shared-roster fraction for two
	// matches to count as the same series.
	OverlapThreshold float64 `toml:"overlap_threshold"`
	// MinRosterSize is the minimum number of identifiable players per
	// side before roster matching is attempted.
	MinRosterSize int `toml:"min_roster_size"`
	// RecencyWindow bounds how far back candidate series are considered.
	RecencyWindow duration `toml:"recency_window"`
	// MaxIDDistance bounds the match-id gap within one series.
	MaxIDDistance int64 `toml:"max_id_distance"`
	// Locking enables per-key locks on cache writes for multi-process
	// deployments.
	Locking bool `toml:"locking"`
}

// EnrichConfig holds the backfill retry schedule.
type EnrichConfig struct {
	TickInterval duration `toml:"tick_interval"`
	InitialDelay duration `toml:"initial_delay"`
	RetryDelay   duration `toml:"retry_delay"`
	MaxAttempts  int      `toml:"max_attempts"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
		Steam: SteamConfig{
			BaseURL: "https://api.steampowered.com/IDOTA2Match_570/GetLiveLeagueGames/v1/",
		},
		OpenDota: OpenDotaConfig{
			BaseURL:       "https://api.opendota.com/api",
			RatePerSecond: 1,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dotatracker",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Tracker: TrackerConfig{
			PollInterval:     duration{30 * time.Second},
			OverlapThreshold: 0.6,
			MinRosterSize:    3,
			RecencyWindow:    duration{24 * time.Hour},
			MaxIDDistance:    1_000_000,
		},
		Enrich: EnrichConfig{
			TickInterval: duration{time.Second},
			InitialDelay: duration{2 * time.Second},
			RetryDelay:   duration{8 * time.Second},
			MaxAttempts:  2,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   30,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"series_concluded"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"track":      true,
	"serve":      true,
	"full":       true,
	"standalone": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: track, serve, full, standalone)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// The feed is required in every mode that polls.
	needsFeed := c.Mode == "track" || c.Mode == "full" || c.Mode == "standalone"
	if needsFeed && c.Steam.APIKey == "" {
		errs = append(errs, "steam: api_key is required for mode "+c.Mode)
	}

	// OpenDota
	if c.OpenDota.BaseURL == "" {
		errs = append(errs, "opendota: base_url must not be empty")
	}
	if c.OpenDota.RatePerSecond < 1 {
		errs = append(errs, "opendota: rate_per_second must be >= 1")
	}

	// Postgres and Redis back the tiers in every mode except standalone,
	// which runs entirely in memory.
	if c.Mode != "standalone" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 is only required when archiving is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: endpoint or region must be set when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Tracker
	if c.Tracker.PollInterval.Duration <= 0 {
		errs = append(errs, "tracker: poll_interval must be > 0")
	}
	if c.Tracker.OverlapThreshold <= 0 || c.Tracker.OverlapThreshold > 1 {
		errs = append(errs, fmt.Sprintf("tracker: overlap_threshold must be in (0, 1], got %v", c.Tracker.OverlapThreshold))
	}
	if c.Tracker.MinRosterSize < 1 {
		errs = append(errs, "tracker: min_roster_size must be >= 1")
	}
	if c.Tracker.MaxIDDistance < 1 {
		errs = append(errs, "tracker: max_id_distance must be >= 1")
	}

	// Enrich
	if c.Enrich.TickInterval.Duration <= 0 {
		errs = append(errs, "enrich: tick_interval must be > 0")
	}
	if c.Enrich.InitialDelay.Duration <= 0 {
		errs = append(errs, "enrich: initial_delay must be > 0")
	}
	if c.Enrich.RetryDelay.Duration <= 0 {
		errs = append(errs, "enrich: retry_delay must be > 0")
	}
	if c.Enrich.MaxAttempts < 1 {
		errs = append(errs, "enrich: max_attempts must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
