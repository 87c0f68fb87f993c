package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/lmercier/dotatracker/internal/blob/s3"
	"github.com/lmercier/dotatracker/internal/cache/memory"
	"github.com/lmercier/dotatracker/internal/cache/redis"
	"github.com/lmercier/dotatracker/internal/config"
	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/enrich"
	"github.com/lmercier/dotatracker/internal/notify"
	"github.com/lmercier/dotatracker/internal/pipeline"
	"github.com/lmercier/dotatracker/internal/platform/opendota"
	"github.com/lmercier/dotatracker/internal/platform/steam"
	"github.com/lmercier/dotatracker/internal/series"
	"github.com/lmercier/dotatracker/internal/store/postgres"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Tiers
	Tiered      *tiered.Store
	MatchStore  domain.MatchStore
	SeriesStore domain.SeriesStore
	TaskStore   domain.TaskStore

	// Shared cache facilities
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Clients
	Feed   domain.LiveFeed
	Detail domain.DetailClient

	// Pipeline
	Resolver *series.Resolver
	Queue    *enrich.Queue
	Tracker  *pipeline.Tracker
	Archiver *pipeline.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
//
// Standalone mode swaps Redis and Postgres for the in-memory tiers so the
// tracker can run without any external service.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	standalone := strings.ToLower(cfg.Mode) == "standalone"

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	var (
		matchCache  domain.MatchCache
		seriesCache domain.SeriesCache
		seriesIndex domain.SeriesIndex
		locks       domain.LockManager
	)

	if standalone {
		matchCache = memory.NewMatchCache()
		seriesCache = memory.NewSeriesCache()
		seriesIndex = memory.NewSeriesIndex()
		deps.TaskStore = memory.NewTaskStore()
		deps.MatchStore = memory.NewMatchStore()
		deps.SeriesStore = memory.NewSeriesStore()
		deps.SignalBus = memory.NewSignalBus()
	} else {
		// --- PostgreSQL historical tier ---
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MatchStore = postgres.NewMatchStore(pool)
		deps.SeriesStore = postgres.NewSeriesStore(pool)

		// --- Redis live tier ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		matchCache = redis.NewMatchCache(redisClient)
		seriesCache = redis.NewSeriesCache(redisClient)
		seriesIndex = redis.NewSeriesIndex(redisClient)
		deps.TaskStore = redis.NewTaskStore(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		if cfg.Tracker.Locking {
			locks = redis.NewLockManager(redisClient)
		}
	}

	deps.Tiered = tiered.New(tiered.Config{
		Matches:     matchCache,
		Series:      seriesCache,
		Index:       seriesIndex,
		MatchStore:  deps.MatchStore,
		SeriesStore: deps.SeriesStore,
		Locks:       locks,
		Logger:      logger,
	})

	// --- Feed clients ---
	deps.Feed = steam.NewClient(cfg.Steam.BaseURL, cfg.Steam.APIKey, cfg.Steam.LeagueIDs)
	deps.Detail = opendota.NewClient(cfg.OpenDota.BaseURL, deps.RateLimiter, cfg.OpenDota.RatePerSecond)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Pipeline ---
	deps.Resolver = series.NewResolver(deps.Tiered, series.Options{
		OverlapThreshold: cfg.Tracker.OverlapThreshold,
		MinRosterSize:    cfg.Tracker.MinRosterSize,
		RecencyWindow:    cfg.Tracker.RecencyWindow.Duration,
		MaxIDDistance:    cfg.Tracker.MaxIDDistance,
	}, logger)

	deps.Queue = enrich.NewQueue(deps.TaskStore, deps.Tiered, deps.Detail, enrich.Options{
		InitialDelay: cfg.Enrich.InitialDelay.Duration,
		RetryDelay:   cfg.Enrich.RetryDelay.Duration,
		MaxAttempts:  cfg.Enrich.MaxAttempts,
	}, logger)

	deps.Tracker = pipeline.NewTracker(
		deps.Feed,
		deps.Resolver,
		deps.Tiered,
		deps.Queue,
		deps.SignalBus,
		deps.Notifier,
		logger,
	)

	// --- S3 cold archive (optional) ---
	if cfg.Archive.Enabled && !standalone {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		blobArchiver := s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.MatchStore, deps.SeriesStore)
		deps.Archiver = pipeline.NewArchiver(blobArchiver, cfg.Archive.RetentionDays,
			logger.With(slog.String("component", "archiver")))
	}

	return deps, cleanup, nil
}
