package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lmercier/dotatracker/internal/pipeline"
	"github.com/lmercier/dotatracker/internal/server"
	"github.com/lmercier/dotatracker/internal/server/handler"
	"github.com/lmercier/dotatracker/internal/server/ws"
)

// TrackMode runs the polling pipeline only: live feed tracking, the
// enrichment retry queue, and optional cold-storage archival. No HTTP
// endpoints are exposed.
func (a *App) TrackMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting track mode")

	orch := a.buildOrchestrator(deps)
	return orch.Run(ctx)
}

// ServeMode runs the HTTP + WebSocket API only, reading whatever a separate
// tracker process has written to the tiers. Nothing polls the live feed.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything: the tracking pipeline plus the HTTP API when
// enabled. Standalone runs exactly like full but Wire backs the tiers with
// in-memory implementations.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := a.buildOrchestrator(deps)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

func (a *App) buildOrchestrator(deps *Dependencies) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(
		deps.Tracker,
		deps.Queue,
		deps.Archiver,
		a.cfg.Tracker.PollInterval.Duration,
		a.cfg.Enrich.TickInterval.Duration,
		a.cfg.Archive.Cron,
		a.logger,
	)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server shuts down gracefully on context cancellation.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Series: handler.NewSeriesHandler(deps.Tiered, deps.SeriesStore, a.logger),
		Match:  handler.NewMatchHandler(deps.Tiered, a.logger),
		Status: handler.NewStatusHandler(deps.Tiered, deps.TaskStore, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
