package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lmercier/dotatracker/internal/enrich"
)

// Orchestrator manages all pipeline goroutines: feed polling, enrichment
// ticking, and cold-storage archival.
type Orchestrator struct {
	tracker      *Tracker
	queue        *enrich.Queue
	archiver     *Archiver
	pollInterval time.Duration
	tickInterval time.Duration
	archiveCron  string
	logger       *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all pipeline
// sub-systems. archiver may be nil when cold storage is not configured.
func NewOrchestrator(
	tracker *Tracker,
	queue *enrich.Queue,
	archiver *Archiver,
	pollInterval time.Duration,
	tickInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		tracker:      tracker,
		queue:        queue,
		archiver:     archiver,
		pollInterval: pollInterval,
		tickInterval: tickInterval,
		archiveCron:  archiveCron,
		logger:       logger,
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run
// returns that error.
//
// The tracker loop and the enrichment tick run as separate goroutines and
// can touch the same series at once, e.g. a vanished game being enriched
// while the next poll attaches its successor. The tiered store serializes
// those writes per key.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("poll_interval", o.pollInterval),
		slog.Duration("tick_interval", o.tickInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Feed tracker on ticker.
	g.Go(func() error {
		o.logger.Info("starting tracker loop")
		err := o.tracker.RunLoop(ctx, o.pollInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("tracker: %w", err)
	})

	// 2. Enrichment queue on a much shorter tick so the 2s/8s retry
	// schedule is honored with second resolution.
	g.Go(func() error {
		o.logger.Info("starting enrichment tick loop")
		err := o.runEnrichTicks(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("enrichment: %w", err)
	})

	// 3. Archiver on cron schedule.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// runEnrichTicks drives the enrichment queue from a single ticker. The
// queue is not safe for concurrent ticks, so this is the only caller.
func (o *Orchestrator) runEnrichTicks(ctx context.Context) error {
	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("enrichment tick loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			if err := o.queue.Tick(ctx, now.UTC()); err != nil {
				o.logger.Error("enrichment tick failed", slog.String("error", err.Error()))
			}
		}
	}
}
