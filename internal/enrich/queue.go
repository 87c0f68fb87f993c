// Package enrich backfills final match results from the detail API after a
// match drops off the live feed. Attempts are bounded: one immediate try on
// enqueue, then a short fixed retry schedule before the task is abandoned.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// Options tune the retry schedule. The detail API indexes finished matches
// within seconds of the feed dropping them, so the whole budget spans about
// ten seconds from detection.
type Options struct {
	// InitialDelay is the wait before the first scheduled retry after the
	// immediate attempt fails.
	InitialDelay time.Duration
	// RetryDelay is the wait before the second and last scheduled retry.
	RetryDelay time.Duration
	// MaxAttempts is the number of scheduled attempts before abandonment.
	MaxAttempts int
}

// DefaultOptions returns the standard retry schedule.
func DefaultOptions() Options {
	return Options{
		InitialDelay: 2 * time.Second,
		RetryDelay:   8 * time.Second,
		MaxAttempts:  2,
	}
}

// Queue drives enrichment tasks against the detail client and applies the
// results to the tiered store. It is meant to be ticked by a single periodic
// caller; it is not safe for concurrent ticks.
type Queue struct {
	tasks  domain.TaskStore
	store  *tiered.Store
	detail domain.DetailClient
	opts   Options
	logger *slog.Logger
}

// NewQueue creates an enrichment queue.
func NewQueue(tasks domain.TaskStore, store *tiered.Store, detail domain.DetailClient, opts Options, logger *slog.Logger) *Queue {
	if opts.MaxAttempts <= 0 {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		tasks:  tasks,
		store:  store,
		detail: detail,
		opts:   opts,
		logger: logger.With(slog.String("component", "enrich")),
	}
}

// Enqueue registers a match for backfill. If the match already has a task
// the call is a no-op. Otherwise one immediate backfill is attempted; on
// success the result is applied and no task is created, on failure a task is
// scheduled for the first retry.
func (q *Queue) Enqueue(ctx context.Context, matchID string) error {
	if _, err := q.tasks.Get(ctx, matchID); err == nil {
		q.logger.Debug("enrichment already queued", slog.String("match_id", matchID))
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("enrich: enqueue %s: %w", matchID, err)
	}

	if q.attempt(ctx, matchID) {
		q.logger.Info("match enriched on first attempt", slog.String("match_id", matchID))
		return nil
	}

	now := time.Now().UTC()
	task := domain.EnrichmentTask{
		MatchID:       matchID,
		DetectedAt:    now,
		Attempts:      0,
		NextAttemptAt: now.Add(q.opts.InitialDelay),
		Status:        domain.TaskStatusPending,
	}
	if err := q.tasks.Put(ctx, task); err != nil {
		return fmt.Errorf("enrich: enqueue %s: %w", matchID, err)
	}
	q.logger.Info("enrichment scheduled",
		slog.String("match_id", matchID),
		slog.Time("next_attempt", task.NextAttemptAt),
	)
	return nil
}

// Tick processes every task whose next attempt is due at or before now. A
// successful attempt applies the result and removes the task; a failed one
// either reschedules it or abandons it once the budget is spent.
func (q *Queue) Tick(ctx context.Context, now time.Time) error {
	due, err := q.tasks.Due(ctx, now)
	if err != nil {
		return fmt.Errorf("enrich: list due tasks: %w", err)
	}
	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("enrich: tick cancelled: %w", err)
		}
		q.process(ctx, task, now)
	}
	return nil
}

func (q *Queue) process(ctx context.Context, task domain.EnrichmentTask, now time.Time) {
	if q.attempt(ctx, task.MatchID) {
		if err := q.tasks.Remove(ctx, task.MatchID); err != nil {
			q.logger.Error("failed to remove finished task",
				slog.String("match_id", task.MatchID),
				slog.String("error", err.Error()),
			)
			return
		}
		q.logger.Info("match enriched",
			slog.String("match_id", task.MatchID),
			slog.Int("attempts", task.Attempts+1),
		)
		return
	}

	task.Attempts++
	if task.Attempts >= q.opts.MaxAttempts {
		task.Status = domain.TaskStatusAbandoned
		if err := q.tasks.Remove(ctx, task.MatchID); err != nil {
			q.logger.Error("failed to remove abandoned task",
				slog.String("match_id", task.MatchID),
				slog.String("error", err.Error()),
			)
			return
		}
		q.logger.Warn("enrichment abandoned",
			slog.String("match_id", task.MatchID),
			slog.Int("attempts", task.Attempts),
		)
		return
	}

	task.Status = domain.TaskStatusRetrying
	task.NextAttemptAt = now.Add(q.opts.RetryDelay)
	if err := q.tasks.Put(ctx, task); err != nil {
		q.logger.Error("failed to reschedule task",
			slog.String("match_id", task.MatchID),
			slog.String("error", err.Error()),
		)
		return
	}
	q.logger.Info("enrichment rescheduled",
		slog.String("match_id", task.MatchID),
		slog.Int("attempts", task.Attempts),
		slog.Time("next_attempt", task.NextAttemptAt),
	)
}

// attempt fetches the detail record and, if it is complete, applies it to
// the store. It reports whether the match is now finished.
func (q *Queue) attempt(ctx context.Context, matchID string) bool {
	fetched, err := q.detail.Fetch(ctx, matchID)
	if err != nil {
		q.logger.Debug("detail fetch failed",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !fetched.Complete() {
		q.logger.Debug("detail record incomplete", slog.String("match_id", matchID))
		return false
	}
	if err := q.apply(ctx, matchID, fetched); err != nil {
		q.logger.Error("failed to apply enrichment",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// apply merges the fetched final fields onto the cached record, so series
// membership, rosters and the captured game number survive the backfill,
// then finishes the match through the store.
func (q *Queue) apply(ctx context.Context, matchID string, fetched domain.MatchRecord) error {
	rec, err := q.store.GetMatch(ctx, matchID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		rec = fetched
		rec.MatchID = matchID
	}

	rec.RadiantScore = fetched.RadiantScore
	rec.DireScore = fetched.DireScore
	rec.TotalKills = fetched.RadiantScore + fetched.DireScore
	rec.Duration = fetched.Duration
	rec.Winner = fetched.Winner
	if fetched.RadiantNetWorth > 0 {
		rec.RadiantNetWorth = fetched.RadiantNetWorth
	}
	if fetched.DireNetWorth > 0 {
		rec.DireNetWorth = fetched.DireNetWorth
	}

	ser, err := q.store.FinishMatch(ctx, rec)
	if err != nil {
		return err
	}
	if ser.SeriesID != "" && ser.Concluded() {
		q.logger.Info("series concluded",
			slog.String("series_id", ser.SeriesID),
			slog.Int("wins_one", ser.WinsOne),
			slog.Int("wins_two", ser.WinsTwo),
		)
	}
	return nil
}
