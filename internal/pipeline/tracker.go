package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/enrich"
	"github.com/lmercier/dotatracker/internal/series"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// Bus channels published by the tracker.
const (
	ChannelSeriesUpdates = "series.updates"
	ChannelMatchUpdates  = "match.updates"
)

// SeriesNotifier receives filtered tracker events for operator channels.
type SeriesNotifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Tracker is the polling driver: it reads the live feed, resolves each
// observation to a series, writes the live tier, detects matches that
// vanished from the feed and hands them to the enrichment queue.
type Tracker struct {
	feed     domain.LiveFeed
	resolver *series.Resolver
	store    *tiered.Store
	queue    *enrich.Queue
	bus      domain.SignalBus
	notifier SeriesNotifier
	logger   *slog.Logger
}

// NewTracker creates a Tracker. bus and notifier may be nil.
func NewTracker(
	feed domain.LiveFeed,
	resolver *series.Resolver,
	store *tiered.Store,
	queue *enrich.Queue,
	bus domain.SignalBus,
	notifier SeriesNotifier,
	logger *slog.Logger,
) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		feed:     feed,
		resolver: resolver,
		store:    store,
		queue:    queue,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "tracker")),
	}
}

// RunLoop polls the feed on the given interval until the context is
// cancelled. The first cycle runs immediately.
func (t *Tracker) RunLoop(ctx context.Context, interval time.Duration) error {
	t.logger.Info("tracker loop starting", slog.Duration("interval", interval))

	if err := t.Cycle(ctx); err != nil {
		t.logger.Error("poll cycle failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := t.Cycle(ctx); err != nil {
				t.logger.Error("poll cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Cycle runs one full polling pass. Within a cycle every observation is
// resolved and written before any match is finished, so win counts are
// recomputed against a consistent snapshot rather than a half-applied one.
func (t *Tracker) Cycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := t.logger.With(slog.String("cycle_id", cycleID))

	observations, err := t.feed.Poll(ctx)
	if err != nil {
		// A failed poll is "no data this cycle", never fatal.
		logger.Warn("live feed poll failed", slog.String("error", err.Error()))
		return nil
	}
	logger.Debug("live feed polled", slog.Int("matches", len(observations)))

	seen := make(map[string]struct{}, len(observations))
	var finishes []domain.MatchRecord
	touched := make(map[string]struct{})

	for _, obs := range observations {
		if obs.MatchID == "" {
			continue
		}
		seen[obs.MatchID] = struct{}{}

		rec, err := t.applyObservation(ctx, logger, obs)
		if err != nil {
			logger.Error("observation failed",
				slog.String("match_id", obs.MatchID),
				slog.String("error", err.Error()),
			)
			continue
		}
		touched[rec.SeriesID] = struct{}{}

		if obs.Outcome != nil && rec.Status != domain.MatchStatusFinished {
			rec.Winner = obs.Outcome
			finishes = append(finishes, rec)
		}
	}

	for _, rec := range finishes {
		ser, err := t.store.FinishMatch(ctx, rec)
		if err != nil {
			logger.Error("finish failed",
				slog.String("match_id", rec.MatchID),
				slog.String("error", err.Error()),
			)
			continue
		}
		t.afterFinish(ctx, logger, ser)
	}

	t.detectVanished(ctx, logger, seen)
	t.publishSeries(ctx, logger, touched)
	return nil
}

// applyObservation resolves the observation's series and replaces the live
// snapshot of the match. The game number is captured on first observation
// and carried over untouched afterwards.
func (t *Tracker) applyObservation(ctx context.Context, logger *slog.Logger, obs domain.MatchObservation) (domain.MatchRecord, error) {
	seriesID, created, err := t.resolver.Resolve(ctx, obs)
	if err != nil {
		return domain.MatchRecord{}, err
	}

	status := domain.MatchStatusGame
	if obs.Duration == 0 {
		status = domain.MatchStatusDraft
	}

	rec := domain.MatchRecord{
		MatchID:         obs.MatchID,
		SeriesID:        seriesID,
		LeagueID:        obs.LeagueID,
		Radiant:         domain.TeamRef{TeamID: obs.Radiant.TeamID, Name: obs.Radiant.Name},
		Dire:            domain.TeamRef{TeamID: obs.Dire.TeamID, Name: obs.Dire.Name},
		RadiantRoster:   obs.Radiant.AccountIDs(),
		DireRoster:      obs.Dire.AccountIDs(),
		RadiantScore:    obs.RadiantScore,
		DireScore:       obs.DireScore,
		TotalKills:      obs.RadiantScore + obs.DireScore,
		Duration:        obs.Duration,
		RadiantNetWorth: obs.Radiant.NetWorth,
		DireNetWorth:    obs.Dire.NetWorth,
		GameNumber:      obs.GameNumber(),
		Status:          status,
		ObservedAt:      obs.ObservedAt,
	}

	prev, err := t.store.GetMatch(ctx, obs.MatchID)
	switch {
	case err == nil:
		if prev.Status == domain.MatchStatusFinished {
			// Finished records only accept backfill, not live rewrites.
			return prev, nil
		}
		rec.GameNumber = prev.GameNumber
		rec.ObservedAt = prev.ObservedAt
		if prev.Status == domain.MatchStatusDraft && rec.Status == domain.MatchStatusGame {
			logger.Info("draft phase ended",
				slog.String("match_id", rec.MatchID),
				slog.String("series_id", seriesID),
			)
			t.notifyMatchStarted(ctx, rec, seriesID)
		}
	case errors.Is(err, domain.ErrNotFound):
		if created {
			logger.Info("tracking new match",
				slog.String("match_id", rec.MatchID),
				slog.String("series_id", seriesID),
				slog.Int("game_number", rec.GameNumber),
			)
		}
	default:
		return domain.MatchRecord{}, err
	}

	if err := t.store.UpsertMatch(ctx, rec); err != nil {
		return domain.MatchRecord{}, err
	}
	t.publishMatch(ctx, logger, rec)
	return rec, nil
}

// detectVanished finds live-tier matches that were not reported this cycle
// and are not finished, and enqueues them for enrichment.
func (t *Tracker) detectVanished(ctx context.Context, logger *slog.Logger, seen map[string]struct{}) {
	tracked, err := t.store.ListLiveMatches(ctx)
	if err != nil {
		logger.Error("listing live matches failed", slog.String("error", err.Error()))
		return
	}
	for _, rec := range tracked {
		if rec.Status == domain.MatchStatusFinished {
			continue
		}
		if _, ok := seen[rec.MatchID]; ok {
			continue
		}
		logger.Info("match vanished from feed",
			slog.String("match_id", rec.MatchID),
			slog.String("series_id", rec.SeriesID),
		)
		if err := t.queue.Enqueue(ctx, rec.MatchID); err != nil {
			logger.Error("enqueue failed",
				slog.String("match_id", rec.MatchID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// afterFinish handles series-level consequences of a finished match.
func (t *Tracker) afterFinish(ctx context.Context, logger *slog.Logger, ser domain.Series) {
	if ser.SeriesID == "" || !ser.Concluded() {
		return
	}
	if err := t.store.PromoteSeries(ctx, ser.SeriesID); err != nil {
		logger.Error("series promotion failed",
			slog.String("series_id", ser.SeriesID),
			slog.String("error", err.Error()),
		)
	}
	winner, _ := ser.WinnerRef()
	t.notify(ctx, domain.Notification{
		Event:    domain.EventSeriesConcluded,
		SeriesID: ser.SeriesID,
		LeagueID: ser.LeagueID,
		Format:   ser.Format,
		TeamOne:  ser.TeamOne.Name,
		TeamTwo:  ser.TeamTwo.Name,
		WinsOne:  ser.WinsOne,
		WinsTwo:  ser.WinsTwo,
		Winner:   winner.Name,
	})
}

func (t *Tracker) publishMatch(ctx context.Context, logger *slog.Logger, rec domain.MatchRecord) {
	if t.bus == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := t.bus.Publish(ctx, ChannelMatchUpdates, payload); err != nil {
		logger.Debug("match publish failed", slog.String("error", err.Error()))
	}
}

func (t *Tracker) publishSeries(ctx context.Context, logger *slog.Logger, touched map[string]struct{}) {
	if t.bus == nil {
		return
	}
	for seriesID := range touched {
		ser, err := t.store.GetSeries(ctx, seriesID)
		if err != nil {
			continue
		}
		payload, err := json.Marshal(ser)
		if err != nil {
			continue
		}
		if err := t.bus.Publish(ctx, ChannelSeriesUpdates, payload); err != nil {
			logger.Debug("series publish failed", slog.String("error", err.Error()))
		}
	}
}

func (t *Tracker) notify(ctx context.Context, n domain.Notification) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(ctx, n); err != nil {
		t.logger.Warn("notification failed",
			slog.String("event", n.Event),
			slog.String("error", err.Error()),
		)
	}
}

// notifyMatchStarted announces a match leaving the draft phase, pulling the
// series record for the current score and format.
func (t *Tracker) notifyMatchStarted(ctx context.Context, rec domain.MatchRecord, seriesID string) {
	if t.notifier == nil {
		return
	}
	n := domain.Notification{
		Event:      domain.EventMatchStarted,
		SeriesID:   seriesID,
		LeagueID:   rec.LeagueID,
		TeamOne:    rec.Radiant.Name,
		TeamTwo:    rec.Dire.Name,
		MatchID:    rec.MatchID,
		GameNumber: rec.GameNumber,
	}
	if ser, err := t.store.GetSeries(ctx, seriesID); err == nil {
		n.Format = ser.Format
		n.TeamOne = ser.TeamOne.Name
		n.TeamTwo = ser.TeamTwo.Name
		n.WinsOne = ser.WinsOne
		n.WinsTwo = ser.WinsTwo
	}
	t.notify(ctx, n)
}
