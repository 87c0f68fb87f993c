// Package tiered layers the live cache tier over the historical store tier
// and routes every read and write to the right one. Callers never talk to
// Redis or PostgreSQL directly; they go through Store.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

// Store is the two-tier facade over match and series storage.
//
// The live tier (cache) holds everything currently tracked, including
// finished matches of still-running series. The historical tier (store) only
// receives records through promotion, which is one-way: a promoted match is
// removed from consideration for live mutation but its cached copy stays
// readable until the series itself concludes and is promoted.
type Store struct {
	matches domain.MatchCache
	series  domain.SeriesCache
	index   domain.SeriesIndex

	matchStore  domain.MatchStore
	seriesStore domain.SeriesStore

	keyed  keyedMutex
	locks  domain.LockManager
	logger *slog.Logger
}

// Config collects the tier backends for a Store. Writes to one key are
// always serialized within the process; Locks adds cross-process exclusion
// on top and can stay nil when a single tracker process owns the tiers.
type Config struct {
	Matches domain.MatchCache
	Series  domain.SeriesCache
	Index   domain.SeriesIndex

	MatchStore  domain.MatchStore
	SeriesStore domain.SeriesStore

	Locks  domain.LockManager
	Logger *slog.Logger
}

// New creates a tiered Store from the given backends.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		matches:     cfg.Matches,
		series:      cfg.Series,
		index:       cfg.Index,
		matchStore:  cfg.MatchStore,
		seriesStore: cfg.SeriesStore,
		locks:       cfg.Locks,
		logger:      logger.With(slog.String("component", "tiered")),
	}
}

// keyedMutex hands out one mutex per key so read-modify-write cycles on the
// same match or series never interleave. Entries are reference counted and
// removed once the last holder releases, so the map stays bounded by the
// number of keys under concurrent mutation.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// withLock serializes fn against other writers of the same key. The tracker
// loop and the enrichment tick both mutate series records, so in-process
// exclusion is unconditional; the distributed lock is layered on when a lock
// manager is configured.
func (s *Store) withLock(ctx context.Context, key string, fn func() error) error {
	release := s.keyed.lock(key)
	defer release()

	if s.locks == nil {
		return fn()
	}
	unlock, err := s.locks.Acquire(ctx, key, 10*time.Second)
	if err != nil {
		return fmt.Errorf("tiered: acquire lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

// UpsertMatch replaces the live-tier snapshot of a match. If the match has
// already been promoted to the historical tier, the write is routed there
// instead so late backfill still lands on the durable copy.
func (s *Store) UpsertMatch(ctx context.Context, rec domain.MatchRecord) error {
	return s.withLock(ctx, "match:"+rec.MatchID, func() error {
		rec.UpdatedAt = time.Now().UTC()
		if _, err := s.matchStore.GetByID(ctx, rec.MatchID); err == nil {
			if err := s.matchStore.Upsert(ctx, rec); err != nil {
				return err
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return s.matches.Set(ctx, rec)
	})
}

// GetMatch looks up a match in tier order: live first, then historical.
func (s *Store) GetMatch(ctx context.Context, matchID string) (domain.MatchRecord, error) {
	rec, err := s.matches.Get(ctx, matchID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.MatchRecord{}, err
	}
	return s.matchStore.GetByID(ctx, matchID)
}

// UpsertSeries replaces the live-tier snapshot of a series and keeps the
// match membership index in step with it.
func (s *Store) UpsertSeries(ctx context.Context, ser domain.Series) error {
	return s.withLock(ctx, "series:"+ser.SeriesID, func() error {
		ser.UpdatedAt = time.Now().UTC()
		if ser.CreatedAt.IsZero() {
			ser.CreatedAt = ser.UpdatedAt
		}
		if err := s.series.Set(ctx, ser); err != nil {
			return err
		}
		for _, matchID := range ser.MatchIDs {
			if err := s.index.Put(ctx, matchID, ser.SeriesID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSeries looks up a series in tier order: live first, then historical.
func (s *Store) GetSeries(ctx context.Context, seriesID string) (domain.Series, error) {
	ser, err := s.series.Get(ctx, seriesID)
	if err == nil {
		return ser, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Series{}, err
	}
	return s.seriesStore.GetByID(ctx, seriesID)
}

// SeriesOfMatch resolves a match id to the series it belongs to, if any.
func (s *Store) SeriesOfMatch(ctx context.Context, matchID string) (string, error) {
	return s.index.Get(ctx, matchID)
}

// AttachMatch records matchID as a member of seriesID in both the series
// record and the membership index. Attaching an already attached match is a
// no-op.
func (s *Store) AttachMatch(ctx context.Context, seriesID, matchID string) error {
	return s.withLock(ctx, "series:"+seriesID, func() error {
		ser, err := s.GetSeries(ctx, seriesID)
		if err != nil {
			return err
		}
		if !ser.HasMatch(matchID) {
			ser.MatchIDs = append(ser.MatchIDs, matchID)
			ser.UpdatedAt = time.Now().UTC()
			if err := s.series.Set(ctx, ser); err != nil {
				return err
			}
		}
		return s.index.Put(ctx, matchID, seriesID)
	})
}

// PromoteMatch copies a finished match from the live tier to the historical
// tier. Promotion is one-way; records never move back. The live copy is kept
// so lookups stay cheap while the series is still running.
func (s *Store) PromoteMatch(ctx context.Context, matchID string) error {
	rec, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return fmt.Errorf("tiered: promote match %s: %w", matchID, err)
	}
	if rec.Status != domain.MatchStatusFinished {
		return fmt.Errorf("tiered: promote match %s: %w", matchID, domain.ErrIncomplete)
	}
	if err := s.matchStore.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("tiered: promote match %s: %w", matchID, err)
	}
	s.logger.Info("match promoted to historical tier",
		slog.String("match_id", matchID),
		slog.String("series_id", rec.SeriesID),
	)
	return nil
}

// PromoteSeries copies a concluded series and all of its member matches to
// the historical tier.
func (s *Store) PromoteSeries(ctx context.Context, seriesID string) error {
	ser, err := s.series.Get(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("tiered: promote series %s: %w", seriesID, err)
	}
	for _, matchID := range ser.MatchIDs {
		rec, err := s.matches.Get(ctx, matchID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return fmt.Errorf("tiered: promote series %s: %w", seriesID, err)
		}
		if err := s.matchStore.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("tiered: promote series %s: %w", seriesID, err)
		}
	}
	if err := s.seriesStore.Upsert(ctx, ser); err != nil {
		return fmt.Errorf("tiered: promote series %s: %w", seriesID, err)
	}
	s.logger.Info("series promoted to historical tier",
		slog.String("series_id", seriesID),
		slog.Int("matches", len(ser.MatchIDs)),
	)
	return nil
}

// RefreshSeriesWins recomputes the series win counts from its finished
// member matches and writes the refreshed record back to the live tier. The
// counts are always derived from the members, never patched incrementally,
// so a replayed finish cannot double-count.
func (s *Store) RefreshSeriesWins(ctx context.Context, seriesID string) (domain.Series, error) {
	var out domain.Series
	err := s.withLock(ctx, "series:"+seriesID, func() error {
		ser, err := s.GetSeries(ctx, seriesID)
		if err != nil {
			return err
		}
		winsOne, winsTwo := 0, 0
		for _, matchID := range ser.MatchIDs {
			rec, err := s.GetMatch(ctx, matchID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			winner, ok := rec.WinnerTeam()
			if !ok || rec.Status != domain.MatchStatusFinished {
				continue
			}
			switch winner.TeamID {
			case ser.TeamOne.TeamID:
				winsOne++
			case ser.TeamTwo.TeamID:
				winsTwo++
			default:
				s.logger.Warn("match winner matches neither series team",
					slog.String("series_id", seriesID),
					slog.String("match_id", matchID),
					slog.String("winner_team_id", winner.TeamID),
				)
			}
		}
		ser.WinsOne = winsOne
		ser.WinsTwo = winsTwo
		ser.UpdatedAt = time.Now().UTC()
		if err := s.series.Set(ctx, ser); err != nil {
			return err
		}
		out = ser
		return nil
	})
	return out, err
}

// FinishMatch marks a match finished with the given winner, rewrites the
// live snapshot, refreshes its series win counts and promotes the match.
// It returns the refreshed series so callers can detect conclusion.
func (s *Store) FinishMatch(ctx context.Context, rec domain.MatchRecord) (domain.Series, error) {
	if rec.Winner == nil {
		return domain.Series{}, fmt.Errorf("tiered: finish match %s: no winner: %w", rec.MatchID, domain.ErrIncomplete)
	}
	rec.Status = domain.MatchStatusFinished
	if err := s.UpsertMatch(ctx, rec); err != nil {
		return domain.Series{}, err
	}
	if err := s.PromoteMatch(ctx, rec.MatchID); err != nil {
		return domain.Series{}, err
	}
	if rec.SeriesID == "" {
		return domain.Series{}, nil
	}
	return s.RefreshSeriesWins(ctx, rec.SeriesID)
}

// ListLiveSeries returns all series currently in the live tier, most
// recently updated first.
func (s *Store) ListLiveSeries(ctx context.Context) ([]domain.Series, error) {
	return s.series.List(ctx)
}

// ListRecentSeries returns live-tier series updated at or after since.
func (s *Store) ListRecentSeries(ctx context.Context, since time.Time) ([]domain.Series, error) {
	return s.series.ListRecent(ctx, since)
}

// ListLiveMatches returns all match records currently in the live tier.
func (s *Store) ListLiveMatches(ctx context.Context) ([]domain.MatchRecord, error) {
	return s.matches.List(ctx)
}

// SeriesMatches returns the member matches of a series ordered by game
// number. Each member is looked up in tier order, so a series spanning both
// tiers still returns complete results.
func (s *Store) SeriesMatches(ctx context.Context, seriesID string) ([]domain.MatchRecord, error) {
	ser, err := s.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MatchRecord, 0, len(ser.MatchIDs))
	for _, matchID := range ser.MatchIDs {
		rec, err := s.GetMatch(ctx, matchID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].GameNumber < out[j-1].GameNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}
