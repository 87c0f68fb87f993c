// Package series decides which series a live match observation belongs to.
// Grouping is heuristic: the feed reports matches one at a time with no
// series identifier, so continuity is inferred from roster overlap between
// the new observation and recently updated series.
package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// Options tune the correlation heuristic. The defaults reproduce the
// empirically tuned values the tracker has always run with; they are
// configurable but there is no derivation behind them beyond field use.
type Options struct {
	// OverlapThreshold is the minimum fraction of a side's roster that
	// must be shared for two matches to count as the same series.
	OverlapThreshold float64
	// MinRosterSize is the minimum number of identifiable players per
	// side required before roster matching is attempted at all.
	MinRosterSize int
	// RecencyWindow bounds how far back candidate series are considered.
	RecencyWindow time.Duration
	// MaxIDDistance bounds the numeric distance between match ids that
	// can still belong to the same series. Match ids are issued
	// monotonically, so a huge gap means different events.
	MaxIDDistance int64
}

// DefaultOptions returns the standard heuristic parameters.
func DefaultOptions() Options {
	return Options{
		OverlapThreshold: 0.6,
		MinRosterSize:    3,
		RecencyWindow:    24 * time.Hour,
		MaxIDDistance:    1_000_000,
	}
}

// Resolver assigns series identities to match observations.
type Resolver struct {
	store  *tiered.Store
	opts   Options
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given tiered store.
func NewResolver(store *tiered.Store, opts Options, logger *slog.Logger) *Resolver {
	if opts.OverlapThreshold <= 0 {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		opts:   opts,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// Resolve returns the series id the observation belongs to, creating a new
// series when no existing one qualifies. The second return value reports
// whether a new series was minted.
//
// Resolution order: exact continuation via the match index, then roster
// similarity against recently updated series, then a fresh series. A roster
// with too few identifiable players per side skips the similarity step
// entirely; an extra series is cheaper than a wrong merge.
func (r *Resolver) Resolve(ctx context.Context, obs domain.MatchObservation) (string, bool, error) {
	seriesID, err := r.store.SeriesOfMatch(ctx, obs.MatchID)
	if err == nil {
		return seriesID, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", false, fmt.Errorf("series: resolve %s: %w", obs.MatchID, err)
	}

	radiant := obs.Radiant.AccountIDs()
	dire := obs.Dire.AccountIDs()
	if len(radiant) >= r.opts.MinRosterSize && len(dire) >= r.opts.MinRosterSize {
		seriesID, found, err := r.findByRosterOverlap(ctx, obs, radiant, dire)
		if err != nil {
			return "", false, err
		}
		if found {
			if err := r.store.AttachMatch(ctx, seriesID, obs.MatchID); err != nil {
				return "", false, fmt.Errorf("series: attach %s to %s: %w", obs.MatchID, seriesID, err)
			}
			r.logger.Info("match joined existing series",
				slog.String("match_id", obs.MatchID),
				slog.String("series_id", seriesID),
			)
			return seriesID, false, nil
		}
	} else {
		r.logger.Debug("roster too small for similarity matching",
			slog.String("match_id", obs.MatchID),
			slog.Int("radiant_known", len(radiant)),
			slog.Int("dire_known", len(dire)),
		)
	}

	seriesID, err = r.mint(ctx, obs)
	if err != nil {
		return "", false, err
	}
	return seriesID, true, nil
}

// findByRosterOverlap scans series updated within the recency window and
// returns the best candidate whose last member match shares enough of both
// rosters, under either side assignment. Sides swap between games of a
// series, so direct and swapped mappings are both accepted. Ties are broken
// by the smallest match-id distance, a proxy for closeness in time.
func (r *Resolver) findByRosterOverlap(ctx context.Context, obs domain.MatchObservation, radiant, dire []string) (string, bool, error) {
	since := obs.ObservedAt.Add(-r.opts.RecencyWindow)
	candidates, err := r.store.ListRecentSeries(ctx, since)
	if err != nil {
		return "", false, fmt.Errorf("series: list candidates: %w", err)
	}

	bestID := ""
	bestDistance := int64(math.MaxInt64)
	for _, cand := range candidates {
		if cand.HasMatch(obs.MatchID) {
			return cand.SeriesID, true, nil
		}
		if obs.LeagueID != "" && cand.LeagueID != "" && cand.LeagueID != obs.LeagueID {
			continue
		}
		last, err := r.lastMemberMatch(ctx, cand)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return "", false, err
		}
		if len(last.RadiantRoster) < r.opts.MinRosterSize || len(last.DireRoster) < r.opts.MinRosterSize {
			continue
		}

		direct := overlap(radiant, last.RadiantRoster) >= r.opts.OverlapThreshold &&
			overlap(dire, last.DireRoster) >= r.opts.OverlapThreshold
		swapped := overlap(radiant, last.DireRoster) >= r.opts.OverlapThreshold &&
			overlap(dire, last.RadiantRoster) >= r.opts.OverlapThreshold
		if !direct && !swapped {
			continue
		}

		dist := idDistance(obs.MatchID, last.MatchID)
		if dist > r.opts.MaxIDDistance {
			r.logger.Debug("candidate rejected on id distance",
				slog.String("match_id", obs.MatchID),
				slog.String("series_id", cand.SeriesID),
				slog.Int64("distance", dist),
			)
			continue
		}
		if dist < bestDistance {
			bestID = cand.SeriesID
			bestDistance = dist
		}
	}
	return bestID, bestID != "", nil
}

// lastMemberMatch returns the most recently attached member match record.
func (r *Resolver) lastMemberMatch(ctx context.Context, ser domain.Series) (domain.MatchRecord, error) {
	for i := len(ser.MatchIDs) - 1; i >= 0; i-- {
		rec, err := r.store.GetMatch(ctx, ser.MatchIDs[i])
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.MatchRecord{}, err
		}
	}
	return domain.MatchRecord{}, domain.ErrNotFound
}

// mint creates a new series anchored to the observation's sides. The id is
// derived from the match id, so re-observing the same first match always
// yields the same series.
func (r *Resolver) mint(ctx context.Context, obs domain.MatchObservation) (string, error) {
	seriesID := domain.NewSeriesID(obs.MatchID)
	ser := domain.Series{
		SeriesID: seriesID,
		LeagueID: obs.LeagueID,
		TeamOne:  domain.TeamRef{TeamID: obs.Radiant.TeamID, Name: obs.Radiant.Name},
		TeamTwo:  domain.TeamRef{TeamID: obs.Dire.TeamID, Name: obs.Dire.Name},
		MatchIDs: []string{obs.MatchID},
		Format:   obs.Format,
	}
	if err := r.store.UpsertSeries(ctx, ser); err != nil {
		return "", fmt.Errorf("series: mint %s: %w", seriesID, err)
	}
	r.logger.Info("new series minted",
		slog.String("series_id", seriesID),
		slog.String("match_id", obs.MatchID),
		slog.String("team_one", ser.TeamOne.Name),
		slog.String("team_two", ser.TeamTwo.Name),
	)
	return seriesID, nil
}

// overlap returns the fraction of roster a's players also present in b.
func overlap(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	shared := 0
	for _, id := range a {
		if _, ok := set[id]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a))
}

// idDistance returns the absolute numeric distance between two match ids.
// Non-numeric ids yield the maximum distance, which disqualifies them from
// the cap check but never panics.
func idDistance(a, b string) int64 {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return math.MaxInt64
	}
	d := ai - bi
	if d < 0 {
		d = -d
	}
	return d
}
