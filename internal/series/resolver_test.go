package series

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lmercier/dotatracker/internal/cache/memory"
	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/tiered"
)

func newTestResolver(t *testing.T) (*Resolver, *tiered.Store) {
	t.Helper()
	store := tiered.New(tiered.Config{
		Matches:     memory.NewMatchCache(),
		Series:      memory.NewSeriesCache(),
		Index:       memory.NewSeriesIndex(),
		MatchStore:  memory.NewMatchStore(),
		SeriesStore: memory.NewSeriesStore(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return NewResolver(store, DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func roster(ids ...string) []domain.Player {
	players := make([]domain.Player, len(ids))
	for i, id := range ids {
		players[i] = domain.Player{AccountID: id}
	}
	return players
}

func observation(matchID string, radiant, dire []domain.Player) domain.MatchObservation {
	return domain.MatchObservation{
		MatchID:    matchID,
		LeagueID:   "500",
		Radiant:    domain.TeamSlot{TeamID: "10", Name: "Alpha", Players: radiant},
		Dire:       domain.TeamSlot{TeamID: "20", Name: "Beta", Players: dire},
		Duration:   120,
		Format:     domain.FormatBestOf3,
		ObservedAt: time.Now().UTC(),
	}
}

// seedGame resolves an observation and writes its match record, i.e. what
// one tracker cycle does for a single match.
func seedGame(t *testing.T, r *Resolver, store *tiered.Store, obs domain.MatchObservation, finished bool) string {
	t.Helper()
	ctx := context.Background()
	seriesID, _, err := r.Resolve(ctx, obs)
	if err != nil {
		t.Fatalf("resolve %s: %v", obs.MatchID, err)
	}
	rec := domain.MatchRecord{
		MatchID:       obs.MatchID,
		SeriesID:      seriesID,
		LeagueID:      obs.LeagueID,
		Radiant:       domain.TeamRef{TeamID: obs.Radiant.TeamID, Name: obs.Radiant.Name},
		Dire:          domain.TeamRef{TeamID: obs.Dire.TeamID, Name: obs.Dire.Name},
		RadiantRoster: obs.Radiant.AccountIDs(),
		DireRoster:    obs.Dire.AccountIDs(),
		GameNumber:    obs.GameNumber(),
		Status:        domain.MatchStatusGame,
		ObservedAt:    obs.ObservedAt,
	}
	if finished {
		rec.Status = domain.MatchStatusFinished
		side := domain.SideRadiant
		rec.Winner = &side
	}
	if err := store.UpsertMatch(ctx, rec); err != nil {
		t.Fatalf("upsert %s: %v", obs.MatchID, err)
	}
	return seriesID
}

func TestResolveMintsNewSeries(t *testing.T) {
	r, _ := newTestResolver(t)

	obs := observation("111", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seriesID, created, err := r.Resolve(context.Background(), obs)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !created {
		t.Error("expected a freshly minted series")
	}
	if seriesID != "s_111" {
		t.Errorf("expected s_111, got %s", seriesID)
	}
}

func TestResolveExactContinuation(t *testing.T) {
	r, store := newTestResolver(t)

	obs := observation("111", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seedGame(t, r, store, obs, false)

	// The same match resolved again must hit the index, not the heuristic.
	seriesID, created, err := r.Resolve(context.Background(), obs)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if created {
		t.Error("re-resolving a known match must not mint")
	}
	if seriesID != "s_111" {
		t.Errorf("expected s_111, got %s", seriesID)
	}
}

func TestResolveJoinsByRosterOverlap(t *testing.T) {
	r, store := newTestResolver(t)

	game1 := observation("111", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seedGame(t, r, store, game1, true)

	// Game two: three of five players per side carry over.
	game2 := observation("222", roster("1", "2", "3", "40", "50"), roster("6", "7", "8", "90", "110"))
	game2.DireSeriesWins = 1
	seriesID, created, err := r.Resolve(context.Background(), game2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if created {
		t.Error("expected continuation, got a new series")
	}
	if seriesID != "s_111" {
		t.Errorf("expected s_111, got %s", seriesID)
	}

	ser, err := store.GetSeries(context.Background(), "s_111")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	if !ser.HasMatch("222") {
		t.Errorf("expected 222 attached, members %v", ser.MatchIDs)
	}
}

func TestResolveJoinsWithSwappedSides(t *testing.T) {
	r, store := newTestResolver(t)

	game1 := observation("111", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seedGame(t, r, store, game1, true)

	// Sides flip between games of the same series.
	game2 := observation("222", roster("6", "7", "8", "9", "100"), roster("1", "2", "3", "4", "5"))
	seriesID, created, err := r.Resolve(context.Background(), game2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if created || seriesID != "s_111" {
		t.Errorf("expected swapped-side continuation of s_111, got %s created=%v", seriesID, created)
	}
}

func TestResolveLowOverlapMintsNew(t *testing.T) {
	r, store := newTestResolver(t)

	game1 := observation("111", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seedGame(t, r, store, game1, true)

	// Only two of five shared per side: below the 0.6 threshold.
	other := observation("222", roster("1", "2", "30", "40", "50"), roster("6", "7", "80", "90", "110"))
	seriesID, created, err := r.Resolve(context.Background(), other)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !created {
		t.Error("expected a new series for a different lineup")
	}
	if seriesID != "s_222" {
		t.Errorf("expected s_222, got %s", seriesID)
	}
}

func TestResolveSkipsSimilarityForSmallRosters(t *testing.T) {
	r, store := newTestResolver(t)

	game1 := observation("111", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seedGame(t, r, store, game1, true)

	// Identical players, but only two identifiable per side. Anonymous
	// accounts come through with empty ids and do not count.
	anon := []domain.Player{{AccountID: "1"}, {AccountID: "2"}, {}, {}, {}}
	anonDire := []domain.Player{{AccountID: "6"}, {AccountID: "7"}, {}, {}, {}}
	game2 := observation("222", anon, anonDire)
	seriesID, created, err := r.Resolve(context.Background(), game2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !created {
		t.Error("too few identifiable players must skip similarity and mint")
	}
	if seriesID != "s_222" {
		t.Errorf("expected s_222, got %s", seriesID)
	}
}

func TestResolveTiebreakPrefersClosestMatchID(t *testing.T) {
	r, store := newTestResolver(t)

	// Two series with the same rosters, anchored at different match ids.
	far := observation("100000", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seedGame(t, r, store, far, true)
	near := observation("199000", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	// Force a second series despite matching rosters by minting directly.
	nearID := domain.NewSeriesID(near.MatchID)
	if err := store.UpsertSeries(context.Background(), domain.Series{
		SeriesID: nearID,
		LeagueID: near.LeagueID,
		TeamOne:  domain.TeamRef{TeamID: "10", Name: "Alpha"},
		TeamTwo:  domain.TeamRef{TeamID: "20", Name: "Beta"},
		MatchIDs: []string{near.MatchID},
		Format:   near.Format,
	}); err != nil {
		t.Fatalf("seed near series: %v", err)
	}
	rec := domain.MatchRecord{
		MatchID:       near.MatchID,
		SeriesID:      nearID,
		LeagueID:      near.LeagueID,
		RadiantRoster: near.Radiant.AccountIDs(),
		DireRoster:    near.Dire.AccountIDs(),
		Status:        domain.MatchStatusFinished,
		GameNumber:    1,
	}
	side := domain.SideRadiant
	rec.Winner = &side
	if err := store.UpsertMatch(context.Background(), rec); err != nil {
		t.Fatalf("seed near match: %v", err)
	}

	obs := observation("200000", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seriesID, created, err := r.Resolve(context.Background(), obs)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if created {
		t.Fatal("expected continuation, got a new series")
	}
	if seriesID != nearID {
		t.Errorf("expected the closer series %s, got %s", nearID, seriesID)
	}
}

func TestResolveRejectsDistantMatchIDs(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxIDDistance = 1000
	store := tiered.New(tiered.Config{
		Matches:     memory.NewMatchCache(),
		Series:      memory.NewSeriesCache(),
		Index:       memory.NewSeriesIndex(),
		MatchStore:  memory.NewMatchStore(),
		SeriesStore: memory.NewSeriesStore(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	r := NewResolver(store, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))

	game1 := observation("111", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seedGame(t, r, store, game1, true)

	// Same rosters but the id gap exceeds the cap.
	distant := observation("999999", roster("1", "2", "3", "4", "5"), roster("6", "7", "8", "9", "100"))
	seriesID, created, err := r.Resolve(context.Background(), distant)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !created || seriesID != "s_999999" {
		t.Errorf("expected a new series beyond the id distance cap, got %s created=%v", seriesID, created)
	}
}

func TestOverlapFraction(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"1", "2", "3"}, []string{"1", "2", "3"}, 1.0},
		{"disjoint", []string{"1", "2"}, []string{"3", "4"}, 0},
		{"partial", []string{"1", "2", "3", "4", "5"}, []string{"1", "2", "3", "9", "10"}, 0.6},
		{"empty", nil, []string{"1"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := overlap(tc.a, tc.b); got != tc.want {
				t.Errorf("overlap(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestIDDistance(t *testing.T) {
	if got := idDistance("100", "250"); got != 150 {
		t.Errorf("expected 150, got %d", got)
	}
	if got := idDistance("250", "100"); got != 150 {
		t.Errorf("expected symmetric 150, got %d", got)
	}
	if got := idDistance("abc", "100"); got <= 1_000_000 {
		t.Errorf("non-numeric ids must be maximally distant, got %d", got)
	}
}
