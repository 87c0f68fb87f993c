package tiered

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lmercier/dotatracker/internal/cache/memory"
	"github.com/lmercier/dotatracker/internal/domain"
)

type fixture struct {
	store      *Store
	matchCache *memory.MatchCache
	matchStore *memory.MatchStore
}

func newFixture() *fixture {
	matchCache := memory.NewMatchCache()
	matchStore := memory.NewMatchStore()
	store := New(Config{
		Matches:     matchCache,
		Series:      memory.NewSeriesCache(),
		Index:       memory.NewSeriesIndex(),
		MatchStore:  matchStore,
		SeriesStore: memory.NewSeriesStore(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{store: store, matchCache: matchCache, matchStore: matchStore}
}

func sidePtr(s domain.Side) *domain.Side {
	return &s
}

func liveMatch(matchID, seriesID string, game int) domain.MatchRecord {
	return domain.MatchRecord{
		MatchID:       matchID,
		SeriesID:      seriesID,
		Radiant:       domain.TeamRef{TeamID: "10", Name: "Alpha"},
		Dire:          domain.TeamRef{TeamID: "20", Name: "Beta"},
		RadiantRoster: []string{"1", "2", "3", "4", "5"},
		DireRoster:    []string{"6", "7", "8", "9", "100"},
		GameNumber:    game,
		Status:        domain.MatchStatusGame,
		ObservedAt:    time.Now().UTC(),
	}
}

func TestUpsertMatchIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := liveMatch("111", "s_111", 1)
	rec.RadiantScore = 5
	if err := f.store.UpsertMatch(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := f.store.UpsertMatch(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	live, err := f.store.ListLiveMatches(ctx)
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("expected 1 live match, got %d", len(live))
	}
	if live[0].RadiantScore != 5 {
		t.Errorf("expected radiant score 5, got %d", live[0].RadiantScore)
	}
}

func TestGetMatchTierOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	historical := liveMatch("111", "s_111", 1)
	historical.Status = domain.MatchStatusFinished
	historical.RadiantScore = 10
	if err := f.matchStore.Upsert(ctx, historical); err != nil {
		t.Fatalf("seed historical: %v", err)
	}

	// The historical copy is visible while the live tier has nothing.
	got, err := f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RadiantScore != 10 {
		t.Errorf("expected historical copy, got score %d", got.RadiantScore)
	}

	// A live copy shadows it.
	shadow := liveMatch("111", "s_111", 1)
	shadow.RadiantScore = 3
	if err := f.matchCache.Set(ctx, shadow); err != nil {
		t.Fatalf("seed live: %v", err)
	}
	got, err = f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RadiantScore != 3 {
		t.Errorf("expected live copy to win, got score %d", got.RadiantScore)
	}

	if _, err := f.store.GetMatch(ctx, "999"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown match, got %v", err)
	}
}

func TestPromoteMatchRequiresFinished(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.store.UpsertMatch(ctx, liveMatch("111", "s_111", 1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := f.store.PromoteMatch(ctx, "111"); !errors.Is(err, domain.ErrIncomplete) {
		t.Errorf("expected ErrIncomplete promoting a running match, got %v", err)
	}
}

func TestPromoteMatchKeepsLiveCopy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := liveMatch("111", "s_111", 1)
	rec.Status = domain.MatchStatusFinished
	rec.Winner = sidePtr(domain.SideRadiant)
	if err := f.store.UpsertMatch(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := f.store.PromoteMatch(ctx, "111"); err != nil {
		t.Fatalf("promote: %v", err)
	}

	if _, err := f.matchStore.GetByID(ctx, "111"); err != nil {
		t.Errorf("expected historical copy after promotion, got %v", err)
	}
	if _, err := f.matchCache.Get(ctx, "111"); err != nil {
		t.Errorf("expected live copy to survive promotion, got %v", err)
	}
}

func TestUpsertRoutesBackfillToHistorical(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec := liveMatch("111", "s_111", 1)
	rec.Status = domain.MatchStatusFinished
	rec.Winner = sidePtr(domain.SideRadiant)
	if err := f.store.UpsertMatch(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := f.store.PromoteMatch(ctx, "111"); err != nil {
		t.Fatalf("promote: %v", err)
	}

	rec.RadiantNetWorth = 42_000
	if err := f.store.UpsertMatch(ctx, rec); err != nil {
		t.Fatalf("backfill upsert: %v", err)
	}

	durable, err := f.matchStore.GetByID(ctx, "111")
	if err != nil {
		t.Fatalf("historical get: %v", err)
	}
	if durable.RadiantNetWorth != 42_000 {
		t.Errorf("expected backfill on the durable copy, got net worth %d", durable.RadiantNetWorth)
	}
}

func TestRefreshSeriesWinsRecomputes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ser := domain.Series{
		SeriesID: "s_111",
		TeamOne:  domain.TeamRef{TeamID: "10", Name: "Alpha"},
		TeamTwo:  domain.TeamRef{TeamID: "20", Name: "Beta"},
		MatchIDs: []string{"111", "222", "333"},
		Format:   domain.FormatBestOf3,
	}
	if err := f.store.UpsertSeries(ctx, ser); err != nil {
		t.Fatalf("upsert series: %v", err)
	}

	g1 := liveMatch("111", "s_111", 1)
	g1.Status = domain.MatchStatusFinished
	g1.Winner = sidePtr(domain.SideRadiant) // Alpha
	g2 := liveMatch("222", "s_111", 2)
	g2.Status = domain.MatchStatusFinished
	g2.Winner = sidePtr(domain.SideDire) // Beta
	g3 := liveMatch("333", "s_111", 3)   // still running
	for _, rec := range []domain.MatchRecord{g1, g2, g3} {
		if err := f.store.UpsertMatch(ctx, rec); err != nil {
			t.Fatalf("upsert %s: %v", rec.MatchID, err)
		}
	}

	got, err := f.store.RefreshSeriesWins(ctx, "s_111")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got.WinsOne != 1 || got.WinsTwo != 1 {
		t.Errorf("expected 1-1, got %d-%d", got.WinsOne, got.WinsTwo)
	}

	// Refreshing again must not double-count.
	got, err = f.store.RefreshSeriesWins(ctx, "s_111")
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if got.WinsOne != 1 || got.WinsTwo != 1 {
		t.Errorf("expected replay-stable 1-1, got %d-%d", got.WinsOne, got.WinsTwo)
	}
}

func TestFinishMatchRefusesWithoutWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.store.FinishMatch(ctx, liveMatch("111", "s_111", 1)); !errors.Is(err, domain.ErrIncomplete) {
		t.Errorf("expected ErrIncomplete, got %v", err)
	}
}

func TestFinishMatchUpdatesSeries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ser := domain.Series{
		SeriesID: "s_111",
		TeamOne:  domain.TeamRef{TeamID: "10", Name: "Alpha"},
		TeamTwo:  domain.TeamRef{TeamID: "20", Name: "Beta"},
		MatchIDs: []string{"111"},
		Format:   domain.FormatBestOf1,
	}
	if err := f.store.UpsertSeries(ctx, ser); err != nil {
		t.Fatalf("upsert series: %v", err)
	}
	rec := liveMatch("111", "s_111", 1)
	if err := f.store.UpsertMatch(ctx, rec); err != nil {
		t.Fatalf("upsert match: %v", err)
	}

	rec.Winner = sidePtr(domain.SideDire)
	got, err := f.store.FinishMatch(ctx, rec)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got.WinsOne != 0 || got.WinsTwo != 1 {
		t.Errorf("expected 0-1, got %d-%d", got.WinsOne, got.WinsTwo)
	}
	if !got.Concluded() {
		t.Error("best-of-1 series should be concluded after one finish")
	}

	stored, err := f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.MatchStatusFinished {
		t.Errorf("expected finished status, got %s", stored.Status)
	}
}

func TestSeriesMatchesOrderedByGameNumber(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ser := domain.Series{
		SeriesID: "s_111",
		TeamOne:  domain.TeamRef{TeamID: "10"},
		TeamTwo:  domain.TeamRef{TeamID: "20"},
		MatchIDs: []string{"333", "111", "222"},
		Format:   domain.FormatBestOf3,
	}
	if err := f.store.UpsertSeries(ctx, ser); err != nil {
		t.Fatalf("upsert series: %v", err)
	}
	for i, id := range []string{"333", "111", "222"} {
		rec := liveMatch(id, "s_111", 3-i)
		if err := f.store.UpsertMatch(ctx, rec); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	got, err := f.store.SeriesMatches(ctx, "s_111")
	if err != nil {
		t.Fatalf("series matches: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	for i, rec := range got {
		if rec.GameNumber != i+1 {
			t.Errorf("position %d: expected game %d, got %d", i, i+1, rec.GameNumber)
		}
	}
}

func TestAttachMatchIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ser := domain.Series{
		SeriesID: "s_111",
		MatchIDs: []string{"111"},
	}
	if err := f.store.UpsertSeries(ctx, ser); err != nil {
		t.Fatalf("upsert series: %v", err)
	}
	if err := f.store.AttachMatch(ctx, "s_111", "222"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := f.store.AttachMatch(ctx, "s_111", "222"); err != nil {
		t.Fatalf("second attach: %v", err)
	}

	got, err := f.store.GetSeries(ctx, "s_111")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	if len(got.MatchIDs) != 2 {
		t.Errorf("expected 2 members, got %v", got.MatchIDs)
	}
	seriesID, err := f.store.SeriesOfMatch(ctx, "222")
	if err != nil || seriesID != "s_111" {
		t.Errorf("expected index entry s_111, got %q err %v", seriesID, err)
	}
}

func TestAttachMatchSurvivesConcurrentRefresh(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ser := domain.Series{
		SeriesID: "s_111",
		TeamOne:  domain.TeamRef{TeamID: "10", Name: "Alpha"},
		TeamTwo:  domain.TeamRef{TeamID: "20", Name: "Beta"},
		MatchIDs: []string{"111"},
		Format:   domain.FormatBestOf3,
	}
	if err := f.store.UpsertSeries(ctx, ser); err != nil {
		t.Fatalf("upsert series: %v", err)
	}
	g1 := liveMatch("111", "s_111", 1)
	g1.Status = domain.MatchStatusFinished
	g1.Winner = sidePtr(domain.SideRadiant)
	if err := f.store.UpsertMatch(ctx, g1); err != nil {
		t.Fatalf("upsert match: %v", err)
	}

	// An enrichment refresh loops against the series while the next games
	// are being attached, the way the poll loop and the retry tick run.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if _, err := f.store.RefreshSeriesWins(ctx, "s_111"); err != nil {
				t.Errorf("refresh: %v", err)
				return
			}
		}
	}()

	const attached = 500
	for i := 0; i < attached; i++ {
		matchID := fmt.Sprintf("%d", 1000+i)
		if err := f.store.AttachMatch(ctx, "s_111", matchID); err != nil {
			t.Fatalf("attach %s: %v", matchID, err)
		}
	}
	<-done

	got, err := f.store.GetSeries(ctx, "s_111")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	if len(got.MatchIDs) != attached+1 {
		t.Fatalf("expected %d match ids, got %d", attached+1, len(got.MatchIDs))
	}
	if got.WinsOne != 1 || got.WinsTwo != 0 {
		t.Errorf("expected 1-0, got %d-%d", got.WinsOne, got.WinsTwo)
	}
}
