package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lmercier/dotatracker/internal/cache/memory"
	"github.com/lmercier/dotatracker/internal/domain"
	"github.com/lmercier/dotatracker/internal/enrich"
	"github.com/lmercier/dotatracker/internal/series"
	"github.com/lmercier/dotatracker/internal/tiered"
)

// scriptedFeed returns one canned batch of observations per poll.
type scriptedFeed struct {
	batches [][]domain.MatchObservation
	polls   int
}

func (f *scriptedFeed) Poll(_ context.Context) ([]domain.MatchObservation, error) {
	if f.polls >= len(f.batches) {
		return nil, nil
	}
	batch := f.batches[f.polls]
	f.polls++
	return batch, nil
}

type scriptedDetail struct {
	recs map[string]domain.MatchRecord
}

func (d *scriptedDetail) Fetch(_ context.Context, matchID string) (domain.MatchRecord, error) {
	rec, ok := d.recs[matchID]
	if !ok {
		return domain.MatchRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

type fakeNotifier struct {
	events []domain.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.events = append(n.events, note)
	return nil
}

type trackerFixture struct {
	tracker  *Tracker
	store    *tiered.Store
	tasks    *memory.TaskStore
	notifier *fakeNotifier
}

func newTrackerFixture(feed domain.LiveFeed, detail domain.DetailClient) *trackerFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tasks := memory.NewTaskStore()
	store := tiered.New(tiered.Config{
		Matches:     memory.NewMatchCache(),
		Series:      memory.NewSeriesCache(),
		Index:       memory.NewSeriesIndex(),
		MatchStore:  memory.NewMatchStore(),
		SeriesStore: memory.NewSeriesStore(),
		Logger:      logger,
	})
	resolver := series.NewResolver(store, series.DefaultOptions(), logger)
	queue := enrich.NewQueue(tasks, store, detail, enrich.DefaultOptions(), logger)
	notifier := &fakeNotifier{}
	tracker := NewTracker(feed, resolver, store, queue, memory.NewSignalBus(), notifier, logger)
	return &trackerFixture{tracker: tracker, store: store, tasks: tasks, notifier: notifier}
}

func liveObs(matchID string, duration int) domain.MatchObservation {
	return domain.MatchObservation{
		MatchID:  matchID,
		LeagueID: "500",
		Radiant: domain.TeamSlot{
			TeamID: "10", Name: "Alpha",
			Players: []domain.Player{
				{AccountID: "1"}, {AccountID: "2"}, {AccountID: "3"}, {AccountID: "4"}, {AccountID: "5"},
			},
		},
		Dire: domain.TeamSlot{
			TeamID: "20", Name: "Beta",
			Players: []domain.Player{
				{AccountID: "6"}, {AccountID: "7"}, {AccountID: "8"}, {AccountID: "9"}, {AccountID: "100"},
			},
		},
		Duration:   duration,
		Format:     domain.FormatBestOf3,
		ObservedAt: time.Now().UTC(),
	}
}

func TestCycleTracksNewMatch(t *testing.T) {
	feed := &scriptedFeed{batches: [][]domain.MatchObservation{
		{liveObs("111", 600)},
	}}
	f := newTrackerFixture(feed, &scriptedDetail{})
	ctx := context.Background()

	if err := f.tracker.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	rec, err := f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SeriesID != "s_111" {
		t.Errorf("expected series s_111, got %s", rec.SeriesID)
	}
	if rec.GameNumber != 1 {
		t.Errorf("expected game 1, got %d", rec.GameNumber)
	}
	if rec.Status != domain.MatchStatusGame {
		t.Errorf("expected running status, got %s", rec.Status)
	}
}

func TestCycleGameNumberStaysStable(t *testing.T) {
	first := liveObs("111", 600)
	// Later snapshot of the same match after game one was won elsewhere in
	// the series bookkeeping; the feed's win counters moved on.
	later := liveObs("111", 1800)
	later.DireSeriesWins = 1

	feed := &scriptedFeed{batches: [][]domain.MatchObservation{
		{first},
		{later},
	}}
	f := newTrackerFixture(feed, &scriptedDetail{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.tracker.Cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	rec, err := f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.GameNumber != 1 {
		t.Errorf("game number must keep its first-observation value, got %d", rec.GameNumber)
	}
	if rec.Duration != 1800 {
		t.Errorf("expected refreshed duration 1800, got %d", rec.Duration)
	}
}

func TestCycleDraftTransitionNotifies(t *testing.T) {
	draft := liveObs("111", 0)
	running := liveObs("111", 90)

	feed := &scriptedFeed{batches: [][]domain.MatchObservation{
		{draft},
		{running},
	}}
	f := newTrackerFixture(feed, &scriptedDetail{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.tracker.Cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	rec, err := f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != domain.MatchStatusGame {
		t.Errorf("expected game status after draft, got %s", rec.Status)
	}
	found := false
	for _, ev := range f.notifier.events {
		if ev.Event == domain.EventMatchStarted {
			found = true
			if ev.GameNumber != 1 {
				t.Errorf("expected game 1 in notification, got %d", ev.GameNumber)
			}
			if ev.TeamOne != "Alpha" || ev.TeamTwo != "Beta" {
				t.Errorf("expected Alpha vs Beta, got %q vs %q", ev.TeamOne, ev.TeamTwo)
			}
		}
	}
	if !found {
		t.Errorf("expected %s notification, got %v", domain.EventMatchStarted, f.notifier.events)
	}
}

func TestCycleSecondGameJoinsSeries(t *testing.T) {
	game1 := liveObs("111", 600)
	game2 := liveObs("222", 300)
	game2.DireSeriesWins = 1

	feed := &scriptedFeed{batches: [][]domain.MatchObservation{
		{game1},
		{game2},
	}}
	f := newTrackerFixture(feed, &scriptedDetail{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.tracker.Cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	rec, err := f.store.GetMatch(ctx, "222")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SeriesID != "s_111" {
		t.Errorf("expected game two in s_111, got %s", rec.SeriesID)
	}
	if rec.GameNumber != 2 {
		t.Errorf("expected game 2, got %d", rec.GameNumber)
	}

	ser, err := f.store.GetSeries(ctx, "s_111")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	if len(ser.MatchIDs) != 2 {
		t.Errorf("expected 2 members, got %v", ser.MatchIDs)
	}
}

func TestCycleFeedOutcomeFinishesMatch(t *testing.T) {
	live := liveObs("111", 600)
	final := liveObs("111", 2400)
	dire := domain.SideDire
	final.Outcome = &dire
	final.RadiantScore = 20
	final.DireScore = 31

	feed := &scriptedFeed{batches: [][]domain.MatchObservation{
		{live},
		{final},
	}}
	f := newTrackerFixture(feed, &scriptedDetail{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.tracker.Cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	rec, err := f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != domain.MatchStatusFinished {
		t.Errorf("expected finished, got %s", rec.Status)
	}
	ser, err := f.store.GetSeries(ctx, "s_111")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	if ser.WinsOne != 0 || ser.WinsTwo != 1 {
		t.Errorf("expected 0-1, got %d-%d", ser.WinsOne, ser.WinsTwo)
	}
}

func TestCycleVanishedMatchEnriched(t *testing.T) {
	detail := &scriptedDetail{recs: map[string]domain.MatchRecord{}}
	live := liveObs("111", 600)

	// Cycle one sees the match, cycle two does not; by then the detail API
	// already has the final result.
	feed := &scriptedFeed{batches: [][]domain.MatchObservation{
		{live},
		{},
	}}
	f := newTrackerFixture(feed, detail)
	ctx := context.Background()

	if err := f.tracker.Cycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}

	dire := domain.SideDire
	detail.recs["111"] = domain.MatchRecord{
		MatchID:      "111",
		RadiantScore: 20,
		DireScore:    31,
		Duration:     2400,
		Winner:       &dire,
		Status:       domain.MatchStatusFinished,
	}
	if err := f.tracker.Cycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}

	rec, err := f.store.GetMatch(ctx, "111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != domain.MatchStatusFinished {
		t.Errorf("expected vanished match backfilled, got %s", rec.Status)
	}
	if rec.Winner == nil || *rec.Winner != domain.SideDire {
		t.Errorf("expected dire winner, got %v", rec.Winner)
	}
	if n, _ := f.tasks.Count(ctx); n != 0 {
		t.Errorf("expected no lingering task after immediate success, got %d", n)
	}

	ser, err := f.store.GetSeries(ctx, "s_111")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	if ser.WinsOne != 0 || ser.WinsTwo != 1 {
		t.Errorf("expected 0-1, got %d-%d", ser.WinsOne, ser.WinsTwo)
	}
}

func TestCycleSeriesConclusionPromotesAndNotifies(t *testing.T) {
	game := liveObs("111", 600)
	game.Format = domain.FormatBestOf1
	final := liveObs("111", 2100)
	final.Format = domain.FormatBestOf1
	radiant := domain.SideRadiant
	final.Outcome = &radiant

	feed := &scriptedFeed{batches: [][]domain.MatchObservation{
		{game},
		{final},
	}}
	f := newTrackerFixture(feed, &scriptedDetail{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.tracker.Cycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	found := false
	for _, ev := range f.notifier.events {
		if ev.Event == domain.EventSeriesConcluded {
			found = true
			if ev.Winner == "" {
				t.Errorf("expected a series winner in notification, got %+v", ev)
			}
		}
	}
	if !found {
		t.Errorf("expected %s notification, got %v", domain.EventSeriesConcluded, f.notifier.events)
	}
}

func TestCyclePollFailureIsNotFatal(t *testing.T) {
	f := newTrackerFixture(failingFeed{}, &scriptedDetail{})
	if err := f.tracker.Cycle(context.Background()); err != nil {
		t.Errorf("poll failure must not fail the cycle: %v", err)
	}
}

type failingFeed struct{}

func (failingFeed) Poll(_ context.Context) ([]domain.MatchObservation, error) {
	return nil, context.DeadlineExceeded
}
