package opendota

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

const finishedMatchBody = `{
  "match_id": 7891234567,
  "leagueid": 500,
  "radiant_win": false,
  "duration": 2412,
  "radiant_score": 20,
  "dire_score": 31,
  "radiant_team": {"team_id": 10, "name": "Alpha"},
  "dire_team": {"team_id": 20, "name": "Beta"},
  "players": [
    {"account_id": 101, "player_slot": 0, "kills": 4, "net_worth": 18000},
    {"account_id": 102, "player_slot": 1, "kills": 6, "net_worth": 15000},
    {"account_id": 201, "player_slot": 128, "kills": 10, "total_gold": 22000},
    {"account_id": 0, "player_slot": 129, "kills": 8, "net_worth": 19000}
  ]
}`

func TestFetchFinishedMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/7891234567" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(finishedMatchBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 1)
	rec, err := client.Fetch(context.Background(), "7891234567")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if rec.Winner == nil || *rec.Winner != domain.SideDire {
		t.Errorf("expected dire winner, got %v", rec.Winner)
	}
	if rec.Status != domain.MatchStatusFinished {
		t.Errorf("expected finished, got %s", rec.Status)
	}
	if rec.RadiantScore != 20 || rec.DireScore != 31 {
		t.Errorf("scores: got %d-%d", rec.RadiantScore, rec.DireScore)
	}
	if rec.TotalKills != 51 {
		t.Errorf("total kills: got %d", rec.TotalKills)
	}
	if rec.Duration != 2412 {
		t.Errorf("duration: got %d", rec.Duration)
	}
	if !rec.Complete() {
		t.Error("record with winner, duration and scores must be complete")
	}

	// net_worth falls back to total_gold; anonymous accounts are dropped
	// from the roster but still counted in the team total.
	if rec.RadiantNetWorth != 33000 {
		t.Errorf("radiant net worth: got %d", rec.RadiantNetWorth)
	}
	if rec.DireNetWorth != 41000 {
		t.Errorf("dire net worth: got %d", rec.DireNetWorth)
	}
	if len(rec.RadiantRoster) != 2 || len(rec.DireRoster) != 1 {
		t.Errorf("rosters: got %v / %v", rec.RadiantRoster, rec.DireRoster)
	}
	if rec.LeagueID != "500" {
		t.Errorf("league: got %s", rec.LeagueID)
	}
}

func TestFetchScoresFallBackToKills(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
  "match_id": 1, "radiant_win": true, "duration": 1800,
  "players": [
    {"account_id": 101, "player_slot": 0, "kills": 12},
    {"account_id": 201, "player_slot": 128, "kills": 7}
  ]
}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 1)
	rec, err := client.Fetch(context.Background(), "1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.RadiantScore != 12 || rec.DireScore != 7 {
		t.Errorf("expected kill-sum fallback 12-7, got %d-%d", rec.RadiantScore, rec.DireScore)
	}
}

func TestFetchUnindexedMatchIncomplete(t *testing.T) {
	// radiant_win missing: the match is known but not finished indexing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"match_id": 1, "duration": 0, "players": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 1)
	rec, err := client.Fetch(context.Background(), "1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.Complete() {
		t.Error("record without a winner must not be complete")
	}
	if rec.Status == domain.MatchStatusFinished {
		t.Error("no winner means not finished")
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "{}", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 1)
	_, err := client.Fetch(context.Background(), "42")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "{}", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 1)
	_, err := client.Fetch(context.Background(), "42")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

type recordingLimiter struct {
	limit  int
	window time.Duration
	calls  int
}

func (l *recordingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *recordingLimiter) Wait(_ context.Context, _ string, limit int, window time.Duration) error {
	l.calls++
	l.limit = limit
	l.window = window
	return nil
}

func TestFetchUsesConfiguredRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(finishedMatchBody))
	}))
	defer srv.Close()

	limiter := &recordingLimiter{}
	client := NewClient(srv.URL, limiter, 3)
	if _, err := client.Fetch(context.Background(), "7891234567"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected 1 limiter wait, got %d", limiter.calls)
	}
	if limiter.limit != 3 || limiter.window != time.Second {
		t.Errorf("expected budget 3/s, got %d/%s", limiter.limit, limiter.window)
	}

	// A zero rate falls back to the free-tier budget.
	fallback := NewClient(srv.URL, limiter, 0)
	if _, err := fallback.Fetch(context.Background(), "7891234567"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if limiter.limit != 1 {
		t.Errorf("expected fallback budget 1/s, got %d", limiter.limit)
	}
}
