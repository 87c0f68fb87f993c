// Package steam polls the Steam web API for live league games. It is the
// primary feed: matches appear here while running and silently vanish at
// match end, usually before the final result is queryable anywhere.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

const defaultBaseURL = "https://api.steampowered.com/IDOTA2Match_570/GetLiveLeagueGames/v1/"

// Client is the REST client for the Steam live league games endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	leagueIDs  map[string]struct{}
	httpClient *http.Client
}

// NewClient creates a new live feed client. leagueIDs filters the feed to
// the given leagues; empty means every league is tracked.
func NewClient(baseURL, apiKey string, leagueIDs []string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	allowed := make(map[string]struct{}, len(leagueIDs))
	for _, id := range leagueIDs {
		allowed[id] = struct{}{}
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		leagueIDs: allowed,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Poll fetches the current live league games and converts them to match
// observations. Partial entries never fail the poll; missing fields come
// back as zeros.
func (c *Client) Poll(ctx context.Context) ([]domain.MatchObservation, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("steam: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("steam: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("steam: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("steam: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var wire liveLeagueGamesResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("steam: decode response: %w", err)
	}

	now := time.Now().UTC()
	out := make([]domain.MatchObservation, 0, len(wire.Result.Games))
	for _, game := range wire.Result.Games {
		leagueID := strconv.FormatInt(game.LeagueID, 10)
		if len(c.leagueIDs) > 0 {
			if _, ok := c.leagueIDs[leagueID]; !ok {
				continue
			}
		}
		out = append(out, convertGame(game, now))
	}
	return out, nil
}

// convertGame maps one wire game onto a MatchObservation. The scoreboard is
// absent during the draft phase, so every scoreboard-derived field defaults
// to zero.
func convertGame(game liveGame, observedAt time.Time) domain.MatchObservation {
	obs := domain.MatchObservation{
		MatchID:           strconv.FormatInt(game.MatchID, 10),
		LeagueID:          strconv.FormatInt(game.LeagueID, 10),
		RadiantSeriesWins: game.RadiantSeriesWins,
		DireSeriesWins:    game.DireSeriesWins,
		Format:            domain.SeriesFormat(game.SeriesType),
		ObservedAt:        observedAt,
	}
	if game.RadiantTeam != nil {
		obs.Radiant.TeamID = strconv.FormatInt(game.RadiantTeam.TeamID, 10)
		obs.Radiant.Name = game.RadiantTeam.TeamName
	}
	if game.DireTeam != nil {
		obs.Dire.TeamID = strconv.FormatInt(game.DireTeam.TeamID, 10)
		obs.Dire.Name = game.DireTeam.TeamName
	}

	netWorth := make(map[int64]int64)
	if game.Scoreboard != nil {
		obs.Duration = int(game.Scoreboard.Duration)
		if game.Scoreboard.Radiant != nil {
			obs.RadiantScore = game.Scoreboard.Radiant.Score
			collectNetWorth(netWorth, game.Scoreboard.Radiant.Players)
		}
		if game.Scoreboard.Dire != nil {
			obs.DireScore = game.Scoreboard.Dire.Score
			collectNetWorth(netWorth, game.Scoreboard.Dire.Players)
		}
	}

	for _, p := range game.Players {
		player := domain.Player{
			Name:     p.Name,
			NetWorth: netWorth[p.AccountID],
		}
		if p.AccountID > 0 {
			player.AccountID = strconv.FormatInt(p.AccountID, 10)
		}
		switch p.Team {
		case teamSlotRadiant:
			obs.Radiant.Players = append(obs.Radiant.Players, player)
			obs.Radiant.NetWorth += player.NetWorth
		case teamSlotDire:
			obs.Dire.Players = append(obs.Dire.Players, player)
			obs.Dire.NetWorth += player.NetWorth
		}
	}
	return obs
}

func collectNetWorth(dst map[int64]int64, players []boardPlayer) {
	for _, p := range players {
		if p.AccountID > 0 {
			dst[p.AccountID] = p.NetWorth
		}
	}
}

// Compile-time interface check.
var _ domain.LiveFeed = (*Client)(nil)
