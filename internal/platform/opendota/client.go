// Package opendota fetches finished match details from the OpenDota API.
// It is the secondary source used for backfill: OpenDota indexes a match a
// few seconds after it drops off the live feed, but the free tier is rate
// limited, so every call goes through a shared limiter first.
package opendota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

const (
	defaultBaseURL = "https://api.opendota.com/api"

	// rateLimitKey is shared by every instance so multiple processes
	// behind one distributed limiter stay within the same budget.
	rateLimitKey = "opendota"
)

// Client is the REST client for the OpenDota match endpoint.
type Client struct {
	baseURL    string
	limiter    domain.RateLimiter
	limit      int
	window     time.Duration
	httpClient *http.Client
}

// NewClient creates a new detail client capped at ratePerSecond outbound
// calls. A ratePerSecond below 1 falls back to the free-tier budget of one
// call per second. limiter may be nil, in which case calls are not throttled.
func NewClient(baseURL string, limiter domain.RateLimiter, ratePerSecond int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &Client{
		baseURL: baseURL,
		limiter: limiter,
		limit:   ratePerSecond,
		window:  time.Second,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type matchResponse struct {
	MatchID      int64  `json:"match_id"`
	LeagueID     int64  `json:"leagueid"`
	RadiantWin   *bool  `json:"radiant_win"`
	Duration     int    `json:"duration"`
	RadiantScore *int   `json:"radiant_score"`
	DireScore    *int   `json:"dire_score"`

	RadiantTeam *teamInfo `json:"radiant_team"`
	DireTeam    *teamInfo `json:"dire_team"`

	Players []playerInfo `json:"players"`
}

type teamInfo struct {
	TeamID int64  `json:"team_id"`
	Name   string `json:"name"`
}

type playerInfo struct {
	AccountID  int64 `json:"account_id"`
	PlayerSlot int   `json:"player_slot"`
	Kills      int   `json:"kills"`
	NetWorth   int64 `json:"net_worth"`
	TotalGold  int64 `json:"total_gold"`
}

// isRadiant reports the player's side. Slots 0-127 are radiant.
func (p playerInfo) isRadiant() bool {
	return p.PlayerSlot < 128
}

// Fetch retrieves the final record of a finished match. The returned record
// may be incomplete when OpenDota has not finished indexing the match yet;
// callers check Complete and own the retry policy.
func (c *Client) Fetch(ctx context.Context, matchID string) (domain.MatchRecord, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.limit, c.window); err != nil {
			return domain.MatchRecord{}, fmt.Errorf("opendota: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/matches/%s", c.baseURL, matchID), nil)
	if err != nil {
		return domain.MatchRecord{}, fmt.Errorf("opendota: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.MatchRecord{}, fmt.Errorf("opendota: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.MatchRecord{}, fmt.Errorf("opendota: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.MatchRecord{}, fmt.Errorf("opendota: match %s: %w", matchID, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.MatchRecord{}, fmt.Errorf("opendota: match %s: %w", matchID, domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return domain.MatchRecord{}, fmt.Errorf("opendota: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var wire matchResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return domain.MatchRecord{}, fmt.Errorf("opendota: decode match %s: %w", matchID, err)
	}
	return convertMatch(matchID, wire), nil
}

// convertMatch maps the wire response onto a MatchRecord. Scores fall back
// to summing per-player kills when the top-level fields are absent, which
// happens on freshly indexed matches.
func convertMatch(matchID string, wire matchResponse) domain.MatchRecord {
	rec := domain.MatchRecord{
		MatchID:    matchID,
		Duration:   wire.Duration,
		ObservedAt: time.Now().UTC(),
	}
	if wire.LeagueID > 0 {
		rec.LeagueID = strconv.FormatInt(wire.LeagueID, 10)
	}
	if wire.RadiantTeam != nil {
		rec.Radiant = domain.TeamRef{
			TeamID: strconv.FormatInt(wire.RadiantTeam.TeamID, 10),
			Name:   wire.RadiantTeam.Name,
		}
	}
	if wire.DireTeam != nil {
		rec.Dire = domain.TeamRef{
			TeamID: strconv.FormatInt(wire.DireTeam.TeamID, 10),
			Name:   wire.DireTeam.Name,
		}
	}

	if wire.RadiantScore != nil && wire.DireScore != nil {
		rec.RadiantScore = *wire.RadiantScore
		rec.DireScore = *wire.DireScore
	} else {
		for _, p := range wire.Players {
			if p.isRadiant() {
				rec.RadiantScore += p.Kills
			} else {
				rec.DireScore += p.Kills
			}
		}
	}
	rec.TotalKills = rec.RadiantScore + rec.DireScore

	for _, p := range wire.Players {
		worth := p.NetWorth
		if worth == 0 {
			worth = p.TotalGold
		}
		accountID := ""
		if p.AccountID > 0 {
			accountID = strconv.FormatInt(p.AccountID, 10)
		}
		if p.isRadiant() {
			rec.RadiantNetWorth += worth
			if accountID != "" {
				rec.RadiantRoster = append(rec.RadiantRoster, accountID)
			}
		} else {
			rec.DireNetWorth += worth
			if accountID != "" {
				rec.DireRoster = append(rec.DireRoster, accountID)
			}
		}
	}

	if wire.RadiantWin != nil {
		side := domain.SideDire
		if *wire.RadiantWin {
			side = domain.SideRadiant
		}
		rec.Winner = &side
		rec.Status = domain.MatchStatusFinished
	} else {
		rec.Status = domain.MatchStatusGame
	}
	return rec
}

// Compile-time interface check.
var _ domain.DetailClient = (*Client)(nil)
