package domain

import "time"

// Side identifies one of the two team slots in a match.
type Side string

const (
	SideRadiant Side = "radiant"
	SideDire    Side = "dire"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideRadiant {
		return SideDire
	}
	return SideRadiant
}

// MatchStatus represents the lifecycle state of a tracked match.
type MatchStatus string

const (
	// MatchStatusDraft covers the pick/ban phase before the clock starts.
	MatchStatusDraft MatchStatus = "draft"
	// MatchStatusGame covers a running game with a non-zero clock.
	MatchStatusGame MatchStatus = "game"
	// MatchStatusFinished is terminal; finished records only accept backfill
	// of missing numeric fields.
	MatchStatusFinished MatchStatus = "finished"
)

// Player is one player slot inside a team roster.
type Player struct {
	AccountID string
	Name      string
	NetWorth  int64
}

// TeamSlot is one side of a live match observation: the team and its roster.
type TeamSlot struct {
	TeamID   string
	Name     string
	Players  []Player
	NetWorth int64
}

// AccountIDs returns the identifiable account ids of the roster. Empty ids
// (anonymous accounts) are dropped.
func (t TeamSlot) AccountIDs() []string {
	ids := make([]string, 0, len(t.Players))
	for _, p := range t.Players {
		if p.AccountID != "" {
			ids = append(ids, p.AccountID)
		}
	}
	return ids
}

// MatchObservation is one snapshot of a live match as reported by the feed.
// Observations are ephemeral: they exist only while the match is live and
// vanish from the feed at match end.
type MatchObservation struct {
	MatchID  string
	LeagueID string

	Radiant TeamSlot
	Dire    TeamSlot

	RadiantScore int
	DireScore    int
	Duration     int // elapsed seconds; 0 during draft

	RadiantSeriesWins int
	DireSeriesWins    int
	Format            SeriesFormat

	// Outcome is non-nil when the feed itself reports the winner in its
	// final snapshot of the match.
	Outcome *Side

	ObservedAt time.Time
}

// GameNumber is the position of this observation's match within its series,
// derived from the running win counts at observation time.
func (o MatchObservation) GameNumber() int {
	return o.RadiantSeriesWins + o.DireSeriesWins + 1
}

// TeamRef is a stable reference to a team carried on cached records.
type TeamRef struct {
	TeamID string `json:"team_id"`
	Name   string `json:"name"`
}

// MatchRecord is the cached projection of a match. The live tier mutates it
// on every observation; the historical tier holds it immutably once the
// match is finished and promoted.
type MatchRecord struct {
	MatchID  string `json:"match_id"`
	SeriesID string `json:"series_id"`
	LeagueID string `json:"league_id"`

	Radiant TeamRef `json:"radiant"`
	Dire    TeamRef `json:"dire"`

	// Rosters are kept on the record so later observations can be
	// correlated by player overlap after this match leaves the feed.
	RadiantRoster []string `json:"radiant_roster"`
	DireRoster    []string `json:"dire_roster"`

	RadiantScore int `json:"radiant_score"`
	DireScore    int `json:"dire_score"`
	TotalKills   int `json:"total_kills"`
	Duration     int `json:"duration"` // seconds

	RadiantNetWorth int64 `json:"radiant_networth"`
	DireNetWorth    int64 `json:"dire_networth"`

	// GameNumber is captured when the match is first observed and never
	// recomputed, so it stays stable when later games move the series
	// win counts.
	GameNumber int `json:"game_number"`

	Status MatchStatus `json:"status"`
	Winner *Side       `json:"winner,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WinnerTeam resolves the winning side to its team reference. The second
// return value is false while the match has no recorded winner.
func (m MatchRecord) WinnerTeam() (TeamRef, bool) {
	if m.Winner == nil {
		return TeamRef{}, false
	}
	if *m.Winner == SideRadiant {
		return m.Radiant, true
	}
	return m.Dire, true
}

// Complete reports whether the record carries a full final result: a
// non-zero duration, both scores, and an explicit winner.
func (m MatchRecord) Complete() bool {
	return m.Duration > 0 && m.Winner != nil && m.RadiantScore+m.DireScore > 0
}
