package steam

// Wire types for the IDOTA2Match GetLiveLeagueGames endpoint. Optional
// fields use pointers so a missing field is distinguishable from a zero;
// conversion synthesizes zeros rather than failing on partial entries.

type liveLeagueGamesResponse struct {
	Result struct {
		Games  []liveGame `json:"games"`
		Status int        `json:"status"`
	} `json:"result"`
}

type liveGame struct {
	MatchID  int64 `json:"match_id"`
	LeagueID int64 `json:"league_id"`

	RadiantTeam *liveTeam `json:"radiant_team"`
	DireTeam    *liveTeam `json:"dire_team"`

	// Players at the game level carry team assignment: 0 radiant,
	// 1 dire, anything else is a caster or spectator slot.
	Players []livePlayer `json:"players"`

	SeriesType        int `json:"series_type"`
	RadiantSeriesWins int `json:"radiant_series_wins"`
	DireSeriesWins    int `json:"dire_series_wins"`

	Scoreboard *scoreboard `json:"scoreboard"`
}

type liveTeam struct {
	TeamName string `json:"team_name"`
	TeamID   int64  `json:"team_id"`
}

type livePlayer struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Team      int    `json:"team"`
}

type scoreboard struct {
	Duration float64 `json:"duration"`

	Radiant *teamBoard `json:"radiant"`
	Dire    *teamBoard `json:"dire"`
}

type teamBoard struct {
	Score   int           `json:"score"`
	Players []boardPlayer `json:"players"`
}

type boardPlayer struct {
	AccountID int64 `json:"account_id"`
	NetWorth  int64 `json:"net_worth"`
}

const (
	teamSlotRadiant = 0
	teamSlotDire    = 1
)
