package domain

import "time"

// SeriesFormat is the best-of-N format of a series as reported by the feed.
type SeriesFormat int

const (
	FormatBestOf1 SeriesFormat = 0
	FormatBestOf3 SeriesFormat = 1
	FormatBestOf5 SeriesFormat = 2
)

// MaxGames returns the maximum number of games the format allows. Unknown
// formats fall back to best-of-3, which is what the feed defaults to.
func (f SeriesFormat) MaxGames() int {
	switch f {
	case FormatBestOf1:
		return 1
	case FormatBestOf5:
		return 5
	default:
		return 3
	}
}

// WinsNeeded returns the win count that closes a series of this format.
func (f SeriesFormat) WinsNeeded() int {
	return f.MaxGames()/2 + 1
}

// SeriesIDPrefix prefixes every minted series identifier.
const SeriesIDPrefix = "s_"

// NewSeriesID mints the deterministic series id for a series whose first
// observed match is matchID. Repeated observations of the same first match
// therefore always produce the same id.
func NewSeriesID(matchID string) string {
	return SeriesIDPrefix + matchID
}

// Series is an ordered collection of matches believed to be one best-of-N
// contest between two teams. TeamOne and TeamTwo are anchored to the sides
// of the first observed game; sides may swap in later games.
type Series struct {
	SeriesID string `json:"series_id"`
	LeagueID string `json:"league_id"`

	TeamOne TeamRef `json:"team_one"`
	TeamTwo TeamRef `json:"team_two"`

	// MatchIDs lists member matches in the order they were attached.
	MatchIDs []string `json:"match_ids"`

	// WinsOne and WinsTwo equal the count of finished member matches whose
	// winner is the respective team. They are recomputed from the member
	// records on every finish, never patched incrementally.
	WinsOne int `json:"wins_one"`
	WinsTwo int `json:"wins_two"`

	Format SeriesFormat `json:"format"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasMatch reports whether matchID is already a member of the series.
func (s Series) HasMatch(matchID string) bool {
	for _, id := range s.MatchIDs {
		if id == matchID {
			return true
		}
	}
	return false
}

// Concluded reports whether either team has reached the win count that
// closes the series.
func (s Series) Concluded() bool {
	need := s.Format.WinsNeeded()
	return s.WinsOne >= need || s.WinsTwo >= need
}

// WinnerRef returns the team that won the series, if it has concluded.
func (s Series) WinnerRef() (TeamRef, bool) {
	if !s.Concluded() {
		return TeamRef{}, false
	}
	if s.WinsOne > s.WinsTwo {
		return s.TeamOne, true
	}
	return s.TeamTwo, true
}
