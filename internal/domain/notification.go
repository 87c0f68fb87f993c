package domain

// Notification event types emitted by the tracker.
const (
	EventSeriesConcluded = "series_concluded"
	EventMatchStarted    = "match_started"
)

// Notification carries the context of a tracker event so operator channels
// can render it however suits the medium. Event matches the tracker's event
// type strings and is what the notifier filter keys on.
type Notification struct {
	Event string

	SeriesID string
	LeagueID string
	Format   SeriesFormat

	TeamOne string
	TeamTwo string
	WinsOne int
	WinsTwo int

	// Per-game context; zero values when the event is series-level only.
	MatchID    string
	GameNumber int

	// Winner is the series winner's team name on conclusion events.
	Winner string
}
