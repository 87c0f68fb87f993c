package domain

import "context"

// LiveFeed is the primary live-match source, polled once per cycle. An empty
// slice is a normal result (no live matches). Implementations must tolerate
// partial entries and synthesize zero values for missing optional fields.
type LiveFeed interface {
	Poll(ctx context.Context) ([]MatchObservation, error)
}

// DetailClient is the secondary, slower source that serves complete final
// records once a match has concluded. Any call may fail or return an
// incomplete record, including after prior successes; callers own the retry
// policy.
type DetailClient interface {
	Fetch(ctx context.Context, matchID string) (MatchRecord, error)
}
