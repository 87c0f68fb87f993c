package domain

import (
	"context"
	"time"
)

// MatchCache is the live tier for match records. Set replaces the stored
// record wholesale; there is no field-level patching at this boundary.
type MatchCache interface {
	Set(ctx context.Context, rec MatchRecord) error
	Get(ctx context.Context, matchID string) (MatchRecord, error)
	List(ctx context.Context) ([]MatchRecord, error)
}

// SeriesCache is the live tier for series records, with a recency index so
// the resolver can query candidates without scanning every known series.
type SeriesCache interface {
	Set(ctx context.Context, s Series) error
	Get(ctx context.Context, seriesID string) (Series, error)
	// ListRecent returns series updated at or after since, most recently
	// updated first.
	ListRecent(ctx context.Context, since time.Time) ([]Series, error)
	List(ctx context.Context) ([]Series, error)
}

// SeriesIndex is the durable matchID -> seriesID lookup that makes exact
// continuation an O(1) check.
type SeriesIndex interface {
	Put(ctx context.Context, matchID, seriesID string) error
	Get(ctx context.Context, matchID string) (string, error)
}

// TaskStore holds enrichment tasks keyed by match id, with a due-time index
// so a tick only touches tasks whose next attempt is eligible.
type TaskStore interface {
	Put(ctx context.Context, task EnrichmentTask) error
	Get(ctx context.Context, matchID string) (EnrichmentTask, error)
	// Due returns tasks with NextAttemptAt <= now, soonest first.
	Due(ctx context.Context, now time.Time) ([]EnrichmentTask, error)
	Remove(ctx context.Context, matchID string) error
	Count(ctx context.Context) (int64, error)
}

// SignalBus provides pub/sub fan-out of tracker events to the dashboard.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting for outbound API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides per-key mutual exclusion for deployments that run
// more than one tracker process against the same cache tiers. A single
// process loop does not need it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
