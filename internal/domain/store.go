package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MatchStore persists the historical tier of match records. Records land
// here when they are promoted and are never demoted or mutated afterwards,
// except for backfill of missing numeric fields via Upsert.
type MatchStore interface {
	Upsert(ctx context.Context, rec MatchRecord) error
	GetByID(ctx context.Context, matchID string) (MatchRecord, error)
	ListBySeries(ctx context.Context, seriesID string) ([]MatchRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]MatchRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// SeriesStore persists the historical tier of series records.
type SeriesStore interface {
	Upsert(ctx context.Context, s Series) error
	GetByID(ctx context.Context, seriesID string) (Series, error)
	ListConcluded(ctx context.Context, opts ListOpts) ([]Series, error)
	ListBefore(ctx context.Context, before time.Time) ([]Series, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
