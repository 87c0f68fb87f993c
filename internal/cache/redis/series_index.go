package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lmercier/dotatracker/internal/domain"
)

// SeriesIndex implements domain.SeriesIndex as a plain string key per match,
// making the resolver's exact-continuation check a single GET.
//
// Key schema:
//
//	series:of:{matchID} - string value of the owning series id
type SeriesIndex struct {
	rdb *redis.Client
}

// NewSeriesIndex creates a SeriesIndex backed by the given Client.
func NewSeriesIndex(c *Client) *SeriesIndex {
	return &SeriesIndex{rdb: c.Underlying()}
}

func indexKey(matchID string) string { return "series:of:" + matchID }

// Put registers matchID as a member of seriesID. Re-registering the same
// association is a no-op.
func (si *SeriesIndex) Put(ctx context.Context, matchID, seriesID string) error {
	if err := si.rdb.Set(ctx, indexKey(matchID), seriesID, 0).Err(); err != nil {
		return fmt.Errorf("redis: index match %s: %w", matchID, err)
	}
	return nil
}

// Get returns the series id matchID belongs to, or domain.ErrNotFound.
func (si *SeriesIndex) Get(ctx context.Context, matchID string) (string, error) {
	id, err := si.rdb.Get(ctx, indexKey(matchID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis: lookup match %s: %w", matchID, err)
	}
	return id, nil
}

// Compile-time interface check.
var _ domain.SeriesIndex = (*SeriesIndex)(nil)
