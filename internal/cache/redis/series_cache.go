package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lmercier/dotatracker/internal/domain"
)

// SeriesCache implements domain.SeriesCache using a JSON hash per series and
// a sorted set indexed on last-update time, so candidate queries for the
// resolver read a bounded recency window instead of scanning every series.
//
// Key schema:
//
//	live:series:{id} - hash with field "data" containing JSON
//	live:series:idx  - sorted set, member = series id, score = UpdatedAt unix
type SeriesCache struct {
	rdb *redis.Client
}

// NewSeriesCache creates a SeriesCache backed by the given Client.
func NewSeriesCache(c *Client) *SeriesCache {
	return &SeriesCache{rdb: c.Underlying()}
}

func seriesKey(id string) string { return "live:series:" + id }

const seriesIdxKey = "live:series:idx"

// Set stores a Series in the live tier and refreshes its position in the
// recency index. The write is transactional: either both the record and the
// index entry land, or neither does.
func (sc *SeriesCache) Set(ctx context.Context, s domain.Series) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("redis: marshal series %s: %w", s.SeriesID, err)
	}

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, seriesKey(s.SeriesID), "data", data)
	pipe.ZAdd(ctx, seriesIdxKey, redis.Z{
		Score:  float64(s.UpdatedAt.Unix()),
		Member: s.SeriesID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set series %s: %w", s.SeriesID, err)
	}
	return nil
}

// Get retrieves a Series by its id.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SeriesCache) Get(ctx context.Context, seriesID string) (domain.Series, error) {
	data, err := sc.rdb.HGet(ctx, seriesKey(seriesID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Series{}, domain.ErrNotFound
		}
		return domain.Series{}, fmt.Errorf("redis: get series %s: %w", seriesID, err)
	}

	var s domain.Series
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Series{}, fmt.Errorf("redis: unmarshal series %s: %w", seriesID, err)
	}
	return s, nil
}

// ListRecent returns series updated at or after since, most recently updated
// first.
func (sc *SeriesCache) ListRecent(ctx context.Context, since time.Time) ([]domain.Series, error) {
	ids, err := sc.rdb.ZRevRangeByScore(ctx, seriesIdxKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list recent series: %w", err)
	}
	return sc.fetch(ctx, ids)
}

// List returns every series in the live tier, most recently updated first.
func (sc *SeriesCache) List(ctx context.Context) ([]domain.Series, error) {
	ids, err := sc.rdb.ZRevRange(ctx, seriesIdxKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list live series: %w", err)
	}
	return sc.fetch(ctx, ids)
}

func (sc *SeriesCache) fetch(ctx context.Context, ids []string) ([]domain.Series, error) {
	out := make([]domain.Series, 0, len(ids))
	for _, id := range ids {
		s, err := sc.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SeriesCache = (*SeriesCache)(nil)
