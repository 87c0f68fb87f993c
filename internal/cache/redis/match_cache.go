package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lmercier/dotatracker/internal/domain"
)

// MatchCache implements domain.MatchCache using Redis hashes with JSON-
// serialized MatchRecord data and a set of currently tracked match ids.
//
// Key schema:
//
//	live:match:{id} - hash with field "data" containing JSON
//	live:matches    - set of all match ids in the live tier
//
// Records have no TTL: the live tier keeps finished matches around for the
// "recently finished" view until the owning series closes and the tracker
// clears them.
type MatchCache struct {
	rdb *redis.Client
}

// NewMatchCache creates a MatchCache backed by the given Client.
func NewMatchCache(c *Client) *MatchCache {
	return &MatchCache{rdb: c.Underlying()}
}

func matchKey(id string) string { return "live:match:" + id }

const matchSetKey = "live:matches"

// Set stores a MatchRecord in the live tier, replacing any previous record
// wholesale. Applying the same record twice leaves the same stored state.
func (mc *MatchCache) Set(ctx context.Context, rec domain.MatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal match %s: %w", rec.MatchID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, matchKey(rec.MatchID), "data", data)
	pipe.SAdd(ctx, matchSetKey, rec.MatchID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set match %s: %w", rec.MatchID, err)
	}
	return nil
}

// Get retrieves a MatchRecord by its match id.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MatchCache) Get(ctx context.Context, matchID string) (domain.MatchRecord, error) {
	data, err := mc.rdb.HGet(ctx, matchKey(matchID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MatchRecord{}, domain.ErrNotFound
		}
		return domain.MatchRecord{}, fmt.Errorf("redis: get match %s: %w", matchID, err)
	}

	var rec domain.MatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.MatchRecord{}, fmt.Errorf("redis: unmarshal match %s: %w", matchID, err)
	}
	return rec, nil
}

// List returns every match record currently in the live tier. Entries whose
// hash has vanished between the set read and the fetch are skipped.
func (mc *MatchCache) List(ctx context.Context) ([]domain.MatchRecord, error) {
	ids, err := mc.rdb.SMembers(ctx, matchSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list live matches: %w", err)
	}

	recs := make([]domain.MatchRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := mc.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Compile-time interface check.
var _ domain.MatchCache = (*MatchCache)(nil)
