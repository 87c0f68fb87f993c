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

// TaskStore implements domain.TaskStore with a JSON hash per task and a
// sorted set scored on the next-attempt time, so Tick reads only the tasks
// that are actually due instead of walking the whole table.
//
// Key schema:
//
//	enrich:task:{matchID} - hash with field "data" containing JSON
//	enrich:due            - sorted set, member = match id, score = NextAttemptAt unix
type TaskStore struct {
	rdb *redis.Client
}

// NewTaskStore creates a TaskStore backed by the given Client.
func NewTaskStore(c *Client) *TaskStore {
	return &TaskStore{rdb: c.Underlying()}
}

func taskKey(matchID string) string { return "enrich:task:" + matchID }

const dueIdxKey = "enrich:due"

// Put stores a task and (re)schedules it in the due index. Both writes are
// applied transactionally.
func (ts *TaskStore) Put(ctx context.Context, task domain.EnrichmentTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redis: marshal task %s: %w", task.MatchID, err)
	}

	pipe := ts.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(task.MatchID), "data", data)
	pipe.ZAdd(ctx, dueIdxKey, redis.Z{
		Score:  float64(task.NextAttemptAt.Unix()),
		Member: task.MatchID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put task %s: %w", task.MatchID, err)
	}
	return nil
}

// Get retrieves the task for a match id, or domain.ErrNotFound.
func (ts *TaskStore) Get(ctx context.Context, matchID string) (domain.EnrichmentTask, error) {
	data, err := ts.rdb.HGet(ctx, taskKey(matchID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.EnrichmentTask{}, domain.ErrNotFound
		}
		return domain.EnrichmentTask{}, fmt.Errorf("redis: get task %s: %w", matchID, err)
	}

	var task domain.EnrichmentTask
	if err := json.Unmarshal(data, &task); err != nil {
		return domain.EnrichmentTask{}, fmt.Errorf("redis: unmarshal task %s: %w", matchID, err)
	}
	return task, nil
}

// Due returns every task whose next attempt is at or before now, soonest
// first.
func (ts *TaskStore) Due(ctx context.Context, now time.Time) ([]domain.EnrichmentTask, error) {
	ids, err := ts.rdb.ZRangeByScore(ctx, dueIdxKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list due tasks: %w", err)
	}

	tasks := make([]domain.EnrichmentTask, 0, len(ids))
	for _, id := range ids {
		task, err := ts.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Remove deletes a task and its due-index entry.
func (ts *TaskStore) Remove(ctx context.Context, matchID string) error {
	pipe := ts.rdb.TxPipeline()
	pipe.Del(ctx, taskKey(matchID))
	pipe.ZRem(ctx, dueIdxKey, matchID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove task %s: %w", matchID, err)
	}
	return nil
}

// Count returns the number of queued tasks.
func (ts *TaskStore) Count(ctx context.Context) (int64, error) {
	n, err := ts.rdb.ZCard(ctx, dueIdxKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count tasks: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.TaskStore = (*TaskStore)(nil)
