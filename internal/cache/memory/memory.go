// Package memory provides in-process implementations of the cache and store
// interfaces. The standalone mode runs on them when neither Redis nor
// PostgreSQL is configured, and the test suites use them as fixtures. All
// types are safe for use from a single driver goroutine plus concurrent
// readers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

// MatchCache is an in-memory domain.MatchCache.
type MatchCache struct {
	mu   sync.RWMutex
	recs map[string]domain.MatchRecord
}

// NewMatchCache creates an empty MatchCache.
func NewMatchCache() *MatchCache {
	return &MatchCache{recs: make(map[string]domain.MatchRecord)}
}

// Set replaces the stored record wholesale.
func (mc *MatchCache) Set(_ context.Context, rec domain.MatchRecord) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.recs[rec.MatchID] = rec
	return nil
}

// Get returns the record for matchID or domain.ErrNotFound.
func (mc *MatchCache) Get(_ context.Context, matchID string) (domain.MatchRecord, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	rec, ok := mc.recs[matchID]
	if !ok {
		return domain.MatchRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// List returns every live-tier record.
func (mc *MatchCache) List(_ context.Context) ([]domain.MatchRecord, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]domain.MatchRecord, 0, len(mc.recs))
	for _, rec := range mc.recs {
		out = append(out, rec)
	}
	return out, nil
}

// SeriesCache is an in-memory domain.SeriesCache.
type SeriesCache struct {
	mu     sync.RWMutex
	series map[string]domain.Series
}

// NewSeriesCache creates an empty SeriesCache.
func NewSeriesCache() *SeriesCache {
	return &SeriesCache{series: make(map[string]domain.Series)}
}

// Set replaces the stored series wholesale.
func (sc *SeriesCache) Set(_ context.Context, s domain.Series) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.series[s.SeriesID] = s
	return nil
}

// Get returns the series for seriesID or domain.ErrNotFound.
func (sc *SeriesCache) Get(_ context.Context, seriesID string) (domain.Series, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	s, ok := sc.series[seriesID]
	if !ok {
		return domain.Series{}, domain.ErrNotFound
	}
	return s, nil
}

// ListRecent returns series updated at or after since, most recently updated
// first.
func (sc *SeriesCache) ListRecent(_ context.Context, since time.Time) ([]domain.Series, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make([]domain.Series, 0, len(sc.series))
	for _, s := range sc.series {
		if s.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, s)
	}
	sortByUpdatedDesc(out)
	return out, nil
}

// List returns every live-tier series, most recently updated first.
func (sc *SeriesCache) List(_ context.Context) ([]domain.Series, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make([]domain.Series, 0, len(sc.series))
	for _, s := range sc.series {
		out = append(out, s)
	}
	sortByUpdatedDesc(out)
	return out, nil
}

func sortByUpdatedDesc(series []domain.Series) {
	sort.Slice(series, func(i, j int) bool {
		if !series[i].UpdatedAt.Equal(series[j].UpdatedAt) {
			return series[i].UpdatedAt.After(series[j].UpdatedAt)
		}
		return series[i].SeriesID < series[j].SeriesID
	})
}

// SeriesIndex is an in-memory domain.SeriesIndex.
type SeriesIndex struct {
	mu  sync.RWMutex
	idx map[string]string
}

// NewSeriesIndex creates an empty SeriesIndex.
func NewSeriesIndex() *SeriesIndex {
	return &SeriesIndex{idx: make(map[string]string)}
}

// Put registers matchID under seriesID.
func (si *SeriesIndex) Put(_ context.Context, matchID, seriesID string) error {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.idx[matchID] = seriesID
	return nil
}

// Get returns the owning series id or domain.ErrNotFound.
func (si *SeriesIndex) Get(_ context.Context, matchID string) (string, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	id, ok := si.idx[matchID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

// TaskStore is an in-memory domain.TaskStore.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.EnrichmentTask
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]domain.EnrichmentTask)}
}

// Put stores or reschedules a task.
func (ts *TaskStore) Put(_ context.Context, task domain.EnrichmentTask) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tasks[task.MatchID] = task
	return nil
}

// Get returns the task for matchID or domain.ErrNotFound.
func (ts *TaskStore) Get(_ context.Context, matchID string) (domain.EnrichmentTask, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	task, ok := ts.tasks[matchID]
	if !ok {
		return domain.EnrichmentTask{}, domain.ErrNotFound
	}
	return task, nil
}

// Due returns tasks whose next attempt is at or before now, soonest first.
func (ts *TaskStore) Due(_ context.Context, now time.Time) ([]domain.EnrichmentTask, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]domain.EnrichmentTask, 0, len(ts.tasks))
	for _, task := range ts.tasks {
		if !task.NextAttemptAt.After(now) {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttemptAt.Before(out[j].NextAttemptAt)
	})
	return out, nil
}

// Remove deletes the task for matchID.
func (ts *TaskStore) Remove(_ context.Context, matchID string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.tasks, matchID)
	return nil
}

// Count returns the number of queued tasks.
func (ts *TaskStore) Count(_ context.Context) (int64, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return int64(len(ts.tasks)), nil
}

// Compile-time interface checks.
var (
	_ domain.MatchCache  = (*MatchCache)(nil)
	_ domain.SeriesCache = (*SeriesCache)(nil)
	_ domain.SeriesIndex = (*SeriesIndex)(nil)
	_ domain.TaskStore   = (*TaskStore)(nil)
)
