package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lmercier/dotatracker/internal/domain"
)

// MatchStore is an in-memory domain.MatchStore standing in for the
// historical tier in standalone mode and tests.
type MatchStore struct {
	mu   sync.RWMutex
	recs map[string]domain.MatchRecord
}

// NewMatchStore creates an empty MatchStore.
func NewMatchStore() *MatchStore {
	return &MatchStore{recs: make(map[string]domain.MatchRecord)}
}

// Upsert inserts or replaces a record.
func (ms *MatchStore) Upsert(_ context.Context, rec domain.MatchRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.recs[rec.MatchID] = rec
	return nil
}

// GetByID returns the record for matchID or domain.ErrNotFound.
func (ms *MatchStore) GetByID(_ context.Context, matchID string) (domain.MatchRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	rec, ok := ms.recs[matchID]
	if !ok {
		return domain.MatchRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// ListBySeries returns the records belonging to seriesID ordered by game
// number.
func (ms *MatchStore) ListBySeries(_ context.Context, seriesID string) ([]domain.MatchRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []domain.MatchRecord
	for _, rec := range ms.recs {
		if rec.SeriesID == seriesID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameNumber < out[j].GameNumber })
	return out, nil
}

// ListBefore returns records last updated strictly before the cutoff.
func (ms *MatchStore) ListBefore(_ context.Context, before time.Time) ([]domain.MatchRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []domain.MatchRecord
	for _, rec := range ms.recs {
		if rec.UpdatedAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// DeleteBefore removes records last updated strictly before the cutoff and
// returns the number removed.
func (ms *MatchStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var n int64
	for id, rec := range ms.recs {
		if rec.UpdatedAt.Before(before) {
			delete(ms.recs, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored records.
func (ms *MatchStore) Count(_ context.Context) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return int64(len(ms.recs)), nil
}

// SeriesStore is an in-memory domain.SeriesStore.
type SeriesStore struct {
	mu     sync.RWMutex
	series map[string]domain.Series
}

// NewSeriesStore creates an empty SeriesStore.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{series: make(map[string]domain.Series)}
}

// Upsert inserts or replaces a series.
func (ss *SeriesStore) Upsert(_ context.Context, s domain.Series) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.series[s.SeriesID] = s
	return nil
}

// GetByID returns the series for seriesID or domain.ErrNotFound.
func (ss *SeriesStore) GetByID(_ context.Context, seriesID string) (domain.Series, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	s, ok := ss.series[seriesID]
	if !ok {
		return domain.Series{}, domain.ErrNotFound
	}
	return s, nil
}

// ListConcluded returns concluded series, most recently updated first.
func (ss *SeriesStore) ListConcluded(_ context.Context, opts domain.ListOpts) ([]domain.Series, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	var out []domain.Series
	for _, s := range ss.series {
		if !s.Concluded() {
			continue
		}
		if opts.Since != nil && s.UpdatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && s.UpdatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, s)
	}
	sortByUpdatedDesc(out)
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ListBefore returns series last updated strictly before the cutoff.
func (ss *SeriesStore) ListBefore(_ context.Context, before time.Time) ([]domain.Series, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	var out []domain.Series
	for _, s := range ss.series {
		if s.UpdatedAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

// DeleteBefore removes series last updated strictly before the cutoff and
// returns the number removed.
func (ss *SeriesStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	var n int64
	for id, s := range ss.series {
		if s.UpdatedAt.Before(before) {
			delete(ss.series, id)
			n++
		}
	}
	return n, nil
}

// SignalBus is an in-memory domain.SignalBus with exact-channel matching.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to all current subscribers of channel. Slow
// subscribers are skipped rather than blocked on.
func (sb *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	for _, ch := range sb.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving future payloads on channel until the
// context is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	sb.mu.Lock()
	sb.subs[channel] = append(sb.subs[channel], ch)
	sb.mu.Unlock()

	go func() {
		<-ctx.Done()
		sb.mu.Lock()
		defer sb.mu.Unlock()
		chans := sb.subs[channel]
		for i, c := range chans {
			if c == ch {
				sb.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Compile-time interface checks.
var (
	_ domain.MatchStore  = (*MatchStore)(nil)
	_ domain.SeriesStore = (*SeriesStore)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
)
