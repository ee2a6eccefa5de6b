// Package runstate caches per-run board state in Redis for the live
// dispatch board. The store stays authoritative; every read falls back to
// it when Redis is missing, cold or failing.
package runstate

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/cowaramupagencies/gas/dispatch"
	"github.com/cowaramupagencies/gas/store"
)

// Cache is the run state cache. RedisStore is the production implementation.
type Cache interface {
	SetRunState(ctx context.Context, s *RunState) error
	GetRunState(ctx context.Context, runID string) (*RunState, error)
	DateRunIDs(ctx context.Context, date string) ([]string, error)
	RemoveRun(ctx context.Context, runID, date string) error
	FlushAll(ctx context.Context) error
}

// Source reads authoritative run details.
type Source interface {
	GetRun(ctx context.Context, runID string) (*dispatch.RunDetail, error)
	RunsForDate(ctx context.Context, date string) ([]*dispatch.RunDetail, error)
	ListRuns(ctx context.Context) ([]*dispatch.RunDetail, error)
}

// Manager keeps the cache in step with the store.
type Manager struct {
	src   Source
	cache Cache
}

// NewManager returns a manager; cache may be nil when Redis is not configured.
func NewManager(src Source, cache Cache) *Manager {
	return &Manager{src: src, cache: cache}
}

// RefreshRun rewrites the cached state of one run, or drops it once the run
// is gone. date is the run's last known delivery date and may be empty.
func (m *Manager) RefreshRun(ctx context.Context, runID, date string) {
	if m.cache == nil {
		return
	}
	detail, err := m.src.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		if err := m.cache.RemoveRun(ctx, runID, date); err != nil {
			log.Printf("runstate: remove run %s: %v", runID, err)
		}
		return
	}
	if err != nil {
		log.Printf("runstate: refresh run %s: %v", runID, err)
		return
	}
	if err := m.cache.SetRunState(ctx, FromDetail(detail)); err != nil {
		log.Printf("runstate: cache run %s: %v", runID, err)
	}
}

// GetRunState reads from the cache and falls back to the store.
func (m *Manager) GetRunState(ctx context.Context, runID string) (*RunState, error) {
	if m.cache != nil {
		s, err := m.cache.GetRunState(ctx, runID)
		if err == nil && s != nil {
			return s, nil
		}
	}
	detail, err := m.src.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return FromDetail(detail), nil
}

// DateRunStates returns the date's runs in run-number order, from the cache
// when every listed run is cached and from the store otherwise.
func (m *Manager) DateRunStates(ctx context.Context, date string) ([]*RunState, error) {
	if states, ok := m.cachedDate(ctx, date); ok {
		return states, nil
	}
	details, err := m.src.RunsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]*RunState, len(details))
	for i, d := range details {
		out[i] = FromDetail(d)
	}
	return out, nil
}

func (m *Manager) cachedDate(ctx context.Context, date string) ([]*RunState, bool) {
	if m.cache == nil {
		return nil, false
	}
	ids, err := m.cache.DateRunIDs(ctx, date)
	if err != nil || len(ids) == 0 {
		return nil, false
	}
	out := make([]*RunState, 0, len(ids))
	for _, id := range ids {
		s, err := m.cache.GetRunState(ctx, id)
		if err != nil || s == nil || s.DeliveryDate != date {
			return nil, false
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunNumber < out[j].RunNumber })
	return out, true
}

// SyncRedisFromStore rebuilds all cached state from the store. Called on
// startup.
func (m *Manager) SyncRedisFromStore(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	if err := m.cache.FlushAll(ctx); err != nil {
		log.Printf("runstate: flush: %v", err)
	}
	runs, err := m.src.ListRuns(ctx)
	if err != nil {
		return err
	}
	for _, d := range runs {
		if err := m.cache.SetRunState(ctx, FromDetail(d)); err != nil {
			log.Printf("runstate: sync run %s: %v", d.Run.ID, err)
		}
	}
	log.Printf("runstate: synced %d runs to redis", len(runs))
	return nil
}
