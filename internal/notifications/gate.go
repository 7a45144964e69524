package notifications

import (
	"sync"
	"time"
)

// CooldownStore remembers when each point of interest was last notified.
type CooldownStore interface {
	LastNotified(poiID string) (time.Time, bool)
	Record(poiID string, at time.Time)
	Reset()
}

// MemoryCooldownStore is a session-scoped CooldownStore. Reads may come from
// any goroutine; writes from the session's orchestrator.
type MemoryCooldownStore struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{last: make(map[string]time.Time)}
}

func (s *MemoryCooldownStore) LastNotified(poiID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[poiID]
	return t, ok
}

func (s *MemoryCooldownStore) Record(poiID string, at time.Time) {
	s.mu.Lock()
	s.last[poiID] = at
	s.mu.Unlock()
}

func (s *MemoryCooldownStore) Reset() {
	s.mu.Lock()
	clear(s.last)
	s.mu.Unlock()
}

// Gate rate-limits notifications per point of interest.
type Gate struct {
	store    CooldownStore
	cooldown time.Duration
}

func NewGate(store CooldownStore, cooldown time.Duration) *Gate {
	return &Gate{store: store, cooldown: cooldown}
}

// ShouldNotify is true when poiID has never been notified, or strictly more
// than the cooldown has elapsed since it was.
func (g *Gate) ShouldNotify(poiID string, now time.Time) bool {
	last, ok := g.store.LastNotified(poiID)
	if !ok {
		return true
	}
	return now.Sub(last) > g.cooldown
}

// Record stamps every POI of an emitted decision.
func (g *Gate) Record(now time.Time, poiIDs ...string) {
	for _, id := range poiIDs {
		g.store.Record(id, now)
	}
}

func (g *Gate) LastNotified(poiID string) (time.Time, bool) {
	return g.store.LastNotified(poiID)
}
