// Package cache marks dashboard query results stale when the backend
// reports row-level changes. Invalidation means "refetch on next read";
// nothing here reads or recomputes cached values.
package cache

import (
	"context"
	"sync"
)

// Store is the keyed cache the dashboard's query layer reads through.
// Invalidate removes one key; InvalidateMatching removes every key the
// predicate accepts.
type Store interface {
	Invalidate(ctx context.Context, key string) error
	InvalidateMatching(ctx context.Context, match func(key string) bool) error
}

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]any)}
}

// Put stores a cached value under a key.
func (s *MemoryStore) Put(key string, value any) {
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
}

// Get returns the cached value for a key.
func (s *MemoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Invalidate implements Store.
func (s *MemoryStore) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// InvalidateMatching implements Store.
func (s *MemoryStore) InvalidateMatching(ctx context.Context, match func(string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if match(key) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Keys returns a snapshot of the cached keys.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}
