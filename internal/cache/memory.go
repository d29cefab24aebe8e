package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps bodies in process with LRU eviction and TTL
type MemoryStore struct {
	lru *expirable.LRU[string, []byte]
	counters
}

// NewMemoryStore creates a memory store. maxEntries <= 0 means unbounded
// and ttl <= 0 disables expiry.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: expirable.NewLRU[string, []byte](maxEntries, nil, ttl)}
}

// Get retrieves a body from the cache
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	body, ok := m.lru.Get(key)
	if !ok {
		m.miss()
		return nil, false, nil
	}
	m.hit()
	return body, true, nil
}

// Put stores a copy of body
func (m *MemoryStore) Put(_ context.Context, key string, body []byte) error {
	m.lru.Add(key, append([]byte(nil), body...))
	m.write()
	return nil
}

// Len returns the number of live entries
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}

// Clear drops every entry
func (m *MemoryStore) Clear() {
	m.lru.Purge()
}

// Stats returns cache statistics
func (m *MemoryStore) Stats() Stats {
	return m.snapshot()
}
