package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process cache backend: a map plus an insertion-order
// list. When the entry count exceeds capacity, the oldest-inserted entries
// are evicted first. Updating an existing key keeps its original insertion
// position, so eviction order stays deterministic.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	order      []string
	capacity   int
	defaultTTL time.Duration
	stats      Stats
}

// NewMemory creates an in-process cache bounded at capacity entries.
func NewMemory(capacity int, defaultTTL time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Memory{
		entries:    make(map[string]*Entry, capacity),
		capacity:   capacity,
		defaultTTL: defaultTTL,
	}
}

// Get returns the cached value for key, or false on miss. Expired entries
// are removed on access and count as misses.
func (m *Memory) Get(ctx context.Context, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}

	if entry.expired(time.Now()) {
		m.removeLocked(key)
		m.stats.Misses++
		return nil, false
	}

	entry.AccessCount++
	m.stats.Hits++
	return entry.Value, true
}

// Set stores value under key, evicting oldest-inserted entries when the
// capacity bound is exceeded.
func (m *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok {
		existing.Value = value
		existing.StoredAt = time.Now()
		existing.TTL = ttl
		m.stats.Sets++
		return nil
	}

	m.entries[key] = &Entry{
		Key:      key,
		Value:    value,
		StoredAt: time.Now(),
		TTL:      ttl,
	}
	m.order = append(m.order, key)
	m.stats.Sets++

	for len(m.entries) > m.capacity {
		oldest := m.order[0]
		m.removeLocked(oldest)
		m.stats.Evictions++
	}

	return nil
}

// Invalidate removes key from the cache.
func (m *Memory) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(key)
	return nil
}

// Stats returns the hit/miss accounting.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Len returns the current entry count.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// removeLocked deletes an entry and its insertion-order slot.
// Callers must hold the mutex.
func (m *Memory) removeLocked(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
