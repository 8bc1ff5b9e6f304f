package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// Stats holds the cache's hit/miss accounting.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Evictions int64 `json:"evictions"`
}

// HitRate returns the fraction of gets that were hits.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Entry is a single cached value with its TTL bookkeeping.
type Entry struct {
	Key         string        `json:"key"`
	Value       any           `json:"value"`
	StoredAt    time.Time     `json:"stored_at"`
	TTL         time.Duration `json:"ttl"`
	AccessCount int64         `json:"access_count"`
}

// expired reports whether the entry's TTL has elapsed.
func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// Cache is the single cache-layer interface. Backends are selected at
// construction time: an in-process map or a remote store with in-process
// fallback. Eligibility of a request for caching is the executor's
// decision, not the cache's.
type Cache interface {
	// Get returns the cached value for key, or false on miss.
	Get(ctx context.Context, key string) (any, bool)
	// Set stores value under key. A non-positive ttl selects the backend's
	// default TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate removes key from the cache.
	Invalidate(ctx context.Context, key string) error
	// Stats returns the hit/miss accounting.
	Stats() Stats
}

// Key derives the deterministic cache key for a method and its parameters.
// encoding/json emits map keys in sorted order, so the digest is stable
// regardless of parameter insertion order.
func Key(method string, params map[string]any) string {
	payload, err := json.Marshal(params)
	if err != nil {
		// Unencodable params never match anything; the raw fallback keeps
		// the key unique per method.
		payload = []byte(fmt.Sprintf("%v", params))
	}

	hash := sha256.Sum256(append([]byte(method+":"), payload...))
	return fmt.Sprintf("%x", hash[:16])
}
