package metrics

import (
	"context"
	"sync"
	"time"
)

// MethodStats is a snapshot of the counters for a single method.
type MethodStats struct {
	RequestCount int64   `json:"request_count"`
	ErrorCount   int64   `json:"error_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// methodEntry holds the live counters for a method. The running average is
// updated incrementally so no per-request history is kept.
type methodEntry struct {
	requestCount int64
	errorCount   int64
	avgLatencyMs float64
}

// Registry tracks per-method performance counters. It is an explicitly
// owned, injectable component: tests instantiate independent instances
// instead of sharing ambient state.
type Registry struct {
	mu            sync.RWMutex
	methods       map[string]*methodEntry
	resetInterval time.Duration
	lastReset     time.Time
}

// NewRegistry creates a counters registry. resetInterval controls the
// periodic reset loop started by Run; zero disables resets.
func NewRegistry(resetInterval time.Duration) *Registry {
	return &Registry{
		methods:       make(map[string]*methodEntry),
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// RecordRequest records a completed request for a method. Failed requests
// count toward both the request count and the error count.
func (r *Registry) RecordRequest(method string, latency time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.methods[method]
	if !ok {
		entry = &methodEntry{}
		r.methods[method] = entry
	}

	entry.requestCount++
	if failed {
		entry.errorCount++
	}

	latencyMs := float64(latency) / float64(time.Millisecond)
	entry.avgLatencyMs += (latencyMs - entry.avgLatencyMs) / float64(entry.requestCount)
}

// Snapshot returns a copy of all per-method counters.
func (r *Registry) Snapshot() map[string]MethodStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]MethodStats, len(r.methods))
	for method, entry := range r.methods {
		out[method] = MethodStats{
			RequestCount: entry.requestCount,
			ErrorCount:   entry.errorCount,
			AvgLatencyMs: entry.avgLatencyMs,
		}
	}
	return out
}

// Method returns the counters for a single method.
func (r *Registry) Method(method string) MethodStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.methods[method]
	if !ok {
		return MethodStats{}
	}
	return MethodStats{
		RequestCount: entry.requestCount,
		ErrorCount:   entry.errorCount,
		AvgLatencyMs: entry.avgLatencyMs,
	}
}

// Reset clears all counters. This is the only documented runtime mutation
// of the registry besides recording.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods = make(map[string]*methodEntry)
	r.lastReset = time.Now()
}

// LastReset returns when the counters were last cleared.
func (r *Registry) LastReset() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastReset
}

// Run resets the counters on the configured interval until the context is
// cancelled. It returns immediately when resets are disabled.
func (r *Registry) Run(ctx context.Context) {
	if r.resetInterval <= 0 {
		return
	}

	ticker := time.NewTicker(r.resetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reset()
		}
	}
}
