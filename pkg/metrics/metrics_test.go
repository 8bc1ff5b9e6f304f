package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RecordRequest(t *testing.T) {
	// Given an empty registry
	r := NewRegistry(0)

	// When recording successes and a failure
	r.RecordRequest("getMetrics", 10*time.Millisecond, false)
	r.RecordRequest("getMetrics", 30*time.Millisecond, false)
	r.RecordRequest("getMetrics", 20*time.Millisecond, true)

	// Then counts and the running average reflect every completion
	stats := r.Method("getMetrics")
	assert.Equal(t, int64(3), stats.RequestCount)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.InDelta(t, 20.0, stats.AvgLatencyMs, 0.001)
}

func TestRegistry_RunningAverageIsIncremental(t *testing.T) {
	// Given a long stream of identical latencies
	r := NewRegistry(0)
	for i := 0; i < 1000; i++ {
		r.RecordRequest("m", 5*time.Millisecond, false)
	}

	// Then the running average stays exact
	assert.InDelta(t, 5.0, r.Method("m").AvgLatencyMs, 0.0001)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	// Given a registry with one method
	r := NewRegistry(0)
	r.RecordRequest("m", time.Millisecond, false)

	// When mutating the snapshot
	snap := r.Snapshot()
	snap["m"] = MethodStats{RequestCount: 999}

	// Then the registry is unaffected
	assert.Equal(t, int64(1), r.Method("m").RequestCount)
}

func TestRegistry_Reset(t *testing.T) {
	// Given recorded counters
	r := NewRegistry(0)
	r.RecordRequest("m", time.Millisecond, true)
	before := r.LastReset()

	// When resetting
	time.Sleep(5 * time.Millisecond)
	r.Reset()

	// Then counters clear and the reset timestamp advances
	assert.Empty(t, r.Snapshot())
	assert.True(t, r.LastReset().After(before))
}

func TestRegistry_UnknownMethodIsZero(t *testing.T) {
	r := NewRegistry(0)
	assert.Equal(t, MethodStats{}, r.Method("absent"))
}
