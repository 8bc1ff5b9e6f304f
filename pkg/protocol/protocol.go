package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaneisley/relay/pkg/rpcerr"
	"github.com/shaneisley/relay/pkg/version"
)

// Priority is the scheduling band of a request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight returns the numeric scheduling weight of the priority.
// Higher weights are dispatched first.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is one of the known bands.
func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// Envelope is the structured unit of a single request. It is immutable once
// created except RetryCount, which increments on each re-enqueue via
// WithRetry. The scheduler owns a queued envelope; ownership transfers to
// the executor during processing.
type Envelope struct {
	Method          string         `json:"method"`
	Params          map[string]any `json:"params,omitempty"`
	RequestID       string         `json:"request_id"`
	Timestamp       time.Time      `json:"timestamp"`
	Priority        Priority       `json:"priority"`
	RetryCount      int            `json:"retry_count"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	ProtocolVersion string         `json:"protocol_version"`
}

// NewEnvelope creates a request envelope with a fresh request id.
func NewEnvelope(method string, params map[string]any, protocolVersion string, priority Priority) *Envelope {
	return &Envelope{
		Method:          method,
		Params:          params,
		RequestID:       uuid.NewString(),
		Timestamp:       time.Now(),
		Priority:        priority,
		ProtocolVersion: protocolVersion,
	}
}

// WithRetry returns a copy of the envelope with RetryCount incremented.
// The original envelope is left untouched.
func (e *Envelope) WithRetry() *Envelope {
	clone := *e
	clone.RetryCount++
	return &clone
}

// Metadata is attached to every response.
type Metadata struct {
	ProtocolVersion  string          `json:"protocol_version"`
	Timestamp        time.Time       `json:"timestamp"`
	RequestID        string          `json:"request_id"`
	ProcessingTimeMs float64         `json:"processing_time_ms"`
	CacheHit         bool            `json:"cache_hit"`
	Compatibility    *version.Result `json:"compatibility,omitempty"`
}

// Response is the outbound envelope wrapping a result or a structured error.
type Response struct {
	Success  bool          `json:"success"`
	Result   any           `json:"result,omitempty"`
	Error    *rpcerr.Error `json:"error,omitempty"`
	Metadata Metadata      `json:"metadata"`
}

// Batch is an ordered list of envelopes submitted together.
type Batch struct {
	BatchID   string      `json:"batch_id"`
	Envelopes []*Envelope `json:"envelopes"`
}

// NewBatch creates a batch with a fresh batch id.
func NewBatch(envelopes []*Envelope) *Batch {
	return &Batch{
		BatchID:   uuid.NewString(),
		Envelopes: envelopes,
	}
}
