package executor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaneisley/relay/pkg/cache"
	"github.com/shaneisley/relay/pkg/logging"
	"github.com/shaneisley/relay/pkg/metrics"
	"github.com/shaneisley/relay/pkg/protocol"
	"github.com/shaneisley/relay/pkg/retry"
	"github.com/shaneisley/relay/pkg/rpcerr"
)

// Handler executes a single method. Implementations must honor the context:
// results arriving after cancellation or timeout are discarded.
type Handler interface {
	Handle(ctx context.Context, params map[string]any) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

// Handle calls the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// registration binds a method to its handler and cacheability declaration.
// Only side-effect-free methods are registered cacheable.
type registration struct {
	handler   Handler
	cacheable bool
	ttl       time.Duration
}

// Dispatcher routes methods to statically registered handlers, consults the
// cache, applies the per-request execution timeout, and hands failures to
// the retry controller.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]registration

	cache     cache.Cache
	counters  *metrics.Registry
	retrier   *retry.Controller
	timeout   time.Duration
	cancelled func(requestID string) bool
	logger    *logging.Logger
}

// Config holds the dispatcher's collaborators and tunables.
type Config struct {
	Cache    cache.Cache
	Counters *metrics.Registry
	Retrier  *retry.Controller
	// Timeout is the maximum execution duration per dispatched request.
	Timeout time.Duration
	// Cancelled reports whether a request id has been cancelled. Checked
	// again after suspension points to avoid wasted execution.
	Cancelled func(requestID string) bool
	Logger    *logging.Logger
}

// NewDispatcher creates a dispatcher with an empty handler table.
func NewDispatcher(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		handlers:  make(map[string]registration),
		cache:     cfg.Cache,
		counters:  cfg.Counters,
		retrier:   cfg.Retrier,
		timeout:   timeout,
		cancelled: cfg.Cancelled,
		logger:    cfg.Logger.WithComponent("executor"),
	}
}

// Register adds a handler for a method. The method is treated as having
// side effects, so its responses are never cached.
func (d *Dispatcher) Register(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = registration{handler: h}
}

// RegisterCacheable adds a handler for a side-effect-free method whose
// responses may be cached. A non-positive ttl selects the cache default.
func (d *Dispatcher) RegisterCacheable(method string, h Handler, ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = registration{handler: h, cacheable: true, ttl: ttl}
}

// Methods returns the sorted list of registered method names.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	methods := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Execute runs one envelope to completion, cache hit, retry hand-off, or
// terminal error. The second return value reports whether a retry was
// scheduled, in which case the response is an acknowledgement rather than
// a terminal outcome.
func (d *Dispatcher) Execute(ctx context.Context, env *protocol.Envelope) (*protocol.Response, bool) {
	start := time.Now()

	d.mu.RLock()
	reg, known := d.handlers[env.Method]
	d.mu.RUnlock()

	if !known {
		record := rpcerr.Newf(rpcerr.CodeMethodNotFound, "method %q not found", env.Method).
			WithCorrelation(env.CorrelationID)
		d.counters.RecordRequest(env.Method, time.Since(start), true)
		return d.errorResponse(env, record, start), false
	}

	// Cache eligibility is decided here, not in the cache layer: the method
	// must be declared side-effect-free and the request must not be critical.
	eligible := reg.cacheable && env.Priority != protocol.PriorityCritical && d.cache != nil
	key := ""
	if eligible {
		key = cache.Key(env.Method, env.Params)
		if value, hit := d.cache.Get(ctx, key); hit {
			d.counters.RecordRequest(env.Method, time.Since(start), false)
			resp := d.successResponse(env, value, start)
			resp.Metadata.CacheHit = true
			return resp, false
		}
	}

	result, err := d.invoke(ctx, env, reg.handler)

	// Re-check cancellation after the suspension point before doing any
	// further work on the request's behalf.
	if d.cancelled != nil && d.cancelled(env.RequestID) {
		record := rpcerr.New(rpcerr.CodeRequestCancelled).WithCorrelation(env.CorrelationID)
		d.counters.RecordRequest(env.Method, time.Since(start), true)
		return d.errorResponse(env, record, start), false
	}

	if err == nil {
		if eligible {
			if cacheErr := d.cache.Set(ctx, key, result, reg.ttl); cacheErr != nil {
				d.logger.Warn("write-through cache set failed",
					"method", env.Method, "error", cacheErr.Error())
			}
		}
		d.counters.RecordRequest(env.Method, time.Since(start), false)
		return d.successResponse(env, result, start), false
	}

	record := rpcerr.Classify(err).WithCorrelation(env.CorrelationID)
	d.counters.RecordRequest(env.Method, time.Since(start), true)

	// RetryCount counts re-enqueues, so attempts made includes this one.
	if d.retrier != nil && d.retrier.ShouldRetry(record, env.RetryCount+1) {
		delay := d.retrier.Schedule(env, record)
		ack := record.WithRetryAfter(delay.Milliseconds())
		return d.errorResponse(env, ack, start), true
	}

	if record.Category.Retryable() && d.retrier != nil {
		record = rpcerr.Newf(rpcerr.CodeRetryLimitExceeded,
			"retry limit exceeded after %d attempts", env.RetryCount+1).
			WithCorrelation(env.CorrelationID)
	}

	d.logger.LogError("execute", err,
		"method", env.Method,
		"request_id", env.RequestID,
		"category", string(record.Category),
		"retry_count", env.RetryCount)

	return d.errorResponse(env, record, start), false
}

// invoke runs the handler under the per-request execution timeout. The
// result channel is buffered so a handler finishing after the deadline
// writes into the void; the worker is freed regardless.
func (d *Dispatcher) invoke(ctx context.Context, env *protocol.Envelope, h Handler) (any, error) {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := h.Handle(hctx, env.Params)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-hctx.Done():
		if ctx.Err() == context.Canceled {
			return nil, rpcerr.Wrap(rpcerr.CodeRequestCancelled, ctx.Err())
		}
		return nil, rpcerr.Wrap(rpcerr.CodeTimeout, hctx.Err())
	}
}

// successResponse assembles a success envelope with metadata.
func (d *Dispatcher) successResponse(env *protocol.Envelope, result any, start time.Time) *protocol.Response {
	return &protocol.Response{
		Success: true,
		Result:  result,
		Metadata: protocol.Metadata{
			ProtocolVersion:  env.ProtocolVersion,
			Timestamp:        time.Now(),
			RequestID:        env.RequestID,
			ProcessingTimeMs: float64(time.Since(start)) / float64(time.Millisecond),
		},
	}
}

// errorResponse assembles an error envelope with metadata.
func (d *Dispatcher) errorResponse(env *protocol.Envelope, record *rpcerr.Error, start time.Time) *protocol.Response {
	return &protocol.Response{
		Success: false,
		Error:   record,
		Metadata: protocol.Metadata{
			ProtocolVersion:  env.ProtocolVersion,
			Timestamp:        time.Now(),
			RequestID:        env.RequestID,
			ProcessingTimeMs: float64(time.Since(start)) / float64(time.Millisecond),
		},
	}
}
