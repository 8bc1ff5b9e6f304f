package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaneisley/relay/pkg/backoff"
	"github.com/shaneisley/relay/pkg/cache"
	"github.com/shaneisley/relay/pkg/executor"
	"github.com/shaneisley/relay/pkg/logging"
	"github.com/shaneisley/relay/pkg/metrics"
	"github.com/shaneisley/relay/pkg/protocol"
	"github.com/shaneisley/relay/pkg/retry"
	"github.com/shaneisley/relay/pkg/rpcerr"
	"github.com/shaneisley/relay/pkg/scheduler"
	"github.com/shaneisley/relay/pkg/version"
)

// Config holds the service tunables. All are injected at startup and never
// mutated at runtime except via the documented counters reset.
type Config struct {
	Workers               int
	MaxAttempts           int
	RequestTimeout        time.Duration
	DefaultTTL            time.Duration
	CacheCapacity         int
	RedisAddr             string
	PumpInterval          time.Duration
	BatchConcurrency      int
	CountersResetInterval time.Duration
	HTTPPort              int
	// RetryStrategy overrides the standard backoff schedule. Nil selects
	// the default 1s,2s,5s,10s,30s sequence.
	RetryStrategy backoff.Strategy
}

// withDefaults fills unset fields with working values.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = retry.DefaultMaxAttempts
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 1000
	}
	if c.PumpInterval <= 0 {
		c.PumpInterval = 25 * time.Millisecond
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}
	return c
}

// Service is the request-processing core: version negotiation, priority
// scheduling, cached execution, bounded retry, and the metrics surface.
type Service struct {
	cfg        Config
	logger     *logging.Logger
	versions   *version.Table
	queue      *scheduler.Queue
	cache      cache.Cache
	counters   *metrics.Registry
	retrier    *retry.Controller
	dispatcher *executor.Dispatcher
	server     *Server

	mu      sync.Mutex
	waiters map[string]chan *protocol.Response
	compat  map[string]*version.Result

	batchSem      chan struct{}
	activeWorkers atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New assembles a service from its configuration and version table. A
// non-empty RedisAddr selects the remote cache backend with in-process
// fallback; otherwise the cache is purely in-process.
func New(cfg Config, versions *version.Table, logger *logging.Logger) *Service {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	var c cache.Cache
	if cfg.RedisAddr != "" {
		c = cache.NewRedis(cache.RedisConfig{
			Addr:       cfg.RedisAddr,
			Capacity:   cfg.CacheCapacity,
			DefaultTTL: cfg.DefaultTTL,
		}, logger)
	} else {
		c = cache.NewMemory(cfg.CacheCapacity, cfg.DefaultTTL)
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger.WithComponent("service"),
		versions: versions,
		queue:    scheduler.New(),
		cache:    c,
		counters: metrics.NewRegistry(cfg.CountersResetInterval),
		waiters:  make(map[string]chan *protocol.Response),
		compat:   make(map[string]*version.Result),
		batchSem: make(chan struct{}, cfg.BatchConcurrency),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.retrier = retry.NewController(cfg.MaxAttempts, cfg.RetryStrategy, s.resubmit, logger)

	s.dispatcher = executor.NewDispatcher(executor.Config{
		Cache:     c,
		Counters:  s.counters,
		Retrier:   s.retrier,
		Timeout:   cfg.RequestTimeout,
		Cancelled: s.queue.IsCancelled,
		Logger:    logger,
	})

	if cfg.HTTPPort > 0 {
		s.server = NewServer(s, cfg.HTTPPort, logger)
	}

	return s
}

// Dispatcher exposes the handler table for registration before Start.
func (s *Service) Dispatcher() *executor.Dispatcher {
	return s.dispatcher
}

// Counters exposes the per-method performance counters.
func (s *Service) Counters() *metrics.Registry {
	return s.counters
}

// Cache exposes the cache layer, mainly for the stats surface.
func (s *Service) Cache() cache.Cache {
	return s.cache
}

// Start launches the worker pump, the counters reset loop, and the
// metrics/health server when configured.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.counters.Run(s.ctx)
	}()

	if s.server != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.server.Start(s.ctx); err != nil {
				s.logger.LogError("http server", err)
			}
		}()
	}

	s.logger.Info("service started",
		"workers", s.cfg.Workers,
		"max_attempts", s.cfg.MaxAttempts,
		"pump_interval_ms", s.cfg.PumpInterval.Milliseconds())
	return nil
}

// Stop shuts the service down, cancelling pending retries and workers.
func (s *Service) Stop() {
	s.cancel()
	s.retrier.Stop()
	s.wg.Wait()
	s.logger.Info("service stopped")
}

// Process submits an envelope and waits for its terminal response. Retries
// are transparent: the caller sees the final success or terminal error,
// not the intermediate retry acknowledgements.
func (s *Service) Process(ctx context.Context, env *protocol.Envelope) *protocol.Response {
	ch := s.registerWaiter(env.RequestID)
	defer s.dropWaiter(env.RequestID)

	// A retry scheduled for an inline critical execution is not a terminal
	// outcome: keep waiting for the final attempt to resolve the waiter.
	if resp, retryPending, done := s.admit(env); done && !retryPending {
		return resp
	}

	select {
	case resp := <-ch:
		return resp
	case <-ctx.Done():
		s.Cancel(env.RequestID)
		record := rpcerr.Wrap(rpcerr.CodeRequestCancelled, ctx.Err()).
			WithCorrelation(env.CorrelationID)
		return s.shortCircuit(env, record, nil)
	}
}

// Submit submits an envelope without waiting. Incompatible or invalid
// requests short-circuit; critical requests execute inline and return
// their actual outcome; everything else returns a queued acknowledgement.
func (s *Service) Submit(ctx context.Context, env *protocol.Envelope) *protocol.Response {
	if resp, _, done := s.admit(env); done {
		return resp
	}

	s.mu.Lock()
	compat := s.compat[env.RequestID]
	s.mu.Unlock()

	return &protocol.Response{
		Success: true,
		Result:  map[string]any{"status": "queued"},
		Metadata: protocol.Metadata{
			ProtocolVersion: env.ProtocolVersion,
			Timestamp:       time.Now(),
			RequestID:       env.RequestID,
			Compatibility:   compat,
		},
	}
}

// ProcessBatch sorts a batch by priority once, then feeds every envelope
// through the single-item path. Responses are returned in submission
// order. A counting semaphore caps concurrently processed batches.
func (s *Service) ProcessBatch(ctx context.Context, batch *protocol.Batch) []*protocol.Response {
	select {
	case s.batchSem <- struct{}{}:
	case <-ctx.Done():
		responses := make([]*protocol.Response, len(batch.Envelopes))
		for i, env := range batch.Envelopes {
			record := rpcerr.Wrap(rpcerr.CodeRequestCancelled, ctx.Err())
			responses[i] = s.shortCircuit(env, record, nil)
		}
		return responses
	}
	defer func() { <-s.batchSem }()

	order := make([]int, len(batch.Envelopes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return batch.Envelopes[order[a]].Priority.Weight() > batch.Envelopes[order[b]].Priority.Weight()
	})

	responses := make([]*protocol.Response, len(batch.Envelopes))
	for _, idx := range order {
		responses[idx] = s.Process(ctx, batch.Envelopes[idx])
	}
	return responses
}

// Cancel marks a request id as cancelled. Queued items are skipped at
// dispatch; a pending waiter is resolved with a cancellation response.
func (s *Service) Cancel(requestID string) {
	s.queue.Cancel(requestID)

	record := rpcerr.New(rpcerr.CodeRequestCancelled)
	s.resolve(requestID, &protocol.Response{
		Success: false,
		Error:   record,
		Metadata: protocol.Metadata{
			Timestamp: time.Now(),
			RequestID: requestID,
		},
	})
}

// admit validates and negotiates an envelope. It returns done=true when
// the request short-circuits or executes inline (critical), with
// retryScheduled reporting whether the inline execution handed off to the
// retry controller; done=false means the envelope was queued.
func (s *Service) admit(env *protocol.Envelope) (resp *protocol.Response, retryScheduled bool, done bool) {
	if env.Method == "" {
		record := rpcerr.Newf(rpcerr.CodeInvalidRequest, "method must not be empty").
			WithCorrelation(env.CorrelationID)
		s.counters.RecordRequest(env.Method, 0, true)
		return s.shortCircuit(env, record, nil), false, true
	}
	if !env.Priority.Valid() {
		record := rpcerr.Newf(rpcerr.CodeInvalidRequest, "unknown priority %q", string(env.Priority)).
			WithCorrelation(env.CorrelationID)
		s.counters.RecordRequest(env.Method, 0, true)
		return s.shortCircuit(env, record, nil), false, true
	}

	compat := s.versions.CheckCompatibility(env.ProtocolVersion)
	if !compat.IsCompatible {
		record := rpcerr.Newf(rpcerr.CodeVersionUnsupported,
			"protocol version %q is not supported", env.ProtocolVersion).
			WithCorrelation(env.CorrelationID)
		record.Suggestions = append(record.Suggestions, compat.Suggestions...)
		s.counters.RecordRequest(env.Method, 0, true)
		return s.shortCircuit(env, record, &compat), false, true
	}

	s.mu.Lock()
	s.compat[env.RequestID] = &compat
	s.mu.Unlock()

	// Critical requests bypass the queue and execute immediately.
	if env.Priority == protocol.PriorityCritical {
		resp, retryScheduled = s.runEnvelope(env)
		return resp, retryScheduled, true
	}

	s.queue.Enqueue(env)
	return nil, false, false
}

// runEnvelope executes one envelope and resolves its waiter on terminal
// outcomes. Retry acknowledgements leave the waiter armed for the final
// attempt; the returned bool reports that hand-off.
func (s *Service) runEnvelope(env *protocol.Envelope) (*protocol.Response, bool) {
	resp, retryScheduled := s.dispatcher.Execute(s.ctx, env)

	s.mu.Lock()
	resp.Metadata.Compatibility = s.compat[env.RequestID]
	s.mu.Unlock()

	if !retryScheduled {
		// Terminal outcome: any cancellation mark is stale from here on.
		s.queue.ClearCancelled(env.RequestID)
		s.resolve(env.RequestID, resp)
	}
	return resp, retryScheduled
}

// resubmit is the retry controller's re-entry point. Critical retries run
// inline (their delay already elapsed on the timer); others re-enter the
// priority queue.
func (s *Service) resubmit(env *protocol.Envelope) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	if env.Priority == protocol.PriorityCritical {
		go s.runEnvelope(env)
		return
	}
	s.queue.Enqueue(env)
}

// worker is the scheduler pump: it drains the queue on a fixed short
// interval rather than busy-spinning.
func (s *Service) worker(id int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PumpInterval)
	defer ticker.Stop()

	s.logger.Debug("worker started", "worker_id", id)
	defer s.logger.Debug("worker stopped", "worker_id", id)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for {
				env, ok := s.queue.DequeueNext()
				if !ok {
					break
				}
				s.activeWorkers.Add(1)
				s.runEnvelope(env)
				s.activeWorkers.Add(-1)

				select {
				case <-s.ctx.Done():
					return
				default:
				}
			}
		}
	}
}

// shortCircuit builds an immediate error response without dispatching.
func (s *Service) shortCircuit(env *protocol.Envelope, record *rpcerr.Error, compat *version.Result) *protocol.Response {
	return &protocol.Response{
		Success: false,
		Error:   record,
		Metadata: protocol.Metadata{
			ProtocolVersion: env.ProtocolVersion,
			Timestamp:       time.Now(),
			RequestID:       env.RequestID,
			Compatibility:   compat,
		},
	}
}

// registerWaiter arms a terminal-response channel for a request id.
func (s *Service) registerWaiter(requestID string) chan *protocol.Response {
	ch := make(chan *protocol.Response, 1)
	s.mu.Lock()
	s.waiters[requestID] = ch
	s.mu.Unlock()
	return ch
}

// dropWaiter removes a waiter and its negotiation record.
func (s *Service) dropWaiter(requestID string) {
	s.mu.Lock()
	delete(s.waiters, requestID)
	delete(s.compat, requestID)
	s.mu.Unlock()
}

// resolve delivers a terminal response to a pending waiter, if any, and
// clears the request's negotiation record.
func (s *Service) resolve(requestID string, resp *protocol.Response) {
	s.mu.Lock()
	ch, ok := s.waiters[requestID]
	if ok {
		delete(s.waiters, requestID)
	}
	delete(s.compat, requestID)
	s.mu.Unlock()

	if ok {
		ch <- resp
	}
}

// Stats is the read-only metrics/health surface.
type Stats struct {
	QueueDepth    int                            `json:"queue_depth"`
	MaxQueueDepth int                            `json:"max_queue_depth"`
	ActiveWorkers int64                          `json:"active_workers"`
	Workers       int                            `json:"workers"`
	CacheStats    cache.Stats                    `json:"cache_stats"`
	CacheHitRate  float64                        `json:"cache_hit_rate"`
	Methods       map[string]metrics.MethodStats `json:"methods"`
}

// Snapshot returns the current observability counters. Read-only, no side
// effects.
func (s *Service) Snapshot() Stats {
	cs := s.cache.Stats()
	return Stats{
		QueueDepth:    s.queue.Depth(),
		MaxQueueDepth: s.queue.MaxDepth(),
		ActiveWorkers: s.activeWorkers.Load(),
		Workers:       s.cfg.Workers,
		CacheStats:    cs,
		CacheHitRate:  cs.HitRate(),
		Methods:       s.counters.Snapshot(),
	}
}
