package retry

import (
	"sync"
	"time"

	"github.com/shaneisley/relay/pkg/backoff"
	"github.com/shaneisley/relay/pkg/logging"
	"github.com/shaneisley/relay/pkg/protocol"
	"github.com/shaneisley/relay/pkg/rpcerr"
)

// DefaultMaxAttempts is the retry ceiling applied when none is configured.
const DefaultMaxAttempts = 5

// Resubmit hands a retried envelope back to the scheduler after its delay
// has elapsed.
type Resubmit func(env *protocol.Envelope)

// Controller owns the retry policy: whether to retry, how long to wait,
// and the timer-based re-enqueue. It never blocks the calling goroutine
// while a retry is pending.
type Controller struct {
	maxAttempts int
	strategy    backoff.Strategy
	resubmit    Resubmit
	logger      *logging.Logger

	mu          sync.Mutex
	nextTimerID uint64
	timers      map[uint64]*time.Timer
}

// NewController creates a retry controller. maxAttempts <= 0 selects the
// default ceiling; a nil strategy selects the standard schedule.
func NewController(maxAttempts int, strategy backoff.Strategy, resubmit Resubmit, logger *logging.Logger) *Controller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if strategy == nil {
		strategy = backoff.DefaultSchedule()
	}
	return &Controller{
		maxAttempts: maxAttempts,
		strategy:    strategy,
		resubmit:    resubmit,
		logger:      logger.WithComponent("retry"),
		timers:      make(map[uint64]*time.Timer),
	}
}

// MaxAttempts returns the configured retry ceiling.
func (c *Controller) MaxAttempts() int {
	return c.maxAttempts
}

// ShouldRetry reports whether a failure may be retried given the attempts
// made so far (including the failed one). Category alone decides
// retryability; the ceiling bounds the total attempt count.
func (c *Controller) ShouldRetry(record *rpcerr.Error, attemptsSoFar int) bool {
	if record == nil || !record.Category.Retryable() {
		return false
	}
	return attemptsSoFar < c.maxAttempts
}

// Multiplier returns the priority scaling factor for retry delays.
// Higher-priority work waits less.
func Multiplier(p protocol.Priority) float64 {
	switch p {
	case protocol.PriorityCritical:
		return 0.25
	case protocol.PriorityHigh:
		return 0.5
	case protocol.PriorityLow:
		return 2.0
	default:
		return 1.0
	}
}

// NextDelay computes the backoff delay before the next attempt: the
// schedule step at the attempt index, scaled by the priority multiplier.
func (c *Controller) NextDelay(attemptsSoFar int, priority protocol.Priority) time.Duration {
	base := c.strategy.Delay(attemptsSoFar + 1)
	return time.Duration(float64(base) * Multiplier(priority))
}

// Schedule arms a timer that resubmits the envelope with RetryCount+1
// after the computed delay. A rate-limit record carrying a server-suggested
// delay overrides the schedule; the priority multiplier still applies.
// Returns the delay used, for the caller's acknowledgement.
func (c *Controller) Schedule(env *protocol.Envelope, record *rpcerr.Error) time.Duration {
	delay := c.NextDelay(env.RetryCount, env.Priority)
	if record != nil && record.Category == rpcerr.CategoryRateLimit && record.RetryAfterMs > 0 {
		suggested := time.Duration(record.RetryAfterMs) * time.Millisecond
		delay = time.Duration(float64(suggested) * Multiplier(env.Priority))
	}

	retried := env.WithRetry()

	c.logger.Info("retry scheduled",
		"request_id", env.RequestID,
		"method", env.Method,
		"attempt", retried.RetryCount,
		"delay_ms", delay.Milliseconds())

	// The timer is tracked only while pending; the callback drops its own
	// entry before resubmitting, so fired timers are not retained.
	c.mu.Lock()
	c.nextTimerID++
	id := c.nextTimerID
	c.timers[id] = time.AfterFunc(delay, func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()
		c.resubmit(retried)
	})
	c.mu.Unlock()

	return delay
}

// Stop cancels all pending retry timers. Used during shutdown.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[uint64]*time.Timer)
}
