package backoff

import (
	"math"
	"time"
)

// Strategy defines the interface for backoff strategies
type Strategy interface {
	// Delay returns the duration to wait before the next attempt
	// attempt is 1-based (1 for first retry, 2 for second retry, etc.)
	Delay(attempt int) time.Duration
}

// Fixed implements a fixed delay strategy
type Fixed struct {
	Duration time.Duration
}

// NewFixed creates a new Fixed backoff strategy
func NewFixed(duration time.Duration) *Fixed {
	return &Fixed{
		Duration: duration,
	}
}

// Delay returns the fixed duration for any attempt
func (f *Fixed) Delay(attempt int) time.Duration {
	return f.Duration
}

// Exponential implements an exponential backoff strategy
type Exponential struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// NewExponential creates a new Exponential backoff strategy
// baseDelay is the initial delay, multiplier is the factor to increase by each attempt
// maxDelay is the maximum delay (0 means no limit)
func NewExponential(baseDelay time.Duration, multiplier float64, maxDelay time.Duration) *Exponential {
	return &Exponential{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
	}
}

// Delay returns the exponentially increasing delay for the given attempt
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return e.BaseDelay
	}

	// Calculate exponential delay: baseDelay * multiplier^(attempt-1)
	delay := float64(e.BaseDelay) * math.Pow(e.Multiplier, float64(attempt-1))
	result := time.Duration(delay)

	// Apply max delay cap if set
	if e.MaxDelay > 0 && result > e.MaxDelay {
		result = e.MaxDelay
	}

	return result
}

// Schedule implements a predefined increasing delay sequence, clamped to
// the last step for attempts beyond the sequence length
type Schedule struct {
	Steps []time.Duration
}

// NewSchedule creates a new Schedule backoff strategy from explicit steps
func NewSchedule(steps ...time.Duration) *Schedule {
	return &Schedule{Steps: steps}
}

// DefaultSchedule returns the standard retry schedule: 1s, 2s, 5s, 10s, 30s
func DefaultSchedule() *Schedule {
	return NewSchedule(
		1*time.Second,
		2*time.Second,
		5*time.Second,
		10*time.Second,
		30*time.Second,
	)
}

// Delay returns the step at the attempt index, clamped to the final step
func (s *Schedule) Delay(attempt int) time.Duration {
	if len(s.Steps) == 0 {
		return 0
	}
	if attempt <= 0 {
		return s.Steps[0]
	}
	if attempt > len(s.Steps) {
		return s.Steps[len(s.Steps)-1]
	}
	return s.Steps[attempt-1]
}
