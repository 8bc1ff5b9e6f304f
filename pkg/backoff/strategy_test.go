package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed_Delay(t *testing.T) {
	// Given a fixed backoff strategy with 100ms delay
	fixed := NewFixed(100 * time.Millisecond)

	// When Delay() is called for different attempts
	delay1 := fixed.Delay(1)
	delay2 := fixed.Delay(2)
	delay3 := fixed.Delay(3)

	// Then all delays should be the same
	assert.Equal(t, 100*time.Millisecond, delay1)
	assert.Equal(t, 100*time.Millisecond, delay2)
	assert.Equal(t, 100*time.Millisecond, delay3)
}

func TestExponential_DelayIncreasesCorrectly(t *testing.T) {
	// Given an exponential backoff strategy with 100ms base delay
	exponential := NewExponential(100*time.Millisecond, 2.0, 0)

	// When Delay() is called for different attempts
	delay1 := exponential.Delay(1)
	delay2 := exponential.Delay(2)
	delay3 := exponential.Delay(3)
	delay4 := exponential.Delay(4)

	// Then delays should increase exponentially: 100ms, 200ms, 400ms, 800ms
	assert.Equal(t, 100*time.Millisecond, delay1)
	assert.Equal(t, 200*time.Millisecond, delay2)
	assert.Equal(t, 400*time.Millisecond, delay3)
	assert.Equal(t, 800*time.Millisecond, delay4)
}

func TestExponential_WithMaxDelay(t *testing.T) {
	// Given an exponential backoff with max delay cap
	exponential := NewExponential(100*time.Millisecond, 2.0, 300*time.Millisecond)

	// When Delay() is called for attempts that would exceed max
	delay3 := exponential.Delay(3)
	delay4 := exponential.Delay(4)

	// Then delays should be capped at max delay
	assert.Equal(t, 300*time.Millisecond, delay3)
	assert.Equal(t, 300*time.Millisecond, delay4)
}

func TestSchedule_FollowsSteps(t *testing.T) {
	// Given the standard retry schedule
	schedule := DefaultSchedule()

	// When Delay() is called for each attempt index
	// Then the predefined sequence is followed
	assert.Equal(t, 1*time.Second, schedule.Delay(1))
	assert.Equal(t, 2*time.Second, schedule.Delay(2))
	assert.Equal(t, 5*time.Second, schedule.Delay(3))
	assert.Equal(t, 10*time.Second, schedule.Delay(4))
	assert.Equal(t, 30*time.Second, schedule.Delay(5))
}

func TestSchedule_ClampsBeyondLength(t *testing.T) {
	// Given the standard retry schedule
	schedule := DefaultSchedule()

	// When Delay() is called past the sequence length
	delay6 := schedule.Delay(6)
	delay100 := schedule.Delay(100)

	// Then delays clamp to the last step
	assert.Equal(t, 30*time.Second, delay6)
	assert.Equal(t, 30*time.Second, delay100)
}

func TestSchedule_InvalidAttemptUsesFirstStep(t *testing.T) {
	// Given a custom schedule
	schedule := NewSchedule(50*time.Millisecond, 100*time.Millisecond)

	// When Delay() is called with a non-positive attempt
	delay := schedule.Delay(0)

	// Then the first step is returned
	assert.Equal(t, 50*time.Millisecond, delay)
}

func TestSchedule_EmptyStepsYieldZero(t *testing.T) {
	// Given a schedule with no steps
	schedule := NewSchedule()

	// When Delay() is called
	delay := schedule.Delay(1)

	// Then the delay is zero
	assert.Equal(t, time.Duration(0), delay)
}
