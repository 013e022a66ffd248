// Package clock provides an abstraction for time so components can be
// tested with a deterministic clock instead of the wall clock.
package clock

import "time"

// Clock provides the time-reading surface the engine depends on.
type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

// SystemClock provides an instance of Clock that uses the system clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// DeterministicClock provides a clock that only advances when explicitly
// told to. The zero time is whatever the test seeds it with.
type DeterministicClock struct {
	now time.Time
}

func NewDeterministicClock(now time.Time) *DeterministicClock {
	return &DeterministicClock{now: now}
}

func (c *DeterministicClock) Now() time.Time {
	return c.now
}

func (c *DeterministicClock) Since(t time.Time) time.Duration {
	return c.now.Sub(t)
}

// AdvanceTime moves the clock forward by the given duration.
func (c *DeterministicClock) AdvanceTime(d time.Duration) {
	c.now = c.now.Add(d)
}

// SetTime jumps the clock to the given unix timestamp.
func (c *DeterministicClock) SetTime(unix uint64) {
	c.now = time.Unix(int64(unix), 0)
}
