package models

import (
	"sync"
	"time"
)

// MonotonicClock hands out strictly increasing timestamps even when calls
// land within the same wall-clock tick, so two orders arriving "at once"
// still carry a deterministic, strictly ordered created_at (invariant v:
// "created_at is strictly monotonic ... as observed by the engine").
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

// NewMonotonicClock returns a MonotonicClock ready for use.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{}
}

// Now returns a timestamp strictly greater than every timestamp previously
// returned by this clock.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}
