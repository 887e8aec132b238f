// Package timeutil supplies the clock that stamps stored trials and names
// uploaded captures.
package timeutil

import (
	"sync"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock holds a fixed instant that moves only through Advance, or by a
// fixed step after every reading once Step is set.
type MockClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Step makes each Now call move the clock forward by d after reading it,
// so consecutive records get distinct timestamps.
func (c *MockClock) Step(d time.Duration) *MockClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
	return c
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
