package chain

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies block timestamps in unix seconds.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock is a Clock that only moves when told to. It is used by tests
// and by simulations that need to step through time locks.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock creates a clock reading start.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is refused.
func (c *ManualClock) Set(t uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < c.now {
		return fmt.Errorf("clock cannot move backwards from %d to %d", c.now, t)
	}
	c.now = t
	return nil
}

// Advance moves the clock forward by d, truncated to whole seconds, and
// returns the new reading.
func (c *ManualClock) Advance(d time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += uint64(d / time.Second)
	}
	return c.now
}
