// Package paymenttest provides deterministic collaborators for exercising the
// payment engine in tests.
package paymenttest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/payment-mock/internal/payment"
)

// ManualClock only moves when Advance is called. Timers fire synchronously on
// the goroutine calling Advance, in deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Time
	fn      func()
	done    bool
	stopped bool
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the frozen time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock has advanced by d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) payment.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop cancels the timer if it has not fired.
func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns the number of armed timers.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer that falls due,
// including timers armed by callbacks during the advance.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *manualTimer
		for _, t := range c.timers {
			if t.done || t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.compact()
			c.mu.Unlock()
			return
		}
		next.done = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
	}
}

func (c *ManualClock) compact() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
}

// SeqIDs mints predictable ids: pi_1, pi_2, job_3, ...
type SeqIDs struct {
	n atomic.Int64
}

// NewID returns prefix followed by the next sequence number.
func (s *SeqIDs) NewID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, s.n.Add(1))
}
