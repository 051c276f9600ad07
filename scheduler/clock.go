package scheduler

import (
	"sync"
	"time"
)

// Clock fans one timestamp stream out to many subscribers. Each subscriber
// gets a one-slot buffer; a slow subscriber misses ticks instead of stalling
// the others, and always sees the latest one.
type Clock struct {
	mu   sync.Mutex
	subs map[int]chan time.Time
	next int
}

// NewClock creates a Clock with no subscribers.
func NewClock() *Clock {
	return &Clock{subs: make(map[int]chan time.Time)}
}

// Subscribe returns a tick channel and a function that unsubscribes and
// closes it.
func (c *Clock) Subscribe() (<-chan time.Time, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	ch := make(chan time.Time, 1)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// Broadcast delivers now to every subscriber without blocking. It has the
// TaskFn signature so it can be driven by AddTicker.
func (c *Clock) Broadcast(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- now:
		default:
			// Replace the stale tick with the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- now:
			default:
			}
		}
	}
}

// Subscribers returns the current subscriber count.
func (c *Clock) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
