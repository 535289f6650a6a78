// Package clock provides the simulated time source that drives a backtest.
//
// A SimClock only moves when told to. Callbacks scheduled for a time at or
// before the new time run in time order, ties in scheduling order, each
// outside the clock's lock so they may schedule more work or read Now.
package clock

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrBackwards = errors.New("clock: cannot move time backwards")

type Option func(*SimClock)

func WithLogger(l *zap.Logger) Option {
	return func(c *SimClock) {
		if l != nil {
			c.log = l
		}
	}
}

type SimClock struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	queue callbacks
	log   *zap.Logger
}

func New(start time.Time, opts ...Option) *SimClock {
	c := &SimClock{now: start, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AdvanceTo moves the clock to t and runs every callback due at or before t.
// The time is set before the first callback runs. Moving backwards returns
// ErrBackwards and changes nothing.
func (c *SimClock) AdvanceTo(t time.Time) error {
	c.mu.Lock()
	if t.Before(c.now) {
		now := c.now
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is before %s", ErrBackwards,
			t.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	}
	c.now = t
	c.mu.Unlock()

	for {
		cb, ok := c.popDue()
		if !ok {
			return nil
		}
		c.run(cb)
	}
}

func (c *SimClock) AdvanceBy(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrBackwards, d)
	}
	return c.AdvanceTo(c.Now().Add(d))
}

// Schedule queues cb to run when the clock reaches at. A time already in the
// past runs on the next advance.
func (c *SimClock) Schedule(at time.Time, cb func()) {
	if cb == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	heap.Push(&c.queue, &callback{at: at, seq: c.seq, fn: cb})
}

func (c *SimClock) ScheduleDelay(d time.Duration, cb func()) {
	c.mu.Lock()
	at := c.now.Add(d)
	c.mu.Unlock()
	c.Schedule(at, cb)
}

// Reset sets the time to t and drops every pending callback.
func (c *SimClock) Reset(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	c.queue = nil
	c.seq = 0
}

func (c *SimClock) HasPendingEvents() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

func (c *SimClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *SimClock) NextEventTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return time.Time{}, false
	}
	return c.queue[0].at, true
}

// popDue compares against the current time, not the advance target, since a
// callback may Reset the clock.
func (c *SimClock) popDue() (*callback, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 || c.queue[0].at.After(c.now) {
		return nil, false
	}
	return heap.Pop(&c.queue).(*callback), true
}

func (c *SimClock) run(cb *callback) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("scheduled callback panicked",
				zap.Time("at", cb.at),
				zap.Any("panic", r))
		}
	}()
	cb.fn()
}

type callback struct {
	at  time.Time
	seq uint64
	fn  func()
}

type callbacks []*callback

func (h callbacks) Len() int { return len(h) }

func (h callbacks) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h callbacks) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *callbacks) Push(x any) { *h = append(*h, x.(*callback)) }

func (h *callbacks) Pop() any {
	old := *h
	n := len(old)
	cb := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return cb
}
