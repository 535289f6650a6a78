// Package bus is a typed publish/subscribe event bus.
//
// Subscribers register for one event kind or for all kinds. Delivery is either
// synchronous on the publisher's goroutine (PublishSync) or queued and drained
// by a single dispatch goroutine (Publish with Start/Stop). Within one
// dispatch, kind subscribers run first in subscription order, then
// all-subscribers in subscription order.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/events"
)

// Handler handles one event. A returned error or a panic is logged and
// counted; it never stops delivery to the remaining handlers.
type Handler func(events.Event) error

// Handle identifies a subscription. The zero Handle is never issued.
type Handle uint64

type subscription struct {
	handle Handle
	fn     Handler
}

type Option func(*Bus)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

type Bus struct {
	log *zap.Logger

	subMu  sync.RWMutex
	byKind map[events.Kind][]subscription
	all    []subscription
	next   Handle

	q *queue

	runMu   sync.Mutex
	running atomic.Bool
	done    chan struct{}

	delivered atomic.Uint64
	failures  atomic.Uint64
}

func New(opts ...Option) *Bus {
	b := &Bus{
		log:    zap.NewNop(),
		byKind: make(map[events.Kind][]subscription),
		q:      newQueue(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bus) Subscribe(kind events.Kind, h Handler) Handle {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.next++
	b.byKind[kind] = append(b.byKind[kind], subscription{handle: b.next, fn: h})
	return b.next
}

func (b *Bus) SubscribeAll(h Handler) Handle {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.next++
	b.all = append(b.all, subscription{handle: b.next, fn: h})
	return b.next
}

// Unsubscribe removes the subscription. Unknown handles are ignored.
func (b *Bus) Unsubscribe(h Handle) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for k, subs := range b.byKind {
		if out, ok := without(subs, h); ok {
			if len(out) == 0 {
				delete(b.byKind, k)
			} else {
				b.byKind[k] = out
			}
			return
		}
	}
	if out, ok := without(b.all, h); ok {
		b.all = out
	}
}

func without(subs []subscription, h Handle) ([]subscription, bool) {
	for i, s := range subs {
		if s.handle == h {
			out := make([]subscription, 0, len(subs)-1)
			out = append(out, subs[:i]...)
			return append(out, subs[i+1:]...), true
		}
	}
	return subs, false
}

// Publish enqueues ev for the dispatch goroutine or a later ProcessPending.
// It never blocks on handlers and never drops.
func (b *Bus) Publish(ev events.Event) {
	if ev == nil {
		b.log.Warn("publish of nil event ignored")
		return
	}
	b.q.push(ev)
}

// PublishSync dispatches ev on the caller's goroutine, bypassing the queue.
func (b *Bus) PublishSync(ev events.Event) {
	if ev == nil {
		b.log.Warn("publish of nil event ignored")
		return
	}
	b.dispatch(ev)
}

// Start launches the dispatch goroutine. Calling Start on a running bus is a
// no-op.
func (b *Bus) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running.Load() {
		return
	}
	b.running.Store(true)
	b.done = make(chan struct{})
	b.q.open()
	go b.loop(b.done)
}

// Stop lets the dispatch goroutine drain what is already queued and waits for
// it to exit. Calling Stop on a stopped bus is a no-op.
func (b *Bus) Stop() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running.Load() {
		return
	}
	b.q.close()
	<-b.done
	b.running.Store(false)
}

// Running stays true while Stop drains, so handlers may keep publishing to
// the queue.
func (b *Bus) Running() bool { return b.running.Load() }

func (b *Bus) loop(done chan struct{}) {
	defer close(done)
	for {
		ev, ok := b.q.wait()
		if !ok {
			return
		}
		b.dispatch(ev)
	}
}

// ProcessPending drains the events queued at the time of the call on the
// caller's goroutine and returns how many were dispatched. While the dispatch
// goroutine runs it owns the queue, and ProcessPending returns 0.
func (b *Bus) ProcessPending() int {
	if b.running.Load() {
		return 0
	}
	pending := b.q.drain()
	for _, ev := range pending {
		b.dispatch(ev)
	}
	return len(pending)
}

func (b *Bus) QueueSize() int { return b.q.size() }

// Failures counts handler invocations that returned an error or panicked.
func (b *Bus) Failures() uint64 { return b.failures.Load() }

// Delivered counts completed dispatches.
func (b *Bus) Delivered() uint64 { return b.delivered.Load() }

func (b *Bus) dispatch(ev events.Event) {
	b.subMu.RLock()
	kind := b.byKind[ev.Kind()]
	subs := make([]subscription, 0, len(kind)+len(b.all))
	subs = append(subs, kind...)
	subs = append(subs, b.all...)
	b.subMu.RUnlock()

	for _, s := range subs {
		if err := b.invoke(s, ev); err != nil {
			b.failures.Add(1)
			b.log.Error("event handler failed",
				zap.Uint64("handle", uint64(s.handle)),
				zap.Stringer("kind", ev.Kind()),
				zap.Error(err))
		}
	}
	b.delivered.Add(1)
}

func (b *Bus) invoke(s subscription, ev events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.fn(ev)
}
