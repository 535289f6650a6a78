package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
)

func tick(sec int) events.MarketEvent {
	return events.MarketEvent{Tick: market.Tick{
		Timestamp:  time.Unix(int64(sec), 0).UTC(),
		Instrument: "AAPL",
		Bid:        100,
		Ask:        101,
	}}
}

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	return New(WithLogger(zaptest.NewLogger(t)))
}

func TestSubscriptionOrder(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var got []string
	b.SubscribeAll(func(events.Event) error { got = append(got, "all"); return nil })
	b.Subscribe(events.KindMarket, func(events.Event) error { got = append(got, "A"); return nil })
	b.Subscribe(events.KindMarket, func(events.Event) error { got = append(got, "B"); return nil })
	b.Subscribe(events.KindFill, func(events.Event) error { got = append(got, "fill"); return nil })

	b.PublishSync(tick(1))
	assert.Equal(t, []string{"A", "B", "all"}, got)
	assert.Equal(t, uint64(1), b.Delivered())
}

func TestFailingHandlerIsIsolated(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var calls []string
	b.Subscribe(events.KindMarket, func(events.Event) error { return errors.New("bad handler") })
	b.Subscribe(events.KindMarket, func(events.Event) error { panic("worse handler") })
	b.Subscribe(events.KindMarket, func(events.Event) error { calls = append(calls, "ok"); return nil })

	b.PublishSync(tick(1))
	assert.Equal(t, []string{"ok"}, calls)
	assert.Equal(t, uint64(2), b.Failures())
}

func TestUnsubscribeIdempotent(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	n := 0
	h := b.Subscribe(events.KindMarket, func(events.Event) error { n++; return nil })
	a := b.SubscribeAll(func(events.Event) error { n++; return nil })

	b.Unsubscribe(h)
	b.Unsubscribe(h)
	b.Unsubscribe(Handle(9999))
	b.PublishSync(tick(1))
	assert.Equal(t, 1, n)

	b.Unsubscribe(a)
	b.PublishSync(tick(2))
	assert.Equal(t, 1, n)
}

func TestHandlerMayPublishAndSubscribe(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var fills int
	b.Subscribe(events.KindMarket, func(ev events.Event) error {
		b.Subscribe(events.KindFill, func(events.Event) error { fills++; return nil })
		b.PublishSync(events.FillEvent{Fill: market.Fill{Timestamp: ev.Time()}})
		return nil
	})

	b.PublishSync(tick(1))
	assert.Equal(t, 1, fills)
}

func TestProcessPendingFIFO(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var secs []int64
	b.Subscribe(events.KindMarket, func(ev events.Event) error {
		secs = append(secs, ev.Time().Unix())
		return nil
	})

	for i := 1; i <= 5; i++ {
		b.Publish(tick(i))
	}
	assert.Equal(t, 5, b.QueueSize())
	assert.Equal(t, 5, b.ProcessPending())
	assert.Equal(t, 0, b.QueueSize())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, secs)
}

func TestAsyncDeliveryDrainsOnStop(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var mu sync.Mutex
	var secs []int64
	b.Subscribe(events.KindMarket, func(ev events.Event) error {
		mu.Lock()
		secs = append(secs, ev.Time().Unix())
		mu.Unlock()
		return nil
	})

	b.Start()
	b.Start()
	require.True(t, b.Running())
	for i := 1; i <= 100; i++ {
		b.Publish(tick(i))
	}
	b.Stop()
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, secs, 100)
	for i, s := range secs {
		assert.Equal(t, int64(i+1), s)
	}
	assert.False(t, b.Running())
}

func TestProcessPendingLeavesQueueToRunningLoop(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var secs []int64
	b.Subscribe(events.KindMarket, func(ev events.Event) error {
		if ev.Time().Unix() == 1 {
			close(entered)
			<-release
		}
		mu.Lock()
		secs = append(secs, ev.Time().Unix())
		mu.Unlock()
		return nil
	})

	b.Start()
	b.Publish(tick(1))
	<-entered
	for i := 2; i <= 4; i++ {
		b.Publish(tick(i))
	}
	assert.Zero(t, b.ProcessPending())
	assert.Equal(t, 3, b.QueueSize())

	close(release)
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3, 4}, secs)
}

func TestConcurrentPublishers(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var mu sync.Mutex
	count := 0
	b.SubscribeAll(func(events.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	b.Start()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish(tick(i))
			}
		}()
	}
	wg.Wait()
	b.Stop()

	assert.Equal(t, 400, count)
	assert.Equal(t, uint64(400), b.Delivered())
}

func TestNilEventIgnored(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)
	b.Publish(nil)
	b.PublishSync(nil)
	assert.Equal(t, 0, b.QueueSize())
	assert.Equal(t, uint64(0), b.Delivered())
}
