package journal

import (
	"github.com/rustyeddy/backtest/bus"
	"github.com/rustyeddy/backtest/events"
)

// Subscription is the set of bus handles Attach registered.
type Subscription struct {
	b       *bus.Bus
	handles []bus.Handle
}

// Attach records every fill and risk event published on b under runID.
// Journal errors are returned to the bus, which counts them as handler
// failures.
func Attach(b *bus.Bus, j Journal, runID string) *Subscription {
	v := events.Funcs{
		Fill: func(e events.FillEvent) error { return j.RecordFill(runID, e.Fill) },
		Risk: func(e events.RiskEvent) error { return j.RecordRisk(runID, e) },
	}
	record := func(ev events.Event) error { return ev.Accept(v) }

	return &Subscription{b: b, handles: []bus.Handle{
		b.Subscribe(events.KindFill, record),
		b.Subscribe(events.KindRisk, record),
	}}
}

// Detach unsubscribes the handlers. Calling it twice is harmless.
func (s *Subscription) Detach() {
	if s == nil {
		return
	}
	for _, h := range s.handles {
		s.b.Unsubscribe(h)
	}
	s.handles = nil
}
