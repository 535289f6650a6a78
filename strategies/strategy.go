// Package strategies defines the strategy capability and ships sample
// strategies.
//
// A Strategy only reacts to market data. Everything else a strategy may
// care about (start, stop, fills, risk events, timers) is an optional hook
// in Hooks. Strategies act on the simulation only through the Orders port.
package strategies

import (
	"time"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
)

type Strategy interface {
	ID() string
	OnMarketData(ev events.MarketEvent, o Orders) error
}

// Orders is the port a strategy uses to act. Submit returns the order as
// routed, with id and timestamp assigned; a risk rejection comes back as a
// *risk.Violation error.
type Orders interface {
	Submit(order market.Order) (market.Order, error)
	Signal(instrument string, s events.Signal, strength float64)
	Position(instrument string) market.Position
	Now() time.Time
}

// Hooks are optional callbacks. Nil fields are skipped.
type Hooks struct {
	OnStart func(o Orders) error
	OnStop  func(o Orders) error
	OnFill  func(ev events.FillEvent, o Orders) error
	OnRisk  func(ev events.RiskEvent, o Orders) error
	OnTimer func(ev events.TimerEvent, o Orders) error
}

func (h Hooks) Start(o Orders) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(o)
}

func (h Hooks) Stop(o Orders) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(o)
}

func (h Hooks) Fill(ev events.FillEvent, o Orders) error {
	if h.OnFill == nil {
		return nil
	}
	return h.OnFill(ev, o)
}

func (h Hooks) Risk(ev events.RiskEvent, o Orders) error {
	if h.OnRisk == nil {
		return nil
	}
	return h.OnRisk(ev, o)
}

func (h Hooks) Timer(ev events.TimerEvent, o Orders) error {
	if h.OnTimer == nil {
		return nil
	}
	return h.OnTimer(ev, o)
}

// HookProvider is implemented by strategies that carry their own hooks.
type HookProvider interface {
	Hooks() Hooks
}

// HooksOf returns the strategy's own hooks, or empty hooks.
func HooksOf(s Strategy) Hooks {
	if hp, ok := s.(HookProvider); ok {
		return hp.Hooks()
	}
	return Hooks{}
}
