package engine

import (
	"time"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/strategies"
)

// port is the strategies.Orders a registered strategy acts through. Orders
// and signals it sends are always attributed to that strategy.
type port struct {
	e        *Engine
	strategy string
}

var _ strategies.Orders = (*port)(nil)

func (p *port) Submit(o market.Order) (market.Order, error) {
	o.Strategy = p.strategy
	return p.e.Submit(o)
}

func (p *port) Signal(instrument string, s events.Signal, strength float64) {
	p.e.publish(events.SignalEvent{
		At:         p.e.clk.Now(),
		Instrument: instrument,
		Strategy:   p.strategy,
		Signal:     s,
		Strength:   strength,
	})
}

func (p *port) Position(instrument string) market.Position {
	return p.e.risk.Position(p.strategy, instrument)
}

func (p *port) Now() time.Time { return p.e.clk.Now() }
