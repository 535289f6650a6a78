package strategies

import "github.com/rustyeddy/backtest/events"

// Noop does nothing.
type Noop struct {
	Name string
}

func (n Noop) ID() string {
	if n.Name == "" {
		return "noop"
	}
	return n.Name
}

func (Noop) OnMarketData(events.MarketEvent, Orders) error { return nil }
