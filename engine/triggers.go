package engine

import (
	"github.com/rustyeddy/backtest/market"
)

// hitStop reports whether price has reached the stop of o. Buy stops
// trigger at or above the stop, sell stops at or below.
func hitStop(o market.Order, price market.Price) bool {
	if price <= 0 {
		return false
	}
	if o.Side == market.Buy {
		return price >= o.StopPrice
	}
	return price <= o.StopPrice
}

// triggered converts a stop into the order it becomes: stop to market,
// stop-limit to limit.
func triggered(o market.Order) market.Order {
	if o.Type == market.StopLimit {
		o.Type = market.Limit
	} else {
		o.Type = market.Market
	}
	return o
}

// triggerStops executes every waiting stop on instrument that price has
// reached, in submission order.
func (e *Engine) triggerStops(instrument string, price market.Price) {
	e.mu.Lock()
	waiting := e.stops[instrument]
	var due, keep []market.Order
	for _, o := range waiting {
		if hitStop(o, price) {
			due = append(due, o)
		} else {
			keep = append(keep, o)
		}
	}
	if len(due) > 0 {
		e.stops[instrument] = keep
	}
	e.mu.Unlock()

	for _, o := range due {
		e.execute(triggered(o))
	}
}
