package orderbook

import "github.com/rustyeddy/backtest/market"

type DepthLevel struct {
	Price  market.Price
	Volume market.Volume
	Orders int
}

type Depth struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

type Stats struct {
	Orders       int
	BidLevels    int
	AskLevels    int
	BidVolume    market.Volume
	AskVolume    market.Volume
	Trades       uint64
	VolumeTraded market.Volume
}

func (ob *OrderBook) BestBid() (market.Price, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	p, _, ok := ob.bids.Max()
	return p, ok
}

func (ob *OrderBook) BestAsk() (market.Price, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	p, _, ok := ob.asks.Min()
	return p, ok
}

// Spread is ask minus bid, or 0 when either side is empty.
func (ob *OrderBook) Spread() market.Price {
	bid, okb := ob.BestBid()
	ask, oka := ob.BestAsk()
	if !okb || !oka {
		return 0
	}
	return ask - bid
}

// MidPrice is the midpoint of the touch, or 0 when either side is empty.
func (ob *OrderBook) MidPrice() market.Price {
	bid, okb := ob.BestBid()
	ask, oka := ob.BestAsk()
	if !okb || !oka {
		return 0
	}
	return (bid + ask) / 2
}

// Depth returns up to levels price levels per side, best first. levels <= 0
// returns every level.
func (ob *OrderBook) Depth(levels int) Depth {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return Depth{
		Bids: collect(ob.bids.Reverse, levels),
		Asks: collect(ob.asks.Scan, levels),
	}
}

// Levels returns every level on one side, best first.
func (ob *OrderBook) Levels(s market.Side) []DepthLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if s == market.Buy {
		return collect(ob.bids.Reverse, 0)
	}
	return collect(ob.asks.Scan, 0)
}

func collect(walk func(func(market.Price, *Level) bool), n int) []DepthLevel {
	var out []DepthLevel
	walk(func(p market.Price, l *Level) bool {
		out = append(out, DepthLevel{Price: p, Volume: l.Volume, Orders: len(l.queue)})
		return n <= 0 || len(out) < n
	})
	return out
}

func (ob *OrderBook) VolumeAtPrice(s market.Side, p market.Price) market.Volume {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if l, ok := ob.side(s).Get(p); ok {
		return l.Volume
	}
	return 0
}

func (ob *OrderBook) Order(id market.OrderID) (Resting, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	r, ok := ob.index[id]
	if !ok {
		return Resting{}, false
	}
	return *r, true
}

func (ob *OrderBook) Stats() Stats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	st := Stats{
		Orders:       len(ob.index),
		BidLevels:    ob.bids.Len(),
		AskLevels:    ob.asks.Len(),
		Trades:       ob.trades,
		VolumeTraded: ob.volumeTraded,
	}
	ob.bids.Scan(func(_ market.Price, l *Level) bool { st.BidVolume += l.Volume; return true })
	ob.asks.Scan(func(_ market.Price, l *Level) bool { st.AskVolume += l.Volume; return true })
	return st
}
