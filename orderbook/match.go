package orderbook

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/market"
)

// ExecuteMarketOrder fills o against the contra side best price first. Any
// quantity the book cannot absorb is dropped.
func (ob *OrderBook) ExecuteMarketOrder(o market.Order, ts time.Time) ([]market.Fill, error) {
	if o.Remaining() == 0 {
		return nil, &market.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	ob.mu.Lock()
	fills, makers := ob.matchLocked(o, ts, func(market.Price) bool { return true })
	err := ob.checkUncrossedLocked()
	ob.mu.Unlock()

	ob.notify(makers)
	return fills, err
}

// ExecuteLimitOrder fills o against contra levels priced at or better than its
// limit and rests the remainder at the limit price.
func (ob *OrderBook) ExecuteLimitOrder(o market.Order, ts time.Time) ([]market.Fill, error) {
	if err := ob.checkRestable(o); err != nil {
		return nil, err
	}
	crosses := func(p market.Price) bool { return p >= o.Price }
	if o.Side == market.Buy {
		crosses = func(p market.Price) bool { return p <= o.Price }
	}

	ob.mu.Lock()
	if _, dup := ob.index[o.ID]; dup {
		ob.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrDuplicateID, o.ID)
	}
	fills, makers := ob.matchLocked(o, ts, crosses)
	var done market.Volume
	for _, f := range fills {
		done += f.Quantity
	}
	if left := o.Remaining() - done; left > 0 {
		ob.restLocked(o, left)
	}
	err := ob.checkUncrossedLocked()
	ob.mu.Unlock()

	ob.notify(makers)
	return fills, err
}

// matchLocked walks the contra side while crosses accepts the level price.
// It returns the taker fills, one per level, and the maker fills, one per
// resting entry consumed.
func (ob *OrderBook) matchLocked(o market.Order, ts time.Time, crosses func(market.Price) bool) ([]market.Fill, []market.Fill) {
	contra := ob.side(o.Side.Opposite())
	best := contra.Min
	if o.Side == market.Sell {
		best = contra.Max
	}

	var fills, makers []market.Fill
	left := o.Remaining()
	for left > 0 {
		price, lvl, ok := best()
		if !ok || !crosses(price) {
			break
		}
		var taken market.Volume
		for left > 0 && len(lvl.queue) > 0 {
			e := &lvl.queue[0]
			q := min(left, e.Volume)
			e.Volume -= q
			lvl.Volume -= q
			left -= q
			taken += q

			makers = append(makers, market.Fill{
				OrderID:    e.OrderID,
				Timestamp:  ts,
				Instrument: ob.instrument,
				Strategy:   e.Strategy,
				Side:       o.Side.Opposite(),
				Price:      price,
				Quantity:   q,
				Maker:      true,
			})
			if r := ob.index[e.OrderID]; r != nil {
				r.Remaining -= q
			}
			if e.Volume == 0 {
				delete(ob.index, e.OrderID)
				lvl.queue = lvl.queue[1:]
			}
		}
		if lvl.Volume == 0 {
			contra.Delete(price)
		}
		fills = append(fills, market.Fill{
			OrderID:    o.ID,
			Timestamp:  ts,
			Instrument: ob.instrument,
			Strategy:   o.Strategy,
			Side:       o.Side,
			Price:      price,
			Quantity:   taken,
		})
		ob.trades++
		ob.volumeTraded += taken
	}
	return fills, makers
}

func (ob *OrderBook) checkUncrossedLocked() error {
	bid, _, okb := ob.bids.Max()
	ask, _, oka := ob.asks.Min()
	if okb && oka && bid >= ask {
		ob.log.Error("crossed book after match", zap.Float64("bid", bid), zap.Float64("ask", ask))
		return fmt.Errorf("%w: bid %v >= ask %v", ErrCrossedBook, bid, ask)
	}
	return nil
}

func (ob *OrderBook) notify(makers []market.Fill) {
	if ob.onMaker == nil {
		return
	}
	for _, f := range makers {
		ob.onMaker(f)
	}
}
