package engine

import (
	"errors"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/orderbook"
)

// quote returns the synthetic bid and ask for t. Ticks with a two-sided
// quote are used as is; otherwise DefaultSpread is centred on the
// reference price. ok is false when no uncrossed quote can be made.
func (e *Engine) quote(t market.Tick) (bid, ask market.Price, bidSize, askSize market.Volume, ok bool) {
	liq := e.opts.Liquidity
	bidSize, askSize = liq.DefaultSize, liq.DefaultSize
	if t.HasQuote() {
		bid, ask = t.Bid, t.Ask
		if t.BidSize > 0 {
			bidSize = t.BidSize
		}
		if t.AskSize > 0 {
			askSize = t.AskSize
		}
	} else {
		ref := t.Reference()
		half := liq.DefaultSpread / 2
		bid, ask = ref-half, ref+half
	}
	ok = market.ValidPrice(bid) && ask > bid && bidSize > 0 && askSize > 0
	return
}

// requote cancels the previous synthetic quotes on ob and posts fresh ones
// from t. Each quote is executed as a limit order first, so resting strategy
// orders it crosses trade against it.
func (e *Engine) requote(ob *orderbook.OrderBook, t market.Tick) {
	e.mu.Lock()
	prev := e.quotes[t.Instrument]
	e.mu.Unlock()

	for _, qid := range prev {
		if qid == 0 {
			continue
		}
		if _, err := ob.CancelOrder(qid); err != nil && !errors.Is(err, orderbook.ErrOrderNotFound) {
			e.log.Warn("cancel quote", zap.Uint64("order_id", qid), zap.Error(err))
		}
	}

	var ids [2]market.OrderID
	bid, ask, bidSize, askSize, ok := e.quote(t)
	if ok {
		now := e.clk.Now()
		for i, q := range []struct {
			side  market.Side
			price market.Price
			size  market.Volume
		}{
			{market.Buy, bid, bidSize},
			{market.Sell, ask, askSize},
		} {
			o := market.Order{
				ID:         e.seq.Next(),
				Timestamp:  now,
				Instrument: t.Instrument,
				Strategy:   LiquidityStrategy,
				Side:       q.side,
				Type:       market.Limit,
				Price:      q.price,
				Quantity:   q.size,
			}
			if _, err := ob.ExecuteLimitOrder(o, now); err != nil {
				if errors.Is(err, orderbook.ErrCrossedBook) {
					e.setFatal(err)
				}
				e.log.Error("post quote", zap.Stringer("side", q.side), zap.Error(err))
				continue
			}
			if _, resting := ob.Order(o.ID); resting {
				ids[i] = o.ID
			}
		}
	}

	e.mu.Lock()
	e.quotes[t.Instrument] = ids
	e.mu.Unlock()
}

type dailyVolume struct {
	today market.Volume
	total market.Volume
	days  int
}

// average is the mean over completed trading days, or today's volume so far
// before the first day completes.
func (d *dailyVolume) average() market.Volume {
	if d.days == 0 {
		return d.today
	}
	return d.total / market.Volume(d.days)
}

func (d *dailyVolume) roll() {
	if d.today == 0 {
		return
	}
	d.total += d.today
	d.days++
	d.today = 0
}

func (e *Engine) observeVolume(t market.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.volume[t.Instrument]
	if !ok {
		d = &dailyVolume{}
		e.volume[t.Instrument] = d
	}
	d.today += t.Volume
}

// averageDailyVolume feeds the slippage model. Zero means unknown.
func (e *Engine) averageDailyVolume(instrument string) market.Volume {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.volume[instrument]; ok {
		return d.average()
	}
	return 0
}
