package engine

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/orderbook"
	"github.com/rustyeddy/backtest/risk"
)

// Submit validates o, stamps it with an id and the simulated time, and runs
// it through risk admission. An admitted order is published as an
// OrderEvent and routed now, or after OrderLatency of simulated time. A
// rejected order is published as a RiskEvent and the *risk.Violation is
// returned.
func (e *Engine) Submit(o market.Order) (market.Order, error) {
	if err := o.Validate(); err != nil {
		return o, err
	}
	if o.Strategy == LiquidityStrategy {
		return o, &market.ValidationError{Field: "strategy", Reason: fmt.Sprintf("%q is reserved", o.Strategy)}
	}
	o.ID = e.seq.Next()
	o.Timestamp = e.clk.Now()
	o.FilledQuantity = 0
	o.Status = market.Pending

	if v := e.risk.Admit(o); v != nil {
		o.Status = market.Rejected
		e.mu.Lock()
		e.stats.OrdersRejected++
		e.mu.Unlock()
		e.metrics.OrdersRejected.WithLabelValues(v.Code.String()).Inc()
		e.log.Debug("order rejected",
			zap.String("strategy", o.Strategy),
			zap.Uint64("order_id", o.ID),
			zap.Stringer("code", v.Code),
			zap.String("reason", v.Message))
		e.publish(riskEvent(o, v))
		return o, v
	}

	e.mu.Lock()
	e.stats.OrdersSubmitted++
	e.mu.Unlock()
	e.metrics.OrdersSubmitted.WithLabelValues(o.Strategy).Inc()
	e.publish(events.OrderEvent{Order: o})

	if d := e.opts.OrderLatency; d > 0 {
		e.clk.ScheduleDelay(d, func() { e.route(o) })
	} else {
		e.route(o)
	}
	return o, nil
}

func riskType(c risk.Code) events.RiskType {
	switch c {
	case risk.CodeRateLimit:
		return events.RiskRateLimit
	case risk.CodeExposureLimit:
		return events.RiskExposureLimit
	case risk.CodeLossLimit:
		return events.RiskLossLimit
	case risk.CodeCooldown:
		return events.RiskCooldown
	case risk.CodeOrderSize:
		return events.RiskOrderSize
	case risk.CodeInvalid:
		return events.RiskInvalidOrder
	default:
		return events.RiskPositionLimit
	}
}

func riskEvent(o market.Order, v *risk.Violation) events.RiskEvent {
	return events.RiskEvent{
		At:         o.Timestamp,
		Type:       riskType(v.Code),
		Strategy:   o.Strategy,
		Instrument: o.Instrument,
		Message:    v.Message,
		Value:      v.Value,
		Limit:      v.Limit,
	}
}

// route sends an admitted order to its book. Stop orders wait in the engine
// until the last price reaches the stop.
func (e *Engine) route(o market.Order) {
	if o.Type == market.Stop || o.Type == market.StopLimit {
		if mark, ok := e.risk.Mark(o.Instrument); ok && hitStop(o, mark) {
			e.execute(triggered(o))
			return
		}
		e.mu.Lock()
		e.stops[o.Instrument] = append(e.stops[o.Instrument], o)
		e.mu.Unlock()
		return
	}
	e.execute(o)
}

func (e *Engine) execute(o market.Order) {
	ob := e.Book(o.Instrument)

	var (
		fills []market.Fill
		err   error
	)
	switch o.Type {
	case market.Market:
		fills, err = ob.ExecuteMarketOrder(o, e.clk.Now())
	case market.Limit:
		fills, err = ob.ExecuteLimitOrder(o, e.clk.Now())
	default:
		err = fmt.Errorf("engine: order type %s cannot execute", o.Type)
	}
	if err != nil {
		if errors.Is(err, orderbook.ErrCrossedBook) {
			e.setFatal(err)
		}
		e.log.Error("order execution failed",
			zap.Uint64("order_id", o.ID),
			zap.String("instrument", o.Instrument),
			zap.Error(err))
		if len(fills) == 0 {
			return
		}
	}

	o.Apply(fills)
	e.mu.Lock()
	switch {
	case o.Status == market.Filled:
		e.stats.OrdersFilled++
	case o.Type == market.Limit:
		e.open[o.ID] = &o
	}
	e.mu.Unlock()

	if o.Type == market.Market && o.Remaining() > 0 {
		e.log.Debug("market order remainder dropped",
			zap.Uint64("order_id", o.ID),
			zap.Uint64("remaining", o.Remaining()))
	}
	for _, f := range fills {
		e.onFill(f, false)
	}
}

// onMakerFill is the book's listener for resting orders that traded.
func (e *Engine) onMakerFill(f market.Fill) {
	if f.Strategy == LiquidityStrategy {
		return
	}
	e.mu.Lock()
	if o, ok := e.open[f.OrderID]; ok {
		o.Apply([]market.Fill{f})
		if o.Status == market.Filled {
			delete(e.open, f.OrderID)
			e.stats.OrdersFilled++
		}
	}
	e.mu.Unlock()
	e.onFill(f, true)
}

// onFill prices f, books it with risk and results, and publishes it.
func (e *Engine) onFill(f market.Fill, maker bool) {
	if f.Strategy == LiquidityStrategy {
		return
	}
	f.Maker = maker
	tx := e.cost.Cost(f, maker, e.averageDailyVolume(f.Instrument))
	f.Commission, f.Slippage = tx.Commission, tx.Slippage

	res := e.risk.OnFill(f)
	e.metrics.ObserveFill(f.Strategy, f.Instrument, f.Quantity, maker, f.Commission, f.Slippage)
	e.record(f, res)

	e.publish(events.FillEvent{Fill: f})
	if res.CooldownTriggered {
		limits := e.risk.LimitsFor(f.Strategy)
		e.publish(events.RiskEvent{
			At:         f.Timestamp,
			Type:       events.RiskCooldown,
			Strategy:   f.Strategy,
			Instrument: f.Instrument,
			Message:    fmt.Sprintf("loss cooldown until %s", res.CooldownUntil.Format("15:04:05")),
			Value:      res.TradePnL,
			Limit:      limits.SevereLossThreshold,
		})
	}
}

// CancelOrder removes a resting strategy order or a waiting stop.
func (e *Engine) CancelOrder(instrument string, orderID market.OrderID) (market.Volume, error) {
	e.mu.Lock()
	for i, o := range e.stops[instrument] {
		if o.ID == orderID {
			e.stops[instrument] = append(e.stops[instrument][:i:i], e.stops[instrument][i+1:]...)
			e.mu.Unlock()
			return o.Quantity, nil
		}
	}
	delete(e.open, orderID)
	ob := e.bookLocked(instrument)
	e.mu.Unlock()
	return ob.CancelOrder(orderID)
}

// onSignal turns Buy and Sell into market orders of strength ×
// SignalQuantity and Close into an order that flattens the position.
func (e *Engine) onSignal(ev events.SignalEvent) error {
	o := market.Order{Instrument: ev.Instrument, Strategy: ev.Strategy, Type: market.Market}
	switch ev.Signal {
	case events.SignalBuy, events.SignalSell:
		o.Side = market.Buy
		if ev.Signal == events.SignalSell {
			o.Side = market.Sell
		}
		o.Quantity = market.Volume(math.Round(math.Abs(ev.Strength) * float64(e.opts.SignalQuantity)))
	case events.SignalClose:
		pos := e.risk.Position(ev.Strategy, ev.Instrument)
		if pos.Quantity == 0 {
			return nil
		}
		o.Side = market.Sell
		if pos.Quantity < 0 {
			o.Side = market.Buy
		}
		o.Quantity = market.Volume(abs(pos.Quantity))
	default:
		return nil
	}
	if o.Quantity == 0 {
		return nil
	}

	_, err := e.Submit(o)
	var v *risk.Violation
	if errors.As(err, &v) {
		return nil
	}
	return err
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
