package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rustyeddy/backtest/clock"
	"github.com/rustyeddy/backtest/cost"
	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/internal/feed"
	"github.com/rustyeddy/backtest/journal"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/risk"
	"github.com/rustyeddy/backtest/strategies"
)

var base = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

func quoteTick(sec int, bid, ask market.Price) market.Tick {
	return market.Tick{
		Timestamp:  base.Add(time.Duration(sec) * time.Second),
		Instrument: "AAPL",
		Bid:        bid,
		Ask:        ask,
		BidSize:    500,
		AskSize:    500,
		Volume:     1000,
	}
}

// scripted runs fn on each market data event, counting ticks from 0.
type scripted struct {
	id    string
	ticks int
	fn    func(n int, ev events.MarketEvent, o strategies.Orders) error
}

func (s *scripted) ID() string { return s.id }

func (s *scripted) OnMarketData(ev events.MarketEvent, o strategies.Orders) error {
	n := s.ticks
	s.ticks++
	if s.fn == nil {
		return nil
	}
	return s.fn(n, ev, o)
}

func mkt(side market.Side, qty market.Volume) market.Order {
	return market.Order{Instrument: "AAPL", Side: side, Type: market.Market, Quantity: qty}
}

func newTestEngine(t *testing.T, mutate func(*Options), deps ...Option) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.RunID = "test-run"
	if mutate != nil {
		mutate(&opts)
	}
	deps = append([]Option{WithLogger(zaptest.NewLogger(t))}, deps...)
	e := New(opts, deps...)
	t.Cleanup(e.Close)
	return e
}

func run(t *testing.T, e *Engine, ticks ...market.Tick) Results {
	t.Helper()
	res, err := e.Run(context.Background(), feed.NewSlice(ticks...))
	require.NoError(t, err)
	return res
}

func TestMarketOrderTakesSyntheticAsk(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	var routed market.Order
	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n > 0 {
			return nil
		}
		var err error
		routed, err = o.Submit(mkt(market.Buy, 100))
		return err
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))

	res := run(t, e, quoteTick(0, 99.9, 100.1))

	assert.NotZero(t, routed.ID)
	assert.Equal(t, "s1", routed.Strategy)
	assert.Equal(t, base, routed.Timestamp)

	require.Len(t, res.TradeHistory, 1)
	f := res.TradeHistory[0]
	assert.Equal(t, routed.ID, f.OrderID)
	assert.InDelta(t, 100.1, f.Price, 1e-9)
	assert.Equal(t, market.Volume(100), f.Quantity)
	assert.False(t, f.Maker)

	pos := e.Risk().Position("s1", "AAPL")
	assert.Equal(t, int64(100), pos.Quantity)
	assert.Equal(t, 1, res.Ticks)

	st := e.Stats()
	assert.Equal(t, uint64(1), st.OrdersSubmitted)
	assert.Equal(t, uint64(1), st.OrdersFilled)
	assert.Equal(t, uint64(1), st.Fills)
	assert.NotZero(t, st.EventsProcessed)
}

func TestRoundTripRealizesPnL(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil, WithCostModel(cost.NewStandard(cost.Schedule{TakerRate: 0.001}, cost.NoSlippage{})))

	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		switch n {
		case 0:
			_, err := o.Submit(mkt(market.Buy, 100))
			return err
		case 1:
			_, err := o.Submit(mkt(market.Sell, 100))
			return err
		}
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))

	res := run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 101, 101.2))

	commission := 100*100.1*0.001 + 100*101*0.001
	assert.InDelta(t, commission, res.TotalCommission, 1e-6)
	assert.InDelta(t, 100*(101-100.1)-commission, res.TotalPnL, 1e-6)
	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.InDelta(t, 1.0, res.WinRate(), 1e-12)
	assert.InDelta(t, res.TotalPnL, res.StrategyPnL["s1"], 1e-9)
	assert.True(t, e.Risk().Position("s1", "AAPL").Flat())
}

func TestRejectedOrderPublishesRiskEvent(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(o *Options) { o.Limits.MaxOrderSize = 10 })

	var (
		subErr error
		risks  []events.RiskEvent
	)
	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		_, subErr = o.Submit(mkt(market.Buy, 50))
		return nil
	}}
	hooks := strategies.Hooks{OnRisk: func(ev events.RiskEvent, _ strategies.Orders) error {
		risks = append(risks, ev)
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, hooks))

	res := run(t, e, quoteTick(0, 99.9, 100.1))

	var v *risk.Violation
	require.ErrorAs(t, subErr, &v)
	assert.Equal(t, risk.CodeOrderSize, v.Code)
	require.Len(t, risks, 1)
	assert.Equal(t, events.RiskOrderSize, risks[0].Type)
	assert.Equal(t, float64(50), risks[0].Value)
	assert.Equal(t, float64(10), risks[0].Limit)
	assert.Empty(t, res.TradeHistory)
	assert.Equal(t, uint64(1), e.Stats().OrdersRejected)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().OrdersRejected.WithLabelValues(risk.CodeOrderSize.String())))
}

func TestRiskTypeKeepsRejectionCode(t *testing.T) {
	cases := map[risk.Code]events.RiskType{
		risk.CodeInvalid:       events.RiskInvalidOrder,
		risk.CodeOrderSize:     events.RiskOrderSize,
		risk.CodeRateLimit:     events.RiskRateLimit,
		risk.CodePositionLimit: events.RiskPositionLimit,
		risk.CodeExposureLimit: events.RiskExposureLimit,
		risk.CodeLossLimit:     events.RiskLossLimit,
		risk.CodeCooldown:      events.RiskCooldown,
	}
	for code, want := range cases {
		assert.Equal(t, want, riskType(code), code.String())
	}
}

func TestSubmitValidates(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	_, err := e.Submit(market.Order{Instrument: "AAPL", Strategy: "s1", Type: market.Market})
	var ve *market.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity", ve.Field)

	_, err = e.Submit(market.Order{Instrument: "AAPL", Strategy: LiquidityStrategy, Type: market.Market, Quantity: 1})
	assert.ErrorAs(t, err, &ve)
	assert.Zero(t, e.Stats().OrdersSubmitted)
}

func TestRestingLimitFilledByLaterQuote(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	var fills []events.FillEvent
	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n != 0 {
			return nil
		}
		_, err := o.Submit(market.Order{Instrument: "AAPL", Side: market.Buy, Type: market.Limit, Price: 100, Quantity: 200})
		return err
	}}
	hooks := strategies.Hooks{OnFill: func(ev events.FillEvent, _ strategies.Orders) error {
		fills = append(fills, ev)
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, hooks))

	run(t, e, quoteTick(0, 99, 101), quoteTick(1, 98, 99.5))

	require.Len(t, fills, 1)
	assert.True(t, fills[0].Fill.Maker)
	assert.InDelta(t, 100, fills[0].Fill.Price, 1e-9)
	assert.Equal(t, market.Volume(200), fills[0].Fill.Quantity)
	assert.Equal(t, base.Add(time.Second), fills[0].Fill.Timestamp)
	assert.Equal(t, uint64(1), e.Stats().OrdersFilled)

	_, resting := e.Book("AAPL").Order(fills[0].Fill.OrderID)
	assert.False(t, resting)
}

func TestCancelRestingOrder(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	var id market.OrderID
	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n != 0 {
			return nil
		}
		routed, err := o.Submit(market.Order{Instrument: "AAPL", Side: market.Sell, Type: market.Limit, Price: 105, Quantity: 10})
		id = routed.ID
		return err
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))
	run(t, e, quoteTick(0, 99.9, 100.1))

	qty, err := e.CancelOrder("AAPL", id)
	require.NoError(t, err)
	assert.Equal(t, market.Volume(10), qty)
}

func TestOrderLatencyDelaysExecution(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(o *Options) { o.OrderLatency = time.Second })

	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n != 0 {
			return nil
		}
		_, err := o.Submit(mkt(market.Buy, 10))
		return err
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))

	res := run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(5, 104.9, 105.1))

	require.Len(t, res.TradeHistory, 1)
	f := res.TradeHistory[0]
	assert.InDelta(t, 100.1, f.Price, 1e-9, "routes against the book as it stood before the next tick")
	assert.Equal(t, base.Add(5*time.Second), f.Timestamp)
}

func TestStopOrderTriggersOnPrice(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n != 0 {
			return nil
		}
		_, err := o.Submit(market.Order{Instrument: "AAPL", Side: market.Sell, Type: market.Stop, StopPrice: 95, Quantity: 10})
		return err
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))

	res := run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 96.9, 97.1), quoteTick(2, 93.9, 94.1))

	require.Len(t, res.TradeHistory, 1)
	assert.InDelta(t, 93.9, res.TradeHistory[0].Price, 1e-9)
	assert.Equal(t, base.Add(2*time.Second), res.TradeHistory[0].Timestamp)
	assert.Equal(t, int64(-10), e.Risk().Position("s1", "AAPL").Quantity)
}

func TestStopHelpers(t *testing.T) {
	t.Parallel()

	buy := market.Order{Side: market.Buy, Type: market.Stop, StopPrice: 10}
	sell := market.Order{Side: market.Sell, Type: market.StopLimit, StopPrice: 10, Price: 9.5}

	tests := []struct {
		name  string
		order market.Order
		price market.Price
		want  bool
	}{
		{"buy below", buy, 9.99, false},
		{"buy at", buy, 10, true},
		{"buy above", buy, 11, true},
		{"sell above", sell, 10.01, false},
		{"sell at", sell, 10, true},
		{"no price", sell, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hitStop(tt.order, tt.price))
		})
	}

	assert.Equal(t, market.Market, triggered(buy).Type)
	lim := triggered(sell)
	assert.Equal(t, market.Limit, lim.Type)
	assert.Equal(t, 9.5, lim.Price)
}

func TestSignalsBecomeOrders(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(o *Options) { o.SignalQuantity = 100 })

	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		switch n {
		case 0:
			o.Signal("AAPL", events.SignalBuy, 0.5)
		case 1:
			o.Signal("AAPL", events.SignalHold, 1)
		case 2:
			o.Signal("AAPL", events.SignalClose, 1)
		}
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))

	res := run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 99.9, 100.1), quoteTick(2, 100.9, 101.1))

	require.Len(t, res.TradeHistory, 2)
	assert.Equal(t, market.Buy, res.TradeHistory[0].Side)
	assert.Equal(t, market.Volume(50), res.TradeHistory[0].Quantity)
	assert.Equal(t, market.Sell, res.TradeHistory[1].Side)
	assert.Equal(t, market.Volume(50), res.TradeHistory[1].Quantity)
	assert.True(t, e.Risk().Position("s1", "AAPL").Flat())
}

func TestSevereLossStartsCooldown(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(o *Options) { o.Limits.SevereLossThreshold = -1 })

	var (
		risks   []events.RiskEvent
		lastErr error
	)
	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		side := market.Buy
		if n == 1 {
			side = market.Sell
		}
		_, lastErr = o.Submit(mkt(side, 100))
		return nil
	}}
	hooks := strategies.Hooks{OnRisk: func(ev events.RiskEvent, _ strategies.Orders) error {
		risks = append(risks, ev)
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, hooks))

	run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 99.9, 100.1), quoteTick(2, 99.9, 100.1))

	require.Len(t, risks, 2)
	assert.Equal(t, events.RiskCooldown, risks[0].Type)
	assert.InDelta(t, -20, risks[0].Value, 1e-6)
	assert.Equal(t, events.RiskCooldown, risks[1].Type, "the next order is rejected")

	var v *risk.Violation
	require.ErrorAs(t, lastErr, &v)
	assert.Equal(t, risk.CodeCooldown, v.Code)
	assert.Equal(t, base.Add(time.Second).Add(30*time.Minute), e.Risk().CooldownUntil("s1"))
}

func TestDailyResetAtMidnight(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(o *Options) { o.Limits.MaxOrdersPerDay = 1 })

	var errs []error
	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		_, err := o.Submit(mkt(market.Buy, 1))
		errs = append(errs, err)
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))

	nextDay := quoteTick(0, 99.9, 100.1)
	nextDay.Timestamp = base.Add(24 * time.Hour)
	run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(60, 99.9, 100.1), nextDay)

	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
}

func TestScheduledTimerReachesHooks(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	var got []events.TimerEvent
	hooks := strategies.Hooks{OnTimer: func(ev events.TimerEvent, _ strategies.Orders) error {
		got = append(got, ev)
		return nil
	}}
	require.NoError(t, e.AddStrategy(&scripted{id: "s1"}, hooks))
	e.ScheduleTimer("rebalance", base.Add(time.Second))

	run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(2, 99.9, 100.1))

	require.Len(t, got, 1)
	assert.Equal(t, "rebalance", got[0].TimerID)
	assert.Equal(t, base.Add(time.Second), got[0].At)
}

func TestStartAndStopHooks(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	s, err := strategies.ByName(strategies.Config{ID: "once", Type: "open-once", Instrument: "AAPL", Quantity: 10})
	require.NoError(t, err)
	require.NoError(t, e.AddStrategy(s, strategies.HooksOf(s)))

	res := run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 99.9, 100.1))

	assert.True(t, e.Risk().Position("once", "AAPL").Flat(), "stop hook closes the position")
	assert.NotEmpty(t, res.TradeHistory)
}

func TestAddStrategyErrors(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	assert.ErrorIs(t, e.AddStrategy(nil, strategies.Hooks{}), ErrNilStrategy)
	require.NoError(t, e.AddStrategy(&scripted{id: "a"}, strategies.Hooks{}))
	assert.ErrorIs(t, e.AddStrategy(&scripted{id: "a"}, strategies.Hooks{}), ErrDuplicateStrategy)

	var ve *market.ValidationError
	assert.ErrorAs(t, e.AddStrategy(&scripted{id: ""}, strategies.Hooks{}), &ve)
	assert.ErrorAs(t, e.AddStrategy(&scripted{id: LiquidityStrategy}, strategies.Hooks{}), &ve)
}

func TestFailingStrategyDoesNotStarveOthers(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	bad := &scripted{id: "bad", fn: func(int, events.MarketEvent, strategies.Orders) error {
		return errors.New("boom")
	}}
	good := &scripted{id: "good", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n == 0 {
			_, err := o.Submit(mkt(market.Buy, 1))
			return err
		}
		return nil
	}}
	require.NoError(t, e.AddStrategy(bad, strategies.Hooks{}))
	require.NoError(t, e.AddStrategy(good, strategies.Hooks{}))

	res := run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 99.9, 100.1))

	assert.Len(t, res.TradeHistory, 1)
	assert.Equal(t, 2, good.ticks)
	assert.Equal(t, uint64(2), e.Bus().Failures())
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	t.Run("backwards tick", func(t *testing.T) {
		e := newTestEngine(t, nil)
		res, err := e.Run(context.Background(), feed.NewSlice(quoteTick(5, 99.9, 100.1), quoteTick(3, 99.9, 100.1)))

		var re *RunError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "process tick", re.Op)
		assert.Equal(t, base.Add(5*time.Second), re.LastTimestamp)
		assert.ErrorIs(t, err, clock.ErrBackwards)
		assert.Equal(t, 1, res.Ticks)
	})

	t.Run("cancelled", func(t *testing.T) {
		e := newTestEngine(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Run(ctx, feed.NewSlice(quoteTick(0, 99.9, 100.1)))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type memJournal struct {
	mu    sync.Mutex
	fills []market.Fill
	risk  []events.RiskEvent
	runs  []journal.Run
}

func (m *memJournal) RecordFill(_ string, f market.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, f)
	return nil
}

func (m *memJournal) RecordRisk(_ string, ev events.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risk = append(m.risk, ev)
	return nil
}

func (m *memJournal) RecordRun(r journal.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *memJournal) Close() error { return nil }

func TestJournalReceivesFillsAndSummary(t *testing.T) {
	t.Parallel()
	j := &memJournal{}
	e := newTestEngine(t, func(o *Options) { o.Dataset = "unit" }, WithJournal(j))

	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n == 0 {
			_, err := o.Submit(mkt(market.Buy, 10))
			return err
		}
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))
	run(t, e, quoteTick(0, 99.9, 100.1))

	require.Len(t, j.fills, 1)
	require.Len(t, j.runs, 1)
	r := j.runs[0]
	assert.Equal(t, "test-run", r.RunID)
	assert.Equal(t, "unit", r.Dataset)
	assert.Equal(t, []string{"s1"}, r.Strategies)
	assert.Equal(t, []string{"AAPL"}, r.Instruments)
	assert.Equal(t, 1, r.Fills)
	assert.Equal(t, 1, r.Ticks)
}

func TestAsyncDispatchDrainsBeforeReturning(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(o *Options) { o.Dispatch = DispatchAsync })

	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		_, err := o.Submit(mkt(market.Buy, 10))
		return err
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))

	res := run(t, e, quoteTick(0, 99.9, 100.1))

	assert.False(t, e.Bus().Running())
	assert.Len(t, res.TradeHistory, 1)
	assert.Equal(t, int64(10), e.Risk().Position("s1", "AAPL").Quantity)
}

func TestLiquidityFromBars(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(o *Options) {
		o.Liquidity = Liquidity{Enabled: true, DefaultSize: 50, DefaultSpread: 0.2}
	})
	bar := market.Tick{Timestamp: base, Instrument: "AAPL", Open: 99, High: 101, Low: 98, Close: 100}

	bid, ask, bs, as, ok := e.quote(bar)
	require.True(t, ok)
	assert.InDelta(t, 99.9, bid, 1e-9)
	assert.InDelta(t, 100.1, ask, 1e-9)
	assert.Equal(t, market.Volume(50), bs)
	assert.Equal(t, market.Volume(50), as)

	run(t, e, bar)
	d := e.Book("AAPL").Depth(1)
	require.Len(t, d.Bids, 1)
	assert.InDelta(t, 99.9, d.Bids[0].Price, 1e-9)

	_, _, _, _, ok = e.quote(market.Tick{Instrument: "AAPL"})
	assert.False(t, ok)
}

func TestRequoteReplacesPreviousQuotes(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 100.9, 101.1))

	st := e.Book("AAPL").Stats()
	assert.Equal(t, 2, st.Orders)
	bid, _ := e.Book("AAPL").BestBid()
	assert.InDelta(t, 100.9, bid, 1e-9)
}

func TestRunTwiceIsRejectedWhileRunning(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	var nested error
	s := &scripted{id: "s1", fn: func(int, events.MarketEvent, strategies.Orders) error {
		_, nested = e.Run(context.Background(), feed.NewSlice())
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))
	run(t, e, quoteTick(0, 99.9, 100.1))
	assert.ErrorIs(t, nested, ErrRunning)
}

func TestMetricsFollowTheRun(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	s := &scripted{id: "s1", fn: func(n int, _ events.MarketEvent, o strategies.Orders) error {
		if n == 0 {
			_, err := o.Submit(mkt(market.Buy, 10))
			return err
		}
		return nil
	}}
	require.NoError(t, e.AddStrategy(s, strategies.Hooks{}))
	run(t, e, quoteTick(0, 99.9, 100.1), quoteTick(1, 99.9, 100.1))

	m := e.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues(events.KindMarket.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersSubmitted.WithLabelValues("s1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RestingOrders.WithLabelValues("AAPL")))
}

func TestResultRatios(t *testing.T) {
	t.Parallel()
	r := Results{TotalPnL: 30, TotalTrades: 4, WinningTrades: 3, GrossProfit: 40, GrossLoss: 10}
	assert.InDelta(t, 0.75, r.WinRate(), 1e-12)
	assert.InDelta(t, 7.5, r.AverageTrade(), 1e-12)
	assert.InDelta(t, 4.0, r.ProfitFactor(), 1e-12)

	var zero Results
	assert.Zero(t, zero.WinRate())
	assert.Zero(t, zero.ProfitFactor())
}

func TestPrinters(t *testing.T) {
	t.Parallel()
	var buf strings.Builder
	PrintStrategyPnL(&buf, Results{StrategyPnL: map[string]float64{"b": -1.5, "a": 2}})
	out := buf.String()
	assert.Less(t, strings.Index(out, "a:"), strings.Index(out, "b:"))
	assert.Contains(t, out, "-1.50")

	buf.Reset()
	PrintStats(&buf, Stats{EventsProcessed: 7, OrdersSubmitted: 2})
	assert.Contains(t, buf.String(), "Events:        7")
}
