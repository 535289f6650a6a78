package strategies

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/risk"
)

type signal struct {
	instrument string
	signal     events.Signal
	strength   float64
}

// fakeOrders fills every submitted order immediately.
type fakeOrders struct {
	now       time.Time
	submitted []market.Order
	signals   []signal
	positions map[string]int64
	err       error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		now:       time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
		positions: make(map[string]int64),
	}
}

func (f *fakeOrders) Submit(o market.Order) (market.Order, error) {
	if f.err != nil {
		return o, f.err
	}
	o.ID = market.OrderID(len(f.submitted) + 1)
	f.submitted = append(f.submitted, o)
	f.positions[o.Instrument] += o.Side.Sign() * int64(o.Quantity)
	return o, nil
}

func (f *fakeOrders) Signal(instrument string, s events.Signal, strength float64) {
	f.signals = append(f.signals, signal{instrument, s, strength})
}

func (f *fakeOrders) Position(instrument string) market.Position {
	return market.Position{Instrument: instrument, Quantity: f.positions[instrument]}
}

func (f *fakeOrders) Now() time.Time { return f.now }

func md(instrument string, last float64) events.MarketEvent {
	return events.MarketEvent{Tick: market.Tick{Instrument: instrument, Last: last}}
}

func TestNoop(t *testing.T) {
	s, err := ByName(Config{Type: "none"})
	require.NoError(t, err)
	assert.Equal(t, "noop", s.ID())
	assert.NoError(t, s.OnMarketData(md("AAPL", 1), nil))
	assert.Equal(t, Hooks{}, HooksOf(s))
}

func TestOpenOnce(t *testing.T) {
	s, err := ByName(Config{ID: "once", Type: "open-once", Instrument: "AAPL"})
	require.NoError(t, err)
	o := newFakeOrders()

	require.NoError(t, s.OnMarketData(md("MSFT", 10), o))
	assert.Empty(t, o.signals)

	require.NoError(t, s.OnMarketData(md("AAPL", 10), o))
	require.NoError(t, s.OnMarketData(md("AAPL", 11), o))
	require.Len(t, o.signals, 1)
	assert.Equal(t, signal{"AAPL", events.SignalBuy, 1}, o.signals[0])

	h := HooksOf(s)
	require.NoError(t, h.Stop(o))
	assert.Len(t, o.signals, 1, "flat position needs no close")

	o.positions["AAPL"] = 100
	require.NoError(t, h.Stop(o))
	assert.Equal(t, events.SignalClose, o.signals[1].signal)

	_, err = ByName(Config{Type: "open-once"})
	assert.Error(t, err)
}

func TestCrossReversesOnOppositeCross(t *testing.T) {
	s, err := NewCross(Config{ID: "x", Instrument: "AAPL", Fast: 2, Slow: 3, Quantity: 10}, SMA)
	require.NoError(t, err)
	o := newFakeOrders()

	// falling prices establish fast < slow, then a rally crosses up, then a
	// drop crosses down
	for _, p := range []float64{10, 9, 8, 7, 9, 12, 8, 4} {
		require.NoError(t, s.OnMarketData(md("AAPL", p), o))
	}

	require.Len(t, o.submitted, 2)
	assert.Equal(t, market.Buy, o.submitted[0].Side)
	assert.Equal(t, uint64(10), o.submitted[0].Quantity)
	assert.Equal(t, market.Market, o.submitted[0].Type)
	assert.Equal(t, "x", o.submitted[0].Strategy)
	assert.Equal(t, market.Sell, o.submitted[1].Side)
	assert.Equal(t, uint64(20), o.submitted[1].Quantity)
	assert.Equal(t, int64(-10), o.positions["AAPL"])
	assert.Equal(t, 2, s.Crosses())
}

func TestCrossRiskSizing(t *testing.T) {
	s, err := NewCross(Config{ID: "x", Instrument: "AAPL", Fast: 1, Slow: 2, RiskPct: 0.01, StopDistance: 2, Equity: 10_000}, EMA)
	require.NoError(t, err)
	o := newFakeOrders()

	for _, p := range []float64{100, 99, 98, 101} {
		require.NoError(t, s.OnMarketData(md("AAPL", p), o))
	}
	require.Len(t, o.submitted, 1)
	assert.Equal(t, uint64(50), o.submitted[0].Quantity)
}

func TestCrossATRStop(t *testing.T) {
	s, err := NewCross(Config{ID: "x", Instrument: "AAPL", Fast: 1, Slow: 2, RiskPct: 0.01, Equity: 10_000, ATRPeriod: 2}, EMA)
	require.NoError(t, err)
	o := newFakeOrders()

	// True ranges 1, 1, 3 give an ATR of 2 on the cross, so the stop is 4 away.
	for _, p := range []float64{100, 99, 98, 101} {
		require.NoError(t, s.OnMarketData(md("AAPL", p), o))
	}
	require.Len(t, o.submitted, 1)
	assert.Equal(t, uint64(25), o.submitted[0].Quantity)
}

func TestCrossIgnoresRiskRejection(t *testing.T) {
	s, err := NewCross(Config{ID: "x", Instrument: "AAPL", Fast: 1, Slow: 2, Quantity: 1}, SMA)
	require.NoError(t, err)
	o := newFakeOrders()
	o.err = &risk.Violation{Code: risk.CodeRateLimit}

	for _, p := range []float64{3, 2, 1, 5} {
		require.NoError(t, s.OnMarketData(md("AAPL", p), o))
	}

	o.err = errors.New("router down")
	for _, p := range []float64{1, 0.5} {
		if err := s.OnMarketData(md("AAPL", p), o); err != nil {
			assert.EqualError(t, err, "router down")
			return
		}
	}
	t.Fatal("expected the router error to surface")
}

func TestCrossConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no instrument", Config{Fast: 1, Slow: 2, Quantity: 1}},
		{"fast not below slow", Config{Instrument: "A", Fast: 3, Slow: 3, Quantity: 1}},
		{"no sizing", Config{Instrument: "A", Fast: 1, Slow: 2}},
		{"no stop", Config{Instrument: "A", Fast: 1, Slow: 2, RiskPct: 0.01, Equity: 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCross(tt.cfg, SMA)
			assert.Error(t, err)
		})
	}
}

func TestCrossHooks(t *testing.T) {
	s, err := ByName(Config{ID: "x", Type: "smacross", Instrument: "AAPL", Fast: 1, Slow: 2, Quantity: 1})
	require.NoError(t, err)
	h := HooksOf(s)
	o := newFakeOrders()

	require.NoError(t, h.Fill(events.FillEvent{Fill: market.Fill{Strategy: "x"}}, o))
	require.NoError(t, h.Fill(events.FillEvent{Fill: market.Fill{Strategy: "y"}}, o))
	assert.Equal(t, 1, s.(*Cross).Fills())

	assert.NoError(t, h.Start(o))
	assert.NoError(t, h.Risk(events.RiskEvent{}, o))
	assert.NoError(t, h.Timer(events.TimerEvent{}, o))
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName(Config{Type: "martingale"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sma-cross")
}

func TestRegister(t *testing.T) {
	Register("Custom", func(cfg Config) (Strategy, error) { return Noop{Name: cfg.ID}, nil })
	s, err := ByName(Config{Type: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", s.ID())
}
