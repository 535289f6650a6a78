package strategies

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/indicators"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/risk"
)

type Average int

const (
	SMA Average = iota
	EMA
)

// Cross trades one instrument on a fast/slow moving average crossover.
// A bull cross targets a long position, a bear cross a short one, so an
// opposite cross reverses. Size is Quantity when set, otherwise
// fixed-fractional on Equity with a stop StopDistance, or ATRMultiple
// average true ranges, away.
type Cross struct {
	cfg  Config
	fast indicators.Indicator
	slow indicators.Indicator
	atr  *indicators.ATR

	lastDiff     float64
	haveLastDiff bool

	crosses int
	fills   int
}

func NewCross(cfg Config, avg Average) (*Cross, error) {
	if cfg.Instrument == "" {
		return nil, errors.New("cross: instrument is required")
	}
	if cfg.Fast <= 0 || cfg.Slow <= 0 || cfg.Fast >= cfg.Slow {
		return nil, fmt.Errorf("cross: need 0 < fast < slow, got fast=%d slow=%d", cfg.Fast, cfg.Slow)
	}
	if cfg.Quantity == 0 && (cfg.RiskPct <= 0 || cfg.Equity <= 0 || (cfg.StopDistance <= 0 && cfg.ATRPeriod <= 0)) {
		return nil, errors.New("cross: set quantity, or risk_pct, equity and one of stop_distance or atr_period")
	}
	s := &Cross{cfg: cfg}
	if cfg.ATRPeriod > 0 {
		if s.cfg.ATRMultiple <= 0 {
			s.cfg.ATRMultiple = 2
		}
		s.atr = indicators.NewATR(cfg.ATRPeriod)
	}
	if avg == EMA {
		s.fast, s.slow = indicators.NewEMA(cfg.Fast), indicators.NewEMA(cfg.Slow)
	} else {
		s.fast, s.slow = indicators.NewMA(cfg.Fast), indicators.NewMA(cfg.Slow)
	}
	return s, nil
}

func (s *Cross) ID() string { return s.cfg.ID }

func (s *Cross) Crosses() int { return s.crosses }

func (s *Cross) Fills() int { return s.fills }

func (s *Cross) OnMarketData(ev events.MarketEvent, o Orders) error {
	tick := ev.Tick
	if tick.Instrument != s.cfg.Instrument || tick.Reference() <= 0 {
		return nil
	}
	s.fast.Update(tick)
	s.slow.Update(tick)
	if s.atr != nil {
		s.atr.Update(tick)
	}
	if !s.fast.Ready() || !s.slow.Ready() {
		return nil
	}

	diff := s.fast.Value() - s.slow.Value()
	if !s.haveLastDiff {
		s.lastDiff, s.haveLastDiff = diff, true
		return nil
	}
	bull := diff > 0 && s.lastDiff <= 0
	bear := diff < 0 && s.lastDiff >= 0
	s.lastDiff = diff

	switch {
	case bull:
		s.crosses++
		return s.target(o, tick, market.Buy)
	case bear:
		s.crosses++
		return s.target(o, tick, market.Sell)
	}
	return nil
}

func (s *Cross) target(o Orders, tick market.Tick, side market.Side) error {
	entry := tick.Reference()
	size := s.cfg.Quantity
	if size == 0 {
		stop := entry - float64(side.Sign())*s.stopDistance()
		size = risk.SizeForRisk(s.cfg.Equity, s.cfg.RiskPct, entry, stop)
	}
	if size == 0 {
		return nil
	}

	want := side.Sign() * int64(size)
	delta := want - o.Position(s.cfg.Instrument).Quantity
	if delta == 0 {
		return nil
	}
	ord := market.Order{
		Instrument: s.cfg.Instrument,
		Strategy:   s.cfg.ID,
		Side:       market.Buy,
		Type:       market.Market,
		Quantity:   uint64(delta),
	}
	if delta < 0 {
		ord.Side = market.Sell
		ord.Quantity = uint64(-delta)
	}

	if _, err := o.Submit(ord); err != nil {
		var v *risk.Violation
		if errors.As(err, &v) {
			return nil
		}
		return err
	}
	return nil
}

// stopDistance is zero until the ATR is ready, which sizes to nothing.
func (s *Cross) stopDistance() float64 {
	if s.cfg.StopDistance > 0 || s.atr == nil {
		return s.cfg.StopDistance
	}
	if !s.atr.Ready() {
		return 0
	}
	return s.cfg.ATRMultiple * s.atr.Value()
}

func (s *Cross) Hooks() Hooks {
	return Hooks{
		OnFill: func(ev events.FillEvent, _ Orders) error {
			if ev.Fill.Strategy == s.cfg.ID {
				s.fills++
			}
			return nil
		},
		OnStop: func(o Orders) error {
			if !o.Position(s.cfg.Instrument).Flat() {
				o.Signal(s.cfg.Instrument, events.SignalClose, 1)
			}
			return nil
		},
	}
}
