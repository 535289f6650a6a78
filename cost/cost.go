// Package cost prices fills: commission from a fee schedule and slippage
// from a market impact model. Costs are positive amounts in account
// currency.
package cost

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/backtest/market"
)

// DefaultAverageDailyVolume is used when neither the caller nor the model
// knows an instrument's daily volume.
const DefaultAverageDailyVolume market.Volume = 1_000_000

type Transaction struct {
	Commission float64
	Slippage   float64
}

func (t Transaction) Total() float64 { return t.Commission + t.Slippage }

// Model prices one fill. avgDailyVolume may be 0 when unknown.
type Model interface {
	Cost(f market.Fill, maker bool, avgDailyVolume market.Volume) Transaction
}

// Schedule is a commission schedule. Rates are fractions of notional.
type Schedule struct {
	MakerRate     float64 `yaml:"maker_rate" json:"maker_rate"`
	TakerRate     float64 `yaml:"taker_rate" json:"taker_rate"`
	FixedFee      float64 `yaml:"fixed_fee" json:"fixed_fee"`
	MinCommission float64 `yaml:"min_commission" json:"min_commission"`
	MaxCommission float64 `yaml:"max_commission" json:"max_commission"`
}

func DefaultSchedule() Schedule {
	return Schedule{TakerRate: 0.001, MaxCommission: 1_000_000}
}

// Commission is qty*price*rate + fixed, clamped to [min, max] and rounded to
// 8 places. A zero MaxCommission means no cap.
func (s Schedule) Commission(qty market.Volume, price market.Price, maker bool) float64 {
	rate := s.TakerRate
	if maker {
		rate = s.MakerRate
	}
	c := decimal.NewFromInt(int64(qty)).
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(rate)).
		Add(decimal.NewFromFloat(s.FixedFee))

	if lo := decimal.NewFromFloat(s.MinCommission); c.LessThan(lo) {
		c = lo
	}
	if s.MaxCommission > 0 {
		if hi := decimal.NewFromFloat(s.MaxCommission); c.GreaterThan(hi) {
			c = hi
		}
	}
	return c.Round(8).InexactFloat64()
}

func (s Schedule) Validate() error {
	if s.MaxCommission > 0 && s.MaxCommission < s.MinCommission {
		return fmt.Errorf("max_commission %v below min_commission %v", s.MaxCommission, s.MinCommission)
	}
	return nil
}

// Standard combines per-instrument schedules with a slippage model.
type Standard struct {
	Default     Schedule
	Instruments map[string]Schedule
	Slippage    Slippage
	Volumes     map[string]market.Volume
}

var _ Model = (*Standard)(nil)

func NewStandard(def Schedule, slip Slippage) *Standard {
	if slip == nil {
		slip = NoSlippage{}
	}
	return &Standard{
		Default:     def,
		Instruments: make(map[string]Schedule),
		Slippage:    slip,
		Volumes:     make(map[string]market.Volume),
	}
}

func (m *Standard) SetInstrumentSchedule(instrument string, s Schedule) {
	m.Instruments[instrument] = s
}

func (m *Standard) SetAverageDailyVolume(instrument string, v market.Volume) {
	m.Volumes[instrument] = v
}

func (m *Standard) Cost(f market.Fill, maker bool, adv market.Volume) Transaction {
	sched, ok := m.Instruments[f.Instrument]
	if !ok {
		sched = m.Default
	}
	if adv == 0 {
		adv = m.Volumes[f.Instrument]
	}
	if adv == 0 {
		adv = DefaultAverageDailyVolume
	}
	return Transaction{
		Commission: sched.Commission(f.Quantity, f.Price, maker),
		Slippage:   m.Slippage.Slippage(f.Side, f.Quantity, f.Price, adv),
	}
}

// Free charges nothing.
type Free struct{}

func (Free) Cost(market.Fill, bool, market.Volume) Transaction { return Transaction{} }
