package cost

import (
	"math"

	"github.com/rustyeddy/backtest/market"
)

// Slippage returns the cost of market impact for a fill of qty at price.
// adv is the instrument's average daily volume; 0 means unknown.
type Slippage interface {
	Slippage(side market.Side, qty market.Volume, price market.Price, adv market.Volume) float64
}

// LinearSlippage charges Base + Impact*(qty/adv) of notional.
type LinearSlippage struct {
	Base   float64
	Impact float64
}

func NewLinearSlippage() LinearSlippage { return LinearSlippage{Base: 0.0001, Impact: 0.01} }

func (s LinearSlippage) Slippage(_ market.Side, qty market.Volume, price market.Price, adv market.Volume) float64 {
	rate := s.Base
	if adv > 0 {
		rate += s.Impact * float64(qty) / float64(adv)
	}
	return math.Abs(rate * price * float64(qty))
}

// SqrtSlippage charges Base + Impact*sqrt(qty/adv) of notional, so large
// orders pay less than linearly.
type SqrtSlippage struct {
	Base   float64
	Impact float64
}

func NewSqrtSlippage() SqrtSlippage { return SqrtSlippage{Base: 0.0001, Impact: 0.1} }

func (s SqrtSlippage) Slippage(_ market.Side, qty market.Volume, price market.Price, adv market.Volume) float64 {
	rate := s.Base
	if adv > 0 {
		rate += s.Impact * math.Sqrt(float64(qty)/float64(adv))
	}
	return math.Abs(rate * price * float64(qty))
}

type NoSlippage struct{}

func (NoSlippage) Slippage(market.Side, market.Volume, market.Price, market.Volume) float64 {
	return 0
}
