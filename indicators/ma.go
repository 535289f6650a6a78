package indicators

import (
	"fmt"

	"github.com/rustyeddy/backtest/market"
)

// MA calculates the Simple Moving Average of the last period ticks.
func MA(ticks []market.Tick, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(ticks) < period {
		return 0, fmt.Errorf("not enough ticks: need %d, got %d", period, len(ticks))
	}

	sum := 0.0
	for i := len(ticks) - period; i < len(ticks); i++ {
		sum += price(ticks[i])
	}
	return sum / float64(period), nil
}

// EMA calculates the Exponential Moving Average seeded with the SMA of the
// first period ticks.
func EMA(ticks []market.Tick, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(ticks) < period {
		return 0, fmt.Errorf("not enough ticks: need %d, got %d", period, len(ticks))
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += price(ticks[i])
	}
	ema := sma / float64(period)

	for i := period; i < len(ticks); i++ {
		ema = (price(ticks[i])-ema)*multiplier + ema
	}
	return ema, nil
}
