// Package indicators provides streaming technical indicators over ticks.
package indicators

import "github.com/rustyeddy/backtest/market"

// Indicator computes a single streaming value from ticks.
// It is deterministic and safe to use in replay and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)".
	Name() string

	// Warmup returns how many updates are needed before Ready can be true.
	Warmup() int

	Reset()

	// Update consumes the next tick.
	Update(t market.Tick)

	// Ready reports whether Value is meaningful.
	Ready() bool

	// Value returns the current value, or 0 before warmup completes.
	Value() float64
}

// price is the value averaged by the moving averages.
func price(t market.Tick) float64 { return t.Reference() }
