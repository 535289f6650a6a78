package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtest/market"
)

// ATRFunc calculates the Average True Range with Wilder smoothing.
func ATRFunc(ticks []market.Tick, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(ticks) < period+1 {
		return 0, fmt.Errorf("not enough ticks: need %d, got %d", period+1, len(ticks))
	}

	trs := make([]float64, 0, len(ticks)-1)
	for i := 1; i < len(ticks); i++ {
		trs = append(trs, trueRange(ticks[i], ticks[i-1]))
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr, nil
}

// ATR is a streaming Average True Range. Ticks without a bar range use the
// reference price for high, low and close.
type ATR struct {
	period    int
	atr       float64
	count     int
	warmupSum float64
	prev      market.Tick
	hasPrev   bool
}

func NewATR(period int) *ATR {
	if period < 1 {
		period = 1
	}
	return &ATR{period: period}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }

// Warmup is period+1: a true range needs the previous tick.
func (a *ATR) Warmup() int { return a.period + 1 }

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrev = false
}

func (a *ATR) Update(t market.Tick) {
	if !a.hasPrev {
		a.prev = t
		a.hasPrev = true
		return
	}
	tr := trueRange(t, a.prev)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prev = t
}

func (a *ATR) Ready() bool { return a.count >= a.period }

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

func bar(t market.Tick) (high, low, closeV float64) {
	ref := t.Reference()
	high, low, closeV = t.High, t.Low, t.Close
	if high == 0 {
		high = ref
	}
	if low == 0 {
		low = ref
	}
	if closeV == 0 {
		closeV = ref
	}
	return high, low, closeV
}

func trueRange(current, previous market.Tick) float64 {
	h, l, _ := bar(current)
	_, _, pc := bar(previous)
	return math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
}
