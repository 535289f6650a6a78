package indicators

import (
	"fmt"

	"github.com/rustyeddy/backtest/market"
)

// SimpleMA is a streaming Simple Moving Average over a fixed ring.
type SimpleMA struct {
	period int
	ring   []float64
	next   int
	count  int
	sum    float64
}

func NewMA(period int) *SimpleMA {
	if period < 1 {
		period = 1
	}
	return &SimpleMA{period: period, ring: make([]float64, period)}
}

func (m *SimpleMA) Name() string { return fmt.Sprintf("MA(%d)", m.period) }

func (m *SimpleMA) Warmup() int { return m.period }

func (m *SimpleMA) Reset() {
	clear(m.ring)
	m.next, m.count, m.sum = 0, 0, 0
}

func (m *SimpleMA) Update(t market.Tick) {
	p := price(t)
	if m.count == m.period {
		m.sum -= m.ring[m.next]
	} else {
		m.count++
	}
	m.ring[m.next] = p
	m.sum += p
	m.next = (m.next + 1) % m.period
}

func (m *SimpleMA) Ready() bool { return m.count >= m.period }

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(m.period)
}

// ExponentialMA is a streaming Exponential Moving Average.
type ExponentialMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

func NewEMA(period int) *ExponentialMA {
	if period < 1 {
		period = 1
	}
	return &ExponentialMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }

func (e *ExponentialMA) Warmup() int { return e.period }

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *ExponentialMA) Update(t market.Tick) {
	p := price(t)
	if e.count < e.period {
		e.warmupSum += p
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (p-e.ema)*e.multiplier + e.ema
}

func (e *ExponentialMA) Ready() bool { return e.count >= e.period }

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}
