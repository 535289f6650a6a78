package risk

import (
	"fmt"
	"time"

	"github.com/rustyeddy/backtest/market"
)

// checkLocked runs the checks in order and stops at the first failure:
// order validity, order size, rate, projected position, exposure, loss
// limits, cooldown. s.mu must be held.
func (m *Manager) checkLocked(s *strategyState, o market.Order, l Limits) *Violation {
	reject := func(c Code, msg string, value, limit float64) *Violation {
		return &Violation{
			Code:       c,
			Strategy:   o.Strategy,
			Instrument: o.Instrument,
			Message:    msg,
			Value:      value,
			Limit:      limit,
		}
	}

	if err := o.Validate(); err != nil {
		return reject(CodeInvalid, err.Error(), 0, 0)
	}
	now := m.clk.Now()

	if l.EnablePositionLimits && o.Quantity > l.MaxOrderSize {
		return reject(CodeOrderSize, "order size exceeds maximum",
			float64(o.Quantity), float64(l.MaxOrderSize))
	}

	pruneBefore(s, now.Add(-RateWindow))
	if l.EnableRateLimiting {
		if n := len(s.orderTimes); n >= l.MaxOrdersPerMinute {
			return reject(CodeRateLimit, "order rate limit exceeded",
				float64(n), float64(l.MaxOrdersPerMinute))
		}
		if s.dailyOrders >= l.MaxOrdersPerDay {
			return reject(CodeRateLimit, "daily order limit exceeded",
				float64(s.dailyOrders), float64(l.MaxOrdersPerDay))
		}
	}

	var held int64
	var avg float64
	if p, ok := s.positions[o.Instrument]; ok {
		held, avg = p.Quantity, p.AveragePrice
	}
	projected := held + o.Side.Sign()*int64(o.Quantity)

	if l.EnablePositionLimits && abs64(projected) > l.MaxPositionSize {
		return reject(CodePositionLimit, "position size limit exceeded",
			float64(abs64(projected)), float64(l.MaxPositionSize))
	}

	if l.EnableExposureLimits {
		if price := m.referencePrice(o, avg); price > 0 {
			notional := float64(o.Quantity) * price
			if notional > l.MaxNotionalExposure {
				return reject(CodeExposureLimit, "notional exposure limit exceeded",
					notional, l.MaxNotionalExposure)
			}
			// the portfolio figure nets the order against the held position
			exp := float64(abs64(projected)) * price
			m.portMu.Lock()
			portfolio := m.totalExposure - m.exposure[posKey{o.Strategy, o.Instrument}] + exp
			m.portMu.Unlock()
			if portfolio > l.MaxPortfolioExposure {
				return reject(CodeExposureLimit, "portfolio exposure limit exceeded",
					portfolio, l.MaxPortfolioExposure)
			}
		}
	}

	if l.EnableLossLimits {
		if s.dailyPnL < l.MaxDailyLoss {
			return reject(CodeLossLimit, "daily loss limit exceeded", s.dailyPnL, l.MaxDailyLoss)
		}
		if s.totalPnL < l.MaxTotalLoss {
			return reject(CodeLossLimit, "total loss limit exceeded", s.totalPnL, l.MaxTotalLoss)
		}
		if now.Before(s.cooldownUntil) {
			left := s.cooldownUntil.Sub(now)
			return reject(CodeCooldown,
				fmt.Sprintf("strategy in cooldown, %s remaining", left.Round(time.Second)),
				left.Minutes(), 0)
		}
	}
	return nil
}

// referencePrice is the price used to value o for exposure checks: the limit
// price, else the stop price, else the instrument mark, else the position's
// average price.
func (m *Manager) referencePrice(o market.Order, avg float64) float64 {
	switch {
	case market.ValidPrice(o.Price) && o.Type != market.Market && o.Type != market.Stop:
		return o.Price
	case market.ValidPrice(o.StopPrice):
		return o.StopPrice
	}
	if p, ok := m.Mark(o.Instrument); ok {
		return p
	}
	if avg > 0 {
		return avg
	}
	return 0
}

// pruneBefore drops submission times older than cutoff. Times are appended
// in order, so the window is a suffix.
func pruneBefore(s *strategyState, cutoff time.Time) {
	i := 0
	for i < len(s.orderTimes) && s.orderTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.orderTimes = append(s.orderTimes[:0], s.orderTimes[i:]...)
	}
}
