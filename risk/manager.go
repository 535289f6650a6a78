// Package risk is the pre- and post-trade risk gate.
//
// A Manager checks orders against per-strategy Limits before they reach a
// book, counts submissions for rate limiting, and folds fills into signed
// positions, realized PnL and exposure. Rejections are returned as
// *Violation values.
package risk

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/market"
)

// Clock is the time source for rate windows and cooldowns. A simulated
// clock makes every check deterministic.
type Clock interface {
	Now() time.Time
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

type posKey struct {
	strategy   string
	instrument string
}

// strategyState is guarded by its own mutex. Admission for one strategy
// never waits on another strategy.
type strategyState struct {
	mu            sync.Mutex
	orderTimes    []time.Time
	dailyOrders   int
	dailyPnL      float64
	totalPnL      float64
	cooldownUntil time.Time
	positions     map[string]*market.Position
}

type Manager struct {
	clk Clock
	log *zap.Logger

	cfgMu     sync.RWMutex
	limits    Limits
	overrides map[string]Limits

	stratMu    sync.Mutex
	strategies map[string]*strategyState

	// portMu is always acquired after a strategy lock, never before.
	portMu        sync.Mutex
	exposure      map[posKey]float64
	totalExposure float64
	realized      float64
	peak          float64
	maxDrawdown   float64

	markMu sync.RWMutex
	marks  map[string]market.Price
}

func NewManager(limits Limits, clk Clock, opts ...Option) *Manager {
	m := &Manager{
		clk:        clk,
		log:        zap.NewNop(),
		limits:     limits,
		overrides:  make(map[string]Limits),
		strategies: make(map[string]*strategyState),
		exposure:   make(map[posKey]float64),
		marks:      make(map[string]market.Price),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) SetLimits(l Limits) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.limits = l
}

// SetStrategyLimits replaces the limits for one strategy entirely.
func (m *Manager) SetStrategyLimits(strategy string, l Limits) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.overrides[strategy] = l
}

func (m *Manager) LimitsFor(strategy string) Limits {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	if l, ok := m.overrides[strategy]; ok {
		return l
	}
	return m.limits
}

func (m *Manager) state(strategy string) *strategyState {
	m.stratMu.Lock()
	defer m.stratMu.Unlock()
	s, ok := m.strategies[strategy]
	if !ok {
		s = &strategyState{positions: make(map[string]*market.Position)}
		m.strategies[strategy] = s
	}
	return s
}

// CheckOrder runs every check for o and returns the first violation, or nil
// when the order is approved. Only the rate window is pruned.
func (m *Manager) CheckOrder(o market.Order) *Violation {
	s := m.state(o.Strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.checkLocked(s, o, m.LimitsFor(o.Strategy))
}

// OnOrderSubmitted counts o against the strategy's rate limits.
func (m *Manager) OnOrderSubmitted(o market.Order) {
	s := m.state(o.Strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	m.recordLocked(s, o)
}

// Admit checks o and, when approved, records the submission in the same
// critical section so concurrent submitters cannot both pass the rate limit.
func (m *Manager) Admit(o market.Order) *Violation {
	s := m.state(o.Strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := m.checkLocked(s, o, m.LimitsFor(o.Strategy)); v != nil {
		return v
	}
	m.recordLocked(s, o)
	return nil
}

func (m *Manager) recordLocked(s *strategyState, o market.Order) {
	at := o.Timestamp
	if at.IsZero() {
		at = m.clk.Now()
	}
	s.orderTimes = append(s.orderTimes, at)
	s.dailyOrders++
}

// FillResult reports what a fill did to the strategy's PnL.
type FillResult struct {
	Position          market.Position
	TradePnL          float64
	CooldownTriggered bool
	CooldownUntil     time.Time
}

// OnFill applies f to the strategy's position using average cost
// accounting. Closing quantity realizes (exit - average) per unit, signed by
// the closed side, less the fill's commission and slippage.
func (m *Manager) OnFill(f market.Fill) FillResult {
	s := m.state(f.Strategy)
	limits := m.LimitsFor(f.Strategy)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[f.Instrument]
	if !ok {
		p = &market.Position{Instrument: f.Instrument, Strategy: f.Strategy}
		s.positions[f.Instrument] = p
	}

	trade := applyFill(p, f) - f.Cost()
	p.RealizedPnL += trade
	s.dailyPnL += trade
	s.totalPnL += trade

	mark, ok := m.Mark(f.Instrument)
	if !ok {
		mark = f.Price
	}
	p.UnrealizedPnL = p.Mark(mark)

	m.portMu.Lock()
	key := posKey{f.Strategy, f.Instrument}
	exp := p.Exposure()
	m.totalExposure += exp - m.exposure[key]
	if exp == 0 {
		delete(m.exposure, key)
	} else {
		m.exposure[key] = exp
	}
	m.realized += trade
	m.peak = math.Max(m.peak, m.realized)
	m.maxDrawdown = math.Min(m.maxDrawdown, m.realized-m.peak)
	m.portMu.Unlock()

	res := FillResult{Position: *p, TradePnL: trade, CooldownUntil: s.cooldownUntil}
	if limits.EnableLossLimits && trade < limits.SevereLossThreshold {
		until := m.clk.Now().Add(limits.LossCooldown)
		if until.After(s.cooldownUntil) {
			s.cooldownUntil = until
		}
		res.CooldownTriggered = true
		res.CooldownUntil = s.cooldownUntil
		m.log.Info("loss cooldown started",
			zap.String("strategy", f.Strategy),
			zap.Float64("trade_pnl", trade),
			zap.Time("until", s.cooldownUntil))
	}
	return res
}

// applyFill folds f into p and returns the gross PnL realized by any
// closing quantity.
func applyFill(p *market.Position, f market.Fill) float64 {
	d := f.SignedQuantity()
	q := p.Quantity
	switch {
	case q == 0 || (q > 0) == (d > 0):
		n := q + d
		p.AveragePrice = (float64(abs64(q))*p.AveragePrice + float64(abs64(d))*f.Price) / float64(abs64(n))
		p.Quantity = n
		return 0
	default:
		closed := min(abs64(q), abs64(d))
		sign := 1.0
		if q < 0 {
			sign = -1
		}
		pnl := float64(closed) * (f.Price - p.AveragePrice) * sign
		p.Quantity = q + d
		switch {
		case p.Quantity == 0:
			p.AveragePrice = 0
		case (p.Quantity > 0) != (q > 0):
			p.AveragePrice = f.Price
		}
		return pnl
	}
}

// UpdateMark sets the instrument's mark price and revalues open positions.
// Market orders are priced at the mark during checks.
func (m *Manager) UpdateMark(instrument string, price market.Price) {
	if !market.ValidPrice(price) {
		return
	}
	m.markMu.Lock()
	m.marks[instrument] = price
	m.markMu.Unlock()

	for _, s := range m.snapshot() {
		s.mu.Lock()
		if p, ok := s.positions[instrument]; ok {
			p.UnrealizedPnL = p.Mark(price)
		}
		s.mu.Unlock()
	}
}

func (m *Manager) Mark(instrument string) (market.Price, bool) {
	m.markMu.RLock()
	defer m.markMu.RUnlock()
	p, ok := m.marks[instrument]
	return p, ok
}

// ResetDailyCounters zeroes daily order counts and daily PnL. Cooldowns and
// the rolling rate window are kept.
func (m *Manager) ResetDailyCounters() {
	for _, s := range m.snapshot() {
		s.mu.Lock()
		s.dailyOrders = 0
		s.dailyPnL = 0
		s.mu.Unlock()
	}
}

func (m *Manager) snapshot() []*strategyState {
	m.stratMu.Lock()
	defer m.stratMu.Unlock()
	out := make([]*strategyState, 0, len(m.strategies))
	for _, s := range m.strategies {
		out = append(out, s)
	}
	return out
}

// Positions returns every tracked position ordered by strategy then
// instrument.
func (m *Manager) Positions() []market.Position {
	var out []market.Position
	for _, s := range m.snapshot() {
		s.mu.Lock()
		for _, p := range s.positions {
			out = append(out, *p)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strategy != out[j].Strategy {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

func (m *Manager) Position(strategy, instrument string) market.Position {
	s := m.state(strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.positions[instrument]; ok {
		return *p
	}
	return market.Position{Strategy: strategy, Instrument: instrument}
}

// StrategyPnL is the strategy's total realized PnL.
func (m *Manager) StrategyPnL(strategy string) float64 {
	s := m.state(strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPnL
}

func (m *Manager) DailyPnL(strategy string) float64 {
	s := m.state(strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyPnL
}

func (m *Manager) CooldownUntil(strategy string) time.Time {
	s := m.state(strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldownUntil
}

// OrdersInWindow is the number of submissions counted in the current rate
// window, without pruning.
func (m *Manager) OrdersInWindow(strategy string) int {
	s := m.state(strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orderTimes)
}

func (m *Manager) DailyOrders(strategy string) int {
	s := m.state(strategy)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyOrders
}

type PortfolioStats struct {
	TotalPnL        float64
	UnrealizedPnL   float64
	TotalExposure   float64
	ActivePositions int
	MaxDrawdown     float64
}

func (m *Manager) PortfolioStats() PortfolioStats {
	var st PortfolioStats
	for _, p := range m.Positions() {
		st.UnrealizedPnL += p.UnrealizedPnL
		if !p.Flat() {
			st.ActivePositions++
		}
	}
	m.portMu.Lock()
	st.TotalPnL = m.realized
	st.TotalExposure = m.totalExposure
	st.MaxDrawdown = m.maxDrawdown
	m.portMu.Unlock()
	return st
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
