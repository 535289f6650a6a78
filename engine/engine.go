// Package engine runs a backtest: it owns the bus, the simulated clock, one
// order book per instrument, the risk manager and the registered strategies,
// and drives them from a tick feed.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/bus"
	"github.com/rustyeddy/backtest/clock"
	"github.com/rustyeddy/backtest/cost"
	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/internal/id"
	"github.com/rustyeddy/backtest/internal/metrics"
	"github.com/rustyeddy/backtest/journal"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/orderbook"
	"github.com/rustyeddy/backtest/risk"
	"github.com/rustyeddy/backtest/strategies"
)

var (
	ErrNilStrategy       = errors.New("engine: nil strategy")
	ErrDuplicateStrategy = errors.New("engine: duplicate strategy id")
	ErrRunning           = errors.New("engine: already running")
)

// LiquidityStrategy owns the synthetic quotes. Its fills never reach risk,
// costs or results.
const LiquidityStrategy = "liquidity"

const (
	DispatchSync  = "sync"
	DispatchAsync = "async"
)

type Liquidity struct {
	Enabled bool
	// DefaultSize is quoted when a tick carries no size for a side.
	DefaultSize market.Volume
	// DefaultSpread is the full bid/ask width quoted around the reference
	// price of ticks without a two-sided quote.
	DefaultSpread float64
}

type Options struct {
	RunID   string
	Dataset string

	Dispatch       string
	OrderLatency   time.Duration
	SignalQuantity market.Volume
	// Start seeds the clock. Zero starts at the first tick.
	Start time.Time

	Liquidity      Liquidity
	Limits         risk.Limits
	StrategyLimits map[string]risk.Limits
}

func DefaultOptions() Options {
	return Options{
		Dispatch:       DispatchSync,
		SignalQuantity: 100,
		Liquidity:      Liquidity{Enabled: true, DefaultSize: 1000, DefaultSpread: 0.01},
		Limits:         risk.DefaultLimits(),
	}
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithCostModel(m cost.Model) Option {
	return func(e *Engine) {
		if m != nil {
			e.cost = m
		}
	}
}

// WithJournal records fills, risk events and the run summary in j. The
// engine does not close j.
func WithJournal(j journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

type registered struct {
	strategy strategies.Strategy
	hooks    strategies.Hooks
	port     *port
	handles  []bus.Handle
}

type Engine struct {
	opts    Options
	log     *zap.Logger
	bus     *bus.Bus
	clk     *clock.SimClock
	risk    *risk.Manager
	cost    cost.Model
	journal journal.Journal
	metrics *metrics.Metrics
	seq     id.Sequence
	jsub    *journal.Subscription

	running atomic.Bool
	events  atomic.Uint64

	mu         sync.Mutex
	books      map[string]*orderbook.OrderBook
	strategies []*registered
	byID       map[string]*registered
	open       map[market.OrderID]*market.Order
	stops      map[string][]market.Order
	quotes     map[string][2]market.OrderID
	volume     map[string]*dailyVolume
	fatal      error
	rolling    bool
	res        Results
	stats      Stats
}

func New(opts Options, deps ...Option) *Engine {
	if opts.Dispatch == "" {
		opts.Dispatch = DispatchSync
	}
	if opts.RunID == "" {
		opts.RunID = id.New()
	}

	e := &Engine{
		opts:   opts,
		log:    zap.NewNop(),
		cost:   cost.Free{},
		books:  make(map[string]*orderbook.OrderBook),
		byID:   make(map[string]*registered),
		open:   make(map[market.OrderID]*market.Order),
		stops:  make(map[string][]market.Order),
		quotes: make(map[string][2]market.OrderID),
		volume: make(map[string]*dailyVolume),
		res:    Results{RunID: opts.RunID, StrategyPnL: make(map[string]float64)},
	}
	for _, d := range deps {
		d(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	e.log = e.log.With(zap.String("run_id", opts.RunID))

	e.bus = bus.New(bus.WithLogger(e.log.Named("bus")))
	e.clk = clock.New(opts.Start, clock.WithLogger(e.log.Named("clock")))
	e.risk = risk.NewManager(opts.Limits, e.clk, risk.WithLogger(e.log.Named("risk")))
	for s, l := range opts.StrategyLimits {
		e.risk.SetStrategyLimits(s, l)
	}

	e.metrics.CounterFunc("bus_handler_failures_total", "Bus handler invocations that failed or panicked.",
		func() float64 { return float64(e.bus.Failures()) })

	e.bus.SubscribeAll(func(ev events.Event) error {
		e.events.Add(1)
		e.metrics.Events.WithLabelValues(ev.Kind().String()).Inc()
		return nil
	})
	e.bus.Subscribe(events.KindSignal, func(ev events.Event) error {
		return ev.Accept(events.Funcs{Signal: e.onSignal})
	})
	if e.journal != nil {
		e.jsub = journal.Attach(e.bus, e.journal, opts.RunID)
	}
	return e
}

func (e *Engine) RunID() string             { return e.opts.RunID }
func (e *Engine) Bus() *bus.Bus             { return e.bus }
func (e *Engine) Clock() *clock.SimClock    { return e.clk }
func (e *Engine) Risk() *risk.Manager       { return e.risk }
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// AddStrategy registers s. Its market data, fill, risk and timer handlers
// are separate bus subscriptions, so a failing strategy never starves
// another.
func (e *Engine) AddStrategy(s strategies.Strategy, hooks strategies.Hooks) error {
	if s == nil {
		return ErrNilStrategy
	}
	sid := s.ID()
	if sid == "" {
		return &market.ValidationError{Field: "strategy", Reason: "id is required"}
	}
	if sid == LiquidityStrategy {
		return &market.ValidationError{Field: "strategy", Reason: fmt.Sprintf("id %q is reserved", sid)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.byID[sid]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateStrategy, sid)
	}

	r := &registered{strategy: s, hooks: hooks, port: &port{e: e, strategy: sid}}
	v := events.Funcs{
		Market: func(ev events.MarketEvent) error { return s.OnMarketData(ev, r.port) },
		Fill: func(ev events.FillEvent) error {
			if ev.Fill.Strategy != sid {
				return nil
			}
			return hooks.Fill(ev, r.port)
		},
		Risk: func(ev events.RiskEvent) error {
			if ev.Strategy != "" && ev.Strategy != sid {
				return nil
			}
			return hooks.Risk(ev, r.port)
		},
		Timer: func(ev events.TimerEvent) error { return hooks.Timer(ev, r.port) },
	}
	h := func(ev events.Event) error { return ev.Accept(v) }
	r.handles = []bus.Handle{
		e.bus.Subscribe(events.KindMarket, h),
		e.bus.Subscribe(events.KindFill, h),
		e.bus.Subscribe(events.KindRisk, h),
		e.bus.Subscribe(events.KindTimer, h),
	}

	e.strategies = append(e.strategies, r)
	e.byID[sid] = r
	e.log.Info("strategy added", zap.String("strategy", sid))
	return nil
}

// Book returns the order book for instrument, creating it on first use.
func (e *Engine) Book(instrument string) *orderbook.OrderBook {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookLocked(instrument)
}

func (e *Engine) bookLocked(instrument string) *orderbook.OrderBook {
	ob, ok := e.books[instrument]
	if !ok {
		ob = orderbook.New(instrument,
			orderbook.WithMakerListener(e.onMakerFill),
			orderbook.WithLogger(e.log.Named("book").With(zap.String("instrument", instrument))))
		e.books[instrument] = ob
	}
	return ob
}

// ScheduleTimer publishes a TimerEvent with timerID when the clock reaches at.
func (e *Engine) ScheduleTimer(timerID string, at time.Time) {
	e.clk.Schedule(at, func() {
		e.publish(events.TimerEvent{At: at, TimerID: timerID})
	})
}

func (e *Engine) publish(ev events.Event) {
	if e.opts.Dispatch == DispatchAsync && e.bus.Running() {
		e.bus.Publish(ev)
		return
	}
	e.bus.PublishSync(ev)
}

func (e *Engine) setFatal(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fatal == nil {
		e.fatal = err
	}
}

func (e *Engine) fatalErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

// Close detaches the journal and stops the bus. It does not close the journal.
func (e *Engine) Close() {
	e.bus.Stop()
	e.jsub.Detach()
}
