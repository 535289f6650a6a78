package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/internal/feed"
	"github.com/rustyeddy/backtest/market"
)

// RunError is a condition that ended a run early.
type RunError struct {
	Op            string
	LastTimestamp time.Time
	Err           error
}

func (e *RunError) Error() string {
	if e.LastTimestamp.IsZero() {
		return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine: %s after %s: %v", e.Op, e.LastTimestamp.Format(time.RFC3339Nano), e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Run replays f through the engine. For each tick it advances the clock,
// which fires due order routing, timers and the daily reset, then refreshes
// synthetic liquidity, marks positions, triggers stops and publishes the
// MarketEvent. ctx is checked between ticks only.
//
// Results are returned even when the run ends with a *RunError.
func (e *Engine) Run(ctx context.Context, f feed.Feed) (Results, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Results{}, ErrRunning
	}
	defer e.running.Store(false)

	wall := time.Now()
	if e.opts.Dispatch == DispatchAsync {
		e.bus.Start()
	}

	e.mu.Lock()
	regs := append([]*registered(nil), e.strategies...)
	e.mu.Unlock()

	for _, r := range regs {
		if err := r.hooks.Start(r.port); err != nil {
			e.log.Warn("strategy start hook failed", zap.String("strategy", r.port.strategy), zap.Error(err))
		}
	}

	var (
		last   time.Time
		ticks  int
		runErr error
	)
	for {
		if err := ctx.Err(); err != nil {
			runErr = &RunError{Op: "run", LastTimestamp: last, Err: err}
			break
		}
		tick, ok, err := f.Next()
		if err != nil {
			runErr = &RunError{Op: "read feed", LastTimestamp: last, Err: err}
			break
		}
		if !ok {
			break
		}
		if ticks == 0 {
			e.begin(tick.Timestamp)
		}
		if err := e.step(tick); err != nil {
			runErr = &RunError{Op: "process tick", LastTimestamp: last, Err: err}
			break
		}
		last = tick.Timestamp
		ticks++
	}

	for _, r := range regs {
		if err := r.hooks.Stop(r.port); err != nil {
			e.log.Warn("strategy stop hook failed", zap.String("strategy", r.port.strategy), zap.Error(err))
		}
	}
	e.bus.Stop()

	e.mu.Lock()
	e.res.End = last
	e.res.Ticks += ticks
	e.stats.ProcessingTime += time.Since(wall)
	e.mu.Unlock()

	res := e.Results()
	if e.journal != nil {
		if err := e.journal.RecordRun(e.Summary(res)); err != nil {
			e.log.Error("record run", zap.Error(err))
		}
	}
	st := e.Stats()
	e.log.Info("run finished",
		zap.Int("ticks", ticks),
		zap.Uint64("events", st.EventsProcessed),
		zap.Uint64("orders", st.OrdersSubmitted),
		zap.Uint64("rejected", st.OrdersRejected),
		zap.Float64("pnl", res.TotalPnL),
		zap.Duration("elapsed", st.ProcessingTime),
		zap.Error(runErr))
	return res, runErr
}

// begin records the first tick and schedules the daily reset for the
// following UTC midnight.
func (e *Engine) begin(first time.Time) {
	e.mu.Lock()
	if e.res.Start.IsZero() {
		e.res.Start = first
	}
	rolling := e.rolling
	e.rolling = true
	e.mu.Unlock()
	if rolling {
		return
	}

	y, m, d := first.UTC().Date()
	e.scheduleDayRoll(time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC))
}

func (e *Engine) scheduleDayRoll(at time.Time) {
	e.clk.Schedule(at, func() {
		e.risk.ResetDailyCounters()
		e.mu.Lock()
		for _, d := range e.volume {
			d.roll()
		}
		e.mu.Unlock()
		e.log.Debug("daily counters reset", zap.Time("at", at))
		e.scheduleDayRoll(at.Add(24 * time.Hour))
	})
}

func (e *Engine) step(t market.Tick) error {
	started := time.Now()
	if err := e.clk.AdvanceTo(t.Timestamp); err != nil {
		return err
	}

	ob := e.Book(t.Instrument)
	e.observeVolume(t)
	if e.opts.Liquidity.Enabled {
		e.requote(ob, t)
	}
	if ref := t.Reference(); market.ValidPrice(ref) {
		e.risk.UpdateMark(t.Instrument, ref)
		e.triggerStops(t.Instrument, ref)
	}
	e.publish(events.MarketEvent{Tick: t})

	e.metrics.TickLatency.Observe(time.Since(started).Seconds())
	e.metrics.RestingOrders.WithLabelValues(t.Instrument).Set(float64(ob.Stats().Orders))
	return e.fatalErr()
}
