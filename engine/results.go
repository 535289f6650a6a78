package engine

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/rustyeddy/backtest/journal"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/risk"
)

type Stats struct {
	EventsProcessed uint64
	OrdersSubmitted uint64
	OrdersFilled    uint64
	OrdersRejected  uint64
	Fills           uint64
	ProcessingTime  time.Duration
	EventsPerSecond float64
}

// Results summarises strategy fills. A trade is a fill that reduces or
// flips a position; its PnL classifies it as a win or a loss.
type Results struct {
	RunID string
	Start time.Time
	End   time.Time
	Ticks int

	TotalPnL        float64
	UnrealizedPnL   float64
	TotalCommission float64
	TotalSlippage   float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	GrossProfit   float64
	GrossLoss     float64

	// MaxDrawdown is the largest fall of realized PnL from its peak, as a
	// positive amount.
	MaxDrawdown float64
	MaxProfit   float64

	StrategyPnL  map[string]float64
	TradeHistory []market.Fill
}

func (r Results) WinRate() float64 {
	if r.TotalTrades == 0 {
		return 0
	}
	return float64(r.WinningTrades) / float64(r.TotalTrades)
}

func (r Results) AverageTrade() float64 {
	if r.TotalTrades == 0 {
		return 0
	}
	return r.TotalPnL / float64(r.TotalTrades)
}

func (r Results) ProfitFactor() float64 {
	if r.GrossLoss == 0 {
		return 0
	}
	return r.GrossProfit / r.GrossLoss
}

// record books a priced strategy fill into the results.
func (e *Engine) record(f market.Fill, res risk.FillResult) {
	signed := f.SignedQuantity()
	prior := res.Position.Quantity - signed
	closing := prior != 0 && (prior > 0) != (signed > 0)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Fills++
	e.res.TradeHistory = append(e.res.TradeHistory, f)
	e.res.TotalCommission += f.Commission
	e.res.TotalSlippage += f.Slippage
	if !closing {
		return
	}
	e.res.TotalTrades++
	switch {
	case res.TradePnL > 0:
		e.res.WinningTrades++
		e.res.GrossProfit += res.TradePnL
	case res.TradePnL < 0:
		e.res.LosingTrades++
		e.res.GrossLoss -= res.TradePnL
	}
}

// Results is a snapshot; it is safe to call during a run.
func (e *Engine) Results() Results {
	e.mu.Lock()
	r := e.res
	r.TradeHistory = slices.Clone(e.res.TradeHistory)
	r.StrategyPnL = maps.Clone(e.res.StrategyPnL)
	ids := make([]string, 0, len(e.strategies))
	for _, reg := range e.strategies {
		ids = append(ids, reg.port.strategy)
	}
	e.mu.Unlock()

	ps := e.risk.PortfolioStats()
	r.TotalPnL = ps.TotalPnL
	r.UnrealizedPnL = ps.UnrealizedPnL
	r.MaxDrawdown = -ps.MaxDrawdown
	if r.StrategyPnL == nil {
		r.StrategyPnL = make(map[string]float64, len(ids))
	}
	for _, id := range ids {
		pnl := e.risk.StrategyPnL(id)
		r.StrategyPnL[id] = pnl
		r.MaxProfit = max(r.MaxProfit, pnl)
	}
	return r
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := e.stats
	e.mu.Unlock()
	s.EventsProcessed = e.events.Load()
	if secs := s.ProcessingTime.Seconds(); secs > 0 {
		s.EventsPerSecond = float64(s.EventsProcessed) / secs
	}
	return s
}

// Summary converts r into the journal's run record.
func (e *Engine) Summary(r Results) journal.Run {
	st := e.Stats()
	instruments := make(map[string]bool)
	for _, f := range r.TradeHistory {
		instruments[f.Instrument] = true
	}
	e.mu.Lock()
	for inst := range e.books {
		instruments[inst] = true
	}
	e.mu.Unlock()

	return journal.Run{
		RunID:         r.RunID,
		Created:       time.Now().UTC(),
		Dataset:       e.opts.Dataset,
		Strategies:    slices.Sorted(maps.Keys(r.StrategyPnL)),
		Instruments:   slices.Sorted(maps.Keys(instruments)),
		Start:         r.Start,
		End:           r.End,
		Ticks:         r.Ticks,
		Orders:        int(st.OrdersSubmitted),
		Rejected:      int(st.OrdersRejected),
		Fills:         int(st.Fills),
		Trades:        r.TotalTrades,
		Wins:          r.WinningTrades,
		Losses:        r.LosingTrades,
		TotalPnL:      r.TotalPnL,
		UnrealizedPnL: r.UnrealizedPnL,
		Commission:    r.TotalCommission,
		Slippage:      r.TotalSlippage,
		MaxDrawdown:   r.MaxDrawdown,
	}
}

// PrintStats writes the engine counters below a run summary.
func PrintStats(w io.Writer, s Stats) {
	fmt.Fprintln(w, "Engine")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Events:        %d\n", s.EventsProcessed)
	fmt.Fprintf(w, "Orders:        %d submitted, %d filled, %d rejected\n", s.OrdersSubmitted, s.OrdersFilled, s.OrdersRejected)
	fmt.Fprintf(w, "Fills:         %d\n", s.Fills)
	fmt.Fprintf(w, "Elapsed:       %s\n", s.ProcessingTime.Round(time.Microsecond))
	fmt.Fprintf(w, "Throughput:    %.0f events/s\n", s.EventsPerSecond)
	fmt.Fprintln(w)
}

// PrintStrategyPnL lists realized PnL per strategy, sorted by id.
func PrintStrategyPnL(w io.Writer, r Results) {
	fmt.Fprintln(w, "Strategy P/L")
	fmt.Fprintln(w, "--------------------------------------------------")
	for _, id := range slices.Sorted(maps.Keys(r.StrategyPnL)) {
		fmt.Fprintf(w, "%-14s %.2f\n", id+":", r.StrategyPnL[id])
	}
	fmt.Fprintln(w)
}
