package journal

import (
	"time"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
)

// Journal persists what happened during a run. Implementations must be safe
// for concurrent use; fills can arrive from several submitters at once.
type Journal interface {
	RecordFill(runID string, f market.Fill) error
	RecordRisk(runID string, ev events.RiskEvent) error
	RecordRun(r Run) error
	Close() error
}

// Run mirrors the backtest_runs table.
type Run struct {
	RunID   string
	Created time.Time
	Dataset string

	Strategies  []string
	Instruments []string
	Config      []byte

	// Simulated time covered by the feed
	Start time.Time
	End   time.Time

	Ticks    int
	Orders   int
	Rejected int
	Fills    int

	// Closing trades, counted by realized PnL sign
	Trades int
	Wins   int
	Losses int

	TotalPnL      float64
	UnrealizedPnL float64
	Commission    float64
	Slippage      float64
	MaxDrawdown   float64

	Notes []string
}

func (r Run) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}

// FillRecord is a fill as stored, tagged with its run.
type FillRecord struct {
	RunID string
	market.Fill
}

type RiskRecord struct {
	RunID string
	events.RiskEvent
}
