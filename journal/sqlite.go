package journal

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
)

type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = (*SQLiteJournal)(nil)

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordFill(runID string, f market.Fill) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(run_id, order_id, time, instrument, strategy, side, price, quantity, commission, slippage, maker)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(f.OrderID), f.Timestamp.UTC(), f.Instrument, f.Strategy,
		f.Side.String(), f.Price, int64(f.Quantity), f.Commission, f.Slippage, f.Maker,
	)
	return err
}

func (j *SQLiteJournal) RecordRisk(runID string, ev events.RiskEvent) error {
	_, err := j.db.Exec(`
		INSERT INTO risk_events
		(run_id, time, type, strategy, instrument, message, value, limit_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, ev.At.UTC(), ev.Type.String(), ev.Strategy, ev.Instrument,
		ev.Message, ev.Value, ev.Limit,
	)
	return err
}

// RecordRun inserts or replaces the summary row for r.RunID.
func (j *SQLiteJournal) RecordRun(r Run) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, dataset, strategies, instruments, config, start_time, end_time,
		 ticks, orders, rejected, fills, trades, wins, losses,
		 total_pnl, unrealized_pnl, commission, slippage, max_drawdown, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Dataset,
		strings.Join(r.Strategies, ","), strings.Join(r.Instruments, ","), r.Config,
		r.Start.UTC(), r.End.UTC(),
		r.Ticks, r.Orders, r.Rejected, r.Fills, r.Trades, r.Wins, r.Losses,
		r.TotalPnL, r.UnrealizedPnL, r.Commission, r.Slippage, r.MaxDrawdown,
		strings.Join(r.Notes, "\n"),
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func parseSide(s string) (market.Side, error) {
	switch s {
	case market.Buy.String():
		return market.Buy, nil
	case market.Sell.String():
		return market.Sell, nil
	}
	return 0, fmt.Errorf("journal: unknown side %q", s)
}

func parseRiskType(s string) (events.RiskType, error) {
	for _, t := range []events.RiskType{
		events.RiskPositionLimit,
		events.RiskLossLimit,
		events.RiskExposureLimit,
		events.RiskCooldown,
		events.RiskRateLimit,
		events.RiskOrderSize,
		events.RiskInvalidOrder,
	} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("journal: unknown risk type %q", s)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
