package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/backtest/market"
)

var ErrRunNotFound = errors.New("journal: run not found")

// ListFills returns the fills of one run in the order they happened.
func (j *SQLiteJournal) ListFills(runID string) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, order_id, time, instrument, strategy, side, price, quantity, commission, slippage, maker
		FROM fills
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var (
			rec  FillRecord
			id   int64
			qty  int64
			side string
		)
		if err := rows.Scan(
			&rec.RunID,
			&id,
			&rec.Timestamp,
			&rec.Instrument,
			&rec.Strategy,
			&side,
			&rec.Price,
			&qty,
			&rec.Commission,
			&rec.Slippage,
			&rec.Maker,
		); err != nil {
			return nil, err
		}
		if rec.Side, err = parseSide(side); err != nil {
			return nil, err
		}
		rec.OrderID = market.OrderID(id)
		rec.Quantity = market.Volume(qty)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLiteJournal) ListRisk(runID string) ([]RiskRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, type, strategy, instrument, message, value, limit_value
		FROM risk_events
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RiskRecord
	for rows.Next() {
		var (
			rec RiskRecord
			typ string
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.At,
			&typ,
			&rec.Strategy,
			&rec.Instrument,
			&rec.Message,
			&rec.Value,
			&rec.Limit,
		); err != nil {
			return nil, err
		}
		if rec.Type, err = parseRiskType(typ); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLiteJournal) GetRun(runID string) (Run, error) {
	var (
		r      Run
		strats string
		instrs string
		notes  string
	)
	err := j.db.QueryRow(`
		SELECT run_id, created, dataset, strategies, instruments, config, start_time, end_time,
		       ticks, orders, rejected, fills, trades, wins, losses,
		       total_pnl, unrealized_pnl, commission, slippage, max_drawdown, notes
		FROM backtest_runs
		WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Dataset, &strats, &instrs, &r.Config, &r.Start, &r.End,
		&r.Ticks, &r.Orders, &r.Rejected, &r.Fills, &r.Trades, &r.Wins, &r.Losses,
		&r.TotalPnL, &r.UnrealizedPnL, &r.Commission, &r.Slippage, &r.MaxDrawdown, &notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
		}
		return Run{}, err
	}
	r.Strategies = splitList(strats)
	r.Instruments = splitList(instrs)
	if notes != "" {
		r.Notes = strings.Split(notes, "\n")
	}
	return r, nil
}

// ListRunsBetween returns runs created within [start, end), oldest first.
func (j *SQLiteJournal) ListRunsBetween(start, end time.Time) ([]string, error) {
	rows, err := j.db.Query(`
		SELECT run_id FROM backtest_runs
		WHERE created >= ? AND created < ?
		ORDER BY created ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
