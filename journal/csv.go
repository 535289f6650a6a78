package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
)

var (
	fillHeader = []string{"run_id", "order_id", "time", "instrument", "strategy", "side", "price", "quantity", "commission", "slippage", "maker"}
	riskHeader = []string{"run_id", "time", "type", "strategy", "instrument", "message", "value", "limit"}
)

// CSVJournal writes fills.csv and risk.csv into a directory. RecordRun writes
// an org report named after the run next to them.
type CSVJournal struct {
	dir string

	mu     sync.Mutex
	fills  *csv.Writer
	risk   *csv.Writer
	ff, rf *os.File
}

var _ Journal = (*CSVJournal)(nil)

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	ff, err := os.Create(filepath.Join(dir, "fills.csv"))
	if err != nil {
		return nil, err
	}
	rf, err := os.Create(filepath.Join(dir, "risk.csv"))
	if err != nil {
		_ = ff.Close()
		return nil, err
	}

	j := &CSVJournal{dir: dir, fills: csv.NewWriter(ff), risk: csv.NewWriter(rf), ff: ff, rf: rf}
	if err := j.writeRow(j.fills, fillHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.writeRow(j.risk, riskHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) Dir() string { return j.dir }

func (j *CSVJournal) RecordFill(runID string, fl market.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writeRow(j.fills, []string{
		runID,
		strconv.FormatUint(uint64(fl.OrderID), 10),
		fl.Timestamp.UTC().Format(time.RFC3339Nano),
		fl.Instrument,
		fl.Strategy,
		fl.Side.String(),
		f(fl.Price),
		strconv.FormatUint(uint64(fl.Quantity), 10),
		f(fl.Commission),
		f(fl.Slippage),
		strconv.FormatBool(fl.Maker),
	})
}

func (j *CSVJournal) RecordRisk(runID string, ev events.RiskEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writeRow(j.risk, []string{
		runID,
		ev.At.UTC().Format(time.RFC3339Nano),
		ev.Type.String(),
		ev.Strategy,
		ev.Instrument,
		ev.Message,
		f(ev.Value),
		f(ev.Limit),
	})
}

func (j *CSVJournal) RecordRun(r Run) error {
	fh, err := os.Create(filepath.Join(j.dir, r.RunID+".org"))
	if err != nil {
		return err
	}
	if err := WriteOrg(fh, r); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}
	j.risk.Flush()
	if err := j.risk.Error(); err != nil {
		return err
	}

	if err := j.ff.Close(); err != nil {
		return err
	}
	return j.rf.Close()
}

func (j *CSVJournal) writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
