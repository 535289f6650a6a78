package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backtest/events"
	"github.com/rustyeddy/backtest/market"
)

func newTestSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func testFill(sec int, side market.Side, price market.Price, qty market.Volume) market.Fill {
	return market.Fill{
		OrderID:    market.OrderID(sec),
		Timestamp:  time.Date(2024, 1, 2, 9, 30, sec, 0, time.UTC),
		Instrument: "AAPL",
		Strategy:   "s1",
		Side:       side,
		Price:      price,
		Quantity:   qty,
		Commission: 0.15,
		Slippage:   0.01,
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["fills"])
	assert.True(t, found["risk_events"])
	assert.True(t, found["backtest_runs"])
}

func TestSQLiteFillsRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	buy := testFill(1, market.Buy, 150.25, 100)
	sell := testFill(2, market.Sell, 151, 40)
	sell.Maker = true

	require.NoError(t, j.RecordFill("run-a", buy))
	require.NoError(t, j.RecordFill("run-a", sell))
	require.NoError(t, j.RecordFill("run-b", testFill(3, market.Buy, 1, 1)))

	got, err := j.ListFills("run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "run-a", got[0].RunID)
	assert.Equal(t, buy.OrderID, got[0].OrderID)
	assert.True(t, got[0].Timestamp.Equal(buy.Timestamp))
	assert.Equal(t, market.Buy, got[0].Side)
	assert.InDelta(t, 150.25, got[0].Price, 1e-9)
	assert.Equal(t, market.Volume(100), got[0].Quantity)
	assert.InDelta(t, 0.15, got[0].Commission, 1e-9)
	assert.False(t, got[0].Maker)

	assert.Equal(t, market.Sell, got[1].Side)
	assert.True(t, got[1].Maker)

	none, err := j.ListFills("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteRiskRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	ev := events.RiskEvent{
		At:         time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		Type:       events.RiskCooldown,
		Strategy:   "s1",
		Instrument: "AAPL",
		Message:    "cooldown until 10:30",
		Value:      -1500,
		Limit:      -1000,
	}
	require.NoError(t, j.RecordRisk("run-a", ev))

	got, err := j.ListRisk("run-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.RiskCooldown, got[0].Type)
	assert.Equal(t, ev.Message, got[0].Message)
	assert.InDelta(t, ev.Value, got[0].Value, 1e-9)
	assert.InDelta(t, ev.Limit, got[0].Limit, 1e-9)
	assert.True(t, got[0].At.Equal(ev.At))

	ev.Type = events.RiskOrderSize
	require.NoError(t, j.RecordRisk("run-b", ev))
	got, err = j.ListRisk("run-b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.RiskOrderSize, got[0].Type)
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	run := Run{
		RunID:       "01HQ",
		Created:     created,
		Dataset:     "aapl.csv",
		Strategies:  []string{"fast", "slow"},
		Instruments: []string{"AAPL"},
		Config:      []byte("engine: {}"),
		Start:       created.Add(-time.Hour),
		End:         created,
		Ticks:       10,
		Orders:      4,
		Rejected:    1,
		Fills:       3,
		Trades:      2,
		Wins:        1,
		Losses:      1,
		TotalPnL:    12.5,
		Commission:  0.3,
		Notes:       []string{"first", "second"},
	}
	require.NoError(t, j.RecordRun(run))

	run.TotalPnL = 20
	require.NoError(t, j.RecordRun(run), "re-recording a run replaces it")

	got, err := j.GetRun("01HQ")
	require.NoError(t, err)
	assert.Equal(t, run.Strategies, got.Strategies)
	assert.Equal(t, run.Instruments, got.Instruments)
	assert.Equal(t, run.Notes, got.Notes)
	assert.Equal(t, run.Config, got.Config)
	assert.Equal(t, 3, got.Fills)
	assert.InDelta(t, 20, got.TotalPnL, 1e-9)
	assert.True(t, got.Created.Equal(created))

	ids, err := j.ListRunsBetween(created.Add(-time.Minute), created.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"01HQ"}, ids)

	_, err = j.GetRun("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
