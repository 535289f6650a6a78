package journal

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() Run {
	start := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	return Run{
		RunID:       "01HRUN",
		Created:     start.Add(24 * time.Hour),
		Dataset:     "aapl.csv",
		Strategies:  []string{"sma", "noop"},
		Instruments: []string{"AAPL", "MSFT"},
		Start:       start,
		End:         start.Add(6 * time.Hour),
		Ticks:       390,
		Orders:      12,
		Rejected:    2,
		Fills:       10,
		Trades:      4,
		Wins:        3,
		Losses:      1,
		TotalPnL:    250,
		Commission:  1.25,
		MaxDrawdown: 40,
		Notes:       []string{"choppy open"},
	}
}

func TestWriteOrg(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteOrg(&buf, sampleRun()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "* BACKTEST: sma, noop\n"))
	assert.Contains(t, out, ":PROPERTIES:")
	assert.Contains(t, out, ":INSTRUMENTS: AAPL, MSFT")
	assert.Contains(t, out, ":START:       2024-03-15T09:30:00Z")
	assert.Contains(t, out, ":TOTAL_PNL:   250.00")
	assert.Contains(t, out, ":CREATED:     [2024-03-16 Sat 09:30]")
	assert.Contains(t, out, "- Win Rate:         *75.00%*")
	assert.Contains(t, out, "| Total   | 4 |")
	assert.Contains(t, out, "- choppy open")
	assert.NotContains(t, out, "** Configuration")
}

func TestWriteOrgPlaceholders(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteOrg(&buf, Run{}))
	out := buf.String()

	assert.Contains(t, out, "(strategies?)")
	assert.Contains(t, out, "(run-id?)")
	assert.Contains(t, out, "(dataset?)")
	assert.NotContains(t, out, "** Observations")
}

func TestPrintRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	PrintRun(&buf, sampleRun())
	out := buf.String()

	assert.Contains(t, out, "Run ID:        01HRUN")
	assert.Contains(t, out, "Strategies:    sma, noop")
	assert.Contains(t, out, "Rejected:      2")
	assert.Contains(t, out, "Win Rate:      75.00%")
	assert.Contains(t, out, "Realized P/L:  250.00")
	assert.Contains(t, out, "Max Drawdown:  40.00")
	assert.Contains(t, out, "- choppy open")
}

func TestRunWinRate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Run{}.WinRate())
	assert.InDelta(t, 0.5, Run{Trades: 4, Wins: 2}.WinRate(), 1e-12)
}
