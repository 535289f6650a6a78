package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtest/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query backtest journal data",
	Long: `Query and display run summaries, fills and risk events from a SQLite journal.

Subcommands:
  run    - Print the org-mode report of a run
  fills  - List the fills of a run
  risk   - List the risk events of a run
  today  - List runs created today
  day    - List runs created on a specific day

Examples:
  backtest journal run 01HV7Z3S8QG6J1T2M4N5P6R7S8
  backtest journal fills 01HV7Z3S8QG6J1T2M4N5P6R7S8
  backtest journal day 2024-01-15`,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Print the org-mode report of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalFillsCmd = &cobra.Command{
	Use:   "fills <run-id>",
	Short: "List the fills of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalFills,
}

var journalRiskCmd = &cobra.Command{
	Use:   "risk <run-id>",
	Short: "List the risk events of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRisk,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List runs created today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd, time.Now().In(time.Local).Format("2006-01-02"))
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List runs created on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd, args[0])
	},
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunCmd, journalFillsCmd, journalRiskCmd, journalTodayCmd, journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./journal/backtest.sqlite", "path to SQLite journal DB")
}

func openSQLite() (*journal.SQLiteJournal, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	r, err := j.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	return journal.WriteOrg(cmd.OutOrStdout(), r)
}

func runJournalFills(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListFills(args[0])
	if err != nil {
		return fmt.Errorf("query fills: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "| %-30s | %-8s | %-10s | %-4s | %12s | %10s | %10s | %-5s |\n",
		"time", "order", "strategy", "side", "price", "quantity", "commission", "maker")
	for _, r := range recs {
		fmt.Fprintf(out, "| %-30s | %-8d | %-10s | %-4s | %12.4f | %10d | %10.4f | %-5t |\n",
			r.Timestamp.Format(time.RFC3339Nano), r.OrderID, r.Strategy, r.Side,
			r.Price, r.Quantity, r.Commission, r.Maker)
	}
	return nil
}

func runJournalRisk(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListRisk(args[0])
	if err != nil {
		return fmt.Errorf("query risk events: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, r := range recs {
		fmt.Fprintf(out, "%s  %-15s %-10s %-8s %s (value %.2f, limit %.2f)\n",
			r.At.Format(time.RFC3339), r.Type, r.Strategy, r.Instrument, r.Message, r.Value, r.Limit)
	}
	return nil
}

func listRuns(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	ids, err := j.ListRunsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, id := range ids {
		r, err := j.GetRun(id)
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		fmt.Fprintf(out, "%s  %s  ticks=%d trades=%d pnl=%.2f\n",
			r.RunID, r.Created.In(time.Local).Format("15:04:05"), r.Ticks, r.Trades, r.TotalPnL)
	}
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
