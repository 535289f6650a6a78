package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "An event-driven backtesting engine with a simulated order book",
	Long: `Backtest replays historical ticks through an event bus, a simulated clock,
per-instrument limit order books and a risk manager.

It provides tools for:
  - Running strategies against tick or bar CSV files
  - Generating and validating run configurations
  - Querying fills, risk events and run summaries from the journal`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
