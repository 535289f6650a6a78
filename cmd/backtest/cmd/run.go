package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/config"
	"github.com/rustyeddy/backtest/engine"
	"github.com/rustyeddy/backtest/internal/feed"
	"github.com/rustyeddy/backtest/internal/logging"
	"github.com/rustyeddy/backtest/journal"
	"github.com/rustyeddy/backtest/market"
	"github.com/rustyeddy/backtest/risk"
	"github.com/rustyeddy/backtest/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest from a config file",
	Long: `Run a backtest using settings from a configuration file.

The config file names the tick data, the strategies and their risk limits,
the cost model and where fills and the run summary are journaled.

Example:
  backtest run -f backtest.yaml
  backtest run -f backtest.yaml --data ./data/msft.csv --metrics-file run.prom`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runConfigPath  string
	runDataPath    string
	runID          string
	runMetricsFile string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "file", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().StringVar(&runDataPath, "data", "", "tick CSV, overrides data.path")
	runCmd.Flags().StringVar(&runID, "run-id", "", "run id (default: a new ULID)")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runDataPath != "" {
		cfg.Data.Path = runDataPath
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	res, eng, err := runBacktest(ctx, cfg, runID, log, out)
	if eng != nil && runMetricsFile != "" {
		if werr := prometheus.WriteToTextfile(runMetricsFile, eng.Metrics().Registry); werr != nil {
			log.Error("write metrics", zap.String("path", runMetricsFile), zap.Error(werr))
		}
	}
	if eng == nil {
		return err
	}

	journal.PrintRun(out, eng.Summary(res))
	engine.PrintStrategyPnL(out, res)
	engine.PrintStats(out, eng.Stats())
	printJournalLocation(out, cfg.Journal)
	return err
}

// runBacktest wires an engine from cfg and replays the configured data
// through it. The engine is returned whenever it was built, so partial
// results of a failed run can still be reported.
func runBacktest(ctx context.Context, cfg *config.Config, id string, log *zap.Logger, out io.Writer) (engine.Results, *engine.Engine, error) {
	j, err := openJournal(cfg.Journal)
	if err != nil {
		return engine.Results{}, nil, fmt.Errorf("create journal: %w", err)
	}
	if j != nil {
		defer func() {
			if err := j.Close(); err != nil {
				log.Error("close journal", zap.Error(err))
			}
		}()
	}

	costs, err := cfg.Costs.Model()
	if err != nil {
		return engine.Results{}, nil, fmt.Errorf("cost model: %w", err)
	}

	deps := []engine.Option{engine.WithLogger(log), engine.WithCostModel(costs)}
	if j != nil {
		deps = append(deps, engine.WithJournal(j))
	}
	eng := engine.New(engineOptions(cfg, id), deps...)
	defer eng.Close()

	for _, sc := range cfg.Strategies {
		s, err := strategies.ByName(sc)
		if err != nil {
			return engine.Results{}, nil, fmt.Errorf("strategy %q: %w", sc.ID, err)
		}
		if err := eng.AddStrategy(s, strategies.HooksOf(s)); err != nil {
			return engine.Results{}, nil, err
		}
	}

	f, err := feed.OpenCSV(cfg.Data.Path, cfg.Data.From, cfg.Data.To)
	if err != nil {
		return engine.Results{}, nil, fmt.Errorf("open data: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(out, "Running backtest %s on %s\n\n", eng.RunID(), cfg.Data.Path)
	res, err := eng.Run(ctx, f)
	var re *engine.RunError
	if errors.As(err, &re) && errors.Is(err, context.Canceled) {
		log.Warn("run interrupted", zap.Time("last_tick", re.LastTimestamp))
	}
	return res, eng, err
}

func engineOptions(cfg *config.Config, id string) engine.Options {
	opts := engine.DefaultOptions()
	opts.RunID = id
	opts.Dataset = filepath.Base(cfg.Data.Path)
	opts.Dispatch = cfg.Engine.Dispatch
	opts.OrderLatency = cfg.Engine.OrderLatency.Std()
	opts.SignalQuantity = market.Volume(cfg.Engine.SignalQuantity)
	opts.Start = cfg.Engine.Start
	opts.Liquidity = engine.Liquidity{
		Enabled:       cfg.Liquidity.Enabled,
		DefaultSize:   market.Volume(cfg.Liquidity.DefaultSize),
		DefaultSpread: cfg.Liquidity.DefaultSpread,
	}
	opts.Limits = cfg.Risk.Limits.Limits()
	if len(cfg.Risk.Strategies) > 0 {
		opts.StrategyLimits = make(map[string]risk.Limits, len(cfg.Risk.Strategies))
		for s, l := range cfg.Risk.Strategies {
			opts.StrategyLimits[s] = l.Limits()
		}
	}
	return opts
}

// openJournal returns a nil journal for type none.
func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case config.JournalCSV:
		return journal.NewCSV(jc.Dir)
	case config.JournalSQLite:
		if dir := filepath.Dir(jc.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		return journal.NewSQLite(jc.DBPath)
	case config.JournalNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", jc.Type)
}

func printJournalLocation(w io.Writer, jc config.JournalConfig) {
	switch jc.Type {
	case config.JournalCSV:
		fmt.Fprintf(w, "Results saved to:\n  - %s\n  - %s\n", filepath.Join(jc.Dir, "fills.csv"), filepath.Join(jc.Dir, "risk.csv"))
	case config.JournalSQLite:
		fmt.Fprintf(w, "Results saved to: %s\n", jc.DBPath)
	}
}
