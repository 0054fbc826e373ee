package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/basisrun/internal/backtest"
	"github.com/sawpanic/basisrun/internal/config"
	"github.com/sawpanic/basisrun/internal/data"
	"github.com/sawpanic/basisrun/internal/metrics"
	"github.com/sawpanic/basisrun/internal/persistence/postgres"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one backtest from the configured inputs",
		Long: `Loads features, universe snapshots, returns and funding, classifies the
regime, sizes the book on the rebalance cadence and simulates it. Artifacts
(daily.csv, daily.jsonl, summary.json, report.md) go to <output>/<run-id>/.`,
		RunE: runBacktest,
	}
	cmd.Flags().StringP("output", "o", "", "Artifact directory (overrides output.dir)")
	cmd.Flags().Bool("store", false, "Persist the run to the configured store")
	cmd.Flags().String("name", "", "Run name (overrides backtest.name)")
	return cmd
}

// outputs wires the optional sinks shared by backtest and sweep
type outputs struct {
	writer   *backtest.Writer
	registry *metrics.Registry
	store    *postgres.Manager
}

func openOutputs(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*outputs, error) {
	dir := cfg.Output.Dir
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		dir = v
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}

	out := &outputs{
		writer:   backtest.NewWriter(abs),
		registry: metrics.NewRegistry(),
	}

	useStore, _ := cmd.Flags().GetBool("store")
	if useStore || cfg.Store.Enabled {
		storeCfg := cfg.Store
		storeCfg.Enabled = true
		out.store, err = postgres.NewManager(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
	}
	return out, nil
}

func (o *outputs) storeFor() backtest.Store {
	if o.store == nil || o.store.Runs() == nil {
		return nil
	}
	return o.store.Runs()
}

func (o *outputs) Close() {
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close run store")
		}
	}
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.Backtest.Name = v
	}

	ctx, cancel := signalContext()
	defer cancel()

	input, err := data.Load(cfg.Data)
	if err != nil {
		return err
	}

	runner, err := backtest.NewRunner(cfg.Pipeline())
	if err != nil {
		return err
	}

	out, err := openOutputs(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	runner.SetWriter(out.writer)
	runner.SetRecorder(out.registry)
	if store := out.storeFor(); store != nil {
		runner.SetStore(store)
	}

	res, err := runner.Run(ctx, input)
	if err != nil {
		out.registry.RecordFailure(err)
		return fmt.Errorf("backtest failed: %w", err)
	}

	printKPI(os.Stdout, res)
	return nil
}

// printKPI renders the headline numbers of a run
func printKPI(w io.Writer, res *backtest.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	k := res.KPI
	fmt.Fprintf(tw, "run\t%s (%s)\n", res.Name, res.RunID)
	fmt.Fprintf(tw, "days\t%d\n", k.NDays)
	fmt.Fprintf(tw, "total return\t%.4f%%\n", k.TotalReturn*100)
	fmt.Fprintf(tw, "cagr\t%.4f%%\n", k.CAGR*100)
	fmt.Fprintf(tw, "sharpe\t%.3f\n", k.Sharpe)
	fmt.Fprintf(tw, "sortino\t%.3f\n", k.Sortino)
	fmt.Fprintf(tw, "max drawdown\t%.4f%%\n", k.MaxDrawdown*100)
	fmt.Fprintf(tw, "calmar\t%.3f\n", k.Calmar)
	fmt.Fprintf(tw, "hit rate\t%.2f%%\n", k.HitRate*100)
	fmt.Fprintf(tw, "avg turnover\t%.4f\n", k.AvgTurnover)
	fmt.Fprintf(tw, "final equity\t%.6f\n", k.FinalEquity)
	fmt.Fprintf(tw, "transitions\t%d\n", res.Regimes.Transitions)
	if res.Quality != nil {
		fmt.Fprintf(tw, "data gaps\t%d\n", res.Quality.Gaps)
	}
	if dir, ok := res.Artifacts[backtest.SummaryFile]; ok {
		fmt.Fprintf(tw, "summary\t%s\n", dir)
	}
	tw.Flush()
}
