package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/basisrun/internal/backtest"
	"github.com/sawpanic/basisrun/internal/data"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run basket-size and cost variants of the configured backtest in parallel",
		RunE:  runSweep,
	}
	cmd.Flags().IntSlice("basket-sizes", nil, "Alt basket sizes to try, e.g. 5,10,20")
	cmd.Flags().Float64Slice("cost-bps", nil, "Cost levels in bps to try, e.g. 5,10")
	cmd.Flags().Int("workers", 4, "Variants run concurrently")
	cmd.Flags().StringP("output", "o", "", "Artifact directory (overrides output.dir)")
	cmd.Flags().Bool("store", false, "Persist every variant to the configured store")
	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	baskets, _ := cmd.Flags().GetIntSlice("basket-sizes")
	costs, _ := cmd.Flags().GetFloat64Slice("cost-bps")
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		return fmt.Errorf("workers must be positive, got: %d", workers)
	}
	if len(baskets) == 0 && len(costs) == 0 {
		return fmt.Errorf("at least one of --basket-sizes or --cost-bps is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	input, err := data.Load(cfg.Data)
	if err != nil {
		return err
	}

	out, err := openOutputs(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	results, err := backtest.Sweep(ctx, cfg.Pipeline(), input, backtest.Grid(baskets, costs), backtest.SweepOptions{
		Workers:  workers,
		Writer:   out.writer,
		Recorder: out.registry,
		Store:    out.storeFor(),
	})
	if err != nil {
		out.registry.RecordFailure(err)
		return err
	}

	printSweep(os.Stdout, results)
	return nil
}

func printSweep(w io.Writer, results []backtest.SweepResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "variant\trun_id\ttotal_return\tsharpe\tmax_drawdown\tavg_turnover\tfinal_equity")
	for _, r := range results {
		k := r.Result.KPI
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.3f\t%.4f\t%.4f\t%.6f\n",
			r.Variant.Name, r.Result.RunID, k.TotalReturn, k.Sharpe, k.MaxDrawdown, k.AvgTurnover, k.FinalEquity)
	}
	tw.Flush()
}
