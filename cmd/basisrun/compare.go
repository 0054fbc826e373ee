package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/basisrun/internal/backtest"
)

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <run-a> <run-b>",
		Short: "Diff the KPIs of two runs",
		Long:  "Each argument is a run directory or a summary.json path. Deltas are b - a.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := backtest.LoadSummary(summaryPath(args[0]))
			if err != nil {
				return err
			}
			b, err := backtest.LoadSummary(summaryPath(args[1]))
			if err != nil {
				return err
			}
			printDiff(os.Stdout, *a, *b)
			return nil
		},
	}
}

func summaryPath(arg string) string {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return filepath.Join(arg, backtest.SummaryFile)
	}
	return arg
}

func printDiff(w io.Writer, a, b backtest.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "kpi\t%s\t%s\tdelta\n", label(a), label(b))
	for _, d := range backtest.DiffSummaries(a, b) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, num(d.A, 6), num(d.B, 6), num(d.Delta, 6))
	}
	tw.Flush()
}

func label(s backtest.Summary) string {
	if s.Name != "" {
		return s.Name
	}
	return s.RunID
}
