package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/basisrun/internal/cache"
	"github.com/sawpanic/basisrun/internal/config"
	"github.com/sawpanic/basisrun/internal/data"
	"github.com/sawpanic/basisrun/internal/funding"
	"github.com/sawpanic/basisrun/internal/metrics"
	"github.com/sawpanic/basisrun/internal/scoring"
)

func newFundingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funding",
		Short: "Compute trailing funding metrics and rank assets by carry",
		Long: `Computes funding metrics per asset over each trailing window, anchored to
the latest print of that asset, then ranks assets by APR and by the quality
score over --rank-window. Uses the config file when present for windows,
workers, scoring weights and the optional Redis snapshot cache.`,
		RunE: runFunding,
	}
	cmd.Flags().String("input", "", "Funding CSV (asset_id,timestamp,rate); defaults to data.funding")
	cmd.Flags().IntSlice("windows", nil, "Trailing windows in days (overrides funding.windows)")
	cmd.Flags().Int("workers", 0, "Assets computed concurrently (overrides funding.workers)")
	cmd.Flags().Int("top", 20, "Rows to print per ranking, 0 for all")
	cmd.Flags().Int("rank-window", 30, "Window the rankings are computed on")
	return cmd
}

// fundingConfig uses --config when it exists, defaults otherwise
func fundingConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("config", path).Msg("No config file, using defaults")
		return config.Default()
	}
	return loadConfig(cmd)
}

func runFunding(cmd *cobra.Command, _ []string) error {
	cfg, err := fundingConfig(cmd)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		input = cfg.Data.Funding
	}
	if input == "" {
		return fmt.Errorf("no funding input: pass --input or set data.funding")
	}
	batchCfg := cfg.Funding
	if w, _ := cmd.Flags().GetIntSlice("windows"); len(w) > 0 {
		batchCfg.Windows = w
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		batchCfg.Workers = n
	}
	rankWindow, _ := cmd.Flags().GetInt("rank-window")
	top, _ := cmd.Flags().GetInt("top")
	if !containsInt(batchCfg.Windows, rankWindow) {
		batchCfg.Windows = append(batchCfg.Windows, rankWindow)
	}

	ctx, cancel := signalContext()
	defer cancel()

	prints, err := data.LoadFundingFile(input)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	var snapshotCache funding.SnapshotCache
	if cfg.Cache.Enabled {
		rc, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			// cache is an accelerator only
			log.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Redis unavailable, computing without cache")
		} else {
			defer rc.Close()
			rc.SetObserver(registry)
			snapshotCache = rc
		}
	}

	snapshots, err := funding.NewBatch(batchCfg, snapshotCache).Run(ctx, funding.GroupByAsset(prints))
	if err != nil {
		return err
	}
	registry.RecordFundingBatch(len(snapshots))

	var cands []scoring.Candidate
	for _, s := range snapshots {
		if s.WindowDays == rankWindow {
			cands = append(cands, scoring.FromMetrics(s.AssetID, s.Metrics))
		}
	}

	log.Info().
		Int("assets", len(cands)).
		Int("snapshots", len(snapshots)).
		Ints("windows", batchCfg.Windows).
		Msg("Funding metrics computed")

	printSnapshots(os.Stdout, snapshots)
	fmt.Fprintln(os.Stdout)
	printRanking(os.Stdout, fmt.Sprintf("APR %dd", rankWindow), scoring.RankByAPR(cands), top)
	fmt.Fprintln(os.Stdout)
	printRanking(os.Stdout, fmt.Sprintf("quality %dd", rankWindow), scoring.RankByQuality(cands, cfg.Scoring), top)
	return nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func printSnapshots(w io.Writer, snapshots []funding.WindowSnapshot) {
	sorted := append([]funding.WindowSnapshot(nil), snapshots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AssetID != sorted[j].AssetID {
			return sorted[i].AssetID < sorted[j].AssetID
		}
		return sorted[i].WindowDays < sorted[j].WindowDays
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "asset\twindow\tas_of\tapr_%\tpos_frac\tneg_frac\tstdev\ttop10\tmax_dd")
	for _, s := range sorted {
		m := s.Metrics
		fmt.Fprintf(tw, "%s\t%dd\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.AssetID, s.WindowDays, s.AsOf.UTC().Format("2006-01-02T15:04Z"),
			num(m.APRSimple*100, 2), num(m.PosFrac, 3), num(m.NegFrac, 3),
			num(m.Stdev, 6), num(m.Top10Share, 3), num(m.MaxDrawdown, 6))
	}
	tw.Flush()
}

func printRanking(w io.Writer, title string, ranked []scoring.Ranked, top int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "rank\t%s\tsymbol\n", title)
	for i, r := range ranked {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Rank, num(r.Value, 4), r.Symbol)
	}
	tw.Flush()
}

func num(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, v)
}
