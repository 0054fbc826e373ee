package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Artifact file names under <output>/<run-id>/
const (
	DailyCSVFile   = "daily.csv"
	DailyJSONLFile = "daily.jsonl"
	SummaryFile    = "summary.json"
	ReportFile     = "report.md"
)

var dailyHeader = []string{
	"date", "regime", "alt_gross", "major_gross", "total_gross", "alt_turnover",
	"major_turnover", "pnl", "cost", "funding", "r_ls_net", "equity",
}

// Writer handles writing backtest artifacts to disk
type Writer struct {
	outputDir string
}

// NewWriter creates a writer rooted at outputDir
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// RunDir is the directory a run's artifacts land in
func (w *Writer) RunDir(runID string) string {
	return filepath.Join(w.outputDir, runID)
}

// Write emits every artifact and returns their paths keyed by file name
func (w *Writer) Write(res *Result) (map[string]string, error) {
	dir := w.RunDir(res.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	writers := []struct {
		name string
		fn   func(string, *Result) error
	}{
		{DailyCSVFile, writeDailyCSV},
		{DailyJSONLFile, writeDailyJSONL},
		{SummaryFile, writeSummary},
		{ReportFile, writeReport},
	}

	paths := make(map[string]string, len(writers))
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		if err := wr.fn(path, res); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", wr.name, err)
		}
		paths[wr.name] = path
	}
	return paths, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeDailyCSV(path string, res *Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(dailyHeader); err != nil {
		return err
	}
	for _, r := range res.Records {
		row := []string{
			r.Date.Format(dateLayout), r.Regime,
			formatFloat(r.AltGross), formatFloat(r.MajorGross), formatFloat(r.TotalGross),
			formatFloat(r.AltTurnover), formatFloat(r.MajorTurnover),
			formatFloat(r.PnL), formatFloat(r.Cost), formatFloat(r.Funding),
			formatFloat(r.RLSNet), formatFloat(r.Equity),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeDailyJSONL(path string, res *Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, r := range res.Records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", r.Date.Format(dateLayout), err)
		}
	}
	return nil
}

func writeSummary(path string, res *Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func writeReport(path string, res *Result) error {
	return os.WriteFile(path, []byte(RenderReport(res)), 0644)
}

// RenderReport builds the markdown run report
func RenderReport(res *Result) string {
	var report strings.Builder
	k := res.KPI

	report.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", res.Name))
	report.WriteString(fmt.Sprintf("**Run**: %s\n", res.RunID))
	report.WriteString(fmt.Sprintf("**Generated**: %s\n", res.FinishedAt.Format("2006-01-02 15:04:05 UTC")))
	if n := len(res.Records); n > 0 {
		report.WriteString(fmt.Sprintf("**Period**: %s to %s (%d trading days)\n",
			res.Records[0].Date.Format(dateLayout), res.Records[n-1].Date.Format(dateLayout), k.NDays))
	}
	sz := res.Pipeline.Sizing
	report.WriteString(fmt.Sprintf("**Configuration**: mode=%s, target_gross=%.2f, basket=%d, cost=%.1fbps, rebalance=%dd\n\n",
		sz.Mode, sz.TargetGross, sz.BasketSize, res.Pipeline.Backtest.Cost.CostBps, res.Pipeline.Backtest.RebalanceEveryDays))

	report.WriteString("## Performance\n\n")
	report.WriteString("| KPI | Value |\n")
	report.WriteString("|-----|------:|\n")
	report.WriteString(fmt.Sprintf("| Total return | %.2f%% |\n", k.TotalReturn*100))
	report.WriteString(fmt.Sprintf("| CAGR | %.2f%% |\n", k.CAGR*100))
	report.WriteString(fmt.Sprintf("| Sharpe | %.2f |\n", k.Sharpe))
	report.WriteString(fmt.Sprintf("| Sortino | %.2f |\n", k.Sortino))
	report.WriteString(fmt.Sprintf("| Max drawdown | %.2f%% |\n", k.MaxDrawdown*100))
	report.WriteString(fmt.Sprintf("| Calmar | %.2f |\n", k.Calmar))
	report.WriteString(fmt.Sprintf("| Hit rate | %.1f%% |\n", k.HitRate*100))
	report.WriteString(fmt.Sprintf("| Avg turnover | %.4f |\n", k.AvgTurnover))
	report.WriteString(fmt.Sprintf("| Avg funding (daily) | %.6f |\n", k.AvgFundingDaily))
	report.WriteString(fmt.Sprintf("| Final equity | %.4f |\n\n", k.FinalEquity))

	report.WriteString("## Regime Attribution\n\n")
	if len(res.Attribution) > 0 {
		report.WriteString("| Regime | Days | Sum r | Mean r | Avg gross |\n")
		report.WriteString("|--------|-----:|------:|-------:|----------:|\n")
		for _, a := range res.Attribution {
			report.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.6f | %.3f |\n",
				a.Regime, a.Days, a.SumReturn, a.MeanReturn, a.AvgGross))
		}
		report.WriteString("\n")
	} else {
		report.WriteString("No trading days after the opening day.\n\n")
	}
	report.WriteString(fmt.Sprintf("Transitions: %d, blocked by persistence: %d, mean run length: %.1f days\n\n",
		res.Regimes.Transitions, res.Regimes.BlockedDays, res.Regimes.MeanRunLength))

	report.WriteString("## Data Quality\n\n")
	if res.Quality == nil || res.Quality.Gaps == 0 {
		report.WriteString("No data gaps.\n")
		return report.String()
	}
	report.WriteString(fmt.Sprintf("- **Gaps**: %d (zero-filled)\n", res.Quality.Gaps))
	for _, kind := range sortedKinds(res.Quality.ByKind) {
		report.WriteString(fmt.Sprintf("- %s: %d\n", kind, res.Quality.ByKind[kind]))
	}
	worst := res.Quality.WorstAssets(10)
	if len(worst) > 0 {
		report.WriteString("\n| Asset | Gaps |\n")
		report.WriteString("|-------|-----:|\n")
		for _, a := range worst {
			report.WriteString(fmt.Sprintf("| %s | %d |\n", a, res.Quality.ByAsset[a]))
		}
	}
	return report.String()
}
