package backtest

import (
	"encoding/json"
	"fmt"
	"os"
)

// Summary is the persisted subset of a run needed for comparisons
type Summary struct {
	RunID string `json:"run_id"`
	Name  string `json:"name"`
	KPI   KPI    `json:"kpi"`
}

// LoadSummary reads a summary.json written by Writer
func LoadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary %s: %w", path, err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}
	return &s, nil
}

// KPIDelta is one KPI compared across two runs
type KPIDelta struct {
	Name  string  `json:"name"`
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	Delta float64 `json:"delta"`
}

func kpiFields(k KPI) []KPIDelta {
	return []KPIDelta{
		{Name: "total_return", A: k.TotalReturn},
		{Name: "cagr", A: k.CAGR},
		{Name: "sharpe", A: k.Sharpe},
		{Name: "sortino", A: k.Sortino},
		{Name: "max_drawdown", A: k.MaxDrawdown},
		{Name: "calmar", A: k.Calmar},
		{Name: "hit_rate", A: k.HitRate},
		{Name: "avg_turnover", A: k.AvgTurnover},
		{Name: "avg_funding_daily", A: k.AvgFundingDaily},
		{Name: "volatility", A: k.Volatility},
		{Name: "final_equity", A: k.FinalEquity},
		{Name: "n_days", A: float64(k.NDays)},
	}
}

// DiffSummaries reports b - a for every KPI, in a fixed order
func DiffSummaries(a, b Summary) []KPIDelta {
	out := kpiFields(a.KPI)
	bs := kpiFields(b.KPI)
	for i := range out {
		out[i].B = bs[i].A
		out[i].Delta = out[i].B - out[i].A
	}
	return out
}
