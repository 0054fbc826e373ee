package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/sawpanic/basisrun/internal/backtest"
)

// NewRunRecord flattens a result into its header row
func NewRunRecord(res *backtest.Result) (RunRecord, error) {
	summary, err := json.Marshal(res)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to marshal run summary: %w", err)
	}
	rec := RunRecord{
		ID:          res.RunID,
		Name:        res.Name,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Days:        len(res.Records),
		FinalEquity: res.KPI.FinalEquity,
		Sharpe:      res.KPI.Sharpe,
		MaxDrawdown: res.KPI.MaxDrawdown,
		Transitions: res.Regimes.Transitions,
		Summary:     summary,
	}
	if res.Quality != nil {
		rec.DataGaps = res.Quality.Gaps
	}
	return rec, nil
}

// NewDayRecords converts simulated days for storage
func NewDayRecords(runID string, records []backtest.DailyRecord) []DayRecord {
	out := make([]DayRecord, len(records))
	for i, r := range records {
		out[i] = DayRecord{
			RunID:   runID,
			Date:    r.Date,
			Regime:  r.Regime,
			Gross:   r.TotalGross,
			PnL:     r.PnL,
			Cost:    r.Cost,
			Funding: r.Funding,
			RLSNet:  r.RLSNet,
			Equity:  r.Equity,
		}
	}
	return out
}
