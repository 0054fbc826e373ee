package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordsFromReturns(returns []float64) []DailyRecord {
	records := []DailyRecord{{Date: day(0), Regime: "BALANCED", Equity: 1.0}}
	equity := 1.0
	for i, r := range returns {
		equity *= 1 + r
		records = append(records, DailyRecord{Date: day(i + 1), Regime: "RISK_ON_MAJORS", RLSNet: r, PnL: r, Equity: equity})
	}
	return records
}

func TestSummarize_KnownSeries(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015}
	k := Summarize(recordsFromReturns(returns))

	mean := (0.01 - 0.02 + 0.015) / 3
	ss := 0.0
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 2)

	assert.Equal(t, 3, k.NDays)
	assert.InDelta(t, 1.01*0.98*1.015-1, k.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.01*0.98*1.015, 252.0/3)-1, k.CAGR, 1e-9)
	assert.InDelta(t, mean/std*math.Sqrt(252), k.Sharpe, 1e-9)
	assert.InDelta(t, std*math.Sqrt(252), k.Volatility, 1e-12)
	assert.InDelta(t, -0.02, k.MaxDrawdown, 1e-12)
	assert.InDelta(t, k.CAGR/0.02, k.Calmar, 1e-6)
	assert.InDelta(t, 2.0/3, k.HitRate, 1e-12)
	assert.Zero(t, k.Sortino, "one negative return has no sample dispersion")
}

func TestSummarize_Sortino(t *testing.T) {
	returns := []float64{0.02, -0.01, 0.01, -0.03}
	k := Summarize(recordsFromReturns(returns))

	mean := 0.0
	for _, r := range returns {
		mean += r / 4
	}
	dmean := (-0.01 - 0.03) / 2
	dstd := math.Sqrt(((-0.01-dmean)*(-0.01-dmean) + (-0.03-dmean)*(-0.03-dmean)) / 1)

	assert.InDelta(t, mean/dstd*math.Sqrt(252), k.Sortino, 1e-9)
}

func TestSummarize_ZeroVarianceIsFinite(t *testing.T) {
	k := Summarize(recordsFromReturns([]float64{0, 0, 0, 0}))

	assert.Equal(t, 0.0, k.Sharpe)
	assert.Equal(t, 0.0, k.Sortino)
	assert.Equal(t, 0.0, k.Calmar)
	assert.Equal(t, 0.0, k.MaxDrawdown)
	assert.Equal(t, 0.0, k.CAGR)
	assert.Equal(t, 1.0, k.FinalEquity)

	// constant positive drift still has zero variance
	k = Summarize(recordsFromReturns([]float64{0.001, 0.001, 0.001}))
	assert.Equal(t, 0.0, k.Sharpe)
	assert.False(t, math.IsInf(k.CAGR, 0))
}

func TestSummarize_Degenerate(t *testing.T) {
	k := Summarize(nil)
	assert.Equal(t, 1.0, k.FinalEquity)
	assert.Zero(t, k.NDays)

	k = Summarize(recordsFromReturns(nil))
	assert.Zero(t, k.NDays)
	assert.Zero(t, k.TotalReturn)

	k = Summarize(recordsFromReturns([]float64{-1.0, 0.5}))
	assert.Equal(t, -1.0, k.CAGR)
	assert.Equal(t, -1.0, k.MaxDrawdown)
}

func TestAttribute(t *testing.T) {
	records := recordsFromReturns([]float64{0.01, 0.02, -0.01})
	records[0].TotalGross = 0
	records[1].TotalGross = 1.0
	records[2].TotalGross = 0.5

	stats := Attribute(records)
	require.Len(t, stats, 2)

	// the opening day's regime earns the first return
	assert.Equal(t, RegimeStat{Regime: "BALANCED", Days: 1, SumReturn: 0.01, MeanReturn: 0.01, AvgGross: 0}, stats[0])
	assert.Equal(t, "RISK_ON_MAJORS", stats[1].Regime)
	assert.Equal(t, 2, stats[1].Days)
	assert.InDelta(t, 0.01, stats[1].SumReturn, 1e-12)
	assert.InDelta(t, 0.75, stats[1].AvgGross, 1e-12)
}
