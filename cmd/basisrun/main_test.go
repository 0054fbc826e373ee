package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/basisrun/internal/backtest"
	"github.com/sawpanic/basisrun/internal/scoring"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"backtest", "sweep", "funding", "compare", "monitor"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	cfg := root.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "basisrun.yaml", cfg.DefValue)
	assert.Equal(t, "c", cfg.Shorthand)
}

func TestCompareRequiresTwoArgs(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"compare", "only-one"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestPrintKPI(t *testing.T) {
	res := &backtest.Result{
		RunID: "abc123",
		Name:  "base",
		KPI: backtest.KPI{
			TotalReturn: 0.0125,
			Sharpe:      1.5,
			FinalEquity: 1.0125,
			NDays:       10,
		},
		Quality: &backtest.DataQuality{Gaps: 3},
	}

	var buf bytes.Buffer
	printKPI(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "base (abc123)")
	assert.Contains(t, out, "1.2500%")
	assert.Contains(t, out, "1.500")
	assert.Contains(t, out, "1.012500")
	assert.Contains(t, out, "data gaps")
}

func TestSummaryPath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, backtest.SummaryFile), summaryPath(dir))

	file := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	assert.Equal(t, file, summaryPath(file))
}

func TestPrintDiff(t *testing.T) {
	a := backtest.Summary{RunID: "a1", KPI: backtest.KPI{Sharpe: 1.0}}
	b := backtest.Summary{RunID: "b1", Name: "wide", KPI: backtest.KPI{Sharpe: 1.25}}

	var buf bytes.Buffer
	printDiff(&buf, a, b)
	out := buf.String()

	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "wide")
	assert.Contains(t, out, "0.250000")
}

func TestPrintRankingTop(t *testing.T) {
	ranked := []scoring.Ranked{
		{Symbol: "SOL", Value: 12.5, Rank: 1},
		{Symbol: "DOGE", Value: math.NaN(), Rank: 2},
	}

	var buf bytes.Buffer
	printRanking(&buf, "APR 30d", ranked, 1)
	assert.Contains(t, buf.String(), "SOL")
	assert.NotContains(t, buf.String(), "DOGE")

	buf.Reset()
	printRanking(&buf, "APR 30d", ranked, 0)
	assert.Contains(t, buf.String(), "DOGE")
}

func TestNum(t *testing.T) {
	assert.Equal(t, "-", num(math.NaN(), 2))
	assert.Equal(t, "-", num(math.Inf(1), 2))
	assert.Equal(t, "0.12", num(0.1234, 2))
}
