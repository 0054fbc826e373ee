package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/basisrun/internal/errs"
	"github.com/sawpanic/basisrun/internal/regime"
	"github.com/sawpanic/basisrun/internal/sizing"
)

// MockClock returns a fixed time
type MockClock struct {
	fixedTime time.Time
}

func (m *MockClock) Now() time.Time {
	return m.fixedTime
}

func testPipeline() Pipeline {
	rc := regime.DefaultConfig()
	rc.MinDurationDays = 0

	sc := sizing.DefaultConfig()
	sc.PerNameCap = 0.3
	sc.InverseVol = false

	return Pipeline{
		Weights:  map[string]float64{"btc_dominance": 0.5, "funding_skew": 0.5},
		Regime:   rc,
		Sizing:   sc,
		Majors:   sizing.DefaultMajorModel(),
		Backtest: Config{Name: "test", RebalanceEveryDays: 1, Cost: CostModel{CostBps: 10}},
	}
}

func testData() Data {
	scores := []float64{0.0, 0.9, 0.9, 0.9, 0.4, -0.9}
	var features []regime.FeatureRow
	returns, funding := NewTable(), NewTable()
	for i, s := range scores {
		features = append(features, regime.FeatureRow{
			Date:     day(i),
			Features: map[string]float64{"btc_dominance": s, "funding_skew": s},
		})
		for _, a := range []string{"SOL", "AVAX", "BTC", "ETH"} {
			returns.Set(day(i), a, 0.001*float64(i%3))
		}
		funding.Set(day(i), "SOL", 0.0002)
		funding.Set(day(i), "AVAX", 0.0001)
	}
	snap := sizing.Snapshot{Date: day(0), Assets: []sizing.AssetInfo{
		{Symbol: "SOL", MarketCap: 2, RealizedVol: 0.6, BetaBTC: 1.1, BetaETH: 0.2},
		{Symbol: "AVAX", MarketCap: 1, RealizedVol: 0.7, BetaBTC: 0.9, BetaETH: 0.3},
	}}
	lookahead := sizing.Snapshot{Date: day(10), Assets: []sizing.AssetInfo{{Symbol: "FUTURE", MarketCap: 100, RealizedVol: 1}}}
	return Data{
		Features:  features,
		Snapshots: []sizing.Snapshot{lookahead, snap},
		Returns:   returns,
		Funding:   funding,
	}
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeRecorder) ObserveRun(res *Result, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, res.RunID)
}

type fakeStore struct {
	err   error
	saved []*Result
}

func (f *fakeStore) SaveRun(_ context.Context, res *Result) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, res)
	return nil
}

func newTestRunner(t *testing.T, p Pipeline) *Runner {
	t.Helper()
	r, err := NewRunner(p)
	require.NoError(t, err)
	r.SetClock(&MockClock{fixedTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)})
	r.newID = func() string { return "run-1" }
	return r
}

func TestRunner_EndToEnd(t *testing.T) {
	r := newTestRunner(t, testPipeline())
	rec := &fakeRecorder{}
	store := &fakeStore{}
	r.SetRecorder(rec)
	r.SetStore(store)

	res, err := r.Run(context.Background(), testData())
	require.NoError(t, err)

	require.Len(t, res.Records, 6)
	assert.Equal(t, 1.0, res.Records[0].Equity)
	assert.Equal(t, "BALANCED", res.Records[0].Regime)
	assert.Equal(t, "STRONG_RISK_ON_MAJORS", res.Records[1].Regime)
	assert.Equal(t, "STRONG_RISK_OFF_MAJORS", res.Records[5].Regime)
	assert.Zero(t, res.Records[0].TotalGross)
	assert.InDelta(t, 1.0, res.Records[1].TotalGross, 1e-9)
	assert.Zero(t, res.Records[5].TotalGross, "risk-off majors does not trade")

	for _, ev := range res.Sizing {
		assert.NotContains(t, ev.Diagnostics.Selected, "FUTURE")
		assert.InDelta(t, 0, ev.Diagnostics.NetBetaBTC, 1e-9)
	}
	for _, d := range res.Records {
		assert.Equal(t, d.PnL-d.Cost-d.Funding, d.RLSNet)
	}

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 5, res.KPI.NDays)
	assert.Equal(t, []string{"run-1"}, rec.runs)
	require.Len(t, store.saved, 1)
	assert.NotEmpty(t, res.Changes)
}

func TestRunner_RebalanceCadenceHoldsWeights(t *testing.T) {
	p := testPipeline()
	p.Backtest.RebalanceEveryDays = 3
	r := newTestRunner(t, p)

	res, err := r.Run(context.Background(), testData())
	require.NoError(t, err)

	// sized on days 0 and 3 by cadence; the day 0 book is flat and held through
	// day 2. Days 4 and 5 step down in scale and are re-sized off cadence.
	require.Len(t, res.Sizing, 4)
	assert.Zero(t, res.Records[1].TotalGross)
	assert.Zero(t, res.Records[2].TotalGross)
	assert.InDelta(t, 1.0, res.Records[3].TotalGross, 1e-9)
	assert.InDelta(t, 0.6, res.Records[4].TotalGross, 1e-9)
	assert.Zero(t, res.Records[5].TotalGross)

	p.Backtest.RebalanceOnRegimeChange = true
	r = newTestRunner(t, p)
	res, err = r.Run(context.Background(), testData())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Records[1].TotalGross, 1e-9)
	assert.Zero(t, res.Records[5].TotalGross)
}

func TestRunner_DeEscalationCutsExposureOffCadence(t *testing.T) {
	p := testPipeline()
	p.Regime.States = 3
	p.Backtest.RebalanceEveryDays = 5

	data := testData()
	for i, s := range []float64{0.9, 0.9, -0.9, -0.9, -0.9, -0.9} {
		data.Features[i].Features = map[string]float64{"btc_dominance": s, "funding_skew": s}
	}

	res, err := newTestRunner(t, p).Run(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, regime.RiskOnMajors.String(), res.Records[1].Regime)
	assert.InDelta(t, 0.6, res.Records[1].TotalGross, 1e-9)
	assert.Equal(t, regime.RiskOffMajors.String(), res.Records[2].Regime)
	for _, rec := range res.Records[2:] {
		assert.Zero(t, rec.TotalGross, rec.Date)
	}
	require.Len(t, res.Sizing, 3, "day 0, the day 2 cut and the day 5 cadence")
	assert.Equal(t, day(2), res.Sizing[1].Date)
}

func TestRunner_MissingFeaturesAreCounted(t *testing.T) {
	data := testData()
	delete(data.Features[2].Features, "funding_skew")

	res, err := newTestRunner(t, testPipeline()).Run(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Quality.ByKind[errs.GapFeature])
	assert.Equal(t, 1, res.Quality.ByAsset["funding_skew"])
}

func TestNewRunner_RejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Pipeline)
	}{
		{"weights", func(p *Pipeline) { p.Weights = map[string]float64{"a": 0.7} }},
		{"thresholds", func(p *Pipeline) { p.Regime.Low = 1 }},
		{"sizing", func(p *Pipeline) { p.Sizing.TargetGross = 0 }},
		{"majors", func(p *Pipeline) { p.Majors.ETH.Symbol = "BTC" }},
		{"rebalance", func(p *Pipeline) { p.Backtest.RebalanceEveryDays = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPipeline()
			tt.mutate(&p)
			_, err := NewRunner(p)
			assert.True(t, errs.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestRunner_Failures(t *testing.T) {
	r := newTestRunner(t, testPipeline())
	_, err := r.Run(context.Background(), Data{})
	assert.Error(t, err)

	r.SetStore(&fakeStore{err: errors.New("connection refused")})
	_, err = r.Run(context.Background(), testData())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestRunner(t, testPipeline()).Run(ctx, testData())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPointInTime(t *testing.T) {
	snaps := sortedSnapshots([]sizing.Snapshot{{Date: day(5)}, {Date: day(0)}, {Date: day(3)}})

	s, ok := pointInTime(snaps, day(4))
	require.True(t, ok)
	assert.Equal(t, day(3), s.Date)

	s, ok = pointInTime(snaps, day(3))
	require.True(t, ok)
	assert.Equal(t, day(3), s.Date)

	_, ok = pointInTime(snaps, day(-1))
	assert.False(t, ok)
}

func TestWriter_ArtifactsAndCompare(t *testing.T) {
	dir := t.TempDir()
	r := newTestRunner(t, testPipeline())
	r.SetWriter(NewWriter(dir))

	res, err := r.Run(context.Background(), testData())
	require.NoError(t, err)

	for _, name := range []string{DailyCSVFile, DailyJSONLFile, SummaryFile, ReportFile} {
		assert.FileExists(t, filepath.Join(dir, "run-1", name))
		assert.Equal(t, filepath.Join(dir, "run-1", name), res.Artifacts[name])
	}

	csvData, err := os.ReadFile(res.Artifacts[DailyCSVFile])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	assert.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "date,regime,alt_gross"))

	jsonl, err := os.ReadFile(res.Artifacts[DailyJSONLFile])
	require.NoError(t, err)
	var first DailyRecord
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(string(jsonl), "\n", 2)[0]), &first))
	assert.Equal(t, 1.0, first.Equity)

	report, err := os.ReadFile(res.Artifacts[ReportFile])
	require.NoError(t, err)
	assert.Contains(t, string(report), "## Regime Attribution")

	a, err := LoadSummary(res.Artifacts[SummaryFile])
	require.NoError(t, err)
	assert.Equal(t, res.KPI, a.KPI)

	b := *a
	b.KPI.Sharpe += 0.5
	deltas := DiffSummaries(*a, b)
	require.NotEmpty(t, deltas)
	for _, d := range deltas {
		if d.Name == "sharpe" {
			assert.InDelta(t, 0.5, d.Delta, 1e-12)
		} else {
			assert.Zero(t, d.Delta, d.Name)
		}
	}

	_, err = LoadSummary(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	variants := Grid([]int{1, 2}, []float64{5, 20})
	require.Len(t, variants, 4)
	assert.Equal(t, "basket1_cost5", variants[0].Name)
	assert.Equal(t, "basket2_cost20", variants[3].Name)

	rec := &fakeRecorder{}
	results, err := Sweep(context.Background(), testPipeline(), testData(), variants, SweepOptions{Workers: 2, Recorder: rec})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, sr := range results {
		assert.Equal(t, variants[i].Name, sr.Variant.Name)
		assert.Equal(t, "test_"+variants[i].Name, sr.Result.Name)
		assert.Equal(t, variants[i].BasketSize, sr.Result.Pipeline.Sizing.BasketSize)
	}
	assert.Len(t, rec.runs, 4)

	// higher costs never help with identical books
	assert.GreaterOrEqual(t, results[0].Result.KPI.FinalEquity, results[1].Result.KPI.FinalEquity)

	bad := []Variant{{Name: "broken", BasketSize: -1}}
	_, err = Sweep(context.Background(), testPipeline(), testData(), append(bad, Variant{Name: "ok"}), SweepOptions{})
	assert.NoError(t, err, "non-positive overrides keep the base value")
}
