package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/basisrun/internal/errs"
	applog "github.com/sawpanic/basisrun/internal/log"
	"github.com/sawpanic/basisrun/internal/regime"
	"github.com/sawpanic/basisrun/internal/sizing"
)

// Config is the backtest section of the run config
type Config struct {
	Name                    string    `yaml:"name" json:"name" default:"basis"`
	RebalanceEveryDays      int       `yaml:"rebalance_every_days" json:"rebalance_every_days" default:"1" validate:"gte=1"`
	RebalanceOnRegimeChange bool      `yaml:"rebalance_on_regime_change" json:"rebalance_on_regime_change"`
	Cost                    CostModel `yaml:"cost" json:"cost"`
}

// Validate checks the few fields struct tags cannot
func (c Config) Validate() error {
	if c.RebalanceEveryDays < 1 {
		return errs.Config("backtest.rebalance_every_days", "must be at least 1")
	}
	if c.Cost.CostBps < 0 {
		return errs.Config("backtest.cost.cost_bps", "must be non-negative")
	}
	return nil
}

// Pipeline is everything a run needs besides data
type Pipeline struct {
	Weights  map[string]float64 `json:"weights"`
	Regime   regime.Config      `json:"regime"`
	Sizing   sizing.Config      `json:"sizing"`
	Majors   sizing.MajorModel  `json:"majors"`
	Backtest Config             `json:"backtest"`
}

// Validate runs every section's checks before any compute
func (p Pipeline) Validate() error {
	if err := regime.ValidateWeights(p.Weights); err != nil {
		return err
	}
	if err := p.Regime.Validate(); err != nil {
		return err
	}
	if err := p.Sizing.Validate(); err != nil {
		return err
	}
	if err := p.Majors.Validate(); err != nil {
		return err
	}
	return p.Backtest.Validate()
}

// Data is the materialised input for one run
type Data struct {
	Features  []regime.FeatureRow
	Snapshots []sizing.Snapshot
	Returns   *ReturnTable
	Funding   *FundingTable
}

// Result is the full output of a run
type Result struct {
	RunID       string            `json:"run_id"`
	Name        string            `json:"name"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Pipeline    Pipeline          `json:"pipeline"`
	KPI         KPI               `json:"kpi"`
	Regimes     regime.Summary    `json:"regimes"`
	Attribution []RegimeStat      `json:"attribution"`
	Quality     *DataQuality      `json:"data_quality"`
	Changes     []regime.Change   `json:"changes"`
	Days        []regime.Day      `json:"-"`
	Records     []DailyRecord     `json:"-"`
	Sizing      []SizingEvent     `json:"-"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
}

// SizingEvent is one rebalance
type SizingEvent struct {
	Date        time.Time          `json:"date"`
	Diagnostics sizing.Diagnostics `json:"diagnostics"`
}

// Recorder receives run metrics
type Recorder interface {
	ObserveRun(res *Result, elapsed time.Duration)
}

// Store persists completed runs
type Store interface {
	SaveRun(ctx context.Context, res *Result) error
}

// ArtifactWriter persists run artifacts and returns their paths by name
type ArtifactWriter interface {
	Write(res *Result) (map[string]string, error)
}

// Clock is injectable for tests
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using real time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// Runner executes the end-to-end pipeline:
// composite -> classify -> size -> simulate -> KPIs -> artifacts
type Runner struct {
	pipeline  Pipeline
	composite *regime.Composite
	writer    ArtifactWriter
	recorder  Recorder
	store     Store
	clock     Clock
	newID     func() string
}

// NewRunner validates the pipeline; nothing runs on an invalid configuration
func NewRunner(p Pipeline) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	composite, err := regime.NewComposite(p.Weights)
	if err != nil {
		return nil, err
	}
	return &Runner{
		pipeline:  p,
		composite: composite,
		clock:     RealClock{},
		newID:     func() string { return uuid.New().String() },
	}, nil
}

// SetWriter enables artifact output
func (r *Runner) SetWriter(w ArtifactWriter) { r.writer = w }

// SetRecorder enables metrics
func (r *Runner) SetRecorder(rec Recorder) { r.recorder = rec }

// SetStore enables persistence
func (r *Runner) SetStore(s Store) { r.store = s }

// SetClock sets the clock implementation (for testing)
func (r *Runner) SetClock(c Clock) { r.clock = c }

// Pipeline returns the validated configuration
func (r *Runner) Pipeline() Pipeline { return r.pipeline }

var runSteps = []string{"score", "classify", "size", "simulate", "summarize", "persist"}

// Run executes one backtest. A run is atomic: it either completes or fails.
func (r *Runner) Run(ctx context.Context, data Data) (*Result, error) {
	started := r.clock.Now()
	res := &Result{
		RunID:     r.newID(),
		Name:      r.pipeline.Backtest.Name,
		StartedAt: started,
		Pipeline:  r.pipeline,
		Quality:   NewDataQuality(),
	}
	steps := applog.NewStepLogger("backtest", runSteps)

	fail := func(err error) (*Result, error) {
		steps.Fail(err)
		return nil, err
	}

	if len(data.Features) == 0 {
		return fail(fmt.Errorf("no feature rows to classify"))
	}

	log.Info().
		Str("run_id", res.RunID).
		Str("name", res.Name).
		Int("days", len(data.Features)).
		Int("snapshots", len(data.Snapshots)).
		Msg("Starting backtest run")

	steps.StartStep("score")
	rows := append([]regime.FeatureRow(nil), data.Features...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	dates := make([]time.Time, len(rows))
	scores := make([]float64, len(rows))
	for i, row := range rows {
		dates[i] = row.Date
		score, missing := r.composite.Score(row)
		scores[i] = score
		for _, name := range missing {
			res.Quality.Record(errs.DataGapError{Kind: errs.GapFeature, Asset: name, Date: row.Date})
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	steps.StartStep("classify")
	days, changes, err := regime.Classify(r.pipeline.Regime, dates, scores)
	if err != nil {
		return fail(fmt.Errorf("failed to classify regimes: %w", err))
	}
	res.Days, res.Changes = days, changes
	res.Regimes = regime.Summarize(days)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	steps.StartStep("size")
	labels := make([]regime.Label, len(days))
	weights := make([]sizing.Weights, len(days))
	snaps := sortedSnapshots(data.Snapshots)
	held := sizing.ZeroWeights()
	var heldLabel regime.Label
	for i, d := range days {
		labels[i] = d.Label
		if r.rebalanceDue(i, days, heldLabel) {
			snap, _ := pointInTime(snaps, d.Date)
			w, diag := sizing.Size(d.Label, snap, r.pipeline.Majors, r.pipeline.Sizing)
			held, heldLabel = w, d.Label
			res.Sizing = append(res.Sizing, SizingEvent{Date: d.Date, Diagnostics: diag})
		}
		weights[i] = held
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	steps.StartStep("simulate")
	records, quality, err := Simulate(Inputs{
		Dates:   dates,
		Regimes: labels,
		Weights: weights,
		Returns: data.Returns,
		Funding: data.Funding,
	}, r.pipeline.Backtest.Cost)
	if err != nil {
		return fail(fmt.Errorf("failed to simulate: %w", err))
	}
	res.Records = records
	res.Quality.Merge(quality)

	steps.StartStep("summarize")
	res.KPI = Summarize(records)
	res.Attribution = Attribute(records)
	res.FinishedAt = r.clock.Now()

	steps.StartStep("persist")
	if r.writer != nil {
		paths, err := r.writer.Write(res)
		if err != nil {
			return fail(fmt.Errorf("failed to write artifacts: %w", err))
		}
		res.Artifacts = paths
	}
	if r.store != nil {
		if err := r.store.SaveRun(ctx, res); err != nil {
			return fail(fmt.Errorf("failed to store run %s: %w", res.RunID, err))
		}
	}
	if r.recorder != nil {
		r.recorder.ObserveRun(res, res.FinishedAt.Sub(started))
	}
	steps.Finish()

	log.Info().
		Str("run_id", res.RunID).
		Float64("final_equity", res.KPI.FinalEquity).
		Float64("sharpe", res.KPI.Sharpe).
		Float64("max_drawdown", res.KPI.MaxDrawdown).
		Int("transitions", res.Regimes.Transitions).
		Int("data_gaps", res.Quality.Gaps).
		Msg("Backtest run complete")

	return res, nil
}

// rebalanceDue sizes on the cadence, on any label change when configured, and
// always when the label allows less gross than the book was sized for
func (r *Runner) rebalanceDue(i int, days []regime.Day, heldLabel regime.Label) bool {
	if i%r.pipeline.Backtest.RebalanceEveryDays == 0 {
		return true
	}
	if r.pipeline.Sizing.Scale(days[i].Label) < r.pipeline.Sizing.Scale(heldLabel) {
		return true
	}
	return r.pipeline.Backtest.RebalanceOnRegimeChange && days[i].Label != days[i-1].Label
}

func sortedSnapshots(snaps []sizing.Snapshot) []sizing.Snapshot {
	out := append([]sizing.Snapshot(nil), snaps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// pointInTime returns the latest snapshot dated on or before t
func pointInTime(sorted []sizing.Snapshot, t time.Time) (sizing.Snapshot, bool) {
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i].Date.After(t) })
	if idx == 0 {
		return sizing.Snapshot{Date: t}, false
	}
	return sorted[idx-1], true
}
