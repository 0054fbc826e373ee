package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/sawpanic/basisrun/internal/errs"
	"github.com/sawpanic/basisrun/internal/regime"
	"github.com/sawpanic/basisrun/internal/sizing"
)

// Simulator folds days in order, carrying equity and yesterday's book
type Simulator struct {
	cost    CostModel
	returns *ReturnTable
	funding *FundingTable
	quality *DataQuality

	started bool
	equity  float64
	prev    sizing.Weights
}

// NewSimulator creates a simulator over materialised return and funding tables
func NewSimulator(returns *ReturnTable, funding *FundingTable, cost CostModel) *Simulator {
	return &Simulator{
		cost:    cost,
		returns: returns,
		funding: funding,
		quality: NewDataQuality(),
		equity:  1.0,
		prev:    sizing.ZeroWeights(),
	}
}

// Quality returns the gaps counted so far
func (s *Simulator) Quality() *DataQuality {
	return s.quality
}

// Equity is the current equity level
func (s *Simulator) Equity() float64 {
	return s.equity
}

// Step advances one day. P&L and funding accrue on yesterday's book; w is
// the book held from today. The first call opens the book at equity 1.0.
func (s *Simulator) Step(date time.Time, label regime.Label, w sizing.Weights) DailyRecord {
	rec := DailyRecord{
		Date:       date,
		Regime:     label.String(),
		AltGross:   w.AltGross(),
		MajorGross: w.MajorGross(),
	}
	rec.TotalGross = rec.AltGross + rec.MajorGross

	if !s.started {
		s.started = true
		s.equity = 1.0
		s.prev = clone(w)
		rec.Equity = s.equity
		return rec
	}

	for _, asset := range s.prev.Assets() {
		held := s.prev.Get(asset)
		if held == 0 {
			continue
		}
		ret, ok := s.returns.Get(date, asset)
		if !ok || math.IsNaN(ret) {
			s.quality.Record(errs.DataGapError{Kind: errs.GapReturn, Asset: asset, Date: date})
			continue
		}
		rec.PnL += held * ret
	}

	for _, asset := range sortedSymbols(s.prev.Alts) {
		held := s.prev.Alts[asset]
		if held == 0 {
			continue
		}
		rate, ok := s.funding.Get(date, asset)
		if !ok || math.IsNaN(rate) {
			s.quality.Record(errs.DataGapError{Kind: errs.GapFunding, Asset: asset, Date: date})
			continue
		}
		rec.Funding += held * rate
	}

	rec.AltTurnover = turnover(s.prev.Alts, w.Alts)
	rec.MajorTurnover = turnover(s.prev.Majors, w.Majors)
	rec.Cost = (rec.AltTurnover + rec.MajorTurnover) * s.cost.CostBps / 1e4

	rec.RLSNet = rec.PnL - rec.Cost - rec.Funding
	s.equity = s.equity * (1 + rec.RLSNet)
	rec.Equity = s.equity

	s.prev = clone(w)
	return rec
}

// Simulate runs a fresh simulator over aligned inputs
func Simulate(in Inputs, cost CostModel) ([]DailyRecord, *DataQuality, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	sim := NewSimulator(in.Returns, in.Funding, cost)
	records := make([]DailyRecord, len(in.Dates))
	for i, d := range in.Dates {
		records[i] = sim.Step(d, in.Regimes[i], in.Weights[i])
	}
	return records, sim.Quality(), nil
}

func turnover(prev, next map[string]float64) float64 {
	seen := make(map[string]struct{}, len(prev)+len(next))
	for s := range prev {
		seen[s] = struct{}{}
	}
	for s := range next {
		seen[s] = struct{}{}
	}
	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	total := 0.0
	for _, s := range symbols {
		total += math.Abs(next[s] - prev[s])
	}
	return total
}

func sortedSymbols(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func clone(w sizing.Weights) sizing.Weights {
	out := sizing.ZeroWeights()
	for s, v := range w.Alts {
		out.Alts[s] = v
	}
	for s, v := range w.Majors {
		out.Majors[s] = v
	}
	return out
}
