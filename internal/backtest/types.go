// Package backtest simulates a daily-rebalanced majors-vs-alts book and
// reports its performance.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/sawpanic/basisrun/internal/regime"
	"github.com/sawpanic/basisrun/internal/sizing"
)

const dateLayout = "2006-01-02"

// DailyRecord is one simulated day. RLSNet = PnL - Cost - Funding.
type DailyRecord struct {
	Date          time.Time `json:"date"`
	Regime        string    `json:"regime"`
	AltGross      float64   `json:"alt_gross"`
	MajorGross    float64   `json:"major_gross"`
	TotalGross    float64   `json:"total_gross"`
	AltTurnover   float64   `json:"alt_turnover"`
	MajorTurnover float64   `json:"major_turnover"`
	PnL           float64   `json:"pnl"`
	Cost          float64   `json:"cost"`
	Funding       float64   `json:"funding"`
	RLSNet        float64   `json:"rls_net"`
	Equity        float64   `json:"equity"`
}

// CostModel charges a flat rate on traded notional
type CostModel struct {
	CostBps float64 `yaml:"cost_bps" json:"cost_bps" default:"10" validate:"gte=0"`
}

// Table is a per-day, per-asset value table keyed by calendar date
type Table struct {
	values map[string]map[string]float64
}

// ReturnTable holds simple daily returns per asset
type ReturnTable = Table

// FundingTable holds the daily funding rate per alt
type FundingTable = Table

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{values: make(map[string]map[string]float64)}
}

func dayKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Set stores a value, replacing any existing one
func (t *Table) Set(date time.Time, asset string, v float64) {
	k := dayKey(date)
	row, ok := t.values[k]
	if !ok {
		row = make(map[string]float64)
		t.values[k] = row
	}
	row[asset] = v
}

// Add accumulates into a cell, e.g. summing intraday funding prints
func (t *Table) Add(date time.Time, asset string, v float64) {
	k := dayKey(date)
	row, ok := t.values[k]
	if !ok {
		row = make(map[string]float64)
		t.values[k] = row
	}
	row[asset] += v
}

// Get looks up a value; nil tables always miss
func (t *Table) Get(date time.Time, asset string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	row, ok := t.values[dayKey(date)]
	if !ok {
		return 0, false
	}
	v, ok := row[asset]
	return v, ok
}

// Dates returns every date with at least one value, ascending
func (t *Table) Dates() []time.Time {
	if t == nil {
		return nil
	}
	out := make([]time.Time, 0, len(t.values))
	for k := range t.values {
		d, err := time.Parse(dateLayout, k)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Len is the number of stored cells
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, row := range t.values {
		n += len(row)
	}
	return n
}

// Inputs are aligned by index: Weights[i] is the book held from Dates[i]
// into Dates[i+1]
type Inputs struct {
	Dates   []time.Time
	Regimes []regime.Label
	Weights []sizing.Weights
	Returns *ReturnTable
	Funding *FundingTable
}

// Validate checks alignment and date order
func (in Inputs) Validate() error {
	if len(in.Regimes) != len(in.Dates) || len(in.Weights) != len(in.Dates) {
		return fmt.Errorf("inputs are misaligned: %d dates, %d regimes, %d weights",
			len(in.Dates), len(in.Regimes), len(in.Weights))
	}
	for i := 1; i < len(in.Dates); i++ {
		if !in.Dates[i].After(in.Dates[i-1]) {
			return fmt.Errorf("dates must be strictly increasing at index %d (%s)", i, in.Dates[i].Format(dateLayout))
		}
	}
	return nil
}
