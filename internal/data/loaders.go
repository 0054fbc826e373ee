package data

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/sawpanic/basisrun/internal/backtest"
	"github.com/sawpanic/basisrun/internal/funding"
	"github.com/sawpanic/basisrun/internal/regime"
	"github.com/sawpanic/basisrun/internal/sizing"
)

// LoadFunding reads asset_id,timestamp,rate rows
func LoadFunding(r io.Reader) ([]funding.Print, error) {
	t, err := readTable(r, "asset_id", "timestamp", "rate")
	if err != nil {
		return nil, err
	}
	prints := make([]funding.Print, 0, len(t.rows))
	for i, row := range t.rows {
		ts, err := ParseTimestamp(t.get(row, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		rate, ok, err := t.float(row, "rate")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		if !ok {
			continue
		}
		prints = append(prints, funding.Print{AssetID: t.get(row, "asset_id"), Timestamp: ts, Rate: rate})
	}
	return prints, nil
}

// LoadFeatures reads date,<feature>... rows. Blank cells are left out of the
// row so the composite counts them as missing.
func LoadFeatures(r io.Reader) ([]regime.FeatureRow, error) {
	t, err := readTable(r, "date")
	if err != nil {
		return nil, err
	}
	rows := make([]regime.FeatureRow, 0, len(t.rows))
	for i, rec := range t.rows {
		d, err := ParseDate(t.get(rec, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		fr := regime.FeatureRow{Date: d, Features: make(map[string]float64)}
		for _, col := range t.columns {
			if col == "date" || col == "composite_score" {
				continue
			}
			v, ok, err := t.float(rec, col)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+2, err)
			}
			if ok {
				fr.Features[col] = v
			}
		}
		rows = append(rows, fr)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

var universeColumns = []string{"date", "symbol", "market_cap", "realized_vol", "beta_btc", "beta_eth"}

// LoadUniverse reads one row per (date, symbol) and groups rows into snapshots
func LoadUniverse(r io.Reader) ([]sizing.Snapshot, error) {
	t, err := readTable(r, universeColumns...)
	if err != nil {
		return nil, err
	}
	byDate := make(map[time.Time]*sizing.Snapshot)
	for i, row := range t.rows {
		d, err := ParseDate(t.get(row, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		a := sizing.AssetInfo{Symbol: t.get(row, "symbol")}
		// blank sizes rank last; blank vol, beta or momentum excludes the
		// asset from any selection that needs it
		fields := []struct {
			col     string
			dst     *float64
			missing float64
		}{
			{"market_cap", &a.MarketCap, 0},
			{"volume_7d_median", &a.Volume7dMedian, 0},
			{"realized_vol", &a.RealizedVol, math.NaN()},
			{"beta_btc", &a.BetaBTC, math.NaN()},
			{"beta_eth", &a.BetaETH, math.NaN()},
			{"momentum_7d", &a.Momentum7d, math.NaN()},
		}
		for _, f := range fields {
			v, ok, err := t.float(row, f.col)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+2, err)
			}
			if !ok {
				v = f.missing
			}
			*f.dst = v
		}
		snap, ok := byDate[d]
		if !ok {
			snap = &sizing.Snapshot{Date: d}
			byDate[d] = snap
		}
		snap.Assets = append(snap.Assets, a)
	}

	out := make([]sizing.Snapshot, 0, len(byDate))
	for _, s := range byDate {
		sort.Slice(s.Assets, func(i, j int) bool { return s.Assets[i].Symbol < s.Assets[j].Symbol })
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// LoadReturns reads date,asset_id,simple_return rows. Blank returns stay absent.
func LoadReturns(r io.Reader) (*backtest.ReturnTable, error) {
	t, err := readTable(r, "date", "asset_id", "simple_return")
	if err != nil {
		return nil, err
	}
	out := backtest.NewTable()
	for i, row := range t.rows {
		d, err := ParseDate(t.get(row, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		v, ok, err := t.float(row, "simple_return")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		if ok {
			out.Set(d, t.get(row, "asset_id"), v)
		}
	}
	return out, nil
}

// DailyFunding sums prints into one rate per asset per UTC day
func DailyFunding(prints []funding.Print) *backtest.FundingTable {
	out := backtest.NewTable()
	for _, p := range prints {
		out.Add(p.Timestamp, p.AssetID, p.Rate)
	}
	return out
}

// Paths locate the four input tables
type Paths struct {
	Funding  string `yaml:"funding" json:"funding"`
	Features string `yaml:"features" json:"features" validate:"required"`
	Universe string `yaml:"universe" json:"universe" validate:"required"`
	Returns  string `yaml:"returns" json:"returns" validate:"required"`
}

// Load reads every configured table into backtest input. Funding is optional.
func Load(p Paths) (backtest.Data, error) {
	var (
		d      backtest.Data
		prints []funding.Print
	)
	if err := openFile(p.Features, func(r io.Reader) (err error) {
		d.Features, err = LoadFeatures(r)
		return err
	}); err != nil {
		return d, err
	}
	if err := openFile(p.Universe, func(r io.Reader) (err error) {
		d.Snapshots, err = LoadUniverse(r)
		return err
	}); err != nil {
		return d, err
	}
	if err := openFile(p.Returns, func(r io.Reader) (err error) {
		d.Returns, err = LoadReturns(r)
		return err
	}); err != nil {
		return d, err
	}
	if p.Funding != "" {
		if err := openFile(p.Funding, func(r io.Reader) (err error) {
			prints, err = LoadFunding(r)
			return err
		}); err != nil {
			return d, err
		}
	}
	d.Funding = DailyFunding(prints)
	return d, nil
}

// LoadFundingFile reads a funding CSV from disk
func LoadFundingFile(path string) ([]funding.Print, error) {
	var prints []funding.Print
	err := openFile(path, func(r io.Reader) (err error) {
		prints, err = LoadFunding(r)
		return err
	})
	return prints, err
}
