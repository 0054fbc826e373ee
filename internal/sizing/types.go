// Package sizing turns a regime label and an alt universe snapshot into
// exposure-neutral long-majors / short-alts target weights.
package sizing

import (
	"math"
	"sort"
	"time"
)

// AssetInfo is one alt in a point-in-time universe snapshot
type AssetInfo struct {
	Symbol         string  `json:"symbol"`
	MarketCap      float64 `json:"market_cap"`
	Volume7dMedian float64 `json:"volume_7d_median"`
	RealizedVol    float64 `json:"realized_vol"`
	BetaBTC        float64 `json:"beta_btc"`
	BetaETH        float64 `json:"beta_eth"`
	Momentum7d     float64 `json:"momentum_7d"`
}

// Snapshot is read-only; it may only contain data known at Date
type Snapshot struct {
	Date   time.Time   `json:"date"`
	Assets []AssetInfo `json:"assets"`
}

// Major describes one long leg and its betas to the two factors
type Major struct {
	Symbol    string  `yaml:"symbol" json:"symbol"`
	BetaBTC   float64 `yaml:"beta_btc" json:"beta_btc"`
	BetaETH   float64 `yaml:"beta_eth" json:"beta_eth"`
	MarketCap float64 `yaml:"market_cap" json:"market_cap"`
}

// MajorModel is the two-major beta model used for neutrality
type MajorModel struct {
	BTC Major `yaml:"btc" json:"btc"`
	ETH Major `yaml:"eth" json:"eth"`
}

// DefaultMajorModel has identity betas: each major is its own factor
func DefaultMajorModel() MajorModel {
	return MajorModel{
		BTC: Major{Symbol: "BTC", BetaBTC: 1},
		ETH: Major{Symbol: "ETH", BetaETH: 1},
	}
}

func (m MajorModel) determinant() float64 {
	return m.BTC.BetaBTC*m.ETH.BetaETH - m.ETH.BetaBTC*m.BTC.BetaETH
}

// Weights hold signed target weights: alts negative, majors positive
type Weights struct {
	Alts   map[string]float64 `json:"alts"`
	Majors map[string]float64 `json:"majors"`
}

// ZeroWeights is the flat book
func ZeroWeights() Weights {
	return Weights{Alts: map[string]float64{}, Majors: map[string]float64{}}
}

// AltGross is Σ|alt|
func (w Weights) AltGross() float64 { return grossOf(w.Alts) }

// MajorGross is Σ|major|
func (w Weights) MajorGross() float64 { return grossOf(w.Majors) }

// Gross is the total absolute exposure
func (w Weights) Gross() float64 { return w.AltGross() + w.MajorGross() }

// Net is the signed dollar exposure
func (w Weights) Net() float64 { return sumOf(w.Alts) + sumOf(w.Majors) }

// Assets returns every symbol with a weight, sorted and unique
func (w Weights) Assets() []string {
	out := make([]string, 0, len(w.Alts)+len(w.Majors))
	for s := range w.Alts {
		out = append(out, s)
	}
	for s := range w.Majors {
		if _, ok := w.Alts[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns the net weight of a symbol across both legs
func (w Weights) Get(symbol string) float64 {
	return w.Alts[symbol] + w.Majors[symbol]
}

func (w Weights) scale(f float64) {
	for s := range w.Alts {
		w.Alts[s] *= f
	}
	for s := range w.Majors {
		w.Majors[s] *= f
	}
}

// Diagnostics describe how a weight vector was produced
type Diagnostics struct {
	Label      string   `json:"label"`
	Ceiling    float64  `json:"ceiling"`
	NetDollar  float64  `json:"net_dollar"`
	NetBetaBTC float64  `json:"net_beta_btc"`
	NetBetaETH float64  `json:"net_beta_eth"`
	Selected   []string `json:"selected"`
	Rescaled   bool     `json:"rescaled"`
	Clipped    bool     `json:"clipped"`
}

func grossOf(m map[string]float64) float64 {
	g := 0.0
	for _, k := range sortedKeys(m) {
		g += math.Abs(m[k])
	}
	return g
}

func sumOf(m map[string]float64) float64 {
	s := 0.0
	for _, k := range sortedKeys(m) {
		s += m[k]
	}
	return s
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
