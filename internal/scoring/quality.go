// Package scoring ranks carry candidates by raw APR and by a penalised quality score
package scoring

import (
	"math"
	"sort"

	"github.com/sawpanic/basisrun/internal/funding"
)

const (
	aprClip       = 100.0
	stdevNormClip = 2.0
	penaltyScale  = 0.33
	stdevQuantile = 0.90
)

// Candidate is one asset's scoring input. APR is in percent.
type Candidate struct {
	Symbol     string  `json:"symbol"`
	APR        float64 `json:"apr"`
	NegFrac    float64 `json:"neg_frac"`
	Stdev      float64 `json:"stdev"`
	Top10Share float64 `json:"top10_share"`
}

// Weights scale the three quality penalties
type Weights struct {
	NegFrac    float64 `yaml:"neg_frac" default:"1.0" validate:"gte=0"`
	Stdev      float64 `yaml:"stdev" default:"1.0" validate:"gte=0"`
	Top10Share float64 `yaml:"top10_share" default:"1.0" validate:"gte=0"`
}

// DefaultWeights weighs every penalty equally
func DefaultWeights() Weights {
	return Weights{NegFrac: 1, Stdev: 1, Top10Share: 1}
}

// FromMetrics builds a candidate from a funding window, converting APR to percent
func FromMetrics(symbol string, m funding.MetricWindow) Candidate {
	return Candidate{
		Symbol:     symbol,
		APR:        m.APRSimple * 100,
		NegFrac:    m.NegFrac,
		Stdev:      m.Stdev,
		Top10Share: m.Top10Share,
	}
}

// QualityScore returns one score per candidate, in input order.
//
// Missing inputs are replaced by their least favourable value before scoring
// so incomplete candidates rank last instead of propagating NaN.
func QualityScore(cands []Candidate, w Weights) []float64 {
	scores := make([]float64, len(cands))
	if len(cands) == 0 {
		return scores
	}

	stdevs := make([]float64, len(cands))
	finite := make([]float64, 0, len(cands))
	for i, c := range cands {
		s := c.Stdev
		if math.IsNaN(s) {
			s = math.Inf(1)
		}
		stdevs[i] = s
		if !math.IsInf(s, 0) {
			finite = append(finite, s)
		}
	}
	p90 := quantile(finite, stdevQuantile)

	for i, c := range cands {
		apr := c.APR
		if math.IsNaN(apr) {
			apr = math.Inf(-1)
		}
		aprScaled := clip(apr, -aprClip, aprClip) / aprClip

		neg := c.NegFrac
		if math.IsNaN(neg) {
			neg = 1
		}
		top := c.Top10Share
		if math.IsNaN(top) {
			top = 1
		}

		scores[i] = aprScaled -
			penaltyScale*w.NegFrac*neg -
			penaltyScale*w.Stdev*normaliseStdev(stdevs[i], p90) -
			penaltyScale*w.Top10Share*top
	}

	return scores
}

func normaliseStdev(s, p90 float64) float64 {
	if math.IsInf(s, 1) {
		return stdevNormClip
	}
	if math.IsNaN(p90) || p90 <= 0 {
		return 0
	}
	return clip(s/p90, 0, stdevNormClip)
}

// quantile uses linear interpolation between closest ranks; NaN when values is empty
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
