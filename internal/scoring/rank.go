package scoring

import (
	"math"
	"sort"
)

// Ranked is a candidate with its ranking value and competition rank (1 = best)
type Ranked struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
	Rank   int     `json:"rank"`
}

// RankByAPR ranks candidates by APR, highest first
func RankByAPR(cands []Candidate) []Ranked {
	values := make([]float64, len(cands))
	for i, c := range cands {
		values[i] = c.APR
	}
	return rankDescending(cands, values)
}

// RankByQuality ranks candidates by QualityScore, highest first
func RankByQuality(cands []Candidate, w Weights) []Ranked {
	return rankDescending(cands, QualityScore(cands, w))
}

// rankDescending applies "min" tie-breaking: tied values share the lowest rank,
// i.e. rank = 1 + number of strictly better entries. NaN ranks last.
func rankDescending(cands []Candidate, values []float64) []Ranked {
	keyed := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = math.Inf(-1)
		}
		keyed[i] = v
	}

	out := make([]Ranked, len(cands))
	for i, c := range cands {
		better := 0
		for j := range keyed {
			if keyed[j] > keyed[i] {
				better++
			}
		}
		out[i] = Ranked{Symbol: c.Symbol, Value: values[i], Rank: better + 1}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
