package backtest

import (
	"sort"

	"github.com/sawpanic/basisrun/internal/errs"
)

const maxGapSamples = 50

// DataQuality counts recoverable input gaps. Gaps never abort a run.
type DataQuality struct {
	Gaps    int                  `json:"gaps"`
	ByKind  map[errs.GapKind]int `json:"by_kind"`
	ByAsset map[string]int       `json:"by_asset"`
	Samples []errs.DataGapError  `json:"samples,omitempty"`
}

// NewDataQuality creates an empty counter
func NewDataQuality() *DataQuality {
	return &DataQuality{
		ByKind:  make(map[errs.GapKind]int),
		ByAsset: make(map[string]int),
	}
}

// Record counts one gap and keeps the first few as samples
func (q *DataQuality) Record(gap errs.DataGapError) {
	q.Gaps++
	q.ByKind[gap.Kind]++
	q.ByAsset[gap.Asset]++
	if len(q.Samples) < maxGapSamples {
		q.Samples = append(q.Samples, gap)
	}
}

// Merge folds another counter into q
func (q *DataQuality) Merge(other *DataQuality) {
	if other == nil {
		return
	}
	q.Gaps += other.Gaps
	for k, n := range other.ByKind {
		q.ByKind[k] += n
	}
	for a, n := range other.ByAsset {
		q.ByAsset[a] += n
	}
	for _, s := range other.Samples {
		if len(q.Samples) >= maxGapSamples {
			break
		}
		q.Samples = append(q.Samples, s)
	}
}

// WorstAssets returns up to n assets with the most gaps
func (q *DataQuality) WorstAssets(n int) []string {
	assets := make([]string, 0, len(q.ByAsset))
	for a := range q.ByAsset {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool {
		if q.ByAsset[assets[i]] != q.ByAsset[assets[j]] {
			return q.ByAsset[assets[i]] > q.ByAsset[assets[j]]
		}
		return assets[i] < assets[j]
	})
	if len(assets) > n {
		assets = assets[:n]
	}
	return assets
}

func sortedKinds(m map[errs.GapKind]int) []errs.GapKind {
	out := make([]errs.GapKind, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
