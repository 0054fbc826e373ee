package funding

import (
	"sort"
	"time"
)

// WindowSnapshot is the "as of now" MetricWindow of one asset over one trailing window
type WindowSnapshot struct {
	AssetID    string       `json:"asset_id"`
	WindowDays int          `json:"window_days"`
	AsOf       time.Time    `json:"as_of"`
	Metrics    MetricWindow `json:"metrics"`
}

// ComputeMetricsForWindows computes one snapshot per requested trailing window,
// all anchored to the latest timestamp in prints. A print belongs to window w
// when asOf-w days <= ts <= asOf.
func ComputeMetricsForWindows(prints []Print, windows []int) []WindowSnapshot {
	snapshots := make([]WindowSnapshot, 0, len(windows))

	var asOf time.Time
	asset := ""
	for _, p := range prints {
		if p.Timestamp.After(asOf) {
			asOf = p.Timestamp
		}
		if asset == "" {
			asset = p.AssetID
		}
	}

	for _, w := range windows {
		start := asOf.Add(-time.Duration(w) * 24 * time.Hour)
		rates := make([]float64, 0, len(prints))
		for _, p := range prints {
			if !p.Timestamp.Before(start) && !p.Timestamp.After(asOf) {
				rates = append(rates, p.Rate)
			}
		}
		snapshots = append(snapshots, WindowSnapshot{
			AssetID:    asset,
			WindowDays: w,
			AsOf:       asOf,
			Metrics:    ComputeMetrics(rates, float64(w)),
		})
	}

	return snapshots
}

// GroupByAsset splits a mixed funding table into per-asset series ordered by time
func GroupByAsset(prints []Print) map[string][]Print {
	grouped := make(map[string][]Print)
	for _, p := range prints {
		grouped[p.AssetID] = append(grouped[p.AssetID], p)
	}
	for _, series := range grouped {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
	return grouped
}
