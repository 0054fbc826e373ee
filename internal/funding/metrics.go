// Package funding computes carry statistics from per-interval funding-rate prints.
//
// Every function here is total: empty or degenerate input yields a populated
// MetricWindow carrying sentinel values, never an error, so a batch over
// thousands of (asset, window) pairs is never interrupted by one bad series.
package funding

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

const (
	daysPerYear   = 365.0
	windowEpsilon = 1e-6
	topN          = 10
)

// Print is a single funding-rate observation
type Print struct {
	AssetID   string    `json:"asset_id"`
	Timestamp time.Time `json:"timestamp"`
	Rate      float64   `json:"rate"` // fractional, 0.0001 = 0.01%
}

// MetricWindow holds the carry statistics of one rate sequence
type MetricWindow struct {
	FundingReturn float64 `json:"funding_return"`
	APRSimple     float64 `json:"apr_simple"`
	PosFrac       float64 `json:"pos_frac"`
	NegFrac       float64 `json:"neg_frac"`
	ZeroFrac      float64 `json:"zero_frac"`
	Stdev         float64 `json:"stdev"`
	Top10Share    float64 `json:"top10_share"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	NPrints       int     `json:"n_prints"`
}

// ComputeMetrics summarises rates observed over windowDays.
//
// Sign convention: a short perp receives funding when the rate is positive, so
// FundingReturn is the plain sum of rates.
func ComputeMetrics(rates []float64, windowDays float64) MetricWindow {
	n := len(rates)
	if n == 0 {
		nan := math.NaN()
		return MetricWindow{
			FundingReturn: nan,
			APRSimple:     nan,
			PosFrac:       nan,
			NegFrac:       nan,
			ZeroFrac:      nan,
			Stdev:         nan,
			Top10Share:    0,
			MaxDrawdown:   0,
		}
	}

	var sum float64
	var pos, neg, zero int
	for _, r := range rates {
		sum += r
		switch {
		case r > 0:
			pos++
		case r < 0:
			neg++
		default:
			zero++
		}
	}

	apr := math.NaN()
	if windowDays > 0 {
		apr = sum / math.Max(windowDays, windowEpsilon) * daysPerYear
	}

	return MetricWindow{
		FundingReturn: sum,
		APRSimple:     apr,
		PosFrac:       float64(pos) / float64(n),
		NegFrac:       float64(neg) / float64(n),
		ZeroFrac:      float64(zero) / float64(n),
		Stdev:         populationStdev(rates, sum/float64(n)),
		Top10Share:    topShare(rates, topN),
		MaxDrawdown:   cumulativeDrawdown(rates),
		NPrints:       n,
	}
}

func populationStdev(rates []float64, mean float64) float64 {
	if len(rates) < 2 {
		return 0
	}
	var ss float64
	for _, r := range rates {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(rates)))
}

// topShare is the fraction of the positive-rate total contributed by the k largest positive rates
func topShare(rates []float64, k int) float64 {
	positives := make([]float64, 0, len(rates))
	var total float64
	for _, r := range rates {
		if r > 0 {
			positives = append(positives, r)
			total += r
		}
	}
	if len(positives) == 0 || total <= 0 {
		return 0
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(positives)))
	if len(positives) > k {
		positives = positives[:k]
	}

	var top float64
	for _, r := range positives {
		top += r
	}
	return top / total
}

// cumulativeDrawdown is the largest peak-to-current drop of the running sum.
// The running peak starts at the first cumulative value, not at zero.
func cumulativeDrawdown(rates []float64) float64 {
	if len(rates) == 0 {
		return 0
	}
	var cum, maxDD float64
	peak := math.Inf(-1)
	for _, r := range rates {
		cum += r
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// metricWindowJSON mirrors MetricWindow with nullable floats; encoding/json rejects NaN
type metricWindowJSON struct {
	FundingReturn *float64 `json:"funding_return"`
	APRSimple     *float64 `json:"apr_simple"`
	PosFrac       *float64 `json:"pos_frac"`
	NegFrac       *float64 `json:"neg_frac"`
	ZeroFrac      *float64 `json:"zero_frac"`
	Stdev         *float64 `json:"stdev"`
	Top10Share    *float64 `json:"top10_share"`
	MaxDrawdown   *float64 `json:"max_drawdown"`
	NPrints       int      `json:"n_prints"`
}

// MarshalJSON writes NaN fields as null
func (m MetricWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricWindowJSON{
		FundingReturn: nullable(m.FundingReturn),
		APRSimple:     nullable(m.APRSimple),
		PosFrac:       nullable(m.PosFrac),
		NegFrac:       nullable(m.NegFrac),
		ZeroFrac:      nullable(m.ZeroFrac),
		Stdev:         nullable(m.Stdev),
		Top10Share:    nullable(m.Top10Share),
		MaxDrawdown:   nullable(m.MaxDrawdown),
		NPrints:       m.NPrints,
	})
}

// UnmarshalJSON reads null fields back as NaN
func (m *MetricWindow) UnmarshalJSON(data []byte) error {
	var raw metricWindowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MetricWindow{
		FundingReturn: orNaN(raw.FundingReturn),
		APRSimple:     orNaN(raw.APRSimple),
		PosFrac:       orNaN(raw.PosFrac),
		NegFrac:       orNaN(raw.NegFrac),
		ZeroFrac:      orNaN(raw.ZeroFrac),
		Stdev:         orNaN(raw.Stdev),
		Top10Share:    orNaN(raw.Top10Share),
		MaxDrawdown:   orNaN(raw.MaxDrawdown),
		NPrints:       raw.NPrints,
	}
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
