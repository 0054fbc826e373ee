// Package metrics exposes backtest and cache activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/basisrun/internal/backtest"
)

const namespace = "basisrun"

// Registry holds all basisrun metrics on a private Prometheus registry
type Registry struct {
	reg *prometheus.Registry

	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	FinalEquity *prometheus.GaugeVec
	Sharpe      *prometheus.GaugeVec
	MaxDrawdown *prometheus.GaugeVec

	RegimeTransitions *prometheus.CounterVec
	RegimeDays        *prometheus.CounterVec
	DataGaps          *prometheus.CounterVec

	FundingSnapshots prometheus.Counter
	CacheRequests    *prometheus.CounterVec
	CacheHitRatio    prometheus.Gauge
}

var (
	_ backtest.Recorder = (*Registry)(nil)
)

// NewRegistry creates and registers every metric
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Backtest runs by outcome",
			},
			[]string{"status"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of completed backtest runs",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		FinalEquity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "final_equity",
				Help:      "Final equity of the latest run per name",
			},
			[]string{"name"},
		),

		Sharpe: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sharpe_ratio",
				Help:      "Annualised Sharpe of the latest run per name",
			},
			[]string{"name"},
		),

		MaxDrawdown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "max_drawdown",
				Help:      "Max drawdown of the latest run per name",
			},
			[]string{"name"},
		),

		RegimeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regime_transitions_total",
				Help:      "Committed regime transitions by from/to label",
			},
			[]string{"from_regime", "to_regime"},
		),

		RegimeDays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regime_days_total",
				Help:      "Classified days by regime label",
			},
			[]string{"regime"},
		),

		DataGaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "data_gaps_total",
				Help:      "Recoverable input gaps by kind",
			},
			[]string{"kind"},
		),

		FundingSnapshots: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "funding_snapshots_total",
				Help:      "Funding window snapshots computed or served from cache",
			},
		),

		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Funding cache requests by result",
			},
			[]string{"result"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_hit_ratio",
				Help:      "Funding cache hit ratio (0.0 to 1.0)",
			},
		),
	}

	r.reg.MustRegister(
		r.RunsTotal,
		r.RunDuration,
		r.FinalEquity,
		r.Sharpe,
		r.MaxDrawdown,
		r.RegimeTransitions,
		r.RegimeDays,
		r.DataGaps,
		r.FundingSnapshots,
		r.CacheRequests,
		r.CacheHitRatio,
	)
	return r
}

// Gatherer is what /metrics serves
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveRun records a completed run
func (r *Registry) ObserveRun(res *backtest.Result, elapsed time.Duration) {
	r.RunsTotal.WithLabelValues("ok").Inc()
	r.RunDuration.Observe(elapsed.Seconds())
	r.FinalEquity.WithLabelValues(res.Name).Set(res.KPI.FinalEquity)
	r.Sharpe.WithLabelValues(res.Name).Set(res.KPI.Sharpe)
	r.MaxDrawdown.WithLabelValues(res.Name).Set(res.KPI.MaxDrawdown)

	for _, c := range res.Changes {
		r.RegimeTransitions.WithLabelValues(c.From.String(), c.To.String()).Inc()
	}
	for label, days := range res.Regimes.DaysByLabel {
		r.RegimeDays.WithLabelValues(label).Add(float64(days))
	}
	if res.Quality != nil {
		for kind, n := range res.Quality.ByKind {
			r.DataGaps.WithLabelValues(string(kind)).Add(float64(n))
		}
	}
}

// RecordFailure counts a run that did not complete
func (r *Registry) RecordFailure(err error) {
	r.RunsTotal.WithLabelValues("error").Inc()
	log.Debug().Err(err).Msg("Run failure recorded")
}

// RecordFundingBatch counts computed snapshots
func (r *Registry) RecordFundingBatch(snapshots int) {
	r.FundingSnapshots.Add(float64(snapshots))
}

// CacheHit implements cache.Observer
func (r *Registry) CacheHit() {
	r.CacheRequests.WithLabelValues("hit").Inc()
	r.updateCacheHitRatio()
}

// CacheMiss implements cache.Observer
func (r *Registry) CacheMiss() {
	r.CacheRequests.WithLabelValues("miss").Inc()
	r.updateCacheHitRatio()
}

// CacheError implements cache.Observer. Errors are served as misses.
func (r *Registry) CacheError() {
	r.CacheRequests.WithLabelValues("error").Inc()
	r.updateCacheHitRatio()
}

func (r *Registry) updateCacheHitRatio() {
	var hits, total float64
	for _, result := range []string{"hit", "miss", "error"} {
		counter, err := r.CacheRequests.GetMetricWithLabelValues(result)
		if err != nil {
			continue
		}
		m := &dto.Metric{}
		if err := counter.Write(m); err != nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		if result == "hit" {
			hits = v
		}
	}
	if total > 0 {
		r.CacheHitRatio.Set(hits / total)
	}
}
