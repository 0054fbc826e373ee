package backtest

import (
	"math"
	"sort"
)

// TradingDaysPerYear annualises every KPI
const TradingDaysPerYear = 252

// KPI summarises a simulated run. Degenerate inputs give 0, never NaN or Inf.
type KPI struct {
	TotalReturn     float64 `json:"total_return"`
	CAGR            float64 `json:"cagr"`
	Sharpe          float64 `json:"sharpe"`
	Sortino         float64 `json:"sortino"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	Calmar          float64 `json:"calmar"`
	HitRate         float64 `json:"hit_rate"`
	AvgTurnover     float64 `json:"avg_turnover"`
	AvgFundingDaily float64 `json:"avg_funding_daily"`
	Volatility      float64 `json:"volatility"`
	FinalEquity     float64 `json:"final_equity"`
	NDays           int     `json:"n_days"`
}

// Summarize derives KPIs from a record sequence. The first record opens the
// book, so returns are taken from the records after it.
func Summarize(records []DailyRecord) KPI {
	k := KPI{FinalEquity: 1.0}
	if len(records) == 0 {
		return k
	}
	k.FinalEquity = records[len(records)-1].Equity
	k.TotalReturn = k.FinalEquity/records[0].Equity - 1
	k.MaxDrawdown = maxDrawdown(records)

	if len(records) < 2 {
		return k
	}
	days := records[1:]
	k.NDays = len(days)

	returns := make([]float64, len(days))
	var hits int
	var turnover, fundingSum float64
	for i, r := range days {
		returns[i] = r.RLSNet
		if r.RLSNet > 0 {
			hits++
		}
		turnover += r.AltTurnover + r.MajorTurnover
		fundingSum += r.Funding
	}
	n := float64(len(days))
	k.HitRate = float64(hits) / n
	k.AvgTurnover = turnover / n
	k.AvgFundingDaily = fundingSum / n

	if growth := 1 + k.TotalReturn; growth > 0 {
		k.CAGR = math.Pow(growth, TradingDaysPerYear/n) - 1
	} else {
		k.CAGR = -1
	}

	mean, std := meanStd(returns)
	k.Volatility = std * math.Sqrt(TradingDaysPerYear)
	if std > 0 {
		k.Sharpe = mean / std * math.Sqrt(TradingDaysPerYear)
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if _, dstd := meanStd(downside); dstd > 0 {
		k.Sortino = mean / dstd * math.Sqrt(TradingDaysPerYear)
	}

	if k.MaxDrawdown < 0 {
		k.Calmar = k.CAGR / math.Abs(k.MaxDrawdown)
	}
	return sanitize(k)
}

// maxDrawdown is min((equity - running max) / running max), 0 or negative
func maxDrawdown(records []DailyRecord) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, r := range records {
		if r.Equity > peak {
			peak = r.Equity
		}
		if peak > 0 {
			if dd := (r.Equity - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// meanStd uses the sample standard deviation; std is 0 below two values or
// for a constant series
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 || constant(values) {
		return mean, 0
	}
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(values)-1))
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

func sanitize(k KPI) KPI {
	for _, f := range []*float64{
		&k.TotalReturn, &k.CAGR, &k.Sharpe, &k.Sortino, &k.MaxDrawdown, &k.Calmar,
		&k.HitRate, &k.AvgTurnover, &k.AvgFundingDaily, &k.Volatility,
	} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
	return k
}

// RegimeStat attributes days and returns to one regime label
type RegimeStat struct {
	Regime     string  `json:"regime"`
	Days       int     `json:"days"`
	SumReturn  float64 `json:"sum_return"`
	MeanReturn float64 `json:"mean_return"`
	AvgGross   float64 `json:"avg_gross"`
}

// Attribute groups post-seed records by the regime in force the day before,
// since that regime sized the book that earned the return
func Attribute(records []DailyRecord) []RegimeStat {
	byRegime := make(map[string]*RegimeStat)
	for i := 1; i < len(records); i++ {
		label := records[i-1].Regime
		s, ok := byRegime[label]
		if !ok {
			s = &RegimeStat{Regime: label}
			byRegime[label] = s
		}
		s.Days++
		s.SumReturn += records[i].RLSNet
		s.AvgGross += records[i-1].TotalGross
	}

	out := make([]RegimeStat, 0, len(byRegime))
	for _, s := range byRegime {
		s.MeanReturn = s.SumReturn / float64(s.Days)
		s.AvgGross /= float64(s.Days)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Regime < out[j].Regime })
	return out
}
