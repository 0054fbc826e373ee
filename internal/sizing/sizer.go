package sizing

import (
	"math"
	"sort"

	"github.com/sawpanic/basisrun/internal/regime"
)

const fillTolerance = 1e-12

// Size computes target weights for one rebalance day. It never fails: an
// empty or fully filtered universe, or a zero regime scale, yields a flat book.
// Config and MajorModel are expected to have been validated.
func Size(label regime.Label, snap Snapshot, majors MajorModel, cfg Config) (Weights, Diagnostics) {
	ceiling := cfg.TargetGross * cfg.Scale(label)
	diag := Diagnostics{Label: label.String(), Ceiling: ceiling}

	if !(ceiling > 0) {
		return ZeroWeights(), diag
	}

	basket := selectBasket(snap.Assets, majors, cfg)
	if len(basket) == 0 {
		return ZeroWeights(), diag
	}
	diag.Selected = make([]string, len(basket))
	for i, a := range basket {
		diag.Selected[i] = a.Symbol
	}

	var w Weights
	switch cfg.Mode {
	case ModeDollar:
		w = dollarNeutral(basket, majors, cfg, ceiling, &diag)
	default:
		w = betaNeutral(basket, majors, cfg, ceiling, &diag)
	}

	// neutrality offsets can re-inflate gross, so the caps are applied last
	factor := 1.0
	if g := w.Gross(); g > ceiling {
		factor = math.Min(factor, ceiling/g)
	}
	if g := w.AltGross(); g > cfg.AltGrossCap {
		factor = math.Min(factor, cfg.AltGrossCap/g)
	}
	if g := w.MajorGross(); g > cfg.MajorGrossCap {
		factor = math.Min(factor, cfg.MajorGrossCap/g)
	}
	if factor < 1 {
		w.scale(factor)
		diag.Rescaled = true
	}

	diag.NetDollar = w.Net()
	diag.NetBetaBTC, diag.NetBetaETH = netBeta(w, basket, majors)
	return w, diag
}

// selectBasket filters, ranks by market cap and truncates the alt universe.
// The majors never enter the short leg and a symbol listed twice keeps its
// first row.
func selectBasket(assets []AssetInfo, majors MajorModel, cfg Config) []AssetInfo {
	out := make([]AssetInfo, 0, len(assets))
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		if a.Symbol == "" || a.Symbol == majors.BTC.Symbol || a.Symbol == majors.ETH.Symbol {
			continue
		}
		if seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true
		if cfg.MaxRealizedVol > 0 && !(a.RealizedVol <= cfg.MaxRealizedVol) {
			continue
		}
		if cfg.MinMomentum != nil && !(a.Momentum7d >= *cfg.MinMomentum) {
			continue
		}
		if cfg.MaxMomentum != nil && !(a.Momentum7d <= *cfg.MaxMomentum) {
			continue
		}
		if cfg.InverseVol && !(a.RealizedVol > 0) {
			continue
		}
		if cfg.Mode == ModeBeta && (math.IsNaN(a.BetaBTC) || math.IsNaN(a.BetaETH)) {
			continue
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MarketCap != out[j].MarketCap {
			return out[i].MarketCap > out[j].MarketCap
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > cfg.BasketSize {
		out = out[:cfg.BasketSize]
	}
	return out
}

// altWeights returns signed (negative) alt weights with Σ|w| as close to gross
// as the per-name cap allows
func altWeights(basket []AssetInfo, cfg Config, gross float64) map[string]float64 {
	raw := make([]float64, len(basket))
	for i, a := range basket {
		if cfg.InverseVol {
			raw[i] = 1 / a.RealizedVol
		} else {
			raw[i] = 1
		}
	}
	filled := waterFill(raw, gross, cfg.PerNameCap)

	alts := make(map[string]float64, len(basket))
	for i, a := range basket {
		alts[a.Symbol] = -filled[i]
	}
	return alts
}

// waterFill scales raw so it sums to target with no element above limit.
// Capped names are pinned and the remainder is redistributed pro rata.
func waterFill(raw []float64, target, limit float64) []float64 {
	out := make([]float64, len(raw))
	pinned := make([]bool, len(raw))
	remaining := target

	for {
		free := 0.0
		for i, r := range raw {
			if !pinned[i] {
				free += r
			}
		}
		if free <= 0 || remaining <= fillTolerance {
			break
		}

		overflow := false
		for i, r := range raw {
			if pinned[i] {
				continue
			}
			if r/free*remaining > limit+fillTolerance {
				out[i] = limit
				pinned[i] = true
				remaining -= limit
				overflow = true
			}
		}
		if overflow {
			continue
		}
		for i, r := range raw {
			if !pinned[i] {
				out[i] = r / free * remaining
			}
		}
		break
	}
	return out
}

func dollarNeutral(basket []AssetInfo, majors MajorModel, cfg Config, ceiling float64, diag *Diagnostics) Weights {
	alts := altWeights(basket, cfg, ceiling*cfg.AltShareDollar)
	altGross := grossOf(alts)

	btcShare, ethShare := cfg.MajorSplit.BTC, cfg.MajorSplit.ETH
	if cfg.CapWeightedMajors && majors.BTC.MarketCap > 0 && majors.ETH.MarketCap > 0 {
		total := majors.BTC.MarketCap + majors.ETH.MarketCap
		btcShare, ethShare = majors.BTC.MarketCap/total, majors.ETH.MarketCap/total
	}

	wBTC := math.Min(altGross*btcShare, cfg.MajorNameCap)
	wETH := math.Min(altGross*ethShare, cfg.MajorNameCap)
	majorGross := wBTC + wETH

	// majors could not absorb the alt notional; shrink the alt leg to match
	if majorGross < altGross-fillTolerance {
		diag.Clipped = true
		f := 0.0
		if altGross > 0 {
			f = majorGross / altGross
		}
		for s := range alts {
			alts[s] *= f
		}
	}

	return Weights{
		Alts:   alts,
		Majors: map[string]float64{majors.BTC.Symbol: wBTC, majors.ETH.Symbol: wETH},
	}
}

func betaNeutral(basket []AssetInfo, majors MajorModel, cfg Config, ceiling float64, diag *Diagnostics) Weights {
	alts := altWeights(basket, cfg, ceiling*cfg.AltShareBeta)

	var eBTC, eETH float64
	for _, a := range basket {
		eBTC += alts[a.Symbol] * a.BetaBTC
		eETH += alts[a.Symbol] * a.BetaETH
	}

	wBTC, wETH := solveMajors(majors, eBTC, eETH)

	// long-only majors: a negative solution cannot be reached by scaling
	if wBTC < 0 {
		diag.Clipped = true
	}
	if wETH < 0 {
		diag.Clipped = true
	}
	// Max also folds -0 into 0
	wBTC, wETH = math.Max(0, wBTC), math.Max(0, wETH)

	// the solution is linear in the alt leg, so a name cap is honoured by
	// shrinking the whole book, which keeps net beta at zero
	f := 1.0
	if wBTC > cfg.MajorNameCap {
		f = math.Min(f, cfg.MajorNameCap/wBTC)
	}
	if wETH > cfg.MajorNameCap {
		f = math.Min(f, cfg.MajorNameCap/wETH)
	}

	w := Weights{
		Alts:   alts,
		Majors: map[string]float64{majors.BTC.Symbol: wBTC, majors.ETH.Symbol: wETH},
	}
	if f < 1 {
		w.scale(f)
		diag.Clipped = true
	}
	return w
}

// solveMajors solves Bᵀw = −E for the two major weights by Cramer's rule.
// With identity betas this reduces to w_BTC = T/2 + ½(E_ETH − E_BTC),
// w_ETH = T − w_BTC where T = −(E_BTC + E_ETH).
func solveMajors(m MajorModel, eBTC, eETH float64) (float64, float64) {
	det := m.determinant()
	if det == 0 {
		return 0, 0
	}
	wBTC := (-eBTC*m.ETH.BetaETH + m.ETH.BetaBTC*eETH) / det
	wETH := (-m.BTC.BetaBTC*eETH + eBTC*m.BTC.BetaETH) / det
	return wBTC, wETH
}

func netBeta(w Weights, basket []AssetInfo, majors MajorModel) (float64, float64) {
	var bBTC, bETH float64
	for _, a := range basket {
		v := w.Alts[a.Symbol]
		bBTC += v * a.BetaBTC
		bETH += v * a.BetaETH
	}
	for _, m := range []Major{majors.BTC, majors.ETH} {
		v := w.Majors[m.Symbol]
		bBTC += v * m.BetaBTC
		bETH += v * m.BetaETH
	}
	return bBTC, bETH
}
