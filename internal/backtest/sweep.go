package backtest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Variant overrides a base pipeline for one sweep run. Zero fields keep the base value.
type Variant struct {
	Name       string   `json:"name"`
	BasketSize int      `json:"basket_size,omitempty"`
	CostBps    *float64 `json:"cost_bps,omitempty"`
}

// Grid builds the cross product of basket sizes and cost levels
func Grid(basketSizes []int, costBps []float64) []Variant {
	if len(basketSizes) == 0 {
		basketSizes = []int{0}
	}
	var out []Variant
	for _, b := range basketSizes {
		if len(costBps) == 0 {
			out = append(out, Variant{Name: variantName(b, nil), BasketSize: b})
			continue
		}
		for _, c := range costBps {
			c := c
			out = append(out, Variant{Name: variantName(b, &c), BasketSize: b, CostBps: &c})
		}
	}
	return out
}

func variantName(basket int, cost *float64) string {
	name := "base"
	if basket > 0 {
		name = "basket" + strconv.Itoa(basket)
	}
	if cost != nil {
		name += "_cost" + strconv.FormatFloat(*cost, 'f', -1, 64)
	}
	return name
}

// Apply returns a copy of base with the variant's overrides
func (v Variant) Apply(base Pipeline) Pipeline {
	p := base
	if v.BasketSize > 0 {
		p.Sizing.BasketSize = v.BasketSize
	}
	if v.CostBps != nil {
		p.Backtest.Cost.CostBps = *v.CostBps
	}
	if v.Name != "" {
		p.Backtest.Name = base.Backtest.Name + "_" + v.Name
	}
	return p
}

// SweepResult pairs a variant with its run
type SweepResult struct {
	Variant Variant `json:"variant"`
	Result  *Result `json:"result"`
}

// SweepOptions wire shared outputs into every variant runner
type SweepOptions struct {
	Workers  int
	Writer   ArtifactWriter
	Recorder Recorder
	Store    Store
}

// Sweep runs independent variants in parallel over shared read-only data.
// Results keep the variant order. Any failing variant fails the sweep.
func Sweep(ctx context.Context, base Pipeline, data Data, variants []Variant, opts SweepOptions) ([]SweepResult, error) {
	runners := make([]*Runner, len(variants))
	for i, v := range variants {
		r, err := NewRunner(v.Apply(base))
		if err != nil {
			return nil, fmt.Errorf("invalid sweep variant %s: %w", v.Name, err)
		}
		r.SetWriter(opts.Writer)
		r.SetRecorder(opts.Recorder)
		r.SetStore(opts.Store)
		runners[i] = r
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]SweepResult, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range variants {
		i := i
		g.Go(func() error {
			res, err := runners[i].Run(gctx, data)
			if err != nil {
				return fmt.Errorf("variant %s: %w", variants[i].Name, err)
			}
			results[i] = SweepResult{Variant: variants[i], Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to run sweep: %w", err)
	}

	log.Info().Int("variants", len(variants)).Int("workers", workers).Msg("Sweep complete")
	return results, nil
}
