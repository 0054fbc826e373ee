package regime

import (
	"math"
	"sort"
	"time"

	"github.com/sawpanic/basisrun/internal/errs"
)

const weightSumTolerance = 1e-6

// FeatureRow is one day of regime features
type FeatureRow struct {
	Date     time.Time          `json:"date"`
	Features map[string]float64 `json:"features"`
}

// Composite combines features into a single regime score, Σ wᵢ·fᵢ
type Composite struct {
	weights map[string]float64
	names   []string
}

// ValidateWeights requires non-negative weights summing to 1
func ValidateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return errs.Config("regime.weights", "at least one feature weight is required")
	}
	sum := 0.0
	for name, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return errs.Config("regime.weights", "weight for %s is not finite", name)
		}
		if w < 0 {
			return errs.Config("regime.weights", "negative weight for %s: %.4f", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return errs.Config("regime.weights", "weights sum to %.6f, expected 1.0 ± %g", sum, weightSumTolerance)
	}
	return nil
}

// NewComposite validates the weights once
func NewComposite(weights map[string]float64) (*Composite, error) {
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}
	c := &Composite{weights: make(map[string]float64, len(weights))}
	for name, w := range weights {
		c.weights[name] = w
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Features returns the weighted feature names, sorted
func (c *Composite) Features() []string {
	return append([]string(nil), c.names...)
}

// Score returns the composite for a row and the features it lacked.
// Missing or NaN features count as 0; a row missing every feature scores NaN.
func (c *Composite) Score(row FeatureRow) (float64, []string) {
	var (
		score   float64
		missing []string
	)
	for _, name := range c.names {
		v, ok := row.Features[name]
		if !ok || math.IsNaN(v) {
			missing = append(missing, name)
			continue
		}
		score += c.weights[name] * v
	}
	if len(missing) == len(c.names) {
		return math.NaN(), missing
	}
	return score, missing
}
