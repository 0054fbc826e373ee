package sizing

import (
	"math"

	"github.com/sawpanic/basisrun/internal/errs"
	"github.com/sawpanic/basisrun/internal/regime"
)

// Mode selects the neutrality constraint
type Mode string

const (
	ModeDollar Mode = "dollar"
	ModeBeta   Mode = "beta"
)

// Split is the fixed BTC/ETH ratio for dollar-neutral majors
type Split struct {
	BTC float64 `yaml:"btc" json:"btc" default:"0.5" validate:"gte=0,lte=1"`
	ETH float64 `yaml:"eth" json:"eth" default:"0.5" validate:"gte=0,lte=1"`
}

// Config controls sizing. TargetGross has no default and must be set.
type Config struct {
	Mode        Mode               `yaml:"mode" json:"mode" default:"beta" validate:"oneof=dollar beta"`
	TargetGross float64            `yaml:"target_gross" json:"target_gross" validate:"gt=0"`
	RegimeScale map[string]float64 `yaml:"regime_scale" json:"regime_scale"`

	AltShareDollar float64 `yaml:"alt_share_dollar" json:"alt_share_dollar" default:"0.5" validate:"gt=0,lte=1"`
	AltShareBeta   float64 `yaml:"alt_share_beta" json:"alt_share_beta" default:"0.5" validate:"gt=0,lte=1"`

	AltGrossCap   float64 `yaml:"alt_gross_cap" json:"alt_gross_cap" default:"1.0" validate:"gt=0"`
	MajorGrossCap float64 `yaml:"major_gross_cap" json:"major_gross_cap" default:"1.0" validate:"gt=0"`
	PerNameCap    float64 `yaml:"per_name_cap" json:"per_name_cap" default:"0.1" validate:"gt=0"`
	MajorNameCap  float64 `yaml:"major_name_cap" json:"major_name_cap" default:"0.5" validate:"gt=0"`

	MajorSplit        Split `yaml:"major_split" json:"major_split"`
	CapWeightedMajors bool  `yaml:"cap_weighted_majors" json:"cap_weighted_majors"`

	BasketSize     int      `yaml:"basket_size" json:"basket_size" default:"20" validate:"gte=1"`
	InverseVol     bool     `yaml:"inverse_vol" json:"inverse_vol" default:"true"`
	MaxRealizedVol float64  `yaml:"max_realized_vol" json:"max_realized_vol" validate:"gte=0"`
	MinMomentum    *float64 `yaml:"min_momentum,omitempty" json:"min_momentum,omitempty"`
	MaxMomentum    *float64 `yaml:"max_momentum,omitempty" json:"max_momentum,omitempty"`
}

// DefaultRegimeScale only trades the risk-on-majors side
func DefaultRegimeScale() map[string]float64 {
	return map[string]float64{
		regime.StrongRiskOnMajors.String():  1.0,
		regime.RiskOnMajors.String():        0.6,
		regime.Balanced.String():            0.0,
		regime.RiskOffMajors.String():       0.0,
		regime.StrongRiskOffMajors.String(): 0.0,
	}
}

// DefaultConfig returns defaults with a unit gross budget
func DefaultConfig() Config {
	return Config{
		Mode:           ModeBeta,
		TargetGross:    1.0,
		RegimeScale:    DefaultRegimeScale(),
		AltShareDollar: 0.5,
		AltShareBeta:   0.5,
		AltGrossCap:    1.0,
		MajorGrossCap:  1.0,
		PerNameCap:     0.1,
		MajorNameCap:   0.5,
		MajorSplit:     Split{BTC: 0.5, ETH: 0.5},
		BasketSize:     20,
		InverseVol:     true,
	}
}

// Scale returns the regime's gross multiplier; unknown labels do not trade
func (c Config) Scale(label regime.Label) float64 {
	return c.RegimeScale[label.String()]
}

// Validate runs before any sizing
func (c Config) Validate() error {
	if c.Mode != ModeDollar && c.Mode != ModeBeta {
		return errs.Config("sizing.mode", "unknown mode %q", c.Mode)
	}
	if !(c.TargetGross > 0) {
		return errs.Config("sizing.target_gross", "is required and must be positive")
	}
	for field, v := range map[string]float64{
		"sizing.alt_gross_cap":   c.AltGrossCap,
		"sizing.major_gross_cap": c.MajorGrossCap,
		"sizing.per_name_cap":    c.PerNameCap,
		"sizing.major_name_cap":  c.MajorNameCap,
	} {
		if !(v > 0) {
			return errs.Config(field, "must be positive, got %g", v)
		}
	}
	if c.PerNameCap > c.AltGrossCap {
		return errs.Config("sizing.alt_gross_cap", "alt gross cap %g is below the per-name cap %g", c.AltGrossCap, c.PerNameCap)
	}
	if c.MajorNameCap > c.MajorGrossCap {
		return errs.Config("sizing.major_gross_cap", "major gross cap %g is below the major name cap %g", c.MajorGrossCap, c.MajorNameCap)
	}
	for field, v := range map[string]float64{
		"sizing.alt_share_dollar": c.AltShareDollar,
		"sizing.alt_share_beta":   c.AltShareBeta,
	} {
		if !(v > 0) || v > 1 {
			return errs.Config(field, "must be in (0, 1], got %g", v)
		}
	}
	if c.MajorSplit.BTC < 0 || c.MajorSplit.ETH < 0 || math.Abs(c.MajorSplit.BTC+c.MajorSplit.ETH-1) > 1e-6 {
		return errs.Config("sizing.major_split", "must be non-negative and sum to 1, got %g/%g", c.MajorSplit.BTC, c.MajorSplit.ETH)
	}
	if c.BasketSize < 1 {
		return errs.Config("sizing.basket_size", "must be at least 1")
	}
	if c.MaxRealizedVol < 0 {
		return errs.Config("sizing.max_realized_vol", "must be non-negative")
	}
	if c.MinMomentum != nil && c.MaxMomentum != nil && *c.MinMomentum > *c.MaxMomentum {
		return errs.Config("sizing.min_momentum", "min %g above max %g", *c.MinMomentum, *c.MaxMomentum)
	}
	for name, v := range c.RegimeScale {
		if _, err := regime.ParseLabel(name); err != nil {
			return errs.Config("sizing.regime_scale", "%v", err)
		}
		if v < 0 || math.IsNaN(v) {
			return errs.Config("sizing.regime_scale", "scale for %s must be non-negative", name)
		}
	}
	return nil
}

// Validate rejects a singular beta matrix
func (m MajorModel) Validate() error {
	if m.BTC.Symbol == "" || m.ETH.Symbol == "" || m.BTC.Symbol == m.ETH.Symbol {
		return errs.Config("majors", "two distinct major symbols are required")
	}
	if math.Abs(m.determinant()) < 1e-9 {
		return errs.Config("majors", "major beta matrix is singular")
	}
	return nil
}
