package regime

import (
	"github.com/sawpanic/basisrun/internal/errs"
)

// Config holds classifier thresholds, bands and persistence
type Config struct {
	States                 int     `yaml:"states" json:"states" default:"5" validate:"oneof=3 5"`
	Low                    float64 `yaml:"low" json:"low" default:"-0.25"`
	High                   float64 `yaml:"high" json:"high" default:"0.25"`
	StrongLow              float64 `yaml:"strong_low" json:"strong_low" default:"-0.6"`
	StrongHigh             float64 `yaml:"strong_high" json:"strong_high" default:"0.6"`
	EntryHysteresis        float64 `yaml:"entry_hysteresis" json:"entry_hysteresis" default:"0.05" validate:"gte=0"`
	ExitHysteresis         float64 `yaml:"exit_hysteresis" json:"exit_hysteresis" default:"0.05" validate:"gte=0"`
	MinDurationDays        int     `yaml:"min_duration_days" json:"min_duration_days" default:"3" validate:"gte=0"`
	RequiresStrongerSignal bool    `yaml:"requires_stronger_signal" json:"requires_stronger_signal"`
}

// DefaultConfig returns the five-state defaults
func DefaultConfig() Config {
	return Config{
		States:          5,
		Low:             -0.25,
		High:            0.25,
		StrongLow:       -0.6,
		StrongHigh:      0.6,
		EntryHysteresis: 0.05,
		ExitHysteresis:  0.05,
		MinDurationDays: 3,
	}
}

// Validate checks threshold ordering. It runs before any classification.
func (c Config) Validate() error {
	if c.States != 3 && c.States != 5 {
		return errs.Config("regime.states", "must be 3 or 5, got %d", c.States)
	}
	if c.Low >= c.High {
		return errs.Config("regime.low", "low %.4f must be below high %.4f", c.Low, c.High)
	}
	if c.States == 5 {
		if c.StrongLow >= c.Low {
			return errs.Config("regime.strong_low", "strong_low %.4f must be below low %.4f", c.StrongLow, c.Low)
		}
		if c.StrongHigh <= c.High {
			return errs.Config("regime.strong_high", "strong_high %.4f must be above high %.4f", c.StrongHigh, c.High)
		}
	}
	if c.EntryHysteresis < 0 {
		return errs.Config("regime.entry_hysteresis", "must be non-negative")
	}
	if c.ExitHysteresis < 0 {
		return errs.Config("regime.exit_hysteresis", "must be non-negative")
	}
	if c.MinDurationDays < 0 {
		return errs.Config("regime.min_duration_days", "must be non-negative")
	}
	return nil
}

func (c Config) maxLevel() int {
	if c.States == 3 {
		return 1
	}
	return 2
}

// bound returns the threshold for a signed level
func (c Config) bound(level int) float64 {
	switch level {
	case 2:
		return c.StrongHigh
	case 1:
		return c.High
	case -1:
		return c.Low
	case -2:
		return c.StrongLow
	}
	return 0
}
