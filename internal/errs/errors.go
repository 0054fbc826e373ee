// Package errs defines the error taxonomy shared by the backtest engine.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError is fatal and is surfaced before any simulation starts
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config builds a ConfigurationError with a formatted reason
func Config(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration reports whether err wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// GapKind names the input leg that was missing
type GapKind string

const (
	GapReturn  GapKind = "return"
	GapFunding GapKind = "funding"
	GapFeature GapKind = "feature"
)

// DataGapError describes a missing input observation. It is recoverable: the
// simulator zeroes the leg and counts the gap instead of returning it.
type DataGapError struct {
	Kind  GapKind   `json:"kind"`
	Asset string    `json:"asset"`
	Date  time.Time `json:"date"`
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("missing %s for %s on %s", e.Kind, e.Asset, e.Date.Format("2006-01-02"))
}
