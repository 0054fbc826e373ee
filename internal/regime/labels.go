// Package regime classifies trading days into majors-vs-alts regimes from a
// composite score, with hysteresis bands and a minimum-persistence rule.
package regime

import (
	"fmt"
	"strings"
)

// Label is a signed regime level. Positive favours majors over alts.
type Label int

const (
	StrongRiskOffMajors Label = -2
	RiskOffMajors       Label = -1
	Balanced            Label = 0
	RiskOnMajors        Label = 1
	StrongRiskOnMajors  Label = 2
)

var labelNames = map[Label]string{
	StrongRiskOffMajors: "STRONG_RISK_OFF_MAJORS",
	RiskOffMajors:       "RISK_OFF_MAJORS",
	Balanced:            "BALANCED",
	RiskOnMajors:        "RISK_ON_MAJORS",
	StrongRiskOnMajors:  "STRONG_RISK_ON_MAJORS",
}

// AllLabels lists labels from most risk-off to most risk-on
func AllLabels() []Label {
	return []Label{StrongRiskOffMajors, RiskOffMajors, Balanced, RiskOnMajors, StrongRiskOnMajors}
}

func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// ParseLabel is case-insensitive
func ParseLabel(s string) (Label, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for l, name := range labelNames {
		if name == upper {
			return l, nil
		}
	}
	return Balanced, fmt.Errorf("unknown regime label %q", s)
}

// MarshalText lets labels serialise as their names in JSON and as map keys
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Side is -1, 0 or +1
func (l Label) Side() int {
	switch {
	case l > 0:
		return 1
	case l < 0:
		return -1
	}
	return 0
}

// Extremity is the absolute level
func (l Label) Extremity() int {
	if l < 0 {
		return int(-l)
	}
	return int(l)
}
