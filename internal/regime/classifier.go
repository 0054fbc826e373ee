package regime

import (
	"fmt"
	"math"
	"time"
)

// State is the classifier's carried state between days
type State struct {
	Label       Label     `json:"label"`
	EnteredOn   time.Time `json:"entered_on"`
	DaysInState int       `json:"days_in_state"`
	EntryScore  float64   `json:"entry_score"`
}

// Day is one classified trading day
type Day struct {
	Date         time.Time `json:"date"`
	Score        float64   `json:"score"`
	Label        Label     `json:"label"`
	DaysInState  int       `json:"days_in_state"`
	EnteredOn    time.Time `json:"entered_on"`
	Candidate    Label     `json:"candidate"`
	Transitioned bool      `json:"transitioned"`
	Blocked      bool      `json:"blocked"`
}

// Change records a committed regime transition
type Change struct {
	Date           time.Time `json:"date"`
	From           Label     `json:"from"`
	To             Label     `json:"to"`
	Score          float64   `json:"score"`
	DaysInPrevious int       `json:"days_in_previous"`
}

// Classifier is a single-threaded state machine. Feed it days in date order.
type Classifier struct {
	config  Config
	state   State
	started bool

	// entry score of the last extreme label entered on each side
	lastExtreme map[int]float64
	history     []Change
}

// NewClassifier validates config and returns a fresh classifier
func NewClassifier(config Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		config:      config,
		lastExtreme: make(map[int]float64, 2),
	}, nil
}

// State returns the current carried state
func (c *Classifier) State() State {
	return c.state
}

// History returns committed transitions so far
func (c *Classifier) History() []Change {
	out := make([]Change, len(c.history))
	copy(out, c.history)
	return out
}

// Step classifies one day. A NaN score holds the current label.
func (c *Classifier) Step(date time.Time, score float64) Day {
	if !c.started {
		label := Balanced
		if !math.IsNaN(score) {
			label = c.initial(score)
		}
		c.started = true
		c.enter(label, date, score)
		return c.day(date, score, label, false, false)
	}

	current := c.state.Label
	candidate := current
	if !math.IsNaN(score) {
		candidate = c.target(score, current)
	}

	if candidate == current {
		c.state.DaysInState++
		return c.day(date, score, candidate, false, false)
	}

	if !c.allowed(current, candidate, score) {
		c.state.DaysInState++
		return c.day(date, score, candidate, false, true)
	}

	c.history = append(c.history, Change{
		Date:           date,
		From:           current,
		To:             candidate,
		Score:          score,
		DaysInPrevious: c.state.DaysInState + 1,
	})
	c.enter(candidate, date, score)
	return c.day(date, score, candidate, true, false)
}

func (c *Classifier) day(date time.Time, score float64, candidate Label, transitioned, blocked bool) Day {
	return Day{
		Date:         date,
		Score:        score,
		Label:        c.state.Label,
		DaysInState:  c.state.DaysInState,
		EnteredOn:    c.state.EnteredOn,
		Candidate:    candidate,
		Transitioned: transitioned,
		Blocked:      blocked,
	}
}

func (c *Classifier) enter(label Label, date time.Time, score float64) {
	c.state = State{Label: label, EnteredOn: date, DaysInState: 0, EntryScore: score}
	if label != Balanced && !math.IsNaN(score) {
		c.lastExtreme[label.Side()] = score
	}
}

// initial classifies against the bare thresholds, without bands
func (c *Classifier) initial(score float64) Label {
	for k := c.config.maxLevel(); k >= 1; k-- {
		if score > c.config.bound(k) {
			return Label(k)
		}
		if score < c.config.bound(-k) {
			return Label(-k)
		}
	}
	return Balanced
}

// target is the label the bands alone would select, before persistence
func (c *Classifier) target(score float64, current Label) Label {
	side := current.Side()
	if side == 0 {
		if l := c.entry(score, 1); l != Balanced {
			return l
		}
		return c.entry(score, -1)
	}

	level := current.Extremity()
	// escalation further out on the same side
	for k := c.config.maxLevel(); k > level; k-- {
		if c.enters(score, side*k) {
			return Label(side * k)
		}
	}
	// hold the most extreme level whose exit band still contains the score
	for k := level; k >= 1; k-- {
		if c.holds(score, side*k) {
			return Label(side * k)
		}
	}
	// back to balance; the opposite side may be entered directly
	return c.entry(score, -side)
}

func (c *Classifier) entry(score float64, side int) Label {
	for k := c.config.maxLevel(); k >= 1; k-- {
		if c.enters(score, side*k) {
			return Label(side * k)
		}
	}
	return Balanced
}

func (c *Classifier) enters(score float64, level int) bool {
	if level > 0 {
		return score > c.config.bound(level)+c.config.EntryHysteresis
	}
	return score < c.config.bound(level)-c.config.EntryHysteresis
}

func (c *Classifier) holds(score float64, level int) bool {
	if level > 0 {
		return score >= c.config.bound(level)-c.config.ExitHysteresis
	}
	return score <= c.config.bound(level)+c.config.ExitHysteresis
}

// allowed applies the persistence rule to a candidate change
func (c *Classifier) allowed(current, candidate Label, score float64) bool {
	if isDeescalation(current, candidate) {
		return true
	}
	if c.state.DaysInState+1 >= c.config.MinDurationDays {
		return true
	}
	if !c.config.RequiresStrongerSignal {
		return false
	}

	side := candidate.Side()
	var ref float64
	if current.Side() == side {
		ref = c.state.EntryScore
	} else {
		prev, ok := c.lastExtreme[side]
		if !ok {
			return false
		}
		ref = prev
	}
	if math.IsNaN(ref) {
		return false
	}
	if side > 0 {
		return score > ref
	}
	return score < ref
}

func isDeescalation(current, candidate Label) bool {
	if current == Balanced {
		return false
	}
	if candidate == Balanced || candidate.Side() != current.Side() {
		return true
	}
	return candidate.Extremity() < current.Extremity()
}

// Classify runs a fresh classifier over a score series
func Classify(config Config, dates []time.Time, scores []float64) ([]Day, []Change, error) {
	if len(dates) != len(scores) {
		return nil, nil, fmt.Errorf("dates and scores differ in length: %d vs %d", len(dates), len(scores))
	}
	c, err := NewClassifier(config)
	if err != nil {
		return nil, nil, err
	}
	days := make([]Day, len(dates))
	for i := range dates {
		days[i] = c.Step(dates[i], scores[i])
	}
	return days, c.History(), nil
}

// Summary aggregates a classified series
type Summary struct {
	DaysByLabel   map[string]int `json:"days_by_label"`
	Transitions   int            `json:"transitions"`
	BlockedDays   int            `json:"blocked_days"`
	MeanRunLength float64        `json:"mean_run_length"`
}

// Summarize counts days per label and run lengths
func Summarize(days []Day) Summary {
	s := Summary{DaysByLabel: make(map[string]int)}
	if len(days) == 0 {
		return s
	}
	for i, d := range days {
		s.DaysByLabel[d.Label.String()]++
		if d.Blocked {
			s.BlockedDays++
		}
		if i > 0 && d.Label != days[i-1].Label {
			s.Transitions++
		}
	}
	s.MeanRunLength = float64(len(days)) / float64(s.Transitions+1)
	return s
}
