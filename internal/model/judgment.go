package model

import "fmt"

// Category is the graded outcome of a judgment.
type Category uint8

const (
	Early Category = iota
	OnTime
	Late
	Missed
	Extra
)

var categoryNames = [...]string{"early", "on-time", "late", "missed", "extra"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// ParseCategory resolves a category name.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// Matched reports whether the category pairs an expectation with a hit.
func (c Category) Matched() bool {
	return c == Early || c == OnTime || c == Late
}

// Judgment grades one expectation, one hit, or a pair of both.
// Missed has no hit, Extra has no expectation; ErrorMs and Velocity are set
// only for matched categories.
type Judgment struct {
	Pass             int
	ExpectationIndex *int
	HitIndex         *int
	Category         Category
	ErrorMs          *float64
	Velocity         *uint8
	VelocityHint     uint8
	Instrument       Instrument
	// TimeMs is the session time of the expectation, or of the hit for Extra.
	TimeMs float64
}

// VelocityDelta returns hit velocity minus the expected hint for matched judgments.
func (j Judgment) VelocityDelta() (int, bool) {
	if j.Velocity == nil || j.ExpectationIndex == nil {
		return 0, false
	}
	return int(*j.Velocity) - int(j.VelocityHint), true
}

// Counts tallies judgments per category.
type Counts struct {
	OnTime int
	Early  int
	Late   int
	Missed int
	Extra  int
}

// Expected returns the number of scored expectations.
func (c Counts) Expected() int {
	return c.OnTime + c.Early + c.Late + c.Missed
}

// Summary folds a frozen judgment list.
type Summary struct {
	Counts            Counts
	Accuracy          float64
	MeanAbsErrorMs    float64
	BiasMs            float64
	LongestStreak     int
	MeanVelocityDelta float64
	PerInstrument     []InstrumentSummary
}

// InstrumentSummary is the per-instrument slice of a Summary.
type InstrumentSummary struct {
	Instrument     Instrument
	Counts         Counts
	Accuracy       float64
	MeanAbsErrorMs float64
	BiasMs         float64
	LongestStreak  int
}
