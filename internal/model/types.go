// Package model defines shared data structures.
package model

import "time"

// SessionConfig defines the settings of one practice run.
// LoopCount of 0 selects Free Play (infinite looping, no Review).
type SessionConfig struct {
	LoopStartBeat      float64
	LoopEndBeat        float64
	LoopCount          int
	TempoScale         float64
	CountdownBars      int
	CountdownEveryLoop bool
	Windows            Windows
	LatencyOffsetMs    float64
}

// FreePlay reports whether the config loops forever.
func (c SessionConfig) FreePlay() bool {
	return c.LoopCount == 0
}

// Windows holds the tempo-relative tolerance settings. A percentage of zero
// means the cap is used as a fixed window.
type Windows struct {
	MatchPct    float64
	MatchCapMs  float64
	OnTimePct   float64
	OnTimeCapMs float64
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Chart       string
	Since       *time.Time
	Last        int
	CurveWindow int
}

// SessionRecord captures a completed Test run for the history store.
type SessionRecord struct {
	RunID      string
	StartedAt  time.Time
	EndedAt    time.Time
	ChartTitle string
	ChartPath  string
	LoopCount  int
	TempoScale float64
	Degraded   bool
	Summary    Summary
}

// InstrumentAggregate aggregates instrument stats across sessions.
type InstrumentAggregate struct {
	Instrument  Instrument
	OnTime      int
	Early       int
	Late        int
	Missed      int
	Extra       int
	AbsErrSumMs float64
	ErrSumMs    float64
	Matched     int
}

// Expected returns the number of scored expectations.
func (a InstrumentAggregate) Expected() int {
	return a.OnTime + a.Early + a.Late + a.Missed
}

// Accuracy returns the on-time share of scored expectations.
func (a InstrumentAggregate) Accuracy() float64 {
	if n := a.Expected(); n > 0 {
		return float64(a.OnTime) / float64(n)
	}
	return 0
}

// MeanAbsMs returns the mean absolute timing error of matched hits.
func (a InstrumentAggregate) MeanAbsMs() float64 {
	if a.Matched == 0 {
		return 0
	}
	return a.AbsErrSumMs / float64(a.Matched)
}

// BiasMs returns the signed mean timing error of matched hits.
func (a InstrumentAggregate) BiasMs() float64 {
	if a.Matched == 0 {
		return 0
	}
	return a.ErrSumMs / float64(a.Matched)
}

// SessionAggregate summarizes a stored session for reporting.
type SessionAggregate struct {
	SessionID  int64
	RunID      string
	ChartTitle string
	StartedAt  time.Time
	EndedAt    time.Time
	Accuracy   float64
	MeanAbsMs  float64
	BiasMs     float64
	Streak     int
	Expected   int
	Extra      int
	TempoScale float64
}

// Duration returns the wall time of the session.
func (s SessionAggregate) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}
