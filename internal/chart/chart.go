// Package chart holds validated drum notation and its file formats.
package chart

import (
	"errors"
	"fmt"
	"math"

	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/tempo"
)

// ErrInvalidChart reports malformed or empty notation.
var ErrInvalidChart = errors.New("invalid chart")

// Chart is a notated drum performance.
type Chart struct {
	Title       string          `toml:"title"`
	BeatsPerBar int             `toml:"beats_per_bar"`
	Tempo       []tempo.Segment `toml:"tempo"`
	Events      []Event         `toml:"event"`
}

// Event is one notated onset. It is positioned by Beat, or by TimeMs when set.
type Event struct {
	Beat       float64          `toml:"beat"`
	TimeMs     *float64         `toml:"time_ms,omitempty"`
	Instrument model.Instrument `toml:"instrument"`
	Velocity   uint8            `toml:"velocity"`
	Ghost      bool             `toml:"ghost,omitempty"`
}

// Validate builds the tempo map and checks every event. Events positioned by
// time get their beat resolved. The chart is left untouched on error.
func (c *Chart) Validate() (*tempo.Map, error) {
	if c.BeatsPerBar <= 0 {
		return nil, fmt.Errorf("%w: beats per bar must be positive, got %d", ErrInvalidChart, c.BeatsPerBar)
	}
	tm, err := tempo.New(c.Tempo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChart, err)
	}
	if len(c.Events) == 0 {
		return nil, fmt.Errorf("%w: no events", ErrInvalidChart)
	}

	resolved := make([]Event, len(c.Events))
	for i, ev := range c.Events {
		if ev.TimeMs != nil {
			ms := *ev.TimeMs
			if !finite(ms) || ms < 0 {
				return nil, fmt.Errorf("%w: event %d has time %g", ErrInvalidChart, i, ms)
			}
			ev.Beat = tm.BeatAtTime(ms)
		}
		if !finite(ev.Beat) || ev.Beat < 0 {
			return nil, fmt.Errorf("%w: event %d has beat %g", ErrInvalidChart, i, ev.Beat)
		}
		if !ev.Instrument.Valid() {
			return nil, fmt.Errorf("%w: event %d has no instrument", ErrInvalidChart, i)
		}
		if ev.Velocity > 127 {
			return nil, fmt.Errorf("%w: event %d velocity %d out of range", ErrInvalidChart, i, ev.Velocity)
		}
		resolved[i] = ev
	}
	c.Events = resolved
	return tm, nil
}

// LengthBeats returns the beat just past the last event, rounded up to a bar.
func (c *Chart) LengthBeats() float64 {
	var last float64
	for _, ev := range c.Events {
		if ev.Beat > last {
			last = ev.Beat
		}
	}
	if c.BeatsPerBar <= 0 {
		return math.Floor(last) + 1
	}
	bpb := float64(c.BeatsPerBar)
	return (math.Floor(last/bpb) + 1) * bpb
}

// Instruments returns the distinct instruments used, in instrument order.
func (c *Chart) Instruments() []model.Instrument {
	seen := make(map[model.Instrument]bool)
	for _, ev := range c.Events {
		seen[ev.Instrument] = true
	}
	var out []model.Instrument
	for _, inst := range model.Instruments() {
		if seen[inst] {
			out = append(out, inst)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
