// Package timeline derives the ordered expectation list from a chart.
package timeline

import (
	"math"
	"sort"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/tempo"
)

// Expectation is one expected onset.
type Expectation struct {
	TimeMs       float64
	Beat         float64
	Instrument   model.Instrument
	VelocityHint uint8
	MeasureIndex uint32
	IsGhost      bool
}

// Build converts validated chart events into expectations ordered by time,
// keeping declaration order for simultaneous onsets.
func Build(events []chart.Event, m *tempo.Map, beatsPerBar int) []Expectation {
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	out := make([]Expectation, 0, len(events))
	for _, ev := range events {
		out = append(out, Expectation{
			TimeMs:       m.TimeAtBeat(ev.Beat),
			Beat:         ev.Beat,
			Instrument:   ev.Instrument,
			VelocityHint: ev.Velocity,
			MeasureIndex: uint32(math.Floor(ev.Beat / float64(beatsPerBar))),
			IsGhost:      ev.Ghost,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return out
}

// Window returns the indices of expectations with beats in [start, end).
func Window(tl []Expectation, startBeat, endBeat float64) []int {
	var idx []int
	for i, e := range tl {
		if e.Beat >= startBeat && e.Beat < endBeat {
			idx = append(idx, i)
		}
	}
	return idx
}

// Scored counts the expectations that take part in grading.
func Scored(tl []Expectation) int {
	n := 0
	for _, e := range tl {
		if !e.IsGhost {
			n++
		}
	}
	return n
}

// Measures returns the number of measures the timeline spans.
func Measures(tl []Expectation) int {
	if len(tl) == 0 {
		return 0
	}
	return int(tl[len(tl)-1].MeasureIndex) + 1
}
