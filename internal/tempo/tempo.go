// Package tempo maps musical position in beats to chart time in milliseconds.
package tempo

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultMicrosPerBeat is 120 BPM, used when a chart declares no tempo.
const DefaultMicrosPerBeat = 500000

// ErrInvalidTempo reports a malformed tempo segment list.
var ErrInvalidTempo = errors.New("invalid tempo")

// Segment is a constant tempo starting at StartBeat.
type Segment struct {
	StartBeat     float64 `toml:"beat"`
	MicrosPerBeat float64 `toml:"us_per_beat"`
}

// BPM returns the segment tempo in beats per minute.
func (s Segment) BPM() float64 {
	return 60_000_000 / s.MicrosPerBeat
}

// Map is an immutable tempo map. It is safe for concurrent readers.
type Map struct {
	segs []Segment
	// startMs[i] is the chart time at which segs[i] begins.
	startMs []float64
}

// New validates segments and builds a map. An empty list yields 120 BPM.
func New(segments []Segment) (*Map, error) {
	if len(segments) == 0 {
		segments = []Segment{{StartBeat: 0, MicrosPerBeat: DefaultMicrosPerBeat}}
	}
	segs := make([]Segment, len(segments))
	copy(segs, segments)

	for i, s := range segs {
		if !finite(s.StartBeat) || !finite(s.MicrosPerBeat) {
			return nil, fmt.Errorf("%w: segment %d is not finite", ErrInvalidTempo, i)
		}
		if s.MicrosPerBeat <= 0 {
			return nil, fmt.Errorf("%w: segment %d has %g us per beat", ErrInvalidTempo, i, s.MicrosPerBeat)
		}
		if i == 0 && s.StartBeat != 0 {
			return nil, fmt.Errorf("%w: first segment starts at beat %g", ErrInvalidTempo, s.StartBeat)
		}
		if i > 0 && s.StartBeat <= segs[i-1].StartBeat {
			return nil, fmt.Errorf("%w: segment %d overlaps segment %d", ErrInvalidTempo, i, i-1)
		}
	}

	startMs := make([]float64, len(segs))
	for i := 1; i < len(segs); i++ {
		prev := segs[i-1]
		startMs[i] = startMs[i-1] + (segs[i].StartBeat-prev.StartBeat)*prev.MicrosPerBeat/1000
	}
	return &Map{segs: segs, startMs: startMs}, nil
}

// FromBPM builds a single-segment map.
func FromBPM(bpm float64) (*Map, error) {
	if !finite(bpm) || bpm <= 0 {
		return nil, fmt.Errorf("%w: %g bpm", ErrInvalidTempo, bpm)
	}
	return New([]Segment{{StartBeat: 0, MicrosPerBeat: 60_000_000 / bpm}})
}

// TimeAtBeat returns the chart time in ms of beat. Negative beats extrapolate
// the first segment.
func (m *Map) TimeAtBeat(beat float64) float64 {
	i := m.segmentForBeat(beat)
	s := m.segs[i]
	return m.startMs[i] + (beat-s.StartBeat)*s.MicrosPerBeat/1000
}

// BeatAtTime is the inverse of TimeAtBeat.
func (m *Map) BeatAtTime(ms float64) float64 {
	i := m.segmentForTime(ms)
	s := m.segs[i]
	return s.StartBeat + (ms-m.startMs[i])*1000/s.MicrosPerBeat
}

// BeatDurationAt returns the length of one beat in ms at the given position.
func (m *Map) BeatDurationAt(beat float64) float64 {
	return m.segs[m.segmentForBeat(beat)].MicrosPerBeat / 1000
}

// BPMAt returns the tempo in effect at beat.
func (m *Map) BPMAt(beat float64) float64 {
	return m.segs[m.segmentForBeat(beat)].BPM()
}

// Segments returns a copy of the tempo segments.
func (m *Map) Segments() []Segment {
	out := make([]Segment, len(m.segs))
	copy(out, m.segs)
	return out
}

func (m *Map) segmentForBeat(beat float64) int {
	// First segment whose start is after beat, minus one.
	i := sort.Search(len(m.segs), func(i int) bool { return m.segs[i].StartBeat > beat })
	if i == 0 {
		return 0
	}
	return i - 1
}

func (m *Map) segmentForTime(ms float64) int {
	i := sort.Search(len(m.startMs), func(i int) bool { return m.startMs[i] > ms })
	if i == 0 {
		return 0
	}
	return i - 1
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
