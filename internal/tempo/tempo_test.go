package tempo

import (
	"errors"
	"math"
	"testing"
)

func TestEmptyMapDefaultsTo120(t *testing.T) {
	m, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := m.TimeAtBeat(2); got != 1000 {
		t.Fatalf("expected beat 2 at 1000ms, got %v", got)
	}
	if got := m.BPMAt(0); got != 120 {
		t.Fatalf("expected 120 bpm, got %v", got)
	}
}

func TestVariableTempo(t *testing.T) {
	m, err := New([]Segment{
		{StartBeat: 0, MicrosPerBeat: 500000},
		{StartBeat: 4, MicrosPerBeat: 1000000},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := m.TimeAtBeat(4); got != 2000 {
		t.Fatalf("expected 2000, got %v", got)
	}
	if got := m.TimeAtBeat(6); got != 4000 {
		t.Fatalf("expected 4000, got %v", got)
	}
	if got := m.BeatAtTime(3000); got != 5 {
		t.Fatalf("expected beat 5, got %v", got)
	}
	if got := m.BeatDurationAt(5); got != 1000 {
		t.Fatalf("expected 1000ms beat, got %v", got)
	}
	if got := m.BeatDurationAt(3.99); got != 500 {
		t.Fatalf("expected 500ms beat, got %v", got)
	}
}

func TestInverseLaw(t *testing.T) {
	m, err := New([]Segment{
		{StartBeat: 0, MicrosPerBeat: 500000},
		{StartBeat: 3.5, MicrosPerBeat: 428571},
		{StartBeat: 10, MicrosPerBeat: 750000},
		{StartBeat: 17.25, MicrosPerBeat: 300000},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	prev := math.Inf(-1)
	for b := 0.0; b < 40; b += 0.125 {
		ms := m.TimeAtBeat(b)
		if ms < prev {
			t.Fatalf("time not monotonic at beat %v", b)
		}
		prev = ms
		if back := m.BeatAtTime(ms); math.Abs(back-b) > 1e-9 {
			t.Fatalf("beat %v round-tripped to %v", b, back)
		}
	}
}

func TestInvalidTempo(t *testing.T) {
	cases := map[string][]Segment{
		"zero":        {{StartBeat: 0, MicrosPerBeat: 0}},
		"negative":    {{StartBeat: 0, MicrosPerBeat: -1}},
		"late start":  {{StartBeat: 1, MicrosPerBeat: 500000}},
		"overlap":     {{StartBeat: 0, MicrosPerBeat: 500000}, {StartBeat: 0, MicrosPerBeat: 400000}},
		"decreasing":  {{StartBeat: 0, MicrosPerBeat: 500000}, {StartBeat: 4, MicrosPerBeat: 400000}, {StartBeat: 2, MicrosPerBeat: 400000}},
		"nan":         {{StartBeat: 0, MicrosPerBeat: math.NaN()}},
		"inf segment": {{StartBeat: 0, MicrosPerBeat: 500000}, {StartBeat: math.Inf(1), MicrosPerBeat: 1}},
	}
	for name, segs := range cases {
		if _, err := New(segs); !errors.Is(err, ErrInvalidTempo) {
			t.Fatalf("%s: expected ErrInvalidTempo, got %v", name, err)
		}
	}
	if _, err := FromBPM(0); !errors.Is(err, ErrInvalidTempo) {
		t.Fatalf("expected ErrInvalidTempo for 0 bpm, got %v", err)
	}
}

func TestSegmentsIsCopy(t *testing.T) {
	m, err := FromBPM(120)
	if err != nil {
		t.Fatalf("from bpm: %v", err)
	}
	segs := m.Segments()
	segs[0].MicrosPerBeat = 1
	if m.BPMAt(0) != 120 {
		t.Fatalf("map mutated through Segments copy")
	}
}
