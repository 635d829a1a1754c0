package timeline

import (
	"math/rand"
	"testing"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/tempo"
)

func TestBuildOrdersAndKeepsChords(t *testing.T) {
	m, err := tempo.New(nil)
	if err != nil {
		t.Fatalf("tempo: %v", err)
	}
	events := []chart.Event{
		{Beat: 4, Instrument: model.Snare, Velocity: 100},
		{Beat: 0, Instrument: model.Crash, Velocity: 110},
		{Beat: 0, Instrument: model.Kick, Velocity: 120},
		{Beat: 2.5, Instrument: model.HiHatClosed, Velocity: 15, Ghost: true},
	}
	tl := Build(events, m, 4)
	if len(tl) != 4 {
		t.Fatalf("expected 4 expectations, got %d", len(tl))
	}
	if tl[0].Instrument != model.Crash || tl[1].Instrument != model.Kick {
		t.Fatalf("chord lost declaration order: %v %v", tl[0].Instrument, tl[1].Instrument)
	}
	if tl[2].TimeMs != 1250 || !tl[2].IsGhost {
		t.Fatalf("unexpected ghost: %+v", tl[2])
	}
	if tl[3].MeasureIndex != 1 || tl[3].TimeMs != 2000 {
		t.Fatalf("unexpected last expectation: %+v", tl[3])
	}
	if Scored(tl) != 3 {
		t.Fatalf("expected 3 scored, got %d", Scored(tl))
	}
	if got := Window(tl, 0, 4); len(got) != 3 {
		t.Fatalf("expected 3 in window, got %v", got)
	}
	if Measures(tl) != 2 {
		t.Fatalf("expected 2 measures, got %d", Measures(tl))
	}
}

func TestBuildNonDecreasing(t *testing.T) {
	m, err := tempo.New([]tempo.Segment{
		{StartBeat: 0, MicrosPerBeat: 500000},
		{StartBeat: 8, MicrosPerBeat: 350000},
	})
	if err != nil {
		t.Fatalf("tempo: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	insts := model.Instruments()
	events := make([]chart.Event, 200)
	for i := range events {
		events[i] = chart.Event{
			Beat:       float64(rng.Intn(64)) / 4,
			Instrument: insts[rng.Intn(len(insts))],
			Velocity:   uint8(rng.Intn(128)),
		}
	}
	tl := Build(events, m, 4)
	for i := 1; i < len(tl); i++ {
		if tl[i].TimeMs < tl[i-1].TimeMs {
			t.Fatalf("timeline decreases at %d: %v < %v", i, tl[i].TimeMs, tl[i-1].TimeMs)
		}
	}
}
