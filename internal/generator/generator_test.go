package generator

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/model"
)

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	opts := DefaultOptions()
	a, err := NewSeeded(7).Generate(opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := NewSeeded(7).Generate(opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected same chart for the same seed")
	}
}

func TestGenerateAnchorsEveryBar(t *testing.T) {
	opts := DefaultOptions()
	opts.Density = 0
	c, err := NewSeeded(1).Generate(opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(c.Events) != opts.Bars {
		t.Fatalf("expected one kick per bar, got %d events", len(c.Events))
	}
	for i, ev := range c.Events {
		if ev.Instrument != model.Kick || ev.Beat != float64(i*opts.BeatsPerBar) {
			t.Fatalf("unexpected anchor %+v", ev)
		}
	}
	if c.LengthBeats() != float64(opts.Bars*opts.BeatsPerBar) {
		t.Fatalf("unexpected length %v", c.LengthBeats())
	}
}

func TestGenerateWeightedFavorsWeak(t *testing.T) {
	opts := DefaultOptions()
	opts.Bars = 64
	opts.Density = 1
	opts.Pool = []model.Instrument{model.Snare, model.Ride}
	c, err := NewSeeded(3).GenerateWeighted(opts, []model.Instrument{model.Ride}, 4)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	counts := map[model.Instrument]int{}
	for _, ev := range c.Events {
		counts[ev.Instrument]++
	}
	if counts[model.Ride] <= 2*counts[model.Snare] {
		t.Fatalf("expected weak ride to dominate, got %v", counts)
	}
}

func TestGenerateMarksGhosts(t *testing.T) {
	opts := DefaultOptions()
	opts.Bars = 16
	opts.Density = 1
	opts.GhostPct = 1
	opts.Pool = []model.Instrument{model.Snare}
	c, err := NewSeeded(5).Generate(opts)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, ev := range c.Events {
		offbeat := ev.Beat != float64(int(ev.Beat))
		if ev.Instrument == model.Snare && offbeat && (!ev.Ghost || ev.Velocity != ghostVelocity) {
			t.Fatalf("expected off-beat snare to be a ghost: %+v", ev)
		}
		if ev.Ghost && !offbeat {
			t.Fatalf("unexpected ghost on the beat: %+v", ev)
		}
	}
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.BPM = 0
	if _, err := NewSeeded(1).Generate(opts); err == nil {
		t.Fatalf("expected error for zero bpm")
	}
	opts = DefaultOptions()
	opts.Pool = []model.Instrument{model.Unmapped}
	if _, err := NewSeeded(1).Generate(opts); err == nil {
		t.Fatalf("expected error for invalid pool")
	}
}

func TestGeneratedChartEncodes(t *testing.T) {
	c, err := NewSeeded(9).Generate(DefaultOptions())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var buf bytes.Buffer
	if err := chart.Encode(&buf, c); err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := chart.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(back.Events) != len(c.Events) || back.Title != c.Title {
		t.Fatalf("unexpected decoded chart: %+v", back)
	}
}
