// Package generator builds practice drill charts.
package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/tempo"
)

const (
	accentVelocity  = 110
	beatVelocity    = 96
	offbeatVelocity = 80
	ghostVelocity   = 28
)

// DefaultPool is the kit used when no instruments are given.
var DefaultPool = []model.Instrument{
	model.Kick, model.Snare, model.HiHatClosed, model.HiHatOpen,
	model.TomHigh, model.TomLow, model.TomFloor, model.Ride, model.Crash,
}

// Options shape a drill.
type Options struct {
	Title       string
	Bars        int
	BeatsPerBar int
	// Subdivision is the number of grid cells per beat.
	Subdivision int
	BPM         float64
	Pool        []model.Instrument
	// Density is the chance that a grid cell gets a note.
	Density float64
	// GhostPct is the chance that an off-beat snare is played as a ghost note.
	GhostPct float64
}

// DefaultOptions returns a four bar eighth-note drill at 90 BPM.
func DefaultOptions() Options {
	return Options{
		Title:       "drill",
		Bars:        4,
		BeatsPerBar: 4,
		Subdivision: 2,
		BPM:         90,
		Pool:        DefaultPool,
		Density:     0.6,
		GhostPct:    0.2,
	}
}

// Generator produces randomized drill charts.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a Generator with a fixed seed.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate picks instruments uniformly from the pool.
func (g *Generator) Generate(opts Options) (*chart.Chart, error) {
	return g.GenerateWeighted(opts, nil, 0)
}

// GenerateWeighted picks instruments with a bias toward weak ones. Each weak
// instrument weighs 1+factor against 1 for the rest of the pool.
func (g *Generator) GenerateWeighted(opts Options, weak []model.Instrument, factor float64) (*chart.Chart, error) {
	if err := check(opts); err != nil {
		return nil, err
	}
	pool := opts.Pool
	if len(pool) == 0 {
		pool = DefaultPool
	}
	weakSet := make(map[model.Instrument]struct{}, len(weak))
	for _, inst := range weak {
		weakSet[inst] = struct{}{}
	}
	weights := make([]float64, len(pool))
	total := 0.0
	for i, inst := range pool {
		w := 1.0
		if _, ok := weakSet[inst]; ok {
			w += factor
		}
		weights[i] = w
		total += w
	}

	step := 1 / float64(opts.Subdivision)
	cells := opts.Bars * opts.BeatsPerBar * opts.Subdivision
	var events []chart.Event
	for cell := 0; cell < cells; cell++ {
		beat := float64(cell) * step
		onBeat := cell%opts.Subdivision == 0
		barStart := cell%(opts.BeatsPerBar*opts.Subdivision) == 0
		if barStart {
			events = append(events, chart.Event{Beat: beat, Instrument: model.Kick, Velocity: accentVelocity})
		}
		if g.rnd.Float64() >= opts.Density {
			continue
		}
		inst := pool[pick(g.rnd, weights, total)]
		if barStart && inst == model.Kick {
			continue
		}
		ev := chart.Event{Beat: beat, Instrument: inst, Velocity: offbeatVelocity}
		if onBeat {
			ev.Velocity = beatVelocity
		}
		if inst == model.Snare && !onBeat && g.rnd.Float64() < opts.GhostPct {
			ev.Velocity = ghostVelocity
			ev.Ghost = true
		}
		events = append(events, ev)
	}

	c := &chart.Chart{
		Title:       opts.Title,
		BeatsPerBar: opts.BeatsPerBar,
		Tempo:       []tempo.Segment{{StartBeat: 0, MicrosPerBeat: 60_000_000 / opts.BPM}},
		Events:      events,
	}
	if _, err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func pick(rnd *rand.Rand, weights []float64, total float64) int {
	r := rnd.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}

func check(opts Options) error {
	switch {
	case opts.Bars <= 0:
		return fmt.Errorf("bars must be positive, got %d", opts.Bars)
	case opts.BeatsPerBar <= 0:
		return fmt.Errorf("beats per bar must be positive, got %d", opts.BeatsPerBar)
	case opts.Subdivision <= 0:
		return fmt.Errorf("subdivision must be positive, got %d", opts.Subdivision)
	case opts.BPM <= 0:
		return fmt.Errorf("bpm must be positive, got %g", opts.BPM)
	case opts.Density < 0 || opts.Density > 1:
		return fmt.Errorf("density must be within [0,1], got %g", opts.Density)
	}
	for _, inst := range opts.Pool {
		if !inst.Valid() {
			return fmt.Errorf("pool contains an invalid instrument")
		}
	}
	return nil
}
