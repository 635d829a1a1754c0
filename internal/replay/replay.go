// Package replay runs a scripted hit stream through a practice session
// without a terminal or an audio clock.
package replay

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/session"
)

const (
	// DefaultFrameMs is the simulated frame interval.
	DefaultFrameMs = 5
	// graceMs is how long past the expected end a run may take to settle.
	graceMs = 10000
)

var (
	// ErrInvalidScript reports a malformed hit script.
	ErrInvalidScript = errors.New("invalid script")
	// ErrUnfinished reports a run that never reached Review.
	ErrUnfinished = errors.New("run did not finish")
)

// Script is a timed list of controller events. Times are session
// milliseconds counted from the moment the run is started.
type Script struct {
	FrameMs float64       `toml:"frame_ms"`
	Events  []ScriptEvent `toml:"event"`
}

// ScriptEvent is a note, given by number or instrument, or a controller value.
type ScriptEvent struct {
	TimeMs     float64 `toml:"time_ms"`
	Note       int     `toml:"note"`
	Instrument string  `toml:"instrument"`
	Velocity   int     `toml:"velocity"`
	Controller *int    `toml:"controller"`
	Value      int     `toml:"value"`
}

// LoadScript decodes a TOML hit script.
func LoadScript(path string) (*Script, error) {
	var s Script
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	return &s, nil
}

// Options configure a replay.
type Options struct {
	Config model.SessionConfig
	Pads   *input.PadMap
	Logger *zap.Logger
	Now    func() time.Time
}

// Run plays s against c until the run reaches Review. Free Play configs are
// rejected since they never end.
func Run(c *chart.Chart, s *Script, opts Options) (*session.Result, error) {
	if opts.Config.FreePlay() {
		return nil, fmt.Errorf("%w: replay needs a loop count", session.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	profile := input.DefaultProfile()
	pads := opts.Pads
	if pads == nil {
		pads = input.DefaultPadMap()
	}
	profile.Mapper = pads

	raws, err := s.rawEvents(pads)
	if err != nil {
		return nil, err
	}
	frame := s.FrameMs
	if frame <= 0 {
		frame = DefaultFrameMs
	}

	ing := input.NewIngestor(profile, input.WithLogger(opts.Logger), input.WithQueueSize(max(len(raws), input.DefaultQueueSize)))
	sess := session.New(ing,
		session.WithLogger(opts.Logger),
		session.WithDefaults(opts.Config),
		session.WithWallClock(opts.Now))
	if err := sess.ImportChart(c); err != nil {
		return nil, err
	}
	if cfg := opts.Config; cfg.LoopStartBeat != 0 || cfg.LoopEndBeat != 0 {
		if err := sess.SetLoop(cfg.LoopStartBeat, cfg.LoopEndBeat); err != nil {
			return nil, err
		}
	}

	clock := &input.ManualClock{}
	sim := input.NewSimSource(clock, raws)
	limit := max(expectedMs(sess), sim.EndMs()) + graceMs
	if err := sess.PressReady(0); err != nil {
		return nil, err
	}
	for now := 0.0; now <= limit; now += frame {
		clock.Set(now)
		for _, ev := range sim.Poll() {
			if err := ing.Handle(ev); err != nil && !errors.Is(err, input.ErrQueueOverflow) {
				return nil, err
			}
		}
		events, err := sess.Frame(now)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.Kind != session.ReviewReady {
				continue
			}
			res, _ := sess.Result()
			return res, nil
		}
	}
	return nil, fmt.Errorf("%w after %.0f ms", ErrUnfinished, limit)
}

// expectedMs is the session time at which every pass has been played.
func expectedMs(sess *session.Session) float64 {
	cfg := sess.Config()
	tm := sess.TempoMap()
	loopMs := (tm.TimeAtBeat(cfg.LoopEndBeat) - tm.TimeAtBeat(cfg.LoopStartBeat)) / cfg.TempoScale
	bars := float64(cfg.CountdownBars * sess.Chart().BeatsPerBar)
	countdownMs := bars * tm.BeatDurationAt(cfg.LoopStartBeat) / cfg.TempoScale
	if cfg.CountdownEveryLoop {
		countdownMs *= float64(cfg.LoopCount)
	}
	return countdownMs + loopMs*float64(cfg.LoopCount)
}

func (s *Script) rawEvents(pads *input.PadMap) ([]input.RawEvent, error) {
	out := make([]input.RawEvent, 0, len(s.Events))
	for i, ev := range s.Events {
		if ev.TimeMs < 0 {
			return nil, fmt.Errorf("%w: event %d has time %g", ErrInvalidScript, i, ev.TimeMs)
		}
		if ev.Controller != nil {
			if err := inRange(i, "controller", *ev.Controller); err != nil {
				return nil, err
			}
			if err := inRange(i, "value", ev.Value); err != nil {
				return nil, err
			}
			out = append(out, input.RawEvent{TimeMs: ev.TimeMs, Kind: input.Control, Note: uint8(*ev.Controller), Velocity: uint8(ev.Value)})
			continue
		}
		note := ev.Note
		if ev.Instrument != "" {
			inst, err := model.ParseInstrument(ev.Instrument)
			if err != nil {
				return nil, fmt.Errorf("%w: event %d: %w", ErrInvalidScript, i, err)
			}
			n, ok := pads.NoteFor(inst)
			if !ok {
				return nil, fmt.Errorf("%w: event %d: no note for %s", ErrInvalidScript, i, inst)
			}
			note = int(n)
		}
		if err := inRange(i, "note", note); err != nil {
			return nil, err
		}
		velocity := ev.Velocity
		if velocity == 0 {
			velocity = 100
		}
		if err := inRange(i, "velocity", velocity); err != nil {
			return nil, err
		}
		out = append(out, input.RawEvent{TimeMs: ev.TimeMs, Kind: input.NoteOn, Note: uint8(note), Velocity: uint8(velocity)})
	}
	return out, nil
}

func inRange(i int, field string, v int) error {
	if v < 0 || v > 127 {
		return fmt.Errorf("%w: event %d %s %d out of range", ErrInvalidScript, i, field, v)
	}
	return nil
}
