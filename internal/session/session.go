// Package session drives a practice run from chart import to review.
package session

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/match"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/stats"
	"github.com/verte-zerg/tuidrum/internal/tempo"
	"github.com/verte-zerg/tuidrum/internal/ticker"
	"github.com/verte-zerg/tuidrum/internal/timeline"
)

var (
	// ErrInvalidTransition reports an operation the current state does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidConfig reports an out-of-range session setting.
	ErrInvalidConfig = errors.New("invalid config")
)

// DefaultWindows are the tolerance settings used when none are configured.
var DefaultWindows = model.Windows{
	MatchPct:    0.25,
	MatchCapMs:  75,
	OnTimePct:   0.1,
	OnTimeCapMs: 20,
}

// DefaultConfig returns a four-loop Test run with a one bar countdown.
func DefaultConfig() model.SessionConfig {
	return model.SessionConfig{
		LoopCount:     4,
		TempoScale:    1,
		CountdownBars: 1,
		Windows:       DefaultWindows,
	}
}

// Result is the frozen outcome of a Test run handed to persistence.
type Result struct {
	RunID      string
	ChartTitle string
	StartedAt  time.Time
	EndedAt    time.Time
	Config     model.SessionConfig
	Judgments  []model.Judgment
	Summary    model.Summary
	Degraded   bool
	Dropped    uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaults sets the config applied on chart import.
func WithDefaults(cfg model.SessionConfig) Option {
	return func(s *Session) {
		s.defaults = cfg
	}
}

// WithWallClock sets the clock used for result timestamps.
func WithWallClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.wallNow = now
		}
	}
}

// Session is the practice state machine. It is owned by the frame context;
// only the ingestor it drains is shared with the input context.
type Session struct {
	logger   *zap.Logger
	wallNow  func() time.Time
	ing      *input.Ingestor
	defaults model.SessionConfig

	state State
	chart *chart.Chart
	tm    *tempo.Map
	tl    []timeline.Expectation
	cfg   model.SessionConfig

	ticker    *ticker.Ticker
	matcher   *match.Matcher
	judgments []model.Judgment
	result    *Result
	hitBuf    []input.LiveHit

	runID        string
	startedAt    time.Time
	tickMs       float64
	ticks        int
	ticksEmitted int
	cdStartMs    float64
	passStartMs  float64
	playMs       float64
	addedThrough int
	lastMs       float64
}

// New creates an idle session draining ing.
func New(ing *input.Ingestor, opts ...Option) *Session {
	s := &Session{
		logger:   zap.NewNop(),
		wallNow:  time.Now,
		ing:      ing,
		defaults: DefaultConfig(),
		state:    Idle{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ing == nil {
		s.ing = input.NewIngestor(nil, input.WithLogger(s.logger))
	}
	return s
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Tag returns the current state tag.
func (s *Session) Tag() Tag { return s.state.Tag() }

// Config returns the active config.
func (s *Session) Config() model.SessionConfig { return s.cfg }

// Chart returns the loaded chart or nil.
func (s *Session) Chart() *chart.Chart { return s.chart }

// Timeline returns the read-only expectation timeline.
func (s *Session) Timeline() []timeline.Expectation { return s.tl }

// TempoMap returns the read-only tempo map.
func (s *Session) TempoMap() *tempo.Map { return s.tm }

// Ingestor returns the ingestor the session drains.
func (s *Session) Ingestor() *input.Ingestor { return s.ing }

// Playhead returns the current beat.
func (s *Session) Playhead() float64 {
	if s.ticker == nil {
		return s.cfg.LoopStartBeat
	}
	return s.ticker.Beat()
}

// LoopProgress returns wall ms into the current pass and the pass length.
// Both are zero outside a run.
func (s *Session) LoopProgress() (elapsedMs, passMs float64) {
	if s.ticker == nil {
		return 0, 0
	}
	return s.ticker.ElapsedInLoopMs(), s.ticker.PassDurationMs()
}

// Judgments returns a copy of the live judgment list.
func (s *Session) Judgments() []model.Judgment {
	out := make([]model.Judgment, len(s.judgments))
	copy(out, s.judgments)
	return out
}

// Result returns the frozen result while in Review.
func (s *Session) Result() (*Result, bool) {
	return s.result, s.result != nil
}

// Degraded reports whether hits were dropped during the current run.
func (s *Session) Degraded() bool {
	return s.ing.Queue().Degraded()
}

// ImportChart validates c and installs it. On failure the session stays Idle.
func (s *Session) ImportChart(c *chart.Chart) error {
	if _, ok := s.state.(Idle); !ok {
		return s.invalid("import chart")
	}
	if c == nil {
		return fmt.Errorf("%w: nil chart", chart.ErrInvalidChart)
	}
	s.state = Loading{}
	tm, err := c.Validate()
	if err != nil {
		s.state = Idle{}
		s.logger.Warn("chart rejected", zap.String("title", c.Title), zap.Error(err))
		return err
	}
	cfg := s.defaults
	length := c.LengthBeats()
	if cfg.LoopEndBeat <= cfg.LoopStartBeat || cfg.LoopStartBeat >= length {
		cfg.LoopStartBeat = 0
		cfg.LoopEndBeat = length
	}
	if err := validateConfig(cfg); err != nil {
		s.state = Idle{}
		return err
	}
	s.chart = c
	s.tm = tm
	s.tl = timeline.Build(c.Events, tm, c.BeatsPerBar)
	s.cfg = cfg
	s.state = Ready{}
	s.logger.Info("chart loaded",
		zap.String("title", c.Title),
		zap.Int("expectations", len(s.tl)),
		zap.Float64("length_beats", length))
	return nil
}

// SetConfig replaces the config wholesale.
func (s *Session) SetConfig(cfg model.SessionConfig) error {
	if _, ok := s.state.(Ready); !ok {
		return s.invalid("set config")
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// SetLoop replaces the loop region. An end of zero means the end of the chart.
func (s *Session) SetLoop(startBeat, endBeat float64) error {
	if _, ok := s.state.(Ready); !ok {
		return s.invalid("set loop")
	}
	if endBeat == 0 {
		endBeat = s.chart.LengthBeats()
	}
	cfg := s.cfg
	cfg.LoopStartBeat = startBeat
	cfg.LoopEndBeat = endBeat
	return s.SetConfig(cfg)
}

// SetTempoScale replaces the playback speed multiplier.
func (s *Session) SetTempoScale(scale float64) error {
	cfg := s.cfg
	cfg.TempoScale = scale
	return s.SetConfig(cfg)
}

// MapPads installs a new note mapping on the ingestor.
func (s *Session) MapPads(m input.Mapper) error {
	if _, ok := s.state.(Ready); !ok {
		return s.invalid("map pads")
	}
	if m == nil {
		return fmt.Errorf("%w: nil pad mapping", ErrInvalidConfig)
	}
	p := *s.ing.Profile()
	p.Mapper = m
	s.ing.SetProfile(&p)
	return nil
}

// PressReady starts the countdown for the first pass at session time now.
func (s *Session) PressReady(now float64) error {
	if _, ok := s.state.(Ready); !ok {
		return s.invalid("press ready")
	}
	tk, err := ticker.New(s.tm, s.cfg.LoopStartBeat, s.cfg.LoopEndBeat, s.cfg.TempoScale)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	p := *s.ing.Profile()
	p.LatencyOffsetMs = s.cfg.LatencyOffsetMs
	s.ing.SetProfile(&p)
	s.ing.Queue().Reset()

	var compatible func(uint8, model.Instrument) bool
	if p.Mapper != nil {
		compatible = p.Mapper.Compatible
	}
	s.ticker = tk
	s.matcher = match.New(s.tl, s.tm, match.Config{
		Windows:       s.cfg.Windows,
		TempoScale:    s.cfg.TempoScale,
		LoopStartBeat: s.cfg.LoopStartBeat,
		LoopEndBeat:   s.cfg.LoopEndBeat,
		Compatible:    compatible,
	})
	s.judgments = nil
	s.result = nil
	s.runID = uuid.NewString()
	s.startedAt = s.wallNow()
	s.tickMs = s.tm.BeatDurationAt(s.cfg.LoopStartBeat) / s.cfg.TempoScale
	s.ticks = s.cfg.CountdownBars * s.chart.BeatsPerBar
	s.lastMs = now
	s.addedThrough = -1

	s.startCountdown(0, now)
	s.logger.Info("run started",
		zap.String("run_id", s.runID),
		zap.Int("loops", s.cfg.LoopCount),
		zap.Float64("tempo_scale", s.cfg.TempoScale))
	return nil
}

// Frame advances the run to session time now and grades newly available hits.
// Outside Countdown, Playing and Stopped it only discards queued hits.
func (s *Session) Frame(now float64) ([]Event, error) {
	switch s.state.(type) {
	case Countdown, Playing, Stopped:
	default:
		s.hitBuf = s.ing.Queue().Drain(s.hitBuf[:0])
		return nil, nil
	}
	if now < s.lastMs {
		now = s.lastMs
	}
	s.lastMs = now

	s.ingest()
	var events []Event
	for {
		var progressed bool
		events, progressed = s.step(now, events)
		if !progressed {
			break
		}
	}
	s.judge(s.matcher.Advance(now - s.cfg.LatencyOffsetMs))

	if _, ok := s.state.(Stopped); ok && s.matcher.Settled() {
		events = append(events, s.finish(now)...)
	}
	return events, nil
}

// Stop ends the run at session time now. Expectations not yet reached are
// discarded. A countdown before the first pass returns to Ready.
func (s *Session) Stop(now float64) error {
	switch st := s.state.(type) {
	case Countdown:
		if st.Pass == 0 {
			s.clearRun()
			s.state = Ready{}
			return nil
		}
	case Playing:
	default:
		return s.invalid("stop")
	}
	s.matcher.DropAfter(now)
	s.state = Stopped{}
	s.logger.Info("run stopped", zap.String("run_id", s.runID), zap.Float64("at_ms", now))
	return nil
}

// Exit leaves Review for Ready. From any other state it aborts to Idle.
func (s *Session) Exit() {
	if _, ok := s.state.(Review); ok {
		s.clearRun()
		s.state = Ready{}
		return
	}
	s.Abort()
}

// Abort discards everything and returns to Idle.
func (s *Session) Abort() {
	s.clearRun()
	s.chart = nil
	s.tm = nil
	s.tl = nil
	s.state = Idle{}
}

func (s *Session) clearRun() {
	s.ticker = nil
	s.matcher = nil
	s.judgments = nil
	s.result = nil
	s.hitBuf = s.hitBuf[:0]
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, op, s.state.Tag())
}

func (s *Session) ingest() {
	s.hitBuf = s.ing.Queue().Drain(s.hitBuf[:0])
	_, stopped := s.state.(Stopped)
	for _, h := range s.hitBuf {
		if stopped && !s.matcher.IsCandidate(h) {
			continue
		}
		s.matcher.AddHit(h)
	}
}

func (s *Session) countdownMs() float64 {
	return float64(s.ticks) * s.tickMs
}

func (s *Session) startCountdown(pass int, at float64) {
	s.cdStartMs = at
	s.ticksEmitted = 0
	s.passStartMs = at + s.countdownMs()
	s.addPass(pass, s.passStartMs)
	s.state = Countdown{TicksRemaining: s.ticks, Pass: pass}
}

func (s *Session) addPass(pass int, startMs float64) {
	if pass <= s.addedThrough {
		return
	}
	s.matcher.AddPass(pass, startMs)
	s.addedThrough = pass
}

// hasPass reports whether pass will be played.
func (s *Session) hasPass(pass int) bool {
	return s.cfg.FreePlay() || pass < s.cfg.LoopCount
}

func (s *Session) step(now float64, events []Event) ([]Event, bool) {
	switch st := s.state.(type) {
	case Countdown:
		for s.ticksEmitted < s.ticks {
			at := s.cdStartMs + float64(s.ticksEmitted)*s.tickMs
			if now < at {
				break
			}
			s.ticksEmitted++
			st.TicksRemaining = s.ticks - s.ticksEmitted
			events = append(events, Event{Kind: CountTick, Pass: st.Pass, AtMs: at, Remaining: st.TicksRemaining})
		}
		s.state = st
		if now < s.passStartMs {
			return events, false
		}
		remaining := -1
		if !s.cfg.FreePlay() {
			remaining = s.cfg.LoopCount - st.Pass
		}
		events = append(events, Event{Kind: PrerollComplete, Pass: st.Pass, AtMs: s.passStartMs})
		return s.beginPass(st.Pass, remaining, events), true

	case Playing:
		crossings := s.ticker.Advance(now - s.playMs)
		s.playMs = now
		for k := 0; k < crossings; k++ {
			end := s.passStartMs + s.ticker.PassDurationMs()
			events = append(events, Event{Kind: LoopEnd, Pass: st.Pass, AtMs: end})
			left := st.LoopsRemaining
			if left > 0 {
				left--
			}
			switch {
			case left == 0:
				s.ticker.Reset()
				s.state = Stopped{}
				events = append(events, Event{Kind: StoppedEvent, Pass: st.Pass, AtMs: end})
				s.logger.Info("run complete", zap.String("run_id", s.runID), zap.Int("passes", st.Pass+1))
				return events, true
			case s.cfg.CountdownEveryLoop:
				s.ticker.Reset()
				s.startCountdown(st.Pass+1, end)
				return events, true
			default:
				s.passStartMs = end
				events = s.enterPass(st.Pass+1, events)
				st = Playing{LoopsRemaining: left, Pass: st.Pass + 1}
				s.state = st
			}
		}
		return events, false
	}
	return events, false
}

// beginPass moves from the countdown into playing pass at passStartMs.
func (s *Session) beginPass(pass, remaining int, events []Event) []Event {
	s.ticker.Reset()
	s.playMs = s.passStartMs
	s.state = Playing{LoopsRemaining: remaining, Pass: pass}
	return s.enterPass(pass, events)
}

func (s *Session) enterPass(pass int, events []Event) []Event {
	if s.cfg.FreePlay() {
		kept := s.judgments[:0]
		for _, j := range s.judgments {
			if j.Pass >= pass {
				kept = append(kept, j)
			}
		}
		s.judgments = kept
	}
	if s.hasPass(pass + 1) {
		next := s.passStartMs + s.ticker.PassDurationMs()
		if s.cfg.CountdownEveryLoop {
			next += s.countdownMs()
		}
		s.addPass(pass+1, next)
	}
	s.logger.Debug("pass start", zap.Int("pass", pass), zap.Float64("at_ms", s.passStartMs))
	return append(events, Event{Kind: PassStart, Pass: pass, AtMs: s.passStartMs})
}

// judge appends resolved judgments. In Free Play a late judgment of the
// previous pass is still shown until the next restart clears it.
func (s *Session) judge(js []model.Judgment) {
	s.judgments = append(s.judgments, js...)
}

func (s *Session) finish(now float64) []Event {
	if s.cfg.FreePlay() {
		s.clearRun()
		s.state = Ready{}
		s.logger.Info("free play ended")
		return nil
	}
	frozen := make([]model.Judgment, len(s.judgments))
	copy(frozen, s.judgments)
	match.Sort(frozen)
	s.result = &Result{
		RunID:      s.runID,
		ChartTitle: s.chart.Title,
		StartedAt:  s.startedAt,
		EndedAt:    s.wallNow(),
		Config:     s.cfg,
		Judgments:  frozen,
		Summary:    stats.Summarize(frozen),
		Degraded:   s.ing.Queue().Degraded(),
		Dropped:    s.ing.Queue().Dropped(),
	}
	s.state = Review{}
	s.logger.Info("review ready",
		zap.String("run_id", s.runID),
		zap.Float64("accuracy", s.result.Summary.Accuracy),
		zap.Bool("degraded", s.result.Degraded))
	return []Event{{Kind: ReviewReady, AtMs: now}}
}

func validateConfig(cfg model.SessionConfig) error {
	switch {
	case !finite(cfg.TempoScale) || cfg.TempoScale <= 0:
		return fmt.Errorf("%w: tempo scale must be positive, got %g", ErrInvalidConfig, cfg.TempoScale)
	case !finite(cfg.LoopStartBeat) || !finite(cfg.LoopEndBeat) || cfg.LoopStartBeat < 0:
		return fmt.Errorf("%w: loop start must be a non-negative beat", ErrInvalidConfig)
	case cfg.LoopEndBeat <= cfg.LoopStartBeat:
		return fmt.Errorf("%w: loop end %g must follow start %g", ErrInvalidConfig, cfg.LoopEndBeat, cfg.LoopStartBeat)
	case cfg.LoopCount < 0:
		return fmt.Errorf("%w: loop count must be non-negative", ErrInvalidConfig)
	case cfg.CountdownBars < 0:
		return fmt.Errorf("%w: countdown bars must be non-negative", ErrInvalidConfig)
	case !finite(cfg.LatencyOffsetMs):
		return fmt.Errorf("%w: latency must be finite", ErrInvalidConfig)
	}
	w := cfg.Windows
	switch {
	case w.MatchPct < 0 || w.MatchCapMs < 0 || w.OnTimePct < 0 || w.OnTimeCapMs < 0:
		return fmt.Errorf("%w: windows must be non-negative", ErrInvalidConfig)
	case w.MatchPct == 0 && w.MatchCapMs == 0:
		return fmt.Errorf("%w: match window must be positive", ErrInvalidConfig)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
