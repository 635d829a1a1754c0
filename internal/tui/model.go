// Package tui provides the Bubble Tea practice interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/session"
	statsPkg "github.com/verte-zerg/tuidrum/internal/stats"
	"github.com/verte-zerg/tuidrum/internal/store"
)

// DefaultFrameInterval is roughly 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

const (
	minTempoScale  = 0.25
	maxTempoScale  = 2
	tempoScaleStep = 0.05
)

// Options wires a practice model.
type Options struct {
	Session   *session.Session
	Clock     input.Clock
	Keys      *input.KeySource
	KeyPads   map[string]model.Instrument
	Pads      *input.PadMap
	Store     *store.Store
	ChartPath string
	Logger    *zap.Logger
	Interval  time.Duration
}

type frameMsg time.Time

// Model implements the Bubble Tea practice UI.
type Model struct {
	sess      *session.Session
	clock     input.Clock
	keys      *input.KeySource
	notes     map[string]uint8
	store     *store.Store
	chartPath string
	logger    *zap.Logger
	interval  time.Duration
	testLoops int

	keyMap keyMap
	help   help.Model

	width  int
	height int

	countdown int
	status    string
	review    string

	lastAcc float64
	hasLast bool
	allAcc  float64
	allRuns int
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	laneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	playStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	countStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	reviewStyle  = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder(), true).BorderForeground(lipgloss.Color("#4A4A4A"))
	judgedStyles = map[model.Category]lipgloss.Style{
		model.OnTime: lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")),
		model.Early:  lipgloss.NewStyle().Foreground(lipgloss.Color("#40A9FF")),
		model.Late:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14")),
		model.Missed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
		model.Extra:  lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
	}
)

// NewModel constructs a practice model. The session must be Ready.
func NewModel(opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultFrameInterval
	}
	if opts.KeyPads == nil {
		opts.KeyPads = DefaultKeyPads
	}
	m := &Model{
		sess:      opts.Session,
		clock:     opts.Clock,
		keys:      opts.Keys,
		notes:     padNotes(opts.KeyPads, opts.Pads),
		store:     opts.Store,
		chartPath: opts.ChartPath,
		logger:    opts.Logger,
		interval:  opts.Interval,
		testLoops: opts.Session.Config().LoopCount,
		keyMap:    newKeyMap(),
		help:      help.New(),
	}
	if m.testLoops == 0 {
		m.testLoops = session.DefaultConfig().LoopCount
	}
	m.loadFooterStats()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case frameMsg:
		m.frame()
		return m, m.tick()
	case tea.KeyMsg:
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if note, ok := m.notes[msg.String()]; ok {
		if m.keys != nil {
			m.keys.Press(note, keyVelocity)
		}
		return m, nil
	}
	now := m.clock.NowMs()
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.sess.Abort()
		return m, tea.Quit
	case key.Matches(msg, m.keyMap.Start):
		switch m.sess.Tag() {
		case session.TagReady:
			m.setErr(m.sess.PressReady(now))
			m.review = ""
		case session.TagReview:
			m.sess.Exit()
			m.review = ""
		}
	case key.Matches(msg, m.keyMap.Stop):
		switch m.sess.Tag() {
		case session.TagCountdown, session.TagPlaying:
			m.setErr(m.sess.Stop(now))
		}
	case key.Matches(msg, m.keyMap.Faster):
		m.adjustTempo(tempoScaleStep)
	case key.Matches(msg, m.keyMap.Slower):
		m.adjustTempo(-tempoScaleStep)
	case key.Matches(msg, m.keyMap.FreePlay):
		m.toggleFreePlay()
	}
	return m, nil
}

func (m *Model) adjustTempo(delta float64) {
	if m.sess.Tag() != session.TagReady {
		return
	}
	scale := math.Round((m.sess.Config().TempoScale+delta)*100) / 100
	scale = math.Min(math.Max(scale, minTempoScale), maxTempoScale)
	m.setErr(m.sess.SetTempoScale(scale))
}

func (m *Model) toggleFreePlay() {
	if m.sess.Tag() != session.TagReady {
		return
	}
	cfg := m.sess.Config()
	if cfg.FreePlay() {
		cfg.LoopCount = m.testLoops
	} else {
		m.testLoops = cfg.LoopCount
		cfg.LoopCount = 0
	}
	m.setErr(m.sess.SetConfig(cfg))
}

func (m *Model) setErr(err error) {
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

func (m *Model) frame() {
	events, err := m.sess.Frame(m.clock.NowMs())
	if err != nil {
		m.status = err.Error()
		return
	}
	for _, ev := range events {
		switch ev.Kind {
		case session.CountTick:
			m.countdown = ev.Remaining + 1
		case session.PrerollComplete, session.PassStart:
			m.countdown = 0
		case session.ReviewReady:
			m.finishRun()
		}
	}
}

func (m *Model) finishRun() {
	res, ok := m.sess.Result()
	if !ok {
		return
	}
	var b strings.Builder
	if err := statsPkg.RenderResult(&b, res.ChartTitle, res.Summary, statsPkg.PassAccuracy(res.Judgments), res.EndedAt.Sub(res.StartedAt)); err != nil {
		m.status = err.Error()
	}
	if res.Degraded {
		b.WriteString(fmt.Sprintf("Input degraded: %d hits dropped\n", res.Dropped))
	}
	m.review = strings.TrimRight(b.String(), "\n")
	m.lastAcc = res.Summary.Accuracy
	m.hasLast = true
	m.allAcc = (m.allAcc*float64(m.allRuns) + res.Summary.Accuracy) / float64(m.allRuns+1)
	m.allRuns++

	if m.store == nil {
		return
	}
	rec := model.SessionRecord{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
		ChartTitle: res.ChartTitle,
		ChartPath:  m.chartPath,
		LoopCount:  res.Config.LoopCount,
		TempoScale: res.Config.TempoScale,
		Degraded:   res.Degraded,
		Summary:    res.Summary,
	}
	ctx := context.Background()
	if _, err := m.store.InsertSession(ctx, rec, statsPkg.Aggregates(res.Judgments), res.Judgments); err != nil {
		if !errors.Is(err, store.ErrDuplicateRun) {
			m.logger.Error("failed to save session", zap.String("run_id", res.RunID), zap.Error(err))
			m.status = fmt.Sprintf("failed to save session: %v", err)
		}
	}
}

func (m *Model) loadFooterStats() {
	if m.store == nil || m.sess.Chart() == nil {
		return
	}
	sessions, err := m.store.ListSessions(context.Background(), model.StatsConfig{Chart: m.sess.Chart().Title})
	if err != nil {
		logErrf("failed to load session stats: %v\n", err)
		return
	}
	if len(sessions) == 0 {
		return
	}
	m.lastAcc = sessions[len(sessions)-1].Accuracy
	m.hasLast = true
	var sum float64
	for _, s := range sessions {
		sum += s.Accuracy
	}
	m.allRuns = len(sessions)
	m.allAcc = sum / float64(len(sessions))
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
