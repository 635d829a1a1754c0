package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/session"
	"github.com/verte-zerg/tuidrum/internal/timeline"
)

const (
	cellsPerBeat = 4
	barsShown    = 2
	feedSize     = 6
)

// View implements tea.Model.
func (m *Model) View() string {
	c := m.sess.Chart()
	if c == nil {
		return ""
	}
	var sections []string
	sections = append(sections, m.renderHeader())
	if m.sess.Tag() == session.TagReview && m.review != "" {
		sections = append(sections, reviewStyle.Render(m.review))
	} else {
		if m.countdown > 0 {
			sections = append(sections, countStyle.Render(fmt.Sprintf("%d", m.countdown)))
		}
		sections = append(sections, m.renderLanes())
		if feed := m.renderFeed(); feed != "" {
			sections = append(sections, feed)
		}
	}
	sections = append(sections, m.renderFooter())
	if m.status != "" {
		sections = append(sections, warnStyle.Render(m.status))
	}
	sections = append(sections, m.help.View(m.keyMap))
	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderHeader() string {
	c := m.sess.Chart()
	cfg := m.sess.Config()
	loops := fmt.Sprintf("%d loops", cfg.LoopCount)
	if cfg.FreePlay() {
		loops = "free play"
	}
	bpm := m.sess.TempoMap().BPMAt(m.sess.Playhead()) * cfg.TempoScale
	line := fmt.Sprintf("%s  [%s]  %.0f BPM (x%.2f)  %s  beats %g-%g",
		c.Title, m.sess.Tag(), bpm, cfg.TempoScale, loops, cfg.LoopStartBeat, cfg.LoopEndBeat)
	if elapsed, pass := m.sess.LoopProgress(); pass > 0 {
		line += "  " + formatProgress(elapsed, pass)
	}
	return titleStyle.Render(line)
}

func formatProgress(elapsedMs, passMs float64) string {
	return fmt.Sprintf("%.1fs/%.1fs", elapsedMs/1000, passMs/1000)
}

func (m *Model) renderLanes() string {
	c := m.sess.Chart()
	cfg := m.sess.Config()
	playhead := m.sess.Playhead()
	from, to := viewWindow(cfg.LoopStartBeat, cfg.LoopEndBeat, playhead, c.BeatsPerBar)
	insts := c.Instruments()
	grid := laneGrid(m.sess.Timeline(), insts, from, to)

	labelWidth := 0
	for _, inst := range insts {
		labelWidth = max(labelWidth, runewidth.StringWidth(inst.String()))
	}
	lines := make([]string, 0, len(grid)+1)
	for i, row := range grid {
		label := laneStyle.Render(runewidth.FillRight(insts[i].String(), labelWidth))
		lines = append(lines, label+" "+noteStyle.Render(row))
	}
	col := int(math.Floor((playhead - from) * cellsPerBeat))
	if col >= 0 {
		marker := strings.Repeat(" ", labelWidth+1+col) + "^"
		lines = append(lines, playStyle.Render(marker))
	}
	return strings.Join(lines, "\n")
}

// viewWindow returns the bars around playhead, clipped to the loop.
func viewWindow(loopStart, loopEnd, playhead float64, beatsPerBar int) (float64, float64) {
	bpb := float64(max(beatsPerBar, 1))
	from := loopStart + math.Floor((playhead-loopStart)/bpb)*bpb
	from = math.Max(from, loopStart)
	to := math.Min(from+barsShown*bpb, loopEnd)
	return from, to
}

// laneGrid draws one drum-tab row per instrument over [from, to).
// Cymbals are x, drums o, ghosts g; beat boundaries are |.
func laneGrid(tl []timeline.Expectation, insts []model.Instrument, from, to float64) []string {
	cells := int(math.Ceil((to - from) * cellsPerBeat))
	if cells <= 0 {
		return make([]string, len(insts))
	}
	rows := make([][]byte, len(insts))
	index := make(map[model.Instrument]int, len(insts))
	for i, inst := range insts {
		index[inst] = i
		row := make([]byte, cells)
		for c := range row {
			row[c] = '-'
			if c%cellsPerBeat == 0 {
				row[c] = '|'
			}
		}
		rows[i] = row
	}
	for _, e := range timeline.Window(tl, from, to) {
		exp := tl[e]
		r, ok := index[exp.Instrument]
		if !ok {
			continue
		}
		c := int(math.Round((exp.Beat - from) * cellsPerBeat))
		if c < 0 || c >= cells {
			continue
		}
		rows[r][c] = noteGlyph(exp)
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = string(row)
	}
	return out
}

func noteGlyph(e timeline.Expectation) byte {
	if e.IsGhost {
		return 'g'
	}
	switch e.Instrument {
	case model.HiHatClosed, model.HiHatOpen, model.HiHatFoot, model.Ride, model.Crash, model.Splash, model.China:
		return 'x'
	default:
		return 'o'
	}
}

func (m *Model) renderFeed() string {
	js := m.sess.Judgments()
	if len(js) == 0 {
		return ""
	}
	start := max(len(js)-feedSize, 0)
	lines := make([]string, 0, feedSize)
	for _, j := range js[start:] {
		lines = append(lines, judgedStyles[j.Category].Render(formatJudgment(j)))
	}
	return strings.Join(lines, "\n")
}

func formatJudgment(j model.Judgment) string {
	text := fmt.Sprintf("pass %d  %-12s %s", j.Pass+1, j.Instrument, j.Category)
	if j.ErrorMs != nil {
		text += fmt.Sprintf(" %+.0fms", *j.ErrorMs)
	}
	if j.Velocity != nil {
		text += " " + model.DynamicOf(*j.Velocity).String()
	}
	return text
}

func (m *Model) renderFooter() string {
	segments := []string{}
	if m.hasLast {
		segments = append(segments, fmt.Sprintf("Last %.1f%%", m.lastAcc*100))
	}
	if m.allRuns > 0 {
		segments = append(segments, fmt.Sprintf("All-time %.1f%% · %d runs", m.allAcc*100, m.allRuns))
	}
	footer := footerStyle.Render(strings.Join(segments, "  "))
	if m.sess != nil && m.sess.Degraded() {
		footer += "  " + warnStyle.Render("input degraded")
	}
	return footer
}
