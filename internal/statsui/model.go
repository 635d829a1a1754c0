// Package statsui provides the Bubble Tea stats interface.
package statsui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/stats"
	"github.com/verte-zerg/tuidrum/internal/store"
)

const (
	tabOverview = iota
	tabInstTable
	tabInstCurves
)

const (
	plotHeight     = 10
	defaultInsts   = 4
	fallbackWidth  = 80
	narrowCardsMax = 80
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

var (
	errBadSince  = errors.New("invalid since date (expected YYYY-MM-DD)")
	errBadLast   = errors.New("invalid last value (use 0 or positive integer)")
	errBadWindow = errors.New("invalid curve window (use integer >= 1)")
)

// Model implements the Bubble Tea stats UI.
type Model struct {
	store *store.Store
	cfg   model.StatsConfig

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	instTable table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	selection       []model.Instrument
	selectionCustom bool

	instInputMode  bool
	instInput      textinput.Model
	instInputError string
}

// NewModel constructs a stats UI model. An empty insts selects the most
// played instruments.
func NewModel(st *store.Store, cfg model.StatsConfig, insts []model.Instrument) *Model {
	m := &Model{
		store:           st,
		cfg:             cfg,
		tabs:            []string{"Overview", "Instrument Table", "Instrument Curves"},
		selection:       insts,
		selectionCustom: len(insts) > 0,
	}
	m.filterInputs = []textinput.Model{
		newInput("Chart: "),
		newInput("Since (YYYY-MM-DD): "),
		newInput("Last: "),
		newInput("Curve window: "),
	}
	m.instInput = newInput("Instruments: ")
	m.instInput.Placeholder = "kick, snare, hihat-closed"
	m.instTable = table.New(table.WithColumns(instColumns()), table.WithHeight(1))
	m.instTable.SetStyles(instTableStyles())
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (msg.String() == "q" && !m.filterMode && !m.instInputMode) {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if m.instInputMode {
			return m.updateInstInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h":
		m.moveTab(-1)
		return m, tea.ClearScreen
	case "right", "l":
		m.moveTab(1)
		return m, tea.ClearScreen
	case "=":
		m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
		m.refreshReport()
		return m, nil
	case "-":
		m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
		m.refreshReport()
		return m, nil
	case "/":
		m.filterMode = true
		m.filterError = ""
		m.setInputsFromConfig()
		return m, m.setFilterIndex(0)
	case "enter":
		if m.activeTab != tabInstCurves {
			return m, nil
		}
		m.instInputMode = true
		m.instInputError = ""
		m.instInput.SetValue(joinInstruments(m.selection))
		return m, m.instInput.Focus()
	case "g", "home":
		if m.activeTab == tabInstTable {
			m.instTable.GotoTop()
		} else {
			m.viewports[m.activeTab].GotoTop()
		}
		return m, nil
	case "G", "end":
		if m.activeTab == tabInstTable {
			m.instTable.GotoBottom()
		} else {
			m.viewports[m.activeTab].GotoBottom()
		}
		return m, nil
	}
	var cmd tea.Cmd
	if m.activeTab == tabInstTable {
		m.instTable, cmd = m.instTable.Update(msg)
		return m, cmd
	}
	m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.instInputMode {
		return fitLines(m.renderInstModal(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func newInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(activeNavStyle.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) setInputsFromConfig() {
	m.filterInputs[0].SetValue(m.cfg.Chart)
	m.filterInputs[1].SetValue("")
	if m.cfg.Since != nil {
		m.filterInputs[1].SetValue(m.cfg.Since.Format("2006-01-02"))
	}
	m.filterInputs[2].SetValue("")
	if m.cfg.Last > 0 {
		m.filterInputs[2].SetValue(strconv.Itoa(m.cfg.Last))
	}
	m.filterInputs[3].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.instTable.SetWidth(m.width)
	m.instTable.SetHeight(max(bodyHeight-1, 1))
	for i := range m.filterInputs {
		m.filterInputs[i].Width = max(10, m.width-lipgloss.Width(m.filterInputs[i].Prompt)-2)
	}
	m.instInput.Width = max(10, modalInnerWidth(m.width)-lipgloss.Width(m.instInput.Prompt))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	m.activeTab = (m.activeTab + delta + count) % count
	if m.activeTab == tabInstTable {
		m.instTable.Focus()
	} else {
		m.instTable.Blur()
	}
}

func (m *Model) renderHeader() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	tabs := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	return padLines(tabs, m.width) + "\n" + padLines(m.renderFilterSummary(), m.width)
}

func (m *Model) renderFilterSummary() string {
	chart := m.cfg.Chart
	if chart == "" {
		chart = "any"
	}
	since := "any"
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format("2006-01-02")
	}
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	summary := fmt.Sprintf("Settings: chart=%s  since=%s  last=%s  window=%d", chart, since, last, m.cfg.CurveWindow)
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabInstCurves {
		help = "Nav: left/right  Scroll: up/down/pgup/pgdn  Instruments: enter  Window: -/=  Settings: /  Quit: q"
	}
	help = headerStyle.Render(help)
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderBody() string {
	if m.filterMode {
		lines := []string{"Settings (enter to apply, esc to cancel)"}
		for _, input := range m.filterInputs {
			lines = append(lines, input.View())
		}
		if m.filterError != "" {
			lines = append(lines, errorStyle.Render(m.filterError))
		}
		return strings.Join(lines, "\n")
	}
	if m.activeTab == tabInstTable {
		switch {
		case len(m.report.Sessions) == 0:
			return "No sessions found."
		case len(m.report.InstAggsWindow) == 0:
			return "No instrument stats found."
		default:
			return tableMutedStyle.Render(m.instTable.View())
		}
	}
	return m.viewports[m.activeTab].View()
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load stats.")
		}
		return
	}
	m.errMsg = ""
	m.report = report
	if !m.selectionCustom {
		m.selection = stats.TopInstrumentsByVolume(report.InstAggsAll, defaultInsts)
	}
	m.instTable.SetRows(instRows(report.InstAggsWindow))
	m.updateLayout()
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	if m.errMsg != "" {
		return
	}
	width := m.width
	if width <= 0 {
		width = fallbackWidth
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report.Sessions, m.cfg.CurveWindow, width))
	m.viewports[tabInstCurves].SetContent(renderInstCurves(m.report, m.selection, m.cfg.CurveWindow, width))
}

func renderOverview(sessions []model.SessionAggregate, window, width int) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}
	var buf bytes.Buffer
	if err := stats.RenderCurvesWithSize(&buf, sessions, window, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	return strings.TrimRight(renderSummaryCards(sessions, width)+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(sessions []model.SessionAggregate, width int) string {
	var totalAcc, totalErr, totalBias, best float64
	for _, s := range sessions {
		totalAcc += s.Accuracy
		totalErr += s.MeanAbsMs
		totalBias += s.BiasMs
		best = max(best, s.Accuracy)
	}
	count := float64(len(sessions))
	cards := []string{
		metricCard("Sessions", strconv.Itoa(len(sessions))),
		metricCard("Avg Acc", fmt.Sprintf("%.1f%%", totalAcc/count*100)),
		metricCard("Best Acc", fmt.Sprintf("%.1f%%", best*100)),
		metricCard("Avg Error", fmt.Sprintf("%.1f ms", totalErr/count)),
		metricCard("Avg Bias", fmt.Sprintf("%+.1f ms", totalBias/count)),
	}
	if width < narrowCardsMax {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	return cardStyle.Render(cardTitleStyle.Render(label) + "\n" + cardValueStyle.Render(value))
}

func renderInstCurves(report stats.Report, insts []model.Instrument, window, width int) string {
	if len(report.Sessions) == 0 {
		return "No sessions found."
	}
	if len(insts) == 0 {
		return "No instruments selected. Press Enter to choose."
	}
	header := headerStyle.Render("Instruments: " + joinInstruments(insts))
	var buf bytes.Buffer
	if err := stats.RenderInstrumentCurves(&buf, report.Sessions, report.PerSession, insts, window, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render instrument curves: %v", err)
	}
	return strings.TrimRight(header+"\n"+buf.String(), "\n")
}

func instColumns() []table.Column {
	return []table.Column{
		{Title: "Instrument", Width: 13},
		{Title: "Accuracy", Width: 9},
		{Title: "Mean (ms)", Width: 10},
		{Title: "Bias (ms)", Width: 10},
		{Title: "Notes", Width: 7},
		{Title: "Missed", Width: 7},
		{Title: "Extra", Width: 6},
	}
}

// instRows lists aggregates weakest first.
func instRows(aggs []model.InstrumentAggregate) []table.Row {
	sorted := append([]model.InstrumentAggregate(nil), aggs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Accuracy() == sorted[j].Accuracy() {
			return sorted[i].Instrument < sorted[j].Instrument
		}
		return sorted[i].Accuracy() < sorted[j].Accuracy()
	})
	rows := make([]table.Row, 0, len(sorted))
	for _, a := range sorted {
		rows = append(rows, table.Row{
			a.Instrument.String(),
			fmt.Sprintf("%.2f%%", a.Accuracy()*100),
			fmt.Sprintf("%.1f", a.MeanAbsMs()),
			fmt.Sprintf("%+.1f", a.BiasMs()),
			strconv.Itoa(a.Expected()),
			strconv.Itoa(a.Missed),
			strconv.Itoa(a.Extra),
		})
	}
	return rows
}

func instTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.Padding(0, 1).PaddingLeft(0)
	styles.Selected = styles.Cell.Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	return styles
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		cfg, err := parseFilters(m.filterInputs[0].Value(), m.filterInputs[1].Value(), m.filterInputs[2].Value(), m.filterInputs[3].Value())
		if err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.cfg = cfg
		m.filterMode = false
		m.filterError = ""
		m.refreshReport()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func parseFilters(chart, sinceInput, lastInput, windowInput string) (model.StatsConfig, error) {
	cfg := model.StatsConfig{Chart: strings.TrimSpace(chart)}
	if s := strings.TrimSpace(sinceInput); s != "" {
		parsed, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			return cfg, errBadSince
		}
		cfg.Since = &parsed
	}
	if s := strings.TrimSpace(lastInput); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 0 {
			return cfg, errBadLast
		}
		cfg.Last = parsed
	}
	if s := strings.TrimSpace(windowInput); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			return cfg, errBadWindow
		}
		cfg.CurveWindow = parsed
	}
	return cfg, nil
}

func (m *Model) updateInstInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.instInputMode = false
		m.instInputError = ""
		return m, nil
	case tea.KeyEnter:
		insts, err := ParseInstruments(m.instInput.Value())
		if err != nil {
			m.instInputError = err.Error()
			return m, nil
		}
		m.selectionCustom = len(insts) > 0
		m.selection = insts
		if !m.selectionCustom {
			m.selection = stats.TopInstrumentsByVolume(m.report.InstAggsAll, defaultInsts)
		}
		m.instInputMode = false
		m.instInputError = ""
		m.renderTabContents()
		return m, nil
	}
	var cmd tea.Cmd
	m.instInput, cmd = m.instInput.Update(msg)
	return m, cmd
}

func (m *Model) renderInstModal() string {
	body := []string{
		cardValueStyle.Render("Select Instruments"),
		m.instInput.View(),
		headerStyle.Render("Comma separated names. Empty picks the most played."),
		headerStyle.Render("Enter to apply / Esc to cancel"),
	}
	if m.instInputError != "" {
		body = append(body, errorStyle.Render(m.instInputError))
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// ParseInstruments resolves a comma or space separated instrument list,
// dropping duplicates.
func ParseInstruments(input string) ([]model.Instrument, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' })
	seen := make(map[model.Instrument]bool, len(fields))
	out := make([]model.Instrument, 0, len(fields))
	for _, f := range fields {
		inst, err := model.ParseInstrument(f)
		if err != nil {
			return nil, err
		}
		if seen[inst] {
			continue
		}
		seen[inst] = true
		out = append(out, inst)
	}
	return out, nil
}

func joinInstruments(insts []model.Instrument) string {
	names := make([]string, len(insts))
	for i, inst := range insts {
		names[i] = inst.String()
	}
	return strings.Join(names, ", ")
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func modalWidth(width int) int {
	return max(40, min(width-4, 80))
}

// modalInnerWidth subtracts the border and padding.
func modalInnerWidth(width int) int {
	return max(modalWidth(width)-6, 10)
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	if w := lipgloss.Width(line); w < width {
		return line + strings.Repeat(" ", width-w)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
