package statsui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/store"
)

func TestParseInstruments(t *testing.T) {
	insts, err := ParseInstruments("kick, snare hh,kick")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []model.Instrument{model.Kick, model.Snare, model.HiHatClosed}
	if len(insts) != len(want) {
		t.Fatalf("expected %v, got %v", want, insts)
	}
	for i := range want {
		if insts[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, insts)
		}
	}
	if _, err := ParseInstruments("kick, cowbell"); err == nil {
		t.Fatalf("expected error for unknown instrument")
	}
	if insts, err := ParseInstruments("  "); err != nil || len(insts) != 0 {
		t.Fatalf("expected empty selection, got %v (%v)", insts, err)
	}
}

func TestParseFilters(t *testing.T) {
	cfg, err := parseFilters(" groove ", "2026-03-01", "5", "2")
	if err != nil {
		t.Fatalf("parse filters: %v", err)
	}
	if cfg.Chart != "groove" || cfg.Last != 5 || cfg.CurveWindow != 2 || cfg.Since == nil {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if _, err := parseFilters("", "03/01/2026", "", ""); err != errBadSince {
		t.Fatalf("expected since error, got %v", err)
	}
	if _, err := parseFilters("", "", "-1", ""); err != errBadLast {
		t.Fatalf("expected last error, got %v", err)
	}
	if _, err := parseFilters("", "", "", "0"); err != errBadWindow {
		t.Fatalf("expected window error, got %v", err)
	}
}

func TestCurveWindowSteps(t *testing.T) {
	if got := nextCurveWindow(1); got != 5 {
		t.Fatalf("next(1) = %d", got)
	}
	if got := nextCurveWindow(7); got != 10 {
		t.Fatalf("next(7) = %d", got)
	}
	if got := prevCurveWindow(10); got != 5 {
		t.Fatalf("prev(10) = %d", got)
	}
	if got := prevCurveWindow(5); got != 1 {
		t.Fatalf("prev(5) = %d", got)
	}
}

func TestInstRowsWeakestFirst(t *testing.T) {
	rows := instRows([]model.InstrumentAggregate{
		{Instrument: model.Kick, OnTime: 9, Late: 1},
		{Instrument: model.Snare, OnTime: 1, Missed: 1},
		{Instrument: model.Ride, OnTime: 1, Early: 1},
	})
	got := []string{rows[0][0], rows[1][0], rows[2][0]}
	want := []string{"snare", "ride", "kick"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if rows[2][1] != "90.00%" {
		t.Fatalf("unexpected accuracy cell %q", rows[2][1])
	}
}

func TestModelRendersStoredSessions(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "tuidrum.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	end := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	rec := model.SessionRecord{
		RunID:      "run-1",
		StartedAt:  end.Add(-time.Minute),
		EndedAt:    end,
		ChartTitle: "groove",
		LoopCount:  2,
		TempoScale: 1,
		Summary:    model.Summary{Counts: model.Counts{OnTime: 3, Late: 1}, Accuracy: 0.75},
	}
	aggs := []model.InstrumentAggregate{
		{Instrument: model.Kick, OnTime: 2, Matched: 2},
		{Instrument: model.Snare, OnTime: 1, Late: 1, Matched: 2, AbsErrSumMs: 40, ErrSumMs: 40},
	}
	if _, err := st.InsertSession(context.Background(), rec, aggs, nil); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	m := NewModel(st, model.StatsConfig{CurveWindow: 1}, nil)
	if m.errMsg != "" {
		t.Fatalf("unexpected error %q", m.errMsg)
	}
	if len(m.selection) != 2 {
		t.Fatalf("expected default selection of played instruments, got %v", m.selection)
	}
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	view := m.View()
	if !strings.Contains(view, "Overview") || !strings.Contains(view, "chart=any") {
		t.Fatalf("overview missing header:\n%s", view)
	}
	if !strings.Contains(view, "75.0%") {
		t.Fatalf("overview missing accuracy card:\n%s", view)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.activeTab != tabInstCurves {
		t.Fatalf("expected curves tab, got %d", m.activeTab)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.instInputMode {
		t.Fatalf("expected instrument modal")
	}
	m.instInput.SetValue("cowbell")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.instInputMode || m.instInputError == "" {
		t.Fatalf("expected modal to stay open with error")
	}
	m.instInput.SetValue("snare")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.instInputMode || len(m.selection) != 1 || m.selection[0] != model.Snare {
		t.Fatalf("expected snare selection, got %v", m.selection)
	}
}
