package tui

import (
	"strings"
	"testing"

	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/timeline"
)

func TestRenderFooterFormats(t *testing.T) {
	m := &Model{
		hasLast: true,
		lastAcc: 0.875,
		allAcc:  0.801,
		allRuns: 12,
	}
	out := m.renderFooter()
	if !containsAll(out, []string{"Last 87.5%", "All-time 80.1%", "12 runs"}) {
		t.Fatalf("footer missing expected segments: %s", out)
	}
}

func TestRenderFooterWithoutHistory(t *testing.T) {
	m := &Model{}
	if out := m.renderFooter(); strings.Contains(out, "Last") || strings.Contains(out, "All-time") {
		t.Fatalf("expected empty footer, got %q", out)
	}
}

func TestLaneGridPlacesNotes(t *testing.T) {
	tl := []timeline.Expectation{
		{Beat: 0, Instrument: model.Kick},
		{Beat: 0.5, Instrument: model.HiHatClosed},
		{Beat: 1.25, Instrument: model.Snare, IsGhost: true},
		{Beat: 2, Instrument: model.Snare},
		{Beat: 4, Instrument: model.Kick},
	}
	insts := []model.Instrument{model.Kick, model.Snare, model.HiHatClosed}
	rows := laneGrid(tl, insts, 0, 4)
	want := []string{
		"o---|---|---|---",
		"|---|g--o---|---",
		"|-x-|---|---|---",
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d: expected %q, got %q", i, want[i], rows[i])
		}
	}
}

func TestViewWindowFollowsPlayhead(t *testing.T) {
	cases := []struct {
		playhead float64
		from, to float64
	}{
		{0, 0, 8},
		{3.9, 0, 8},
		{4.5, 4, 12},
		{13, 12, 16},
	}
	for _, tc := range cases {
		from, to := viewWindow(0, 16, tc.playhead, 4)
		if from != tc.from || to != tc.to {
			t.Fatalf("playhead %g: expected [%g, %g), got [%g, %g)", tc.playhead, tc.from, tc.to, from, to)
		}
	}
}

func TestFormatJudgment(t *testing.T) {
	errMs := 12.4
	j := model.Judgment{Pass: 1, Instrument: model.Snare, Category: model.Late, ErrorMs: &errMs}
	out := formatJudgment(j)
	if !containsAll(out, []string{"pass 2", "snare", "late", "+12ms"}) {
		t.Fatalf("unexpected judgment line %q", out)
	}
}

func TestFormatProgress(t *testing.T) {
	if got := formatProgress(1500, 4000); got != "1.5s/4.0s" {
		t.Fatalf("unexpected progress %q", got)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
