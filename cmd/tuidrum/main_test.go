package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/config"
	"github.com/verte-zerg/tuidrum/internal/library"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/stats"
	"github.com/verte-zerg/tuidrum/internal/store"
	"github.com/verte-zerg/tuidrum/internal/timeline"
)

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Practice.Loops != nil || cfg.Input.Device != nil || len(cfg.Pads) != 0 {
		t.Fatalf("expected every value commented out, got %+v", cfg)
	}
}

func TestSessionConfigAppliesFileValues(t *testing.T) {
	cmd := newRootCmd()
	loops := 7
	latency := 12.5
	fileCfg := config.FileConfig{Practice: config.PracticeConfig{Loops: &loops, LatencyMs: &latency}}
	if err := cmd.Flags().Set("tempo", "0.8"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	cfg := sessionConfig(cmd, fileCfg)
	if cfg.LoopCount != 7 || cfg.LatencyOffsetMs != 12.5 || cfg.TempoScale != 0.8 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Windows.MatchCapMs != 75 || cfg.Windows.OnTimeCapMs != 20 {
		t.Fatalf("expected default windows, got %+v", cfg.Windows)
	}
}

func TestWriteInspect(t *testing.T) {
	c := &chart.Chart{
		Title:       "groove",
		BeatsPerBar: 4,
		Events: []chart.Event{
			{Beat: 0, Instrument: model.Kick, Velocity: 100},
			{Beat: 1, Instrument: model.Snare, Velocity: 25, Ghost: true},
			{Beat: 2, Instrument: model.Snare, Velocity: 100},
		},
	}
	tm, err := c.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	tl := timeline.Build(c.Events, tm, c.BeatsPerBar)
	var buf bytes.Buffer
	if err := writeInspect(&buf, c, tm, tl, true); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Title: groove", "Notes: 3 (2 scored)", "Tempo: 120.0 BPM", "ghost"} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteCharts(t *testing.T) {
	var buf bytes.Buffer
	entries := []library.Entry{{Path: "/charts/rock.toml", Title: "Rock", Bars: 2, Notes: 16, BPM: 100}}
	if err := writeCharts(&buf, entries); err != nil {
		t.Fatalf("write charts: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "Rock ") || !strings.HasSuffix(lines[1], "/charts/rock.toml") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestWriteRunText(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "tuidrum.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer closeStore(st)

	first, second := 0, 1
	errMs := 4.0
	vel := uint8(96)
	js := []model.Judgment{
		{Pass: 0, ExpectationIndex: &first, HitIndex: &first, Category: model.OnTime, ErrorMs: &errMs, Velocity: &vel, Instrument: model.Kick, TimeMs: 0},
		{Pass: 1, ExpectationIndex: &second, Category: model.Missed, Instrument: model.Snare, TimeMs: 3000},
	}
	now := time.Now().UTC()
	rec := model.SessionRecord{RunID: "run-1", StartedAt: now, EndedAt: now, ChartTitle: "Groove", LoopCount: 2, TempoScale: 1, Summary: stats.Summarize(js)}
	if _, err := st.InsertSession(context.Background(), rec, stats.Aggregates(js), js); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var buf bytes.Buffer
	if err := writeRunText(&buf, st, "run-1"); err != nil {
		t.Fatalf("write run: %v", err)
	}
	for _, want := range []string{"Review: run run-1", "Passes: 100% 0%", "+4.0", "missed"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, buf.String())
		}
	}
	if err := writeRunText(&buf, st, "nope"); err == nil {
		t.Fatalf("expected unknown run to fail")
	}
}
