package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/verte-zerg/tuidrum/internal/model"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Practice.Loops != nil || len(cfg.Pads) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `[practice]
loops = 0
tempo-scale = 0.8
match-cap-ms = 60

[input]
device = "TD-17"
hihat-split = true
hihat-threshold = 90

[pads]
"26" = "hihat-open"
"60" = "floor-tom"

[keys]
j = "snare"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Practice.Loops == nil || *cfg.Practice.Loops != 0 {
		t.Fatalf("expected explicit zero loops")
	}
	if *cfg.Practice.TempoScale != 0.8 || *cfg.Practice.MatchCapMs != 60 {
		t.Fatalf("unexpected practice section: %+v", cfg.Practice)
	}
	if cfg.Practice.CountdownBars != nil {
		t.Fatalf("expected unset countdown bars")
	}
	if *cfg.Input.Device != "TD-17" {
		t.Fatalf("unexpected device %q", *cfg.Input.Device)
	}

	pm, err := cfg.PadMap()
	if err != nil {
		t.Fatalf("pad map: %v", err)
	}
	if inst, ok := pm.Resolve(60, 0); !ok || inst != model.TomFloor {
		t.Fatalf("expected note 60 as floor tom, got %v", inst)
	}
	if inst, ok := pm.Resolve(36, 0); !ok || inst != model.Kick {
		t.Fatalf("expected General MIDI default to remain, got %v", inst)
	}
	if inst, _ := pm.Resolve(26, 100); inst != model.HiHatClosed {
		t.Fatalf("expected pedal above threshold to close the hi-hat, got %v", inst)
	}

	keys, err := cfg.KeyMap()
	if err != nil {
		t.Fatalf("key map: %v", err)
	}
	if keys["j"] != model.Snare {
		t.Fatalf("unexpected key map %v", keys)
	}
}

func TestPadMapRejectsBadEntries(t *testing.T) {
	cases := []FileConfig{
		{Pads: map[string]string{"x": "kick"}},
		{Pads: map[string]string{"300": "kick"}},
		{Pads: map[string]string{"36": "cowbell"}},
	}
	for _, cfg := range cases {
		if _, err := cfg.PadMap(); err == nil {
			t.Fatalf("expected error for %v", cfg.Pads)
		}
	}
}

func TestDefaultPathsFollowXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_STATE_HOME", "/state")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "tuidrum", "config.toml") {
		t.Fatalf("unexpected config path %q", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "tuidrum", "tuidrum.db") {
		t.Fatalf("unexpected db path %q", got)
	}
	if got := DefaultLogPath(); got != filepath.Join("/state", "tuidrum", "tuidrum.log") {
		t.Fatalf("unexpected log path %q", got)
	}
}
