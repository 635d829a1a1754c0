// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/model"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice PracticeConfig `toml:"practice"`
	Input    InputConfig    `toml:"input"`
	// Pads maps MIDI note numbers to instrument names, on top of General MIDI.
	Pads map[string]string `toml:"pads"`
	// Keys maps keyboard keys to instrument names for keyboard practice.
	Keys map[string]string `toml:"keys"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	Loops              *int     `toml:"loops"`
	TempoScale         *float64 `toml:"tempo-scale"`
	CountdownBars      *int     `toml:"countdown-bars"`
	CountdownEveryLoop *bool    `toml:"countdown-every-loop"`
	MatchPct           *float64 `toml:"match-pct"`
	MatchCapMs         *float64 `toml:"match-cap-ms"`
	OnTimePct          *float64 `toml:"on-time-pct"`
	OnTimeCapMs        *float64 `toml:"on-time-cap-ms"`
	LatencyMs          *float64 `toml:"latency-ms"`
	WeakTop            *int     `toml:"weak-top"`
	WeakWindow         *int     `toml:"weak-window"`
}

// InputConfig maps input device settings.
type InputConfig struct {
	Device         *string `toml:"device"`
	Keyboard       *bool   `toml:"keyboard"`
	QueueSize      *int    `toml:"queue-size"`
	HiHatCC        *int    `toml:"hihat-cc"`
	HiHatSplit     *bool   `toml:"hihat-split"`
	HiHatThreshold *int    `toml:"hihat-threshold"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// PadMap builds the pad mapping from the General MIDI defaults plus [pads]
// overrides and the [input] hi-hat settings.
func (c FileConfig) PadMap() (*input.PadMap, error) {
	pm := input.DefaultPadMap()
	for key, name := range c.Pads {
		note, err := strconv.ParseUint(key, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("pads: invalid note %q", key)
		}
		inst, err := model.ParseInstrument(name)
		if err != nil {
			return nil, fmt.Errorf("pads: %w", err)
		}
		if err := pm.Set(uint8(note), inst); err != nil {
			return nil, fmt.Errorf("pads: %w", err)
		}
	}
	if c.Input.HiHatSplit != nil {
		pm.HiHat.Enabled = *c.Input.HiHatSplit
	}
	if c.Input.HiHatThreshold != nil {
		v := *c.Input.HiHatThreshold
		if v < 0 || v > 127 {
			return nil, fmt.Errorf("input: hihat-threshold %d out of range", v)
		}
		pm.HiHat.Threshold = uint8(v)
	}
	return pm, nil
}

// KeyMap resolves the [keys] section into keyboard bindings.
func (c FileConfig) KeyMap() (map[string]model.Instrument, error) {
	out := make(map[string]model.Instrument, len(c.Keys))
	for key, name := range c.Keys {
		inst, err := model.ParseInstrument(name)
		if err != nil {
			return nil, fmt.Errorf("keys: %w", err)
		}
		out[key] = inst
	}
	return out, nil
}
