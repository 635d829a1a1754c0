package chart

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Extensions lists the file extensions Load understands.
var Extensions = []string{".toml", ".mid", ".midi"}

// Load reads a chart from a TOML or Standard MIDI File. The result is not
// validated beyond parsing.
func Load(path string) (*Chart, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		c, _, err := LoadSMF(path, DefaultGhostThreshold)
		return c, err
	case ".toml":
	default:
		return nil, fmt.Errorf("%w: unsupported chart format %q", ErrInvalidChart, filepath.Ext(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for a read-only chart.
			_ = cerr
		}
	}()

	c, err := Decode(file)
	if err != nil {
		return nil, err
	}
	if c.Title == "" {
		c.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

// Decode parses a TOML chart. A missing beats_per_bar means 4.
func Decode(r io.Reader) (*Chart, error) {
	var c Chart
	if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChart, err)
	}
	if c.BeatsPerBar == 0 {
		c.BeatsPerBar = 4
	}
	return &c, nil
}

// Encode writes c as TOML.
func Encode(w io.Writer, c *Chart) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return nil
}
