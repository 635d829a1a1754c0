// Package library scans a directory of chart files.
package library

import (
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/remeh/sizedwaitgroup"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/model"
)

// Entry describes one chart file. Err is set when the file could not be
// loaded or validated; the other fields are then zero.
type Entry struct {
	Path        string
	Title       string
	Bars        int
	Notes       int
	BPM         float64
	Instruments []model.Instrument
	Err         error
}

// Scan loads every chart under dir in parallel. Entries follow lexical path order.
func Scan(dir string) ([]Entry, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(paths))
	wg := sizedwaitgroup.New(runtime.NumCPU())
	for i, path := range paths {
		wg.Add()
		go func(i int, path string) {
			defer wg.Done()
			entries[i] = describe(path)
		}(i, path)
	}
	wg.Wait()
	return entries, nil
}

func describe(path string) Entry {
	c, err := chart.Load(path)
	if err != nil {
		return Entry{Path: path, Err: err}
	}
	tm, err := c.Validate()
	if err != nil {
		return Entry{Path: path, Err: err}
	}
	return Entry{
		Path:        path,
		Title:       c.Title,
		Bars:        int(c.LengthBeats()) / c.BeatsPerBar,
		Notes:       len(c.Events),
		BPM:         tm.BPMAt(0),
		Instruments: c.Instruments(),
	}
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range chart.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
