package library

import (
	"strings"

	"github.com/verte-zerg/tuidrum/internal/model"
)

// FilterFunc returns true when an entry should be kept.
type FilterFunc func(Entry) bool

// Filter keeps the entries matching every filter.
func Filter(entries []Entry, filters ...FilterFunc) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		keep := true
		for _, f := range filters {
			if !f(e) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}

// Valid keeps entries that loaded without error.
func Valid(e Entry) bool {
	return e.Err == nil
}

// TitleContains matches titles case-insensitively.
func TitleContains(query string) FilterFunc {
	q := strings.ToLower(strings.TrimSpace(query))
	return func(e Entry) bool {
		return q == "" || strings.Contains(strings.ToLower(e.Title), q)
	}
}

// Uses keeps charts that notate inst.
func Uses(inst model.Instrument) FilterFunc {
	return func(e Entry) bool {
		for _, i := range e.Instruments {
			if i == inst {
				return true
			}
		}
		return false
	}
}
