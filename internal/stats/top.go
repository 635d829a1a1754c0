package stats

import (
	"sort"

	"github.com/verte-zerg/tuidrum/internal/model"
)

// TopInstrumentsByVolume returns the n instruments with the most graded notes.
func TopInstrumentsByVolume(aggs []model.InstrumentAggregate, n int) []model.Instrument {
	if n <= 0 || len(aggs) == 0 {
		return nil
	}
	items := make([]model.InstrumentAggregate, len(aggs))
	copy(items, aggs)
	sort.Slice(items, func(i, j int) bool {
		ti := items[i].Expected() + items[i].Extra
		tj := items[j].Expected() + items[j].Extra
		if ti == tj {
			return items[i].Instrument < items[j].Instrument
		}
		return ti > tj
	})
	n = min(n, len(items))
	out := make([]model.Instrument, 0, n)
	for _, it := range items[:n] {
		out = append(out, it.Instrument)
	}
	return out
}
