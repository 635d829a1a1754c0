package stats

import (
	"sort"

	"github.com/verte-zerg/tuidrum/internal/model"
)

// SelectWeakInstruments returns up to top instruments ordered from lowest
// accuracy. Instruments without scored notes are skipped.
func SelectWeakInstruments(aggs []model.InstrumentAggregate, top int) []model.Instrument {
	candidates := make([]model.InstrumentAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if agg.Expected() > 0 {
			candidates = append(candidates, agg)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ai := candidates[i].Accuracy()
		aj := candidates[j].Accuracy()
		if ai == aj {
			return candidates[i].Instrument < candidates[j].Instrument
		}
		return ai < aj
	})
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	out := make([]model.Instrument, 0, top)
	for _, c := range candidates[:top] {
		out = append(out, c.Instrument)
	}
	return out
}
