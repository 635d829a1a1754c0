package stats

import (
	"sort"

	"github.com/verte-zerg/tuidrum/internal/model"
)

type accumulator struct {
	counts   model.Counts
	absSum   float64
	errSum   float64
	velSum   float64
	matched  int
	velCount int
}

func (a *accumulator) add(j model.Judgment) {
	switch j.Category {
	case model.OnTime:
		a.counts.OnTime++
	case model.Early:
		a.counts.Early++
	case model.Late:
		a.counts.Late++
	case model.Missed:
		a.counts.Missed++
	case model.Extra:
		a.counts.Extra++
	}
	if j.ErrorMs != nil {
		e := *j.ErrorMs
		a.errSum += e
		if e < 0 {
			e = -e
		}
		a.absSum += e
		a.matched++
	}
	if d, ok := j.VelocityDelta(); ok {
		a.velSum += float64(d)
		a.velCount++
	}
}

func (a *accumulator) accuracy() float64 {
	if n := a.counts.Expected(); n > 0 {
		return float64(a.counts.OnTime) / float64(n)
	}
	return 0
}

func (a *accumulator) meanAbs() float64 {
	if a.matched == 0 {
		return 0
	}
	return a.absSum / float64(a.matched)
}

func (a *accumulator) bias() float64 {
	if a.matched == 0 {
		return 0
	}
	return a.errSum / float64(a.matched)
}

// Summarize folds a frozen judgment list. It is a pure function of js.
func Summarize(js []model.Judgment) model.Summary {
	var total accumulator
	per := make(map[model.Instrument]*accumulator)
	for _, j := range js {
		total.add(j)
		if !j.Instrument.Valid() {
			continue
		}
		acc, ok := per[j.Instrument]
		if !ok {
			acc = &accumulator{}
			per[j.Instrument] = acc
		}
		acc.add(j)
	}

	ordered := byExpectation(js)
	sum := model.Summary{
		Counts:         total.counts,
		Accuracy:       total.accuracy(),
		MeanAbsErrorMs: total.meanAbs(),
		BiasMs:         total.bias(),
		LongestStreak:  longestStreak(ordered, model.Unmapped),
	}
	if total.velCount > 0 {
		sum.MeanVelocityDelta = total.velSum / float64(total.velCount)
	}
	for _, inst := range model.Instruments() {
		acc, ok := per[inst]
		if !ok {
			continue
		}
		sum.PerInstrument = append(sum.PerInstrument, model.InstrumentSummary{
			Instrument:     inst,
			Counts:         acc.counts,
			Accuracy:       acc.accuracy(),
			MeanAbsErrorMs: acc.meanAbs(),
			BiasMs:         acc.bias(),
			LongestStreak:  longestStreak(ordered, inst),
		})
	}
	return sum
}

// byExpectation returns the expectation judgments ordered by pass and index.
func byExpectation(js []model.Judgment) []model.Judgment {
	out := make([]model.Judgment, 0, len(js))
	for _, j := range js {
		if j.ExpectationIndex != nil {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Pass != out[b].Pass {
			return out[a].Pass < out[b].Pass
		}
		return *out[a].ExpectationIndex < *out[b].ExpectationIndex
	})
	return out
}

// longestStreak counts consecutive OnTime judgments. Unmapped selects all
// instruments.
func longestStreak(ordered []model.Judgment, inst model.Instrument) int {
	best, run := 0, 0
	for _, j := range ordered {
		if inst != model.Unmapped && j.Instrument != inst {
			continue
		}
		if j.Category == model.OnTime {
			run++
			best = max(best, run)
			continue
		}
		run = 0
	}
	return best
}

// Aggregates folds judgments into storable per-instrument rows.
func Aggregates(js []model.Judgment) []model.InstrumentAggregate {
	per := make(map[model.Instrument]*model.InstrumentAggregate)
	for _, j := range js {
		if !j.Instrument.Valid() {
			continue
		}
		agg, ok := per[j.Instrument]
		if !ok {
			agg = &model.InstrumentAggregate{Instrument: j.Instrument}
			per[j.Instrument] = agg
		}
		switch j.Category {
		case model.OnTime:
			agg.OnTime++
		case model.Early:
			agg.Early++
		case model.Late:
			agg.Late++
		case model.Missed:
			agg.Missed++
		case model.Extra:
			agg.Extra++
		}
		if j.ErrorMs != nil {
			e := *j.ErrorMs
			agg.ErrSumMs += e
			if e < 0 {
				e = -e
			}
			agg.AbsErrSumMs += e
			agg.Matched++
		}
	}
	var out []model.InstrumentAggregate
	for _, inst := range model.Instruments() {
		if agg, ok := per[inst]; ok {
			out = append(out, *agg)
		}
	}
	return out
}
