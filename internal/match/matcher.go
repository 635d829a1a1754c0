// Package match grades live hits against projected expectations.
package match

import (
	"math"
	"sort"

	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/tempo"
	"github.com/verte-zerg/tuidrum/internal/timeline"
)

// Config fixes the matcher for one run.
type Config struct {
	Windows       model.Windows
	TempoScale    float64
	LoopStartBeat float64
	LoopEndBeat   float64
	// Compatible reports whether an unmapped note may stand in for inst.
	Compatible func(note uint8, inst model.Instrument) bool
}

// Slot is an expectation projected into session time for one pass.
type Slot struct {
	Pass         int
	Index        int
	AtMs         float64
	MatchMs      float64
	OnTimeMs     float64
	Instrument   model.Instrument
	VelocityHint uint8

	resolved bool
}

type hitState struct {
	hit  input.LiveHit
	used bool
}

// passStart is the earliest projected expectation of a pass.
type passStart struct {
	pass int
	atMs float64
}

// trimAt is how long the resolved prefix may grow before it is released.
const trimAt = 256

// Matcher runs the greedy assignment. It is owned by the frame context.
type Matcher struct {
	tl            []timeline.Expectation
	tm            *tempo.Map
	cfg           Config
	region        []int
	regionStartMs float64

	slots     []Slot
	firstSlot int
	hits      []hitState
	firstHit  int
	// hitBase is the arrival index of hits[0].
	hitBase int
	passes  []passStart
}

// New creates a matcher over the loop region of tl.
func New(tl []timeline.Expectation, tm *tempo.Map, cfg Config) *Matcher {
	if cfg.TempoScale <= 0 {
		cfg.TempoScale = 1
	}
	var region []int
	for _, i := range timeline.Window(tl, cfg.LoopStartBeat, cfg.LoopEndBeat) {
		if !tl[i].IsGhost {
			region = append(region, i)
		}
	}
	return &Matcher{
		tl:            tl,
		tm:            tm,
		cfg:           cfg,
		region:        region,
		regionStartMs: tm.TimeAtBeat(cfg.LoopStartBeat),
	}
}

// AddPass projects the loop region into session time starting at startMs.
// Passes must be added in increasing start order.
func (m *Matcher) AddPass(pass int, startMs float64) {
	scale := m.cfg.TempoScale
	if len(m.region) > 0 {
		first := m.tl[m.region[0]]
		m.passes = append(m.passes, passStart{pass: pass, atMs: startMs + (first.TimeMs-m.regionStartMs)/scale})
	}
	for _, i := range m.region {
		e := m.tl[i]
		matchMs, onTimeMs := Tolerance(m.cfg.Windows, m.tm.BeatDurationAt(e.Beat)/scale)
		m.slots = append(m.slots, Slot{
			Pass:         pass,
			Index:        i,
			AtMs:         startMs + (e.TimeMs-m.regionStartMs)/scale,
			MatchMs:      matchMs,
			OnTimeMs:     onTimeMs,
			Instrument:   e.Instrument,
			VelocityHint: e.VelocityHint,
		})
	}
	for j := len(m.slots) - 1; j > m.firstSlot && m.slots[j].AtMs < m.slots[j-1].AtMs; j-- {
		m.slots[j], m.slots[j-1] = m.slots[j-1], m.slots[j]
	}
}

// AddHit appends a hit in arrival order and returns its index.
func (m *Matcher) AddHit(h input.LiveHit) int {
	m.hits = append(m.hits, hitState{hit: h})
	return m.hitBase + len(m.hits) - 1
}

// Hits returns the number of hits received.
func (m *Matcher) Hits() int { return m.hitBase + len(m.hits) }

// IsCandidate reports whether h could still match an unresolved expectation.
func (m *Matcher) IsCandidate(h input.LiveHit) bool {
	for i := m.firstSlot; i < len(m.slots); i++ {
		s := &m.slots[i]
		if !s.resolved && m.candidate(s, h) {
			return true
		}
	}
	return false
}

// DropAfter discards unresolved expectations later than ms. They produce no
// judgment.
func (m *Matcher) DropAfter(ms float64) {
	kept := m.slots[:m.firstSlot]
	for _, s := range m.slots[m.firstSlot:] {
		if s.resolved || s.AtMs <= ms {
			kept = append(kept, s)
		}
	}
	m.slots = kept
}

// Settled reports whether every expectation and hit has a judgment.
func (m *Matcher) Settled() bool {
	m.compact()
	return m.firstSlot == len(m.slots) && m.firstHit == len(m.hits)
}

// Flush resolves everything as if no further hits can arrive.
func (m *Matcher) Flush() []model.Judgment {
	return m.Advance(math.Inf(1))
}

// Advance grades everything decidable given that all hits stamped before
// horizonMs are known. A choice is committed only when no later hit could
// beat it, so the outcome does not depend on how often Advance is called.
func (m *Matcher) Advance(horizonMs float64) []model.Judgment {
	var out []model.Judgment
	reserved := make(map[int]bool)

	for i := m.firstSlot; i < len(m.slots); i++ {
		s := &m.slots[i]
		if s.resolved {
			continue
		}
		cands := m.candidates(s)
		best, ok := m.best(s, cands)
		elapsed := horizonMs > s.AtMs+s.MatchMs

		switch {
		case !ok && elapsed:
			s.resolved = true
			out = append(out, m.missed(s))
			continue
		case !ok:
			continue
		}

		errMs := m.hits[best].hit.TimeMs - s.AtMs
		decided := elapsed || math.Abs(errMs) < horizonMs-s.AtMs
		if reserved[best] || !decided {
			for _, c := range cands {
				reserved[c] = true
			}
			continue
		}
		s.resolved = true
		m.hits[best].used = true
		out = append(out, m.matched(s, best, errMs))
	}

	for i := m.firstHit; i < len(m.hits); i++ {
		h := &m.hits[i]
		if h.used || m.IsCandidate(h.hit) {
			continue
		}
		h.used = true
		out = append(out, m.extra(i))
	}
	m.compact()
	return out
}

func (m *Matcher) candidate(s *Slot, h input.LiveHit) bool {
	if math.Abs(h.TimeMs-s.AtMs) > s.MatchMs {
		return false
	}
	if h.Instrument == s.Instrument {
		return true
	}
	return !h.Mapped() && m.cfg.Compatible != nil && m.cfg.Compatible(h.Note, s.Instrument)
}

func (m *Matcher) candidates(s *Slot) []int {
	var out []int
	for i := m.firstHit; i < len(m.hits); i++ {
		h := &m.hits[i]
		if !h.used && m.candidate(s, h.hit) {
			out = append(out, i)
		}
	}
	return out
}

// best orders by absolute error, then velocity distance to the hint, then
// arrival order.
func (m *Matcher) best(s *Slot, cands []int) (int, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	sorted := append([]int(nil), cands...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ha, hb := m.hits[sorted[a]].hit, m.hits[sorted[b]].hit
		ea, eb := math.Abs(ha.TimeMs-s.AtMs), math.Abs(hb.TimeMs-s.AtMs)
		if ea != eb {
			return ea < eb
		}
		va, vb := velocityDistance(ha.Velocity, s.VelocityHint), velocityDistance(hb.Velocity, s.VelocityHint)
		if va != vb {
			return va < vb
		}
		return sorted[a] < sorted[b]
	})
	return sorted[0], true
}

func (m *Matcher) compact() {
	for m.firstSlot < len(m.slots) && m.slots[m.firstSlot].resolved {
		m.firstSlot++
	}
	for m.firstHit < len(m.hits) && m.hits[m.firstHit].used {
		m.firstHit++
	}
	if m.firstSlot >= trimAt {
		n := copy(m.slots, m.slots[m.firstSlot:])
		m.slots = m.slots[:n]
		m.firstSlot = 0
	}
	if m.firstHit >= trimAt {
		n := copy(m.hits, m.hits[m.firstHit:])
		m.hits = m.hits[:n]
		m.hitBase += m.firstHit
		m.firstHit = 0
	}
}

func (m *Matcher) missed(s *Slot) model.Judgment {
	idx := s.Index
	return model.Judgment{
		Pass:             s.Pass,
		ExpectationIndex: &idx,
		Category:         model.Missed,
		VelocityHint:     s.VelocityHint,
		Instrument:       s.Instrument,
		TimeMs:           s.AtMs,
	}
}

func (m *Matcher) matched(s *Slot, hit int, errMs float64) model.Judgment {
	idx := s.Index
	vel := m.hits[hit].hit.Velocity
	arrival := m.hitBase + hit
	return model.Judgment{
		Pass:             s.Pass,
		ExpectationIndex: &idx,
		HitIndex:         &arrival,
		Category:         Classify(errMs, s.OnTimeMs),
		ErrorMs:          &errMs,
		Velocity:         &vel,
		VelocityHint:     s.VelocityHint,
		Instrument:       s.Instrument,
		TimeMs:           s.AtMs,
	}
}

func (m *Matcher) extra(hit int) model.Judgment {
	h := m.hits[hit].hit
	arrival := m.hitBase + hit
	return model.Judgment{
		Pass:       m.passAt(h.TimeMs),
		HitIndex:   &arrival,
		Category:   model.Extra,
		Instrument: h.Instrument,
		TimeMs:     h.TimeMs,
	}
}

// passAt returns the latest pass whose first expectation is not after ms.
func (m *Matcher) passAt(ms float64) int {
	i := sort.Search(len(m.passes), func(i int) bool { return m.passes[i].atMs > ms })
	if i == 0 {
		return 0
	}
	return m.passes[i-1].pass
}

func velocityDistance(v, hint uint8) int {
	d := int(v) - int(hint)
	if d < 0 {
		return -d
	}
	return d
}

// Sort orders judgments canonically by time, expectations before extras,
// then pass and indices.
func Sort(js []model.Judgment) {
	sort.SliceStable(js, func(a, b int) bool {
		ja, jb := js[a], js[b]
		if ja.TimeMs != jb.TimeMs {
			return ja.TimeMs < jb.TimeMs
		}
		if (ja.ExpectationIndex == nil) != (jb.ExpectationIndex == nil) {
			return ja.ExpectationIndex != nil
		}
		if ja.Pass != jb.Pass {
			return ja.Pass < jb.Pass
		}
		if ja.ExpectationIndex != nil && *ja.ExpectationIndex != *jb.ExpectationIndex {
			return *ja.ExpectationIndex < *jb.ExpectationIndex
		}
		return hitIndex(ja) < hitIndex(jb)
	})
}

func hitIndex(j model.Judgment) int {
	if j.HitIndex == nil {
		return -1
	}
	return *j.HitIndex
}
