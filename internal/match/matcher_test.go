package match

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/verte-zerg/tuidrum/internal/chart"
	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/tempo"
	"github.com/verte-zerg/tuidrum/internal/timeline"
)

var fixed = model.Windows{MatchCapMs: 75, OnTimeCapMs: 40}

func newMatcher(t *testing.T, events []chart.Event, loopEnd float64) *Matcher {
	t.Helper()
	tm, err := tempo.New(nil)
	if err != nil {
		t.Fatalf("tempo: %v", err)
	}
	tl := timeline.Build(events, tm, 4)
	m := New(tl, tm, Config{Windows: fixed, TempoScale: 1, LoopStartBeat: 0, LoopEndBeat: loopEnd})
	m.AddPass(0, 0)
	return m
}

func snareAt2() []chart.Event {
	// Beat 2 at 120 BPM is 1000ms.
	return []chart.Event{{Beat: 2, Instrument: model.Snare, Velocity: 100}}
}

func TestTolerance(t *testing.T) {
	w := model.Windows{MatchPct: 0.5, MatchCapMs: 75, OnTimePct: 0.05, OnTimeCapMs: 40}
	if m, o := Tolerance(w, 500); m != 75 || o != 25 {
		t.Fatalf("expected 75/25, got %v/%v", m, o)
	}
	if m, o := Tolerance(w, 100); m != 50 || o != 5 {
		t.Fatalf("expected 50/5, got %v/%v", m, o)
	}
	if m, o := Tolerance(fixed, 10000); m != 75 || o != 40 {
		t.Fatalf("expected fixed 75/40, got %v/%v", m, o)
	}
	if _, o := Tolerance(model.Windows{MatchCapMs: 30, OnTimeCapMs: 50}, 500); o != 30 {
		t.Fatalf("on-time window should be clamped to match window, got %v", o)
	}
}

func TestOnTime(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	m.AddHit(input.LiveHit{TimeMs: 1010, Instrument: model.Snare, Velocity: 100})
	js := m.Flush()
	if len(js) != 1 {
		t.Fatalf("expected one judgment, got %d", len(js))
	}
	j := js[0]
	if j.Category != model.OnTime || j.ErrorMs == nil || *j.ErrorMs != 10 {
		t.Fatalf("expected on-time with 10ms error, got %+v", j)
	}
	if j.ExpectationIndex == nil || j.HitIndex == nil {
		t.Fatalf("matched judgment must reference both sides")
	}
}

func TestLate(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	m.AddHit(input.LiveHit{TimeMs: 1070, Instrument: model.Snare, Velocity: 100})
	js := m.Flush()
	if len(js) != 1 || js[0].Category != model.Late || *js[0].ErrorMs != 70 {
		t.Fatalf("expected late with 70ms error, got %+v", js)
	}
}

func TestEarly(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	m.AddHit(input.LiveHit{TimeMs: 950, Instrument: model.Snare, Velocity: 100})
	js := m.Flush()
	if len(js) != 1 || js[0].Category != model.Early || *js[0].ErrorMs != -50 {
		t.Fatalf("expected early with -50ms error, got %+v", js)
	}
}

func TestMissedOnlyAfterWindow(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	if js := m.Advance(1075); len(js) != 0 {
		t.Fatalf("window still open, got %+v", js)
	}
	js := m.Advance(1076)
	if len(js) != 1 || js[0].Category != model.Missed || js[0].HitIndex != nil || js[0].ErrorMs != nil {
		t.Fatalf("expected missed without hit, got %+v", js)
	}
	if !m.Settled() {
		t.Fatalf("expected settled")
	}
}

func TestExtra(t *testing.T) {
	m := newMatcher(t, snareAt2(), 12)
	m.AddHit(input.LiveHit{TimeMs: 5000, Instrument: model.Snare, Velocity: 90})
	js := m.Advance(5001)
	var extra *model.Judgment
	for i := range js {
		if js[i].Category == model.Extra {
			extra = &js[i]
		}
	}
	if extra == nil || extra.ExpectationIndex != nil || extra.ErrorMs != nil {
		t.Fatalf("expected extra without expectation, got %+v", js)
	}
}

func TestWrongInstrumentIsExtraAndMissed(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	m.AddHit(input.LiveHit{TimeMs: 1000, Instrument: model.Kick, Velocity: 100})
	js := m.Flush()
	cats := map[model.Category]int{}
	for _, j := range js {
		cats[j.Category]++
	}
	if cats[model.Missed] != 1 || cats[model.Extra] != 1 {
		t.Fatalf("expected one missed and one extra, got %v", cats)
	}
}

func TestCommitWaitsForBetterHit(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	m.AddHit(input.LiveHit{TimeMs: 960, Instrument: model.Snare, Velocity: 100})
	// At 1030 a hit at 1010 could still arrive and beat the 40ms error.
	if js := m.Advance(1030); len(js) != 0 {
		t.Fatalf("committed too early: %+v", js)
	}
	m.AddHit(input.LiveHit{TimeMs: 1005, Instrument: model.Snare, Velocity: 100})
	js := m.Advance(1100)
	if len(js) != 2 {
		t.Fatalf("expected match and extra, got %+v", js)
	}
	if js[0].Category != model.OnTime || *js[0].HitIndex != 1 {
		t.Fatalf("expected closer hit to win, got %+v", js[0])
	}
	if js[1].Category != model.Extra || *js[1].HitIndex != 0 {
		t.Fatalf("expected first hit to become extra, got %+v", js[1])
	}
}

func TestTieBreakVelocityThenArrival(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	m.AddHit(input.LiveHit{TimeMs: 990, Instrument: model.Snare, Velocity: 60})
	m.AddHit(input.LiveHit{TimeMs: 1010, Instrument: model.Snare, Velocity: 95})
	js := m.Flush()
	if *js[0].HitIndex != 1 {
		t.Fatalf("expected velocity proximity to win, got hit %d", *js[0].HitIndex)
	}

	m = newMatcher(t, snareAt2(), 4)
	m.AddHit(input.LiveHit{TimeMs: 1010, Instrument: model.Snare, Velocity: 90})
	m.AddHit(input.LiveHit{TimeMs: 990, Instrument: model.Snare, Velocity: 110})
	js = m.Flush()
	if *js[0].HitIndex != 0 {
		t.Fatalf("expected earliest arrival to win, got hit %d", *js[0].HitIndex)
	}
}

func TestChordsResolveIndependently(t *testing.T) {
	m := newMatcher(t, []chart.Event{
		{Beat: 2, Instrument: model.Kick, Velocity: 100},
		{Beat: 2, Instrument: model.Crash, Velocity: 100},
	}, 4)
	m.AddHit(input.LiveHit{TimeMs: 1030, Instrument: model.Crash, Velocity: 100})
	m.AddHit(input.LiveHit{TimeMs: 1002, Instrument: model.Kick, Velocity: 100})
	js := m.Flush()
	if len(js) != 2 {
		t.Fatalf("expected two matches, got %+v", js)
	}
	for _, j := range js {
		if !j.Category.Matched() {
			t.Fatalf("expected matched chord notes, got %+v", j)
		}
	}
}

func TestUnmappedCompatible(t *testing.T) {
	tm, err := tempo.New(nil)
	if err != nil {
		t.Fatalf("tempo: %v", err)
	}
	tl := timeline.Build(snareAt2(), tm, 4)
	m := New(tl, tm, Config{
		Windows:     fixed,
		TempoScale:  1,
		LoopEndBeat: 4,
		Compatible:  func(note uint8, inst model.Instrument) bool { return note == 40 && inst == model.Snare },
	})
	m.AddPass(0, 0)
	m.AddHit(input.LiveHit{TimeMs: 1000, Note: 40, Velocity: 100})
	js := m.Flush()
	if len(js) != 1 || js[0].Category != model.OnTime {
		t.Fatalf("expected compatible unmapped hit to match, got %+v", js)
	}
}

func TestGhostsNeverJudged(t *testing.T) {
	m := newMatcher(t, []chart.Event{
		{Beat: 1, Instrument: model.Snare, Velocity: 20, Ghost: true},
	}, 4)
	m.AddHit(input.LiveHit{TimeMs: 500, Instrument: model.Snare, Velocity: 20})
	js := m.Flush()
	if len(js) != 1 || js[0].Category != model.Extra {
		t.Fatalf("ghost should not consume hits, got %+v", js)
	}
}

func TestTempoScaleProjection(t *testing.T) {
	tm, err := tempo.New(nil)
	if err != nil {
		t.Fatalf("tempo: %v", err)
	}
	tl := timeline.Build(snareAt2(), tm, 4)
	m := New(tl, tm, Config{Windows: fixed, TempoScale: 0.5, LoopStartBeat: 1, LoopEndBeat: 3})
	m.AddPass(0, 100)
	m.AddPass(1, 2100)
	js := m.Flush()
	if len(js) != 2 || js[0].TimeMs != 1100 || js[1].TimeMs != 3100 || js[1].Pass != 1 {
		t.Fatalf("unexpected projection: %+v", js)
	}
}

func TestLongRunKeepsArrivalIndices(t *testing.T) {
	m := newMatcher(t, snareAt2(), 4)
	for pass := 1; pass < 600; pass++ {
		m.AddPass(pass, float64(pass)*2000)
	}
	var out []model.Judgment
	for pass := 0; pass < 600; pass++ {
		at := float64(pass)*2000 + 1000
		m.AddHit(input.LiveHit{TimeMs: at, Instrument: model.Snare, Velocity: 100})
		m.AddHit(input.LiveHit{TimeMs: at + 500, Instrument: model.Kick, Velocity: 100})
		out = append(out, m.Advance(at+600)...)
	}
	out = append(out, m.Flush()...)
	if !m.Settled() || m.Hits() != 1200 {
		t.Fatalf("expected settled matcher with 1200 hits, got %v %d", m.Settled(), m.Hits())
	}
	if len(m.slots) >= trimAt || len(m.hits) >= trimAt {
		t.Fatalf("expected resolved prefix released, got %d slots %d hits", len(m.slots), len(m.hits))
	}
	Sort(out)
	if len(out) != 1200 {
		t.Fatalf("expected 1200 judgments, got %d", len(out))
	}
	for i, j := range out {
		pass := i / 2
		if j.Pass != pass || j.HitIndex == nil || *j.HitIndex != i {
			t.Fatalf("judgment %d: expected pass %d hit %d, got %+v", i, pass, i, j)
		}
	}
}

func TestDropAfter(t *testing.T) {
	m := newMatcher(t, []chart.Event{
		{Beat: 1, Instrument: model.Snare, Velocity: 100},
		{Beat: 3, Instrument: model.Snare, Velocity: 100},
	}, 4)
	m.DropAfter(700)
	js := m.Flush()
	if len(js) != 1 || *js[0].ExpectationIndex != 0 {
		t.Fatalf("expected only the reached expectation, got %+v", js)
	}
}

func TestTotalityAndPacingIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	insts := []model.Instrument{model.Kick, model.Snare, model.HiHatClosed}
	var events []chart.Event
	for b := 0.0; b < 16; b += 0.5 {
		events = append(events, chart.Event{Beat: b, Instrument: insts[rng.Intn(len(insts))], Velocity: uint8(60 + rng.Intn(60))})
	}
	var hits []input.LiveHit
	for ms := 0.0; ms < 8200; ms += 40 + float64(rng.Intn(200)) {
		hits = append(hits, input.LiveHit{TimeMs: ms, Instrument: insts[rng.Intn(len(insts))], Velocity: uint8(rng.Intn(128))})
	}

	run := func(step float64) []model.Judgment {
		m := newMatcher(t, events, 16)
		var out []model.Judgment
		next := 0
		for now := 0.0; now < 9000; now += step {
			for next < len(hits) && hits[next].TimeMs <= now {
				m.AddHit(hits[next])
				next++
			}
			out = append(out, m.Advance(now)...)
		}
		for ; next < len(hits); next++ {
			m.AddHit(hits[next])
		}
		out = append(out, m.Flush()...)
		if !m.Settled() {
			t.Fatalf("matcher not settled")
		}
		Sort(out)
		return out
	}

	a := run(16.7)
	b := run(3)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("judgments depend on frame pacing")
	}

	seenExp := map[int]int{}
	seenHit := map[int]int{}
	for _, j := range a {
		if j.ExpectationIndex == nil && j.HitIndex == nil {
			t.Fatalf("judgment references nothing: %+v", j)
		}
		if j.Category.Matched() != (j.ErrorMs != nil) {
			t.Fatalf("error presence does not match category: %+v", j)
		}
		if j.ExpectationIndex != nil {
			seenExp[*j.ExpectationIndex]++
		}
		if j.HitIndex != nil {
			seenHit[*j.HitIndex]++
		}
	}
	if len(seenExp) != len(events) || len(seenHit) != len(hits) {
		t.Fatalf("expected every expectation and hit judged, got %d/%d and %d/%d",
			len(seenExp), len(events), len(seenHit), len(hits))
	}
	for k, n := range seenExp {
		if n != 1 {
			t.Fatalf("expectation %d judged %d times", k, n)
		}
	}
	for k, n := range seenHit {
		if n != 1 {
			t.Fatalf("hit %d judged %d times", k, n)
		}
	}
}
