package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/tuidrum/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "tuidrum.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func velPtr(v uint8) *uint8 { return &v }

func sampleRecord(runID string, end time.Time, acc float64) model.SessionRecord {
	return model.SessionRecord{
		RunID:      runID,
		StartedAt:  end.Add(-time.Minute),
		EndedAt:    end,
		ChartTitle: "Rock Beat",
		ChartPath:  "/charts/rock.toml",
		LoopCount:  2,
		TempoScale: 1,
		Summary: model.Summary{
			Counts:         model.Counts{OnTime: 3, Late: 1, Extra: 1},
			Accuracy:       acc,
			MeanAbsErrorMs: 12,
			BiasMs:         4,
			LongestStreak:  3,
		},
	}
}

func TestInsertAndListSessions(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	aggs := []model.InstrumentAggregate{
		{Instrument: model.Kick, OnTime: 2, Matched: 2, AbsErrSumMs: 10, ErrSumMs: -4},
		{Instrument: model.Snare, OnTime: 1, Late: 1, Extra: 1, Matched: 2, AbsErrSumMs: 50, ErrSumMs: 50},
	}
	var ids []int64
	for i := 0; i < 3; i++ {
		rec := sampleRecord(string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour), 0.75)
		id, err := st.InsertSession(ctx, rec, aggs, nil)
		if err != nil {
			t.Fatalf("insert session: %v", err)
		}
		ids = append(ids, id)
	}

	sessions, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	first := sessions[0]
	if first.SessionID != ids[0] || first.RunID != "a" || first.ChartTitle != "Rock Beat" {
		t.Fatalf("unexpected first session: %+v", first)
	}
	if first.Expected != 4 || first.Extra != 1 || first.Streak != 3 {
		t.Fatalf("unexpected counts: %+v", first)
	}
	if first.Duration() != time.Minute {
		t.Fatalf("unexpected duration %v", first.Duration())
	}

	since := base.Add(90 * time.Minute)
	filtered, err := st.ListSessions(ctx, model.StatsConfig{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(filtered) != 1 || filtered[0].RunID != "c" {
		t.Fatalf("unexpected filtered sessions: %+v", filtered)
	}
	none, err := st.ListSessions(ctx, model.StatsConfig{Chart: "Other"})
	if err != nil {
		t.Fatalf("list by chart: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no sessions for other chart, got %d", len(none))
	}

	summed, err := st.ListInstrumentAggregatesForSessions(ctx, ids[:2])
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	bySnare := map[model.Instrument]model.InstrumentAggregate{}
	for _, a := range summed {
		bySnare[a.Instrument] = a
	}
	if got := bySnare[model.Snare]; got.OnTime != 2 || got.Late != 2 || got.Matched != 4 {
		t.Fatalf("unexpected snare aggregate: %+v", got)
	}

	per, err := st.ListInstrumentStatsBySession(ctx, ids)
	if err != nil {
		t.Fatalf("per session: %v", err)
	}
	if len(per) != 3 || per[ids[1]][model.Kick].OnTime != 2 {
		t.Fatalf("unexpected per-session stats: %+v", per)
	}

	weak, err := st.GetWeakInstruments(ctx, 1)
	if err != nil {
		t.Fatalf("weak: %v", err)
	}
	if len(weak) != 2 {
		t.Fatalf("expected 2 instruments in window, got %d", len(weak))
	}
}

func TestInsertSessionRejectsDuplicateRun(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	rec := sampleRecord("run-1", time.Now().UTC(), 0.5)
	if _, err := st.InsertSession(ctx, rec, nil, nil); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := st.InsertSession(ctx, rec, nil, nil)
	if !errors.Is(err, ErrDuplicateRun) {
		t.Fatalf("expected ErrDuplicateRun, got %v", err)
	}
	sessions, err := st.ListSessions(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected a single stored run, got %d", len(sessions))
	}
}

func TestJudgmentsRoundTrip(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	js := []model.Judgment{
		{Pass: 0, ExpectationIndex: intPtr(0), HitIndex: intPtr(0), Category: model.OnTime,
			ErrorMs: floatPtr(3.5), Velocity: velPtr(90), VelocityHint: 100, Instrument: model.Kick, TimeMs: 2000},
		{Pass: 0, ExpectationIndex: intPtr(1), Category: model.Missed, VelocityHint: 80, Instrument: model.Snare, TimeMs: 2500},
		{Pass: 0, HitIndex: intPtr(1), Category: model.Extra, Velocity: velPtr(40), Instrument: model.Unmapped, TimeMs: 2600},
	}
	rec := sampleRecord("run-j", time.Now().UTC(), 1.0/3)
	if _, err := st.InsertSession(ctx, rec, nil, js); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := st.ListJudgments(ctx, "run-j")
	if err != nil {
		t.Fatalf("list judgments: %v", err)
	}
	if len(got) != len(js) {
		t.Fatalf("expected %d judgments, got %d", len(js), len(got))
	}
	if got[0].ErrorMs == nil || *got[0].ErrorMs != 3.5 || *got[0].Velocity != 90 || got[0].Category != model.OnTime {
		t.Fatalf("unexpected matched judgment: %+v", got[0])
	}
	if got[1].HitIndex != nil || got[1].ErrorMs != nil || got[1].Category != model.Missed {
		t.Fatalf("unexpected missed judgment: %+v", got[1])
	}
	if got[2].ExpectationIndex != nil || got[2].Instrument != model.Unmapped || *got[2].HitIndex != 1 {
		t.Fatalf("unexpected extra judgment: %+v", got[2])
	}
}
