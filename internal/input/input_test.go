package input

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/tuidrum/internal/model"
)

func TestQueueDropsOldest(t *testing.T) {
	q := NewQueue(3, nil)
	for i := 0; i < 3; i++ {
		if err := q.Push(LiveHit{TimeMs: float64(i)}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := q.Push(LiveHit{TimeMs: 3}); !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if !q.Degraded() || q.Dropped() != 1 {
		t.Fatalf("expected degraded with one drop, got %v %d", q.Degraded(), q.Dropped())
	}
	got := q.Drain(nil)
	if len(got) != 3 || got[0].TimeMs != 1 || got[2].TimeMs != 3 {
		t.Fatalf("unexpected drain order: %+v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after drain")
	}
	q.Reset()
	if q.Degraded() || q.Dropped() != 0 {
		t.Fatalf("reset should clear drops, got %v %d", q.Degraded(), q.Dropped())
	}
}

func TestMultiMergesByTime(t *testing.T) {
	clock := &ManualClock{}
	pads := NewKeySource(clock)
	kit := NewKeySource(clock)
	clock.Set(10)
	pads.Press(38, 100)
	clock.Set(5)
	kit.Press(36, 100)
	clock.Set(10)
	kit.Press(42, 100)

	got := Multi{pads, kit}.Poll()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Note != 36 || got[1].Note != 38 || got[2].Note != 42 {
		t.Fatalf("expected time order with ties kept in source order, got %+v", got)
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(1000, nil)
	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = q.Push(LiveHit{})
			}
		}()
	}
	wg.Wait()
	if got := len(q.Drain(nil)); got != 400 {
		t.Fatalf("expected 400 hits, got %d", got)
	}
}

func TestIngestorLatencyAndMapping(t *testing.T) {
	p := DefaultProfile()
	p.LatencyOffsetMs = 12
	ing := NewIngestor(p)

	events := []RawEvent{
		{TimeMs: 100, Kind: NoteOn, Note: 38, Velocity: 90},
		{TimeMs: 110, Kind: NoteOn, Note: 38, Velocity: 0},
		{TimeMs: 120, Kind: NoteOn, Note: 99, Velocity: 50},
	}
	for _, ev := range events {
		if err := ing.Handle(ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	hits := ing.Queue().Drain(nil)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].TimeMs != 88 || hits[0].Instrument != model.Snare {
		t.Fatalf("unexpected snare hit: %+v", hits[0])
	}
	if hits[1].Mapped() || hits[1].Note != 99 {
		t.Fatalf("expected unmapped note 99, got %+v", hits[1])
	}
}

func TestIngestorHiHatSnapshot(t *testing.T) {
	pads := DefaultPadMap()
	pads.HiHat.Enabled = true
	ing := NewIngestor(&Profile{Mapper: pads, Controller: 4, DefaultCC: 0})

	mustHandle := func(ev RawEvent) {
		t.Helper()
		if err := ing.Handle(ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	mustHandle(RawEvent{TimeMs: 10, Kind: NoteOn, Note: 42, Velocity: 80})
	mustHandle(RawEvent{TimeMs: 20, Kind: Control, Note: 4, Velocity: 127})
	mustHandle(RawEvent{TimeMs: 30, Kind: NoteOn, Note: 42, Velocity: 80})
	// A late-arriving note stamped before the pedal change keeps the old state.
	mustHandle(RawEvent{TimeMs: 15, Kind: NoteOn, Note: 46, Velocity: 80})

	hits := ing.Queue().Drain(nil)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Instrument != model.HiHatOpen || *hits[0].CC != 0 {
		t.Fatalf("expected open hat from default cc, got %+v", hits[0])
	}
	if hits[1].Instrument != model.HiHatClosed || *hits[1].CC != 127 {
		t.Fatalf("expected closed hat, got %+v", hits[1])
	}
	if hits[2].Instrument != model.HiHatOpen {
		t.Fatalf("expected open hat for earlier stamp, got %+v", hits[2])
	}
}

func TestPadMapLoose(t *testing.T) {
	pads := DefaultPadMap()
	pads.AllowLoose(99, model.TomLow)
	if !pads.Compatible(99, model.TomLow) || pads.Compatible(99, model.Snare) {
		t.Fatalf("unexpected loose compatibility")
	}
	if err := pads.Set(60, model.Splash); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst, ok := pads.Resolve(60, 0); !ok || inst != model.Splash {
		t.Fatalf("expected splash, got %v %v", inst, ok)
	}
	if n, ok := pads.NoteFor(model.Snare); !ok || n != 38 {
		t.Fatalf("expected snare on 38, got %d", n)
	}
}

func TestSimSourceReleasesByClock(t *testing.T) {
	clock := &ManualClock{}
	src := NewSimSource(clock, []RawEvent{
		{TimeMs: 200, Kind: NoteOn, Note: 36, Velocity: 100},
		{TimeMs: 100, Kind: NoteOn, Note: 38, Velocity: 100},
	})
	if got := src.Poll(); len(got) != 0 {
		t.Fatalf("expected nothing at 0ms, got %d", len(got))
	}
	clock.Set(150)
	got := src.Poll()
	if len(got) != 1 || got[0].Note != 38 {
		t.Fatalf("expected snare first, got %+v", got)
	}
	clock.Set(500)
	if got := src.Poll(); len(got) != 1 || !src.Done() {
		t.Fatalf("expected final event and done")
	}
	if src.EndMs() != 200 {
		t.Fatalf("expected end 200, got %v", src.EndMs())
	}
}

func TestRunFeedsIngestor(t *testing.T) {
	clock := &ManualClock{}
	keys := NewKeySource(clock)
	ing := NewIngestor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Multi{keys}, ing, time.Millisecond) }()

	clock.Set(42)
	keys.Press(36, 100)
	deadline := time.Now().Add(2 * time.Second)
	for ing.Queue().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	hits := ing.Queue().Drain(nil)
	if len(hits) != 1 || hits[0].TimeMs != 42 || hits[0].Instrument != model.Kick {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}
