package input

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Source is a pollable input backend.
type Source interface {
	Poll() []RawEvent
}

// Clock is the shared millisecond time base of input and frame contexts.
type Clock interface {
	NowMs() float64
}

// MonoClock measures monotonic time since construction.
type MonoClock struct {
	start time.Time
}

// NewMonoClock starts a clock at zero.
func NewMonoClock() *MonoClock {
	return &MonoClock{start: time.Now()}
}

// NowMs implements Clock.
func (c *MonoClock) NowMs() float64 {
	return float64(time.Since(c.start)) / float64(time.Millisecond)
}

// ManualClock is advanced explicitly.
type ManualClock struct {
	mu  sync.Mutex
	now float64
}

// NowMs implements Clock.
func (c *ManualClock) NowMs() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ms.
func (c *ManualClock) Set(ms float64) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}

// Advance moves the clock forward by ms.
func (c *ManualClock) Advance(ms float64) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}

// SimSource releases scripted events once the clock reaches them.
type SimSource struct {
	clock  Clock
	mu     sync.Mutex
	events []RawEvent
	next   int
}

// NewSimSource orders events by time and plays them against clock.
func NewSimSource(clock Clock, events []RawEvent) *SimSource {
	evs := make([]RawEvent, len(events))
	copy(evs, events)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].TimeMs < evs[j].TimeMs })
	return &SimSource{clock: clock, events: evs}
}

// Poll implements Source.
func (s *SimSource) Poll() []RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.NowMs()
	start := s.next
	for s.next < len(s.events) && s.events[s.next].TimeMs <= now {
		s.next++
	}
	if start == s.next {
		return nil
	}
	out := make([]RawEvent, s.next-start)
	copy(out, s.events[start:s.next])
	return out
}

// Done reports whether every scripted event was released.
func (s *SimSource) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next >= len(s.events)
}

// EndMs returns the time of the last scripted event.
func (s *SimSource) EndMs() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return 0
	}
	return s.events[len(s.events)-1].TimeMs
}

// KeySource collects key presses from the terminal as note events.
type KeySource struct {
	clock   Clock
	mu      sync.Mutex
	pending []RawEvent
}

// NewKeySource stamps presses with clock.
func NewKeySource(clock Clock) *KeySource {
	return &KeySource{clock: clock}
}

// Press records a note-on at the current clock time.
func (k *KeySource) Press(note, velocity uint8) {
	ev := RawEvent{TimeMs: k.clock.NowMs(), Kind: NoteOn, Channel: 9, Note: note, Velocity: velocity}
	k.mu.Lock()
	k.pending = append(k.pending, ev)
	k.mu.Unlock()
}

// Poll implements Source.
func (k *KeySource) Poll() []RawEvent {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := k.pending
	k.pending = nil
	return out
}

// Multi polls several sources and merges their batches by time.
type Multi []Source

// Poll implements Source.
func (m Multi) Poll() []RawEvent {
	var out []RawEvent
	for _, s := range m {
		out = append(out, s.Poll()...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return out
}

// Run polls src every interval and feeds the ingestor until ctx is done.
// Overflow is recorded on the queue and does not stop the loop.
func Run(ctx context.Context, src Source, ing *Ingestor, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, ev := range src.Poll() {
			if err := ing.Handle(ev); err != nil && !errors.Is(err, ErrQueueOverflow) {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
