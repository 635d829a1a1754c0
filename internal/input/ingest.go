package input

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultHiHatController is the MIDI foot controller.
const DefaultHiHatController = 4

// ccHistory is the number of controller values kept per controller.
const ccHistory = 8

// Profile is the device mapping and calibration for a session.
type Profile struct {
	Mapper          Mapper
	LatencyOffsetMs float64
	// Controller is the CC number attached to hits as articulation state.
	Controller uint8
	DefaultCC  uint8
}

// DefaultProfile uses the General MIDI map with no latency correction.
func DefaultProfile() *Profile {
	return &Profile{
		Mapper:     DefaultPadMap(),
		Controller: DefaultHiHatController,
		DefaultCC:  127,
	}
}

type ccSample struct {
	timeMs float64
	value  uint8
}

// Ingestor stamps, corrects and resolves raw events into the hit queue.
// Handle may be called from several producers; the profile may be swapped
// from the frame context at any time.
type Ingestor struct {
	profile   atomic.Pointer[Profile]
	queue     *Queue
	queueSize int
	logger    *zap.Logger

	mu sync.Mutex
	cc map[uint8][]ccSample
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithQueueSize sets the hit queue capacity.
func WithQueueSize(n int) Option {
	return func(i *Ingestor) {
		i.queueSize = n
	}
}

// NewIngestor creates an ingestor for profile. A nil profile uses DefaultProfile.
func NewIngestor(profile *Profile, opts ...Option) *Ingestor {
	ing := &Ingestor{
		logger: zap.NewNop(),
		cc:     make(map[uint8][]ccSample),
	}
	for _, opt := range opts {
		opt(ing)
	}
	ing.queue = NewQueue(ing.queueSize, ing.logger)
	if profile == nil {
		profile = DefaultProfile()
	}
	ing.profile.Store(profile)
	return ing
}

// SetProfile swaps the active profile.
func (i *Ingestor) SetProfile(p *Profile) {
	if p == nil {
		return
	}
	i.profile.Store(p)
}

// Profile returns the active profile.
func (i *Ingestor) Profile() *Profile {
	return i.profile.Load()
}

// Queue returns the hit queue consumed by the frame context.
func (i *Ingestor) Queue() *Queue {
	return i.queue
}

// Handle processes one raw event. Controller events only update the snapshot.
// It returns ErrQueueOverflow when the queue dropped a hit.
func (i *Ingestor) Handle(ev RawEvent) error {
	switch ev.Kind {
	case Control:
		i.recordCC(ev.Note, ev.TimeMs, ev.Velocity)
		return nil
	case NoteOn:
		if ev.Velocity == 0 {
			return nil
		}
	default:
		return nil
	}

	p := i.profile.Load()
	cc, seen := i.ccAt(p.Controller, ev.TimeMs)
	if !seen {
		cc = p.DefaultCC
	}
	hit := LiveHit{
		TimeMs:   ev.TimeMs - p.LatencyOffsetMs,
		Note:     ev.Note,
		Velocity: ev.Velocity,
		CC:       &cc,
	}
	if p.Mapper != nil {
		if inst, ok := p.Mapper.Resolve(ev.Note, cc); ok {
			hit.Instrument = inst
		}
	}
	if !hit.Mapped() {
		i.logger.Debug("unmapped note", zap.Uint8("note", ev.Note))
	}
	return i.queue.Push(hit)
}

// Reset clears controller snapshots and the queue.
func (i *Ingestor) Reset() {
	i.mu.Lock()
	i.cc = make(map[uint8][]ccSample)
	i.mu.Unlock()
	i.queue.Reset()
}

func (i *Ingestor) recordCC(controller uint8, timeMs float64, value uint8) {
	i.mu.Lock()
	defer i.mu.Unlock()
	hist := append(i.cc[controller], ccSample{timeMs: timeMs, value: value})
	if len(hist) > ccHistory {
		hist = hist[len(hist)-ccHistory:]
	}
	i.cc[controller] = hist
}

// ccAt returns the latest value recorded at or before timeMs.
func (i *Ingestor) ccAt(controller uint8, timeMs float64) (uint8, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	var (
		best  ccSample
		found bool
	)
	for _, s := range i.cc[controller] {
		if s.timeMs <= timeMs && (!found || s.timeMs >= best.timeMs) {
			best = s
			found = true
		}
	}
	return best.value, found
}
