// Package midi connects rtmidi input ports to the hit pipeline. It is kept
// apart from package input so the engine builds without cgo.
package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"

	"github.com/verte-zerg/tuidrum/internal/input"
)

// ErrNoDevice reports that no matching MIDI input exists.
var ErrNoDevice = errors.New("no midi input")

var excludedPorts = []string{"Midi Through", "Through Port", "Dummy"}

// ListInputs returns the names of usable MIDI input ports.
func ListInputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to init midi driver: %w", err)
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			// Best-effort driver close.
			_ = cerr
		}
	}()
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("failed to list midi inputs: %w", err)
	}
	var names []string
	for _, in := range ins {
		if !excluded(in.String()) {
			names = append(names, in.String())
		}
	}
	return names, nil
}

// Source listens to one MIDI input port.
type Source struct {
	clock  input.Clock
	logger *zap.Logger
	drv    *rtmididrv.Driver
	in     drivers.In
	stop   func()
	name   string

	mu      sync.Mutex
	pending []input.RawEvent
}

// Open connects to the first port whose name contains pattern. An empty
// pattern picks the first usable port.
func Open(pattern string, clock input.Clock, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to init midi driver: %w", err)
	}
	ins, err := drv.Ins()
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("failed to list midi inputs: %w", err)
	}
	var found drivers.In
	for _, in := range ins {
		name := in.String()
		if excluded(name) {
			continue
		}
		if pattern == "" || strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			found = in
			break
		}
	}
	if found == nil {
		_ = drv.Close()
		return nil, fmt.Errorf("%w matching %q", ErrNoDevice, pattern)
	}
	if err := found.Open(); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("failed to open %q: %w", found.String(), err)
	}

	s := &Source{clock: clock, logger: logger, drv: drv, in: found, name: found.String()}
	stop, err := gomidi.ListenTo(found, s.receive, gomidi.HandleError(func(listenErr error) {
		s.logger.Warn("midi listener error", zap.String("device", s.name), zap.Error(listenErr))
	}))
	if err != nil {
		_ = found.Close()
		_ = drv.Close()
		return nil, fmt.Errorf("failed to listen on %q: %w", s.name, err)
	}
	s.stop = stop
	logger.Info("midi connected", zap.String("device", s.name))
	return s, nil
}

// Name returns the connected port name.
func (s *Source) Name() string { return s.name }

func (s *Source) receive(msg gomidi.Message, _ int32) {
	ev, ok := rawEvent(msg, s.clock.NowMs())
	if !ok {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
}

// rawEvent converts note starts and control changes; everything else is skipped.
func rawEvent(msg gomidi.Message, now float64) (input.RawEvent, bool) {
	var ch, key, vel, ctl, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return input.RawEvent{TimeMs: now, Kind: input.NoteOn, Channel: ch, Note: key, Velocity: vel}, true
	case msg.GetControlChange(&ch, &ctl, &val):
		return input.RawEvent{TimeMs: now, Kind: input.Control, Channel: ch, Note: ctl, Velocity: val}, true
	}
	return input.RawEvent{}, false
}

// Poll implements input.Source.
func (s *Source) Poll() []input.RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Close stops listening and releases the driver.
func (s *Source) Close() error {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	var errs []error
	if s.in != nil {
		errs = append(errs, s.in.Close())
		s.in = nil
	}
	if s.drv != nil {
		errs = append(errs, s.drv.Close())
		s.drv = nil
	}
	return errors.Join(errs...)
}

func excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range excludedPorts {
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}
