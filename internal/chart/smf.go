package chart

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/verte-zerg/tuidrum/internal/model"
	"github.com/verte-zerg/tuidrum/internal/tempo"
)

// DefaultGhostThreshold marks imported notes quieter than this as ghosts.
const DefaultGhostThreshold = 30

// percussionChannel is General MIDI channel 10, zero based.
const percussionChannel = 9

// ImportStats reports what an SMF import skipped.
type ImportStats struct {
	Notes   int
	Skipped int
}

// LoadSMF reads a Standard MIDI File through the General MIDI percussion map.
func LoadSMF(path string, ghostThreshold uint8) (c *Chart, st ImportStats, err error) {
	// smf may panic on corrupt input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: corrupt midi file: %v", ErrInvalidChart, r)
		}
	}()

	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, st, fmt.Errorf("%w: %w", ErrInvalidChart, err)
	}
	c, st, err = FromSMF(s, ghostThreshold)
	if err != nil {
		return nil, st, err
	}
	c.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return c, st, nil
}

type noteGroup struct {
	events  []Event
	skipped int
}

// FromSMF converts a parsed SMF. Tempo comes from tempo meta events and the
// meter from the first time signature. Notes on the percussion channel are
// imported; files without any fall back to every channel.
func FromSMF(s *smf.SMF, ghostThreshold uint8) (*Chart, ImportStats, error) {
	var st ImportStats
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || mt == 0 {
		return nil, st, fmt.Errorf("%w: only metric time format is supported", ErrInvalidChart)
	}
	tpq := float64(uint16(mt))

	c := &Chart{BeatsPerBar: 4}
	tempos := make(map[int64]float64)
	meterSeen := false
	var drums, melodic noteGroup

	for _, track := range s.Tracks {
		var absTicks int64
		for _, event := range track {
			absTicks += int64(event.Delta)
			var bpm float64
			var num, denom uint8
			var channel, key, velocity uint8
			switch {
			case event.Message.GetMetaTempo(&bpm):
				tempos[absTicks] = bpm
			case event.Message.GetMetaMeter(&num, &denom):
				if !meterSeen && num > 0 {
					c.BeatsPerBar = int(num)
					meterSeen = true
				}
			case event.Message.GetNoteOn(&channel, &key, &velocity):
				if velocity == 0 {
					continue
				}
				group := &melodic
				if channel == percussionChannel {
					group = &drums
				}
				inst, ok := model.GeneralMIDIKeys[key]
				if !ok {
					group.skipped++
					continue
				}
				group.events = append(group.events, Event{
					Beat:       float64(absTicks) / tpq,
					Instrument: inst,
					Velocity:   velocity,
					Ghost:      velocity < ghostThreshold,
				})
			}
		}
	}

	picked := drums
	if len(drums.events) == 0 && drums.skipped == 0 {
		picked = melodic
	} else {
		st.Skipped += len(melodic.events) + melodic.skipped
	}
	c.Events = picked.events
	st.Notes = len(picked.events)
	st.Skipped += picked.skipped

	c.Tempo = tempoSegments(tempos, tpq)
	if len(c.Events) == 0 {
		return nil, st, fmt.Errorf("%w: no percussion notes found", ErrInvalidChart)
	}
	return c, st, nil
}

func tempoSegments(tempos map[int64]float64, tpq float64) []tempo.Segment {
	ticks := make([]int64, 0, len(tempos))
	for t := range tempos {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	segs := []tempo.Segment{{StartBeat: 0, MicrosPerBeat: tempo.DefaultMicrosPerBeat}}
	for _, t := range ticks {
		bpm := tempos[t]
		if bpm <= 0 {
			continue
		}
		seg := tempo.Segment{StartBeat: float64(t) / tpq, MicrosPerBeat: 60_000_000 / bpm}
		last := &segs[len(segs)-1]
		switch {
		case seg.StartBeat == last.StartBeat:
			last.MicrosPerBeat = seg.MicrosPerBeat
		case seg.MicrosPerBeat != last.MicrosPerBeat:
			segs = append(segs, seg)
		}
	}
	return segs
}
