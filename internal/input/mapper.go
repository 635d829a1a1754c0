package input

import (
	"fmt"

	"github.com/verte-zerg/tuidrum/internal/model"
)

// Mapper resolves raw notes to instruments. It is consulted once per note event.
type Mapper interface {
	Resolve(note, cc uint8) (model.Instrument, bool)
	Compatible(note uint8, inst model.Instrument) bool
}

// HiHatRule picks open or closed from the pedal controller. Values at or above
// Threshold are closed.
type HiHatRule struct {
	Enabled   bool
	Threshold uint8
}

// PadMap is a table-driven Mapper.
type PadMap struct {
	Notes map[uint8]model.Instrument
	HiHat HiHatRule
	// Loose lists instruments an unmapped note may still stand in for.
	Loose map[uint8][]model.Instrument
}

// DefaultPadMap returns the General MIDI percussion mapping.
func DefaultPadMap() *PadMap {
	notes := make(map[uint8]model.Instrument, len(model.GeneralMIDIKeys))
	for k, v := range model.GeneralMIDIKeys {
		notes[k] = v
	}
	return &PadMap{
		Notes: notes,
		HiHat: HiHatRule{Threshold: 64},
		Loose: map[uint8][]model.Instrument{},
	}
}

// Resolve implements Mapper.
func (p *PadMap) Resolve(note, cc uint8) (model.Instrument, bool) {
	inst, ok := p.Notes[note]
	if !ok {
		return model.Unmapped, false
	}
	if p.HiHat.Enabled && (inst == model.HiHatClosed || inst == model.HiHatOpen) {
		if cc >= p.HiHat.Threshold {
			return model.HiHatClosed, true
		}
		return model.HiHatOpen, true
	}
	return inst, true
}

// Compatible implements Mapper.
func (p *PadMap) Compatible(note uint8, inst model.Instrument) bool {
	for _, c := range p.Loose[note] {
		if c == inst {
			return true
		}
	}
	return false
}

// Set maps note to inst, replacing any previous entry.
func (p *PadMap) Set(note uint8, inst model.Instrument) error {
	if note > 127 {
		return fmt.Errorf("note %d out of range", note)
	}
	if !inst.Valid() {
		return fmt.Errorf("note %d: invalid instrument", note)
	}
	p.Notes[note] = inst
	return nil
}

// AllowLoose lets an unmapped note stand in for inst.
func (p *PadMap) AllowLoose(note uint8, inst model.Instrument) {
	if p.Compatible(note, inst) {
		return
	}
	p.Loose[note] = append(p.Loose[note], inst)
}

// NoteFor returns the lowest note mapped to inst.
func (p *PadMap) NoteFor(inst model.Instrument) (uint8, bool) {
	if n, ok := model.GeneralMIDINote(inst); ok {
		if got, mapped := p.Notes[n]; mapped && got == inst {
			return n, true
		}
	}
	for n := 0; n < 128; n++ {
		if got, ok := p.Notes[uint8(n)]; ok && got == inst {
			return uint8(n), true
		}
	}
	return 0, false
}
