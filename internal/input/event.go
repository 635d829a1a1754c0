// Package input turns raw controller events into latency-corrected hits.
package input

import "github.com/verte-zerg/tuidrum/internal/model"

// Kind distinguishes raw event types.
type Kind uint8

const (
	NoteOn Kind = iota
	Control
)

// RawEvent is one controller message stamped with the shared clock.
// For Control events Note holds the controller number and Velocity its value.
type RawEvent struct {
	TimeMs   float64
	Kind     Kind
	Channel  uint8
	Note     uint8
	Velocity uint8
}

// LiveHit is a latency-corrected, articulation-resolved performance event.
type LiveHit struct {
	TimeMs     float64
	Note       uint8
	Instrument model.Instrument
	CC         *uint8
	Velocity   uint8
}

// Mapped reports whether the hit resolved to an instrument.
func (h LiveHit) Mapped() bool {
	return h.Instrument != model.Unmapped
}
