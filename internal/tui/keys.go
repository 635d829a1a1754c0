package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/verte-zerg/tuidrum/internal/input"
	"github.com/verte-zerg/tuidrum/internal/model"
)

// DefaultKeyPads binds home-row keys to kit pieces for keyboard practice.
var DefaultKeyPads = map[string]model.Instrument{
	"f": model.Kick,
	"j": model.Snare,
	"h": model.CrossStick,
	"k": model.HiHatClosed,
	"l": model.HiHatOpen,
	"d": model.HiHatFoot,
	"u": model.TomHigh,
	"i": model.TomLow,
	"o": model.TomFloor,
	"p": model.Ride,
	"y": model.Crash,
	"t": model.Splash,
	"r": model.China,
}

const keyVelocity = 100

type keyMap struct {
	Start    key.Binding
	Stop     key.Binding
	Faster   key.Binding
	Slower   key.Binding
	FreePlay key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Start:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start/continue")),
		Stop:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		Faster:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "tempo")),
		Slower:   key.NewBinding(key.WithKeys("-")),
		FreePlay: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "free play")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Faster, k.FreePlay, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// padNotes resolves key bindings to the notes the pad map expects.
func padNotes(keys map[string]model.Instrument, pads *input.PadMap) map[string]uint8 {
	out := make(map[string]uint8, len(keys))
	for k, inst := range keys {
		if pads != nil {
			if n, ok := pads.NoteFor(inst); ok {
				out[k] = n
				continue
			}
		}
		if n, ok := model.GeneralMIDINote(inst); ok {
			out[k] = n
		}
	}
	return out
}
