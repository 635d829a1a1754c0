package model

import (
	"fmt"
	"strings"
)

// Instrument identifies a kit piece. The zero value is Unmapped.
type Instrument uint8

const (
	Unmapped Instrument = iota
	Kick
	Snare
	CrossStick
	HiHatClosed
	HiHatOpen
	HiHatFoot
	TomHigh
	TomLow
	TomFloor
	Ride
	Crash
	Splash
	China
)

var instrumentNames = [...]string{
	Unmapped:    "unmapped",
	Kick:        "kick",
	Snare:       "snare",
	CrossStick:  "cross-stick",
	HiHatClosed: "hihat-closed",
	HiHatOpen:   "hihat-open",
	HiHatFoot:   "hihat-foot",
	TomHigh:     "tom-high",
	TomLow:      "tom-low",
	TomFloor:    "tom-floor",
	Ride:        "ride",
	Crash:       "crash",
	Splash:      "splash",
	China:       "china",
}

var instrumentAliases = map[string]Instrument{
	"bass":      Kick,
	"bd":        Kick,
	"sd":        Snare,
	"rim":       CrossStick,
	"hh":        HiHatClosed,
	"hihat":     HiHatClosed,
	"hh-open":   HiHatOpen,
	"hh-pedal":  HiHatFoot,
	"hh-foot":   HiHatFoot,
	"high-tom":  TomHigh,
	"low-tom":   TomLow,
	"floor-tom": TomFloor,
}

// Instruments returns every mapped instrument in display order.
func Instruments() []Instrument {
	out := make([]Instrument, 0, len(instrumentNames)-1)
	for i := Kick; int(i) < len(instrumentNames); i++ {
		out = append(out, i)
	}
	return out
}

// String returns the canonical instrument name.
func (i Instrument) String() string {
	if int(i) < len(instrumentNames) {
		return instrumentNames[i]
	}
	return fmt.Sprintf("instrument(%d)", uint8(i))
}

// Valid reports whether i names a real kit piece.
func (i Instrument) Valid() bool {
	return i != Unmapped && int(i) < len(instrumentNames)
}

// ParseInstrument resolves a canonical name or a common alias.
func ParseInstrument(name string) (Instrument, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "_", "-")
	for i, n := range instrumentNames {
		if i == int(Unmapped) {
			continue
		}
		if n == key {
			return Instrument(i), nil
		}
	}
	if inst, ok := instrumentAliases[key]; ok {
		return inst, nil
	}
	return Unmapped, fmt.Errorf("unknown instrument %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (i Instrument) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike ParseInstrument
// it accepts "unmapped" so stored extras round-trip.
func (i *Instrument) UnmarshalText(text []byte) error {
	if string(text) == instrumentNames[Unmapped] {
		*i = Unmapped
		return nil
	}
	inst, err := ParseInstrument(string(text))
	if err != nil {
		return err
	}
	*i = inst
	return nil
}

// Dynamic is a velocity bucket.
type Dynamic int

const (
	Pianissimo Dynamic = iota
	Piano
	MezzoPiano
	MezzoForte
	Forte
	Fortissimo
)

var dynamicNames = [...]string{"pp", "p", "mp", "mf", "f", "ff"}

// DynamicOf buckets a MIDI velocity.
func DynamicOf(velocity uint8) Dynamic {
	switch {
	case velocity <= 20:
		return Pianissimo
	case velocity <= 50:
		return Piano
	case velocity <= 80:
		return MezzoPiano
	case velocity <= 100:
		return MezzoForte
	case velocity <= 115:
		return Forte
	default:
		return Fortissimo
	}
}

func (d Dynamic) String() string {
	if d >= 0 && int(d) < len(dynamicNames) {
		return dynamicNames[d]
	}
	return "?"
}

// GeneralMIDIKeys maps General MIDI percussion keys to instruments.
var GeneralMIDIKeys = map[uint8]Instrument{
	35: Kick,
	36: Kick,
	37: CrossStick,
	38: Snare,
	40: Snare,
	41: TomFloor,
	42: HiHatClosed,
	43: TomFloor,
	44: HiHatFoot,
	45: TomLow,
	46: HiHatOpen,
	47: TomLow,
	48: TomHigh,
	49: Crash,
	50: TomHigh,
	51: Ride,
	52: China,
	53: Ride,
	55: Splash,
	57: Crash,
	59: Ride,
}

var generalMIDINotes = map[Instrument]uint8{
	Kick:        36,
	CrossStick:  37,
	Snare:       38,
	TomFloor:    41,
	HiHatClosed: 42,
	HiHatFoot:   44,
	TomLow:      47,
	HiHatOpen:   46,
	TomHigh:     50,
	Crash:       49,
	Ride:        51,
	China:       52,
	Splash:      55,
}

// GeneralMIDINote returns the canonical General MIDI key for an instrument.
func GeneralMIDINote(i Instrument) (uint8, bool) {
	n, ok := generalMIDINotes[i]
	return n, ok
}
