// Package ticker advances the playhead through a loop region.
package ticker

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/tuidrum/internal/tempo"
)

// ErrInvalidLoop reports an unusable loop region or scale.
var ErrInvalidLoop = errors.New("invalid loop")

// Ticker converts wall-clock deltas into beat position. It reports loop-end
// crossings and never decides to stop.
type Ticker struct {
	tm        *tempo.Map
	loopStart float64
	loopEnd   float64
	scale     float64
	startMs   float64
	endMs     float64
	chartMs   float64
	beat      float64
	elapsedMs float64
}

// New creates a ticker positioned at loopStart.
func New(tm *tempo.Map, loopStart, loopEnd, tempoScale float64) (*Ticker, error) {
	if tempoScale <= 0 {
		return nil, fmt.Errorf("%w: tempo scale %g", ErrInvalidLoop, tempoScale)
	}
	if loopStart < 0 || loopEnd <= loopStart {
		return nil, fmt.Errorf("%w: region [%g, %g)", ErrInvalidLoop, loopStart, loopEnd)
	}
	t := &Ticker{
		tm:        tm,
		loopStart: loopStart,
		loopEnd:   loopEnd,
		scale:     tempoScale,
		startMs:   tm.TimeAtBeat(loopStart),
		endMs:     tm.TimeAtBeat(loopEnd),
	}
	t.Reset()
	return t, nil
}

// Advance moves the playhead by dtMs of wall time and returns the number of
// loop-end crossings. Overshoot past the loop end carries into the next pass.
func (t *Ticker) Advance(dtMs float64) int {
	if dtMs <= 0 {
		return 0
	}
	t.chartMs += dtMs * t.scale
	span := t.endMs - t.startMs
	crossings := 0
	for t.chartMs >= t.endMs {
		t.chartMs -= span
		crossings++
	}
	t.beat = t.tm.BeatAtTime(t.chartMs)
	t.elapsedMs = (t.chartMs - t.startMs) / t.scale
	return crossings
}

// Reset returns the playhead to the loop start.
func (t *Ticker) Reset() {
	t.chartMs = t.startMs
	t.beat = t.loopStart
	t.elapsedMs = 0
}

// Beat returns the current playhead beat.
func (t *Ticker) Beat() float64 { return t.beat }

// ElapsedInLoopMs returns wall ms since the current pass started.
func (t *Ticker) ElapsedInLoopMs() float64 { return t.elapsedMs }

// PassDurationMs returns the wall length of one pass at the current scale.
func (t *Ticker) PassDurationMs() float64 {
	return (t.endMs - t.startMs) / t.scale
}
