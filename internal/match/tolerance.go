package match

import "github.com/verte-zerg/tuidrum/internal/model"

// Tolerance returns the match and on-time windows for a beat of beatWallMs.
// A percentage of zero yields the cap as a fixed window; a cap of zero leaves
// the percentage uncapped. The on-time window never exceeds the match window.
func Tolerance(w model.Windows, beatWallMs float64) (matchMs, onTimeMs float64) {
	matchMs = window(w.MatchPct, w.MatchCapMs, beatWallMs)
	onTimeMs = window(w.OnTimePct, w.OnTimeCapMs, beatWallMs)
	if onTimeMs > matchMs {
		onTimeMs = matchMs
	}
	return matchMs, onTimeMs
}

func window(pct, capMs, beatWallMs float64) float64 {
	if pct <= 0 {
		return max(capMs, 0)
	}
	v := max(pct*beatWallMs, 0)
	if capMs > 0 && v > capMs {
		v = capMs
	}
	return v
}

// Classify grades a signed timing error.
func Classify(errMs, onTimeMs float64) model.Category {
	switch {
	case errMs >= -onTimeMs && errMs <= onTimeMs:
		return model.OnTime
	case errMs < 0:
		return model.Early
	default:
		return model.Late
	}
}
