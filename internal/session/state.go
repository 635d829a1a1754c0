package session

// Tag names a session state for display and logging.
type Tag int

const (
	TagIdle Tag = iota
	TagLoading
	TagReady
	TagCountdown
	TagPlaying
	TagStopped
	TagReview
)

var tagNames = [...]string{"idle", "loading", "ready", "countdown", "playing", "stopped", "review"}

func (t Tag) String() string {
	if t >= 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// State is the sealed set of session states.
type State interface {
	Tag() Tag
	sealed()
}

// Idle has no chart loaded.
type Idle struct{}

// Loading is the transient chart build state.
type Loading struct{}

// Ready has a chart and a config and waits for PressReady.
type Ready struct{}

// Countdown plays preroll ticks before Pass starts.
type Countdown struct {
	TicksRemaining int
	Pass           int
}

// Playing runs Pass. LoopsRemaining counts passes left including this one
// and is negative in Free Play.
type Playing struct {
	LoopsRemaining int
	Pass           int
}

// Stopped waits for open match windows to close.
type Stopped struct{}

// Review holds the frozen result of a Test run.
type Review struct{}

func (Idle) Tag() Tag      { return TagIdle }
func (Loading) Tag() Tag   { return TagLoading }
func (Ready) Tag() Tag     { return TagReady }
func (Countdown) Tag() Tag { return TagCountdown }
func (Playing) Tag() Tag   { return TagPlaying }
func (Stopped) Tag() Tag   { return TagStopped }
func (Review) Tag() Tag    { return TagReview }

func (Idle) sealed()      {}
func (Loading) sealed()   {}
func (Ready) sealed()     {}
func (Countdown) sealed() {}
func (Playing) sealed()   {}
func (Stopped) sealed()   {}
func (Review) sealed()    {}

// EventKind identifies a frame event.
type EventKind int

const (
	CountTick EventKind = iota
	PrerollComplete
	LoopEnd
	PassStart
	StoppedEvent
	ReviewReady
)

var eventNames = [...]string{"count-tick", "preroll-complete", "loop-end", "pass-start", "stopped", "review-ready"}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event reports something that happened during a frame. AtMs is the session
// time at which it happened, which may be earlier than the frame time.
type Event struct {
	Kind      EventKind
	Pass      int
	AtMs      float64
	Remaining int
}
