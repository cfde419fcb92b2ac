package capture

import (
	"fmt"
	"time"
)

// State is the lifecycle state of the controller.
type State int

const (
	Idle State = iota
	Requesting
	Recording
	Paused
	Stopped
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Active reports whether a session holds (or is acquiring) resources.
func (s State) Active() bool {
	return s == Requesting || s == Recording || s == Paused
}

// EventKind identifies what changed.
type EventKind int

const (
	EventState EventKind = iota
	EventSegment
	EventTick
	EventSummarizing
	EventSummary
	EventError
)

// Event is delivered to observers after the controller's state has been
// updated. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	State   State
	Segment string
	Elapsed time.Duration
	Summary string
	Err     *Error
}

// Observer receives controller events. It is called from controller and
// session goroutines and should return quickly.
type Observer func(Event)

// Status is a point-in-time snapshot of the controller.
type Status struct {
	SessionID   string
	State       State
	Elapsed     time.Duration // whole seconds spent recording
	StartedAt   time.Time
	Transcript  string
	Summary     string
	Summarizing bool
	Err         *Error
}

// FormatElapsed renders d as MM:SS. Minutes keep counting past 59.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
