package tui

import "github.com/lukasbauer/livescribe/internal/capture"

// Key binding constants used in handleKey.
const (
	KeyQuit          = "q"
	KeyCtrlC         = "ctrl+c"
	KeyToggle        = " "
	KeyPause         = "p"
	KeyCopyText      = "c"
	KeyCopySummary   = "y"
	KeyScrollUp      = "up"
	KeyScrollDown    = "down"
	KeyScrollUpAlt   = "k"
	KeyScrollDownAlt = "j"
)

// EventMsg wraps a controller event forwarded into the program.
type EventMsg struct {
	Event capture.Event
}

// StatusMsg carries a fresh controller snapshot after a control operation.
type StatusMsg struct {
	Status capture.Status
	Err    error
}

// CopiedMsg reports the result of a clipboard copy.
type CopiedMsg struct {
	What string
	Err  error
}

// ClearNoticeMsg clears the transient notice line.
type ClearNoticeMsg struct{}
