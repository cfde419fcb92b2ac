package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/lukasbauer/livescribe/internal/llm"
	"github.com/lukasbauer/livescribe/internal/stt"
)

// Device acquisition failures. Device adapters wrap their platform errors
// with one of these so Classify never has to know platform names.
var (
	ErrPermissionDenied = errors.New("capture device access denied")
	ErrDeviceNotFound   = errors.New("no capture device found")
	ErrDeviceUnreadable = errors.New("capture device unreadable")
)

// Lifecycle misuse.
var (
	ErrSessionActive = errors.New("a capture session is already active")
	ErrInvalidState  = errors.New("operation not valid in current state")
	ErrStartAborted  = errors.New("start aborted by stop")
)

// ErrorKind is the user-facing failure taxonomy.
type ErrorKind int

const (
	UnknownError ErrorKind = iota
	PermissionDenied
	DeviceNotFound
	DeviceUnreadable
	ConnectionError
	EmptyInput
	GenerationError
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case DeviceNotFound:
		return "device_not_found"
	case DeviceUnreadable:
		return "device_unreadable"
	case ConnectionError:
		return "connection_error"
	case EmptyInput:
		return "empty_input"
	case GenerationError:
		return "generation_error"
	default:
		return "unknown_error"
	}
}

// Message is the single line shown to the user for this kind.
func (k ErrorKind) Message() string {
	switch k {
	case PermissionDenied:
		return "Microphone access was denied. Allow microphone access and try again."
	case DeviceNotFound:
		return "No microphone was found. Connect a microphone and try again."
	case DeviceUnreadable:
		return "The microphone is busy or not working. Close other apps using it and try again."
	case ConnectionError:
		return "Could not reach the transcription service. Check your connection and try again."
	case EmptyInput:
		return "There is no transcript to summarize."
	case GenerationError:
		return "The summary could not be generated."
	default:
		return "Something went wrong. Please try again."
	}
}

// Error is a classified failure held by the controller. Only one is held at
// a time; starting a new session clears it.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps an arbitrary failure onto the taxonomy.
func Classify(err error) ErrorKind {
	var ce *Error
	switch {
	case err == nil:
		return UnknownError
	case errors.As(err, &ce):
		return ce.Kind
	case errors.Is(err, ErrPermissionDenied):
		return PermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return DeviceNotFound
	case errors.Is(err, ErrDeviceUnreadable):
		return DeviceUnreadable
	case errors.Is(err, llm.ErrEmptyInput):
		return EmptyInput
	case errors.Is(err, llm.ErrGeneration):
		return GenerationError
	case errors.Is(err, stt.ErrConnection), errors.Is(err, context.DeadlineExceeded):
		return ConnectionError
	default:
		return UnknownError
	}
}

func classified(err error) *Error {
	return &Error{Kind: Classify(err), Err: err}
}
