package stt

import (
	"context"
	"errors"

	"github.com/lukasbauer/livescribe/internal/transcript"
)

// ErrConnection marks failures to open a session or terminal errors reported
// by an open one.
var ErrConnection = errors.New("transcription session connection failed")

// Modality is the kind of output requested from the live model.
type Modality string

const ModalityText Modality = "TEXT"

// SessionConfig describes what the live session should produce.
type SessionConfig struct {
	Modality      Modality // desired output modality
	Transcription bool     // emit transcripts of the input audio
	MaxSpeakers   int      // expected speaker count for diarization, 0 to disable
}

// Media is one audio payload. Data is already transport-encoded.
type Media struct {
	Data     string
	MIMEType string
}

// Session is an open streaming transcription session.
type Session interface {
	// SendMedia submits one payload. Callers do not wait for acknowledgement
	// beyond the local write.
	SendMedia(ctx context.Context, m Media) error

	// Fragments delivers transcript fragments in arrival order until Close.
	Fragments() <-chan transcript.Fragment

	// Errors delivers at most one terminal error.
	Errors() <-chan error

	// Close releases the remote session. Safe to call more than once.
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}
