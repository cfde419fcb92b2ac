package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput is returned when there is nothing to summarize.
	ErrEmptyInput = errors.New("transcript is empty")

	// ErrGeneration wraps any failure of the text-generation call.
	ErrGeneration = errors.New("text generation failed")
)

// Generator is a single-round-trip text generation API.
type Generator interface {
	// Generate sends prompt and returns the response text.
	Generate(ctx context.Context, prompt string) (string, error)
}
