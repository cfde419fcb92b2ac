package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Summarizer turns a finished transcript into a structured summary with one
// generation call. It never retries.
type Summarizer struct {
	gen     Generator
	timeout time.Duration
	logger  *logrus.Logger
}

// NewSummarizer wraps gen. A zero timeout leaves the call bounded only by
// the caller's context.
func NewSummarizer(gen Generator, timeout time.Duration, logger *logrus.Logger) *Summarizer {
	return &Summarizer{gen: gen, timeout: timeout, logger: logger}
}

// Summarize returns the generator's response unmodified. A transcript that
// is empty after trimming fails with ErrEmptyInput without any call; every
// generator failure is wrapped in ErrGeneration.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", ErrEmptyInput
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.gen.Generate(ctx, BuildSummaryPrompt(transcript))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	s.logger.WithFields(logrus.Fields{
		"transcript_bytes": len(transcript),
		"summary_bytes":    len(out),
		"latency_ms":       time.Since(start).Milliseconds(),
	}).Info("llm: summary generated")

	return out, nil
}
