package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestSummarizeEmptyInput(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "x", nil
	})
	s := NewSummarizer(gen, 0, quietLogger())

	for _, in := range []string{"", "   ", "\n\t \n"} {
		_, err := s.Summarize(context.Background(), in)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Summarize(%q) error = %v, want ErrEmptyInput", in, err)
		}
	}
	if calls != 0 {
		t.Errorf("generator called %d times, want 0", calls)
	}
}

func TestSummarizeEmbedsTranscriptVerbatim(t *testing.T) {
	transcript := "\n\n**Speaker 1:** Hello there\n\n**Speaker 2:** Hi {{TRANSCRIPT}}"
	var prompts []string
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "  raw summary \n", nil
	})
	s := NewSummarizer(gen, 0, quietLogger())

	out, err := s.Summarize(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "  raw summary \n" {
		t.Errorf("summary should be returned unmodified, got %q", out)
	}
	if len(prompts) != 1 {
		t.Fatalf("generator called %d times, want 1", len(prompts))
	}
	if !strings.HasSuffix(prompts[0], transcript) {
		t.Errorf("prompt should end with the transcript verbatim:\n%s", prompts[0])
	}
	if !strings.HasPrefix(prompts[0], "You are an assistant") {
		t.Error("prompt should start with the fixed instructions")
	}
}

func TestSummarizeWrapsGenerationError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", boom
	})
	s := NewSummarizer(gen, 0, quietLogger())

	_, err := s.Summarize(context.Background(), "some words")
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want ErrGeneration wrapping boom", err)
	}
	if calls != 1 {
		t.Errorf("generator called %d times, want exactly 1 (no retry)", calls)
	}
}

func TestSummarizeTimeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := NewSummarizer(gen, 20*time.Millisecond, quietLogger())

	_, err := s.Summarize(context.Background(), "words")
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want ErrGeneration wrapping DeadlineExceeded", err)
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	p := BuildSummaryPrompt("abc")
	for _, section := range []string{"## Overview", "## Key Points", "## Decisions", "## Action Items"} {
		if !strings.Contains(p, section) {
			t.Errorf("prompt missing %q", section)
		}
	}
	if strings.Contains(p, transcriptPlaceholder) {
		t.Error("placeholder should be replaced")
	}
}
