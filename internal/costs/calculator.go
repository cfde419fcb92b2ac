// Package costs estimates API spend for a recording session.
package costs

import (
	"math"
	"os"
	"strconv"
)

// Pricing in cents per unit. Defaults can be overridden via environment
// variables.
var (
	// LiveCentsPerMinute is the cost per minute of audio streamed to the
	// live transcription API.
	LiveCentsPerMinute = getEnvFloat("COST_LIVE_CENTS_PER_MIN", 0.21)

	// GeminiCentsPerThousandInputTokens and GeminiCentsPerThousandOutputTokens
	// price the summary call on gemini-2.0-flash.
	GeminiCentsPerThousandInputTokens  = getEnvFloat("COST_GEMINI_INPUT_CENTS_PER_1K", 0.01)
	GeminiCentsPerThousandOutputTokens = getEnvFloat("COST_GEMINI_OUTPUT_CENTS_PER_1K", 0.04)

	// OpenAICentsPerThousandInputTokens and OpenAICentsPerThousandOutputTokens
	// price the summary call on gpt-4o-mini.
	OpenAICentsPerThousandInputTokens  = getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.015)
	OpenAICentsPerThousandOutputTokens = getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 0.06)
)

// charsPerToken approximates tokenizer output for English text.
const charsPerToken = 4

// SessionUsage is the raw usage of one session.
type SessionUsage struct {
	RecordedSeconds int    // audio actually streamed, pauses excluded
	PromptChars     int    // characters sent to the summary model
	SummaryChars    int    // characters received from the summary model
	Provider        string // "gemini" or "openai"
}

// SessionCosts is the estimated spend in cents, rounded to 1/100 cent.
type SessionCosts struct {
	LiveCostCents    float64
	SummaryCostCents float64
	TotalCostCents   float64
}

// EstimateTokens approximates the token count of n characters.
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

// CalculateSessionCosts computes the estimated costs for a session.
func CalculateSessionCosts(u SessionUsage) SessionCosts {
	minutes := float64(max(0, u.RecordedSeconds)) / 60.0
	live := minutes * LiveCentsPerMinute

	inRate, outRate := GeminiCentsPerThousandInputTokens, GeminiCentsPerThousandOutputTokens
	if u.Provider == "openai" {
		inRate, outRate = OpenAICentsPerThousandInputTokens, OpenAICentsPerThousandOutputTokens
	}
	summary := float64(EstimateTokens(u.PromptChars))/1000.0*inRate +
		float64(EstimateTokens(u.SummaryChars))/1000.0*outRate

	c := SessionCosts{
		LiveCostCents:    roundCents(live),
		SummaryCostCents: roundCents(summary),
	}
	c.TotalCostCents = roundCents(c.LiveCostCents + c.SummaryCostCents)
	return c
}

func roundCents(f float64) float64 {
	return math.Round(f*100) / 100
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
