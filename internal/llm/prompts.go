package llm

import "strings"

// transcriptPlaceholder is replaced with the verbatim transcript.
const transcriptPlaceholder = "{{TRANSCRIPT}}"

// SummaryPrompt is the fixed instruction sent with every transcript.
const SummaryPrompt = `You are an assistant that writes meeting notes from a raw, speaker-labelled transcript.

Produce a structured summary in Markdown with exactly these sections:

## Overview
Two or three sentences describing what the conversation was about.

## Key Points
A bulleted list of the main topics and conclusions, in the order they came up.

## Decisions
A bulleted list of decisions that were made. Write "None recorded." if there were none.

## Action Items
A bulleted list of follow-ups. Name the speaker responsible when the transcript makes it clear.

RULES:
- Use only information present in the transcript. Do not invent names, dates or numbers.
- Refer to participants by the speaker labels used in the transcript.
- Keep the whole summary under 400 words.

TRANSCRIPT:
` + transcriptPlaceholder

// BuildSummaryPrompt embeds the transcript into SummaryPrompt unchanged.
func BuildSummaryPrompt(transcript string) string {
	return strings.Replace(SummaryPrompt, transcriptPlaceholder, transcript, 1)
}
