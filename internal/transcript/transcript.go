package transcript

import (
	"fmt"
	"strings"
)

// Fragment is one incremental transcription result. Speaker is zero when the
// service did not attribute the text to anyone.
type Fragment struct {
	Text    string
	Speaker int
}

// Heading is the marker written before text whenever the speaker changes.
func Heading(speaker int) string {
	return fmt.Sprintf("\n\n**Speaker %d:** ", speaker)
}

// Assembler accumulates fragments into a speaker-annotated transcript.
// Fragments are applied strictly in the order given; there is no reordering
// or merging. Assembler is not safe for concurrent use.
type Assembler struct {
	buf         strings.Builder
	lastSpeaker int
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Apply appends a fragment and returns the exact segment that was added,
// heading included. Empty text is ignored and returns "".
func (a *Assembler) Apply(f Fragment) string {
	if f.Text == "" {
		return ""
	}

	var seg strings.Builder
	if f.Speaker > 0 && f.Speaker != a.lastSpeaker {
		seg.WriteString(Heading(f.Speaker))
		a.lastSpeaker = f.Speaker
	}
	seg.WriteString(f.Text)

	out := seg.String()
	a.buf.WriteString(out)
	return out
}

// Text returns everything appended so far.
func (a *Assembler) Text() string { return a.buf.String() }

// Reset clears the text and the speaker marker.
func (a *Assembler) Reset() {
	a.buf.Reset()
	a.lastSpeaker = 0
}
