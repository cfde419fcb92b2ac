package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukasbauer/livescribe/internal/capture"
)

// Controller is the part of capture.Controller the TUI drives.
type Controller interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop(ctx context.Context) error
	Close() error
	Status() capture.Status
}

// Model is the root bubbletea model.
type Model struct {
	ctrl      Controller
	clipboard io.Writer
	tmux      bool

	// Session state mirrored from the controller
	state       capture.State
	elapsed     time.Duration
	transcript  string
	summary     string
	summarizing bool
	errMessage  string

	// UI state
	notice   string
	width    int
	height   int
	scroll   int // lines scrolled up from the bottom of the transcript
	quitting bool
	busy     bool // a control operation is running
}

// New creates a Model driving ctrl. Clipboard sequences are written to
// clipboard, normally the terminal.
func New(ctrl Controller, clipboard io.Writer) Model {
	return Model{
		ctrl:      ctrl,
		clipboard: clipboard,
		tmux:      os.Getenv("TMUX") != "",
		state:     capture.Idle,
	}
}

func (m Model) Init() tea.Cmd {
	return statusCmd(m.ctrl, nil)
}

func statusCmd(ctrl Controller, err error) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg{Status: ctrl.Status(), Err: err}
	}
}

func startCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.Start(context.Background())
		return StatusMsg{Status: ctrl.Status(), Err: err}
	}
}

func stopCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		err := ctrl.Stop(context.Background())
		return StatusMsg{Status: ctrl.Status(), Err: err}
	}
}

func pauseCmd(ctrl Controller, resume bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if resume {
			err = ctrl.Resume()
		} else {
			err = ctrl.Pause()
		}
		return StatusMsg{Status: ctrl.Status(), Err: err}
	}
}

func closeCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		_ = ctrl.Close()
		return tea.Quit()
	}
}

func copyCmd(w io.Writer, text, what string, tmux bool) tea.Cmd {
	return func() tea.Msg {
		seq := osc52.New(text)
		if tmux {
			seq = seq.Tmux()
		}
		_, err := seq.WriteTo(w)
		return CopiedMsg{What: what, Err: err}
	}
}

func clearNoticeCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case StatusMsg:
		m.busy = false
		m.applyStatus(msg.Status)
		if msg.Err != nil && m.errMessage == "" && !isLifecycleMisuse(msg.Err) {
			m.errMessage = capture.Classify(msg.Err).Message()
		}
		return m, nil

	case CopiedMsg:
		if msg.Err != nil {
			m.notice = "Copy failed: " + msg.Err.Error()
		} else {
			m.notice = msg.What + " copied to clipboard"
		}
		return m, clearNoticeCmd()

	case ClearNoticeMsg:
		m.notice = ""
		return m, nil
	}

	return m, nil
}

func isLifecycleMisuse(err error) bool {
	return errors.Is(err, capture.ErrSessionActive) ||
		errors.Is(err, capture.ErrInvalidState) ||
		errors.Is(err, capture.ErrStartAborted)
}

func (m *Model) applyStatus(st capture.Status) {
	m.state = st.State
	m.elapsed = st.Elapsed
	m.transcript = st.Transcript
	m.summary = st.Summary
	m.summarizing = st.Summarizing
	m.errMessage = ""
	if st.Err != nil {
		m.errMessage = st.Err.Kind.Message()
	}
}

// handleEvent applies a live controller event.
func (m *Model) handleEvent(ev capture.Event) {
	switch ev.Kind {
	case capture.EventState:
		m.state = ev.State
		if ev.State == capture.Requesting {
			// New session: previous output and error are cleared.
			m.transcript = ""
			m.summary = ""
			m.summarizing = false
			m.errMessage = ""
			m.elapsed = 0
			m.scroll = 0
		}
		if ev.Elapsed > 0 {
			m.elapsed = ev.Elapsed
		}

	case capture.EventSegment:
		m.transcript += ev.Segment

	case capture.EventTick:
		m.elapsed = ev.Elapsed

	case capture.EventSummarizing:
		m.summarizing = true

	case capture.EventSummary:
		m.summarizing = false
		m.summary = ev.Summary

	case capture.EventError:
		m.summarizing = false
		if ev.Err != nil {
			m.errMessage = ev.Err.Kind.Message()
		}
	}
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyCtrlC:
		m.quitting = true
		return m, closeCmd(m.ctrl)

	case KeyToggle:
		if m.busy && m.state != capture.Requesting {
			return m, nil
		}
		m.busy = true
		if m.state.Active() {
			return m, stopCmd(m.ctrl)
		}
		return m, startCmd(m.ctrl)

	case KeyPause:
		switch m.state {
		case capture.Recording:
			return m, pauseCmd(m.ctrl, false)
		case capture.Paused:
			return m, pauseCmd(m.ctrl, true)
		}
		return m, nil

	case KeyCopyText:
		if strings.TrimSpace(m.transcript) == "" {
			m.notice = "Nothing to copy yet"
			return m, clearNoticeCmd()
		}
		return m, copyCmd(m.clipboard, m.transcript, "Transcript", m.tmux)

	case KeyCopySummary:
		if m.summary == "" {
			m.notice = "No summary yet"
			return m, clearNoticeCmd()
		}
		return m, copyCmd(m.clipboard, m.summary, "Summary", m.tmux)

	case KeyScrollUp, KeyScrollUpAlt:
		m.scroll++
		return m, nil

	case KeyScrollDown, KeyScrollDownAlt:
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil
	}

	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width == 0 {
		width = 80
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", width)))
	sections = append(sections, m.renderTranscript(width))

	if m.summary != "" || m.summarizing {
		sections = append(sections, DividerStyle.Render(strings.Repeat("─", width)))
		sections = append(sections, m.renderSummary(width))
	}

	sections = append(sections, DividerStyle.Render(strings.Repeat("─", width)))
	if m.errMessage != "" {
		sections = append(sections, ErrorStyle.Render("✗ "+m.errMessage))
	}
	if m.notice != "" {
		sections = append(sections, NoticeStyle.Render(m.notice))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("LIVESCRIBE")

	var badge string
	switch m.state {
	case capture.Recording:
		badge = RecordingStyle.Render("● REC")
	case capture.Paused:
		badge = PausedStyle.Render("❚❚ PAUSED")
	case capture.Requesting:
		badge = PausedStyle.Render("… CONNECTING")
	case capture.Errored:
		badge = ErrorStyle.Render("✗ ERROR")
	case capture.Stopped:
		badge = IdleStyle.Render("■ STOPPED")
	default:
		badge = IdleStyle.Render("○ IDLE")
	}

	elapsed := ElapsedStyle.Render(capture.FormatElapsed(m.elapsed))
	out := fmt.Sprintf("%s  %s  %s", title, badge, elapsed)
	if m.summarizing {
		out += "  " + DimStyle.Render("⟳ summarizing")
	}
	return out
}

func (m Model) transcriptLines() int {
	if m.height == 0 {
		return 15
	}
	// header, 2-3 dividers, error, notice, footer
	reserved := 7
	if m.summary != "" || m.summarizing {
		reserved += 1 + m.height/3
	}
	return max(3, m.height-reserved)
}

func (m Model) renderTranscript(width int) string {
	title := PanelTitleStyle.Render("Transcript")
	if strings.TrimSpace(m.transcript) == "" {
		return title + "\n" + DimStyle.Render("Press space to start recording.")
	}

	wrapped := lipgloss.NewStyle().Width(width).Render(strings.TrimLeft(m.transcript, "\n"))
	lines := strings.Split(wrapped, "\n")

	visible := m.transcriptLines()
	end := len(lines) - m.scroll
	if end < visible {
		end = min(visible, len(lines))
	}
	start := max(0, end-visible)

	out := make([]string, 0, end-start+1)
	out = append(out, title)
	for _, line := range lines[start:end] {
		out = append(out, styleSpeaker(line))
	}
	return strings.Join(out, "\n")
}

// styleSpeaker highlights a leading "**Speaker N:**" marker.
func styleSpeaker(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "**Speaker ") {
		return line
	}
	end := strings.Index(trimmed[2:], ":**")
	if end < 0 {
		return line
	}
	label := trimmed[2 : 2+end+1]
	rest := trimmed[2+end+3:]
	return SpeakerStyle.Render(label) + rest
}

func (m Model) renderSummary(width int) string {
	title := PanelTitleStyle.Render("Summary")
	if m.summarizing && m.summary == "" {
		return title + "\n" + DimStyle.Render("Generating summary...")
	}
	return title + "\n" + SummaryStyle.Width(width).Render(m.summary)
}

func (m Model) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"space", m.toggleLabel()},
		{"p", "pause/resume"},
		{"c", "copy transcript"},
		{"y", "copy summary"},
		{"↑↓", "scroll"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, FooterKeyStyle.Render(k.key)+" "+FooterDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}

func (m Model) toggleLabel() string {
	if m.state.Active() {
		return "stop"
	}
	return "start"
}
