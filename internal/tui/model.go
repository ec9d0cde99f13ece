// Package tui provides a live terminal dashboard for a single ffmpeg run.
//
// It uses Bubble Tea for the application framework and Lipgloss for
// styling: a single-pane Elm-architecture model showing the current
// input/output summary, the latest Progress line, and a scrolling tail of
// recent Log events — the single-stream detail view this module's
// multi-client dashboard ancestry shrinks down to when there is only one
// child process to watch.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kestrelio/ffmpegevents/internal/event"
)

const maxLogLines = 200

// EventMsg wraps one event from the run's iterator for delivery into the
// Bubble Tea update loop.
type EventMsg event.Event

// QuitMsg signals the TUI should exit, independent of a key press —
// sent by the caller when the run's Next(ctx) returns ok == false.
type QuitMsg struct{}

// Model is the TUI state for one run.
type Model struct {
	runID      string
	ffmpegPath string

	inputs  []event.Container
	outputs []event.Container

	latestProgress event.Progress
	hasProgress    bool

	logs []event.LogLine

	status   event.Status
	done     bool
	lastErr  error

	startTime  time.Time
	lastUpdate time.Time

	width, height int
	quitting      bool
}

// Config holds TUI configuration.
type Config struct {
	RunID      string
	FFmpegPath string
}

// New creates a new TUI model for one run.
func New(cfg Config) Model {
	return Model{
		runID:      cfg.RunID,
		ffmpegPath: cfg.FFmpegPath,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		width:      80,
		height:     24,
	}
}

// Init initializes the model. tea.WithAltScreen() is passed when the
// program is constructed, so no EnterAltScreen command is needed here.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case EventMsg:
		m.applyEvent(event.Event(msg))
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) applyEvent(ev event.Event) {
	switch ev.Kind {
	case event.KindParsedInput:
		m.inputs = append(m.inputs, ev.Input)
	case event.KindParsedOutput:
		m.outputs = append(m.outputs, ev.Output)
	case event.KindProgress:
		m.latestProgress = ev.Progress
		m.hasProgress = true
	case event.KindLog:
		m.logs = append(m.logs, ev.Log)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
	case event.KindError:
		m.lastErr = ev.Err
	case event.KindDone:
		m.done = true
		m.status = ev.Status
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	mm := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, mm, s)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// formatRate formats a rate with appropriate precision.
func formatRate(rate float64) string {
	switch {
	case rate >= 1000:
		return fmt.Sprintf("%.1fK/s", rate/1000)
	case rate >= 1:
		return fmt.Sprintf("%.1f/s", rate)
	default:
		return fmt.Sprintf("%.2f/s", rate)
	}
}

// SendEvent delivers one run event into a running Bubble Tea program.
func SendEvent(p *tea.Program, ev event.Event) {
	if p != nil {
		p.Send(EventMsg(ev))
	}
}

// SendQuit tells a running Bubble Tea program to exit.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
