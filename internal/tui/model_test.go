package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kestrelio/ffmpegevents/internal/event"
)

func TestNew(t *testing.T) {
	m := New(Config{RunID: "abc123", FFmpegPath: "ffmpeg"})

	if m.runID != "abc123" {
		t.Errorf("runID = %q, want %q", m.runID, "abc123")
	}
	if m.width != 80 || m.height != 24 {
		t.Errorf("default size = %dx%d, want 80x24", m.width, m.height)
	}
}

func TestUpdate_ParsedInputOutput(t *testing.T) {
	m := New(Config{RunID: "r1"})

	updated, _ := m.Update(EventMsg(event.NewParsedInput(event.Container{Index: 0, Format: "mov", Location: "in.mp4"})))
	m = updated.(Model)
	updated, _ = m.Update(EventMsg(event.NewParsedOutput(event.Container{Index: 0, Format: "rawvideo", Location: "pipe:1"})))
	m = updated.(Model)

	if len(m.inputs) != 1 || m.inputs[0].Location != "in.mp4" {
		t.Errorf("inputs = %+v, want one input with Location in.mp4", m.inputs)
	}
	if len(m.outputs) != 1 || m.outputs[0].Format != "rawvideo" {
		t.Errorf("outputs = %+v, want one output with Format rawvideo", m.outputs)
	}
}

func TestUpdate_Progress(t *testing.T) {
	m := New(Config{RunID: "r1"})

	updated, _ := m.Update(EventMsg(event.NewProgress(event.Progress{Frame: 10, Speed: 1.5})))
	m = updated.(Model)

	if !m.hasProgress || m.latestProgress.Frame != 10 {
		t.Errorf("latestProgress = %+v, hasProgress = %v", m.latestProgress, m.hasProgress)
	}
}

func TestUpdate_LogTruncatesToMax(t *testing.T) {
	m := New(Config{RunID: "r1"})

	for i := 0; i < maxLogLines+50; i++ {
		updated, _ := m.Update(EventMsg(event.NewLog(event.LogLine{Level: event.LevelInfo, Text: "line"})))
		m = updated.(Model)
	}

	if len(m.logs) != maxLogLines {
		t.Errorf("len(logs) = %d, want %d", len(m.logs), maxLogLines)
	}
}

func TestUpdate_Done(t *testing.T) {
	m := New(Config{RunID: "r1"})

	updated, cmd := m.Update(EventMsg(event.NewDone(event.Status{Success: true, ExitCode: 0})))
	m = updated.(Model)

	if !m.done || !m.status.Success {
		t.Errorf("done = %v, status = %+v", m.done, m.status)
	}
	if cmd != nil {
		t.Error("Done should not issue a tea.Cmd")
	}
}

func TestUpdate_KeyQuits(t *testing.T) {
	m := New(Config{RunID: "r1"})

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = updated.(Model)

	if !m.quitting {
		t.Error("expected quitting to be true after 'q'")
	}
	if cmd == nil {
		t.Error("expected a tea.Quit command")
	}
}

func TestUpdate_WindowSize(t *testing.T) {
	m := New(Config{RunID: "r1"})

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
}

func TestView_EmptyAfterQuitting(t *testing.T) {
	m := New(Config{RunID: "r1"})
	m.quitting = true

	if m.View() != "" {
		t.Errorf("View() after quitting = %q, want empty", m.View())
	}
}

func TestView_RendersSomethingBeforeQuitting(t *testing.T) {
	m := New(Config{RunID: "r1"})
	m.Update(EventMsg(event.NewProgress(event.Progress{Frame: 1})))

	if m.View() == "" {
		t.Error("View() before quitting should not be empty")
	}
}

func TestElapsed(t *testing.T) {
	m := New(Config{RunID: "r1"})
	time.Sleep(5 * time.Millisecond)

	if m.Elapsed() < 5*time.Millisecond {
		t.Errorf("Elapsed() = %v, want >= 5ms", m.Elapsed())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{3661 * time.Second, "01:01:01"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{500, "500 B"},
		{1500, "1.50 KB"},
		{1_500_000, "1.50 MB"},
		{1_500_000_000, "1.50 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
