package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) render() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderIO())
	sections = append(sections, m.renderProgress())
	sections = append(sections, m.renderLogs())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	status := "running"
	style := statusOK
	if m.done {
		if m.status.Success {
			status = "done"
		} else {
			status = fmt.Sprintf("exited %d", m.status.ExitCode)
			style = statusError
		}
	}

	header := fmt.Sprintf(" ffevents | run %s | %s | elapsed %s ",
		shortID(m.runID), style.Render(status), formatDuration(m.Elapsed()))
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Input / Output summary
// =============================================================================

func (m Model) renderIO() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Inputs"))
	b.WriteString("\n")
	if len(m.inputs) == 0 {
		b.WriteString(dimStyle.Render("  (none parsed yet)") + "\n")
	}
	for _, in := range m.inputs {
		fmt.Fprintf(&b, "  #%d %s %s\n", in.Index, baseStyle.Render(in.Format), mutedStyle.Render(in.Location))
	}

	b.WriteString(subtitleStyle.Render("Outputs"))
	b.WriteString("\n")
	if len(m.outputs) == 0 {
		b.WriteString(dimStyle.Render("  (none parsed yet)") + "\n")
	}
	for _, out := range m.outputs {
		fmt.Fprintf(&b, "  #%d %s %s\n", out.Index, baseStyle.Render(out.Format), mutedStyle.Render(out.Location))
	}

	return panelStyle.Width(m.width - 2).Render(strings.TrimRight(b.String(), "\n"))
}

// =============================================================================
// Progress
// =============================================================================

func (m Model) renderProgress() string {
	if !m.hasProgress {
		return panelStyle.Width(m.width - 2).Render(dimStyle.Render("waiting for progress..."))
	}

	p := m.latestProgress
	line := fmt.Sprintf(
		"frame %-8d  fps %-6.1f  size %-10s  bitrate %-10.1fkb/s  speed %-6.2fx  dup %-4d  drop %-4d",
		p.Frame, p.FPS, formatBytes(p.TotalSizeBytes), p.BitrateKbps, p.Speed, p.DupFrames, p.DropFrames,
	)
	return panelStyle.Width(m.width - 2).Render(baseStyle.Render(line))
}

// =============================================================================
// Log tail
// =============================================================================

func (m Model) renderLogs() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Log"))
	b.WriteString("\n")

	n := len(m.logs)
	visible := m.logHeight()
	start := 0
	if n > visible {
		start = n - visible
	}
	for _, l := range m.logs[start:] {
		style := statusStyleFor(l.Level.String())
		fmt.Fprintf(&b, "  %s %s\n", style.Render("["+l.Level.String()+"]"), l.Text)
	}
	if m.lastErr != nil {
		fmt.Fprintf(&b, "  %s %v\n", statusError.Render("[error]"), m.lastErr)
	}

	return panelStyle.Width(m.width - 2).Height(visible + 1).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) logHeight() int {
	h := m.height - 14
	if h < 5 {
		h = 5
	}
	return h
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	return dimStyle.Render(" q: quit ")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
