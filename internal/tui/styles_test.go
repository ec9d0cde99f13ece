package tui

import (
	"strings"
	"testing"
)

func TestStatusStyleFor(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"error", "error"},
		{"fatal", "fatal"},
		{"warning", "warning"},
		{"info", "info"},
		{"unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			style := statusStyleFor(tt.level)
			rendered := style.Render(tt.want)
			if !strings.Contains(rendered, tt.want) {
				t.Errorf("Render(%q) = %q, does not contain input text", tt.want, rendered)
			}
		})
	}
}

func TestBaseStylesRenderNonEmpty(t *testing.T) {
	styles := map[string]interface {
		Render(...string) string
	}{
		"baseStyle":     baseStyle,
		"mutedStyle":    mutedStyle,
		"dimStyle":      dimStyle,
		"boldStyle":     boldStyle,
		"titleStyle":    titleStyle,
		"subtitleStyle": subtitleStyle,
		"statusOK":      statusOK,
		"statusWarning": statusWarning,
		"statusError":   statusError,
	}

	for name, s := range styles {
		t.Run(name, func(t *testing.T) {
			if out := s.Render("x"); out == "" {
				t.Errorf("%s.Render(\"x\") returned empty string", name)
			}
		})
	}
}
