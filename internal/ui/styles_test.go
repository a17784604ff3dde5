package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestRender_PlainProfile(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	tests := []struct {
		name string
		fn   func(string) string
	}{
		{"pass", RenderPass},
		{"warn", RenderWarn},
		{"fail", RenderFail},
		{"accent", RenderAccent},
		{"muted", RenderMuted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn("ok"); got != "ok" {
				t.Errorf("render = %q, want plain text", got)
			}
		})
	}
}

func TestKV_Aligns(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	out := KV([][2]string{{"pendientes", "3"}, {"día", "2025-03-14"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("KV() = %q, want 2 lines", out)
	}
	if !strings.HasSuffix(lines[0], " 3") || !strings.HasSuffix(lines[1], " 2025-03-14") {
		t.Errorf("KV() = %q", out)
	}
}
