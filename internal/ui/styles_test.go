package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	out := Table([]string{"ID", "Title"}, [][]string{{"abc", "Air quality"}, {"def", "Rainfall"}})
	for _, want := range []string{"ID", "Title", "abc", "Air quality", "Rainfall"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRanking(t *testing.T) {
	if got := RenderRanking(3); strings.Count(got, "★") != 3 || strings.Count(got, "☆") != 1 {
		t.Errorf("RenderRanking(3) = %q", got)
	}
	if got := RenderRanking(9); strings.Count(got, "★") != 4 {
		t.Errorf("RenderRanking(9) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"กรมอุตุนิยมวิทยา", 4, "กรม…"},
		{"abcdef", 1, "…"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderersKeepText(t *testing.T) {
	for _, fn := range []func(string) string{RenderAccent, RenderPass, RenderWarn, RenderFail, RenderMuted} {
		if got := fn("✓"); !strings.Contains(got, "✓") {
			t.Errorf("renderer dropped text: %q", got)
		}
	}
}
