package ui

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hell…"},
		{"hello", 1, "…"},
		{"hello", 0, "hello"},
		{"héllo wörld", 6, "héllo…"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTableAlignment(t *testing.T) {
	out := Table(
		[]string{"ID", "STATUS"},
		[][]string{
			{"run-1", "completed"},
			{"run-22", "failed"},
		},
	)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[1], "run-1 ") {
		t.Errorf("short cell not padded: %q", lines[1])
	}
	if !strings.Contains(lines[2], "run-22") {
		t.Errorf("missing row: %q", lines[2])
	}
}

func TestTableRaggedRows(t *testing.T) {
	out := Table(
		[]string{"A", "B", "C"},
		[][]string{
			{"1"},
			{"1", "2", "3", "dropped"},
		},
	)
	if strings.Contains(out, "dropped") {
		t.Errorf("extra cell should be dropped: %q", out)
	}
}

func TestKV(t *testing.T) {
	out := KV([][2]string{
		{"Workspace", "acme"},
		{"Run", "run-1"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, "  ") {
			t.Errorf("label and value not separated: %q", line)
		}
	}
}
