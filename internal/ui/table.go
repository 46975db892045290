package ui

import (
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// TerminalWidth returns the width of the attached terminal, or fallback when
// stdout is not a terminal (pipes, CI).
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// Truncate shortens s to max runes, ending with an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}

// Table renders rows as aligned columns with a muted header. Every row is
// padded to the header's column count; extra cells are dropped.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style func(string) string) {
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i > 0 {
				b.WriteString("  ")
			}
			padded := cell + strings.Repeat(" ", w-utf8.RuneCountInString(cell))
			if i == len(widths)-1 {
				padded = strings.TrimRight(padded, " ")
			}
			if style != nil {
				padded = style(padded)
			}
			b.WriteString(padded)
		}
		b.WriteString("\n")
	}

	writeRow(header, RenderMuted)
	for _, row := range rows {
		writeRow(row, nil)
	}
	return b.String()
}

// KV renders label/value pairs with aligned labels in muted style.
func KV(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if n := utf8.RuneCountInString(p[0]); n > width {
			width = n
		}
	}

	var b strings.Builder
	for _, p := range pairs {
		label := p[0] + strings.Repeat(" ", width-utf8.RuneCountInString(p[0]))
		b.WriteString(RenderMuted(label))
		b.WriteString("  ")
		b.WriteString(p[1])
		b.WriteString("\n")
	}
	return b.String()
}
