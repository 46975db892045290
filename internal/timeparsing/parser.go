// Package timeparsing turns user-supplied time expressions into instants.
// The CLI accepts `--at` values in several shapes, tried in order:
//
//  1. Absolute timestamps (RFC 3339, with or without fractional seconds)
//  2. Date-only (2006-01-02, midnight UTC)
//  3. Compact offsets (+6h, -1d, +2w, 3m, 1y) relative to now
//  4. Natural language ("yesterday", "last friday at noon")
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var offsetRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// Parse resolves expr against now. The zero time and an error come back
// when no layer recognizes the expression.
func Parse(expr string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.UTC(), nil
	}

	if IsOffset(s) {
		return ParseOffset(s, now)
	}

	if ts, err := ParseNatural(s, now); err == nil {
		return ts, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time expression: %q", expr)
}

// IsOffset reports whether s looks like a compact offset (+6h, -1d, 2w).
func IsOffset(s string) bool {
	return offsetRe.MatchString(s)
}

// ParseOffset applies a compact offset to now. Units: h hours, d days,
// w weeks, m calendar months, y calendar years. A missing sign means
// forward in time.
func ParseOffset(s string, now time.Time) (time.Time, error) {
	m := offsetRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact offset: %q", s)
	}

	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid offset amount: %q", m[2])
	}
	if m[1] == "-" {
		n = -n
	}

	switch m[3] {
	case "h":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, n), nil
	case "w":
		return now.AddDate(0, 0, n*7), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	default: // "y", the regexp admits nothing else
		return now.AddDate(n, 0, 0), nil
	}
}
