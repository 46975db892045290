package timeparsing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) // a Sunday

func TestParseOffset(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"+6h", time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)},
		{"-6h", time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC)},
		{"+1d", time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)},
		{"-1d", time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)},
		{"+2w", time.Date(2025, 6, 29, 12, 0, 0, 0, time.UTC)},
		{"-2w", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"3m", time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)},
		{"1y", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)},
		{"12h", time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOffset(tt.input, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOffsetRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "6", "h", "+6x", "6hh", "+-6h", "six hours"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseOffset(input, ref)
			assert.Error(t, err)
			assert.False(t, IsOffset(input))
		})
	}
}

func TestParseAbsolute(t *testing.T) {
	got, err := Parse("2025-03-01T12:30:00Z", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC), got)

	got, err = Parse("2025-03-01T12:30:00.5+02:00", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 30, 0, 500000000, time.UTC), got)
}

func TestParseDateOnly(t *testing.T) {
	got, err := Parse("2025-03-01", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDispatchesToOffset(t *testing.T) {
	got, err := Parse(" -1d ", ref)
	require.NoError(t, err)
	assert.Equal(t, ref.AddDate(0, 0, -1), got)
}

func TestParseNaturalLanguage(t *testing.T) {
	tests := []struct {
		input   string
		wantDay int
	}{
		{"tomorrow", 16},
		{"yesterday", 14},
		{"next tuesday", 17},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input, ref)
			require.NoError(t, err)
			assert.Equal(t, 2025, got.Year())
			assert.Equal(t, time.June, got.Month())
			assert.Equal(t, tt.wantDay, got.Day())
		})
	}
}

func TestParseNaturalRejectsPartialMatch(t *testing.T) {
	_, err := ParseNatural("ship it tomorrow", ref)
	assert.Error(t, err)
}

func TestParseUnrecognized(t *testing.T) {
	for _, input := range []string{"", "   ", "banana", "03/01/2025x"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input, ref)
			assert.Error(t, err)
		})
	}
}
