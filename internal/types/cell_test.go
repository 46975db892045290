package types

import (
	"testing"
	"time"
)

func TestCellDisplay(t *testing.T) {
	noon := time.Date(2025, 3, 15, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{"null", NullCell(), ""},
		{"bool true", BoolCell(true), "true"},
		{"bool false", BoolCell(false), "false"},
		{"int", IntCell(42), "42"},
		{"negative int", IntCell(-7), "-7"},
		{"float", FloatCell(9.99), "9.99"},
		{"float integral", FloatCell(10), "10"},
		{"float small", FloatCell(0.125), "0.125"},
		{"datetime", TimeCell(noon), "2025-03-15T12:30:00Z"},
		{"date only", DateCell(noon), "2025-03-15"},
		{"text", TextCell("Widget"), "Widget"},
		{"text preserves whitespace", TextCell("  Widget  "), "  Widget  "},
		{"json", JSONCell(`{"a":1}`), `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cell.Display(); got != tt.want {
				t.Errorf("Display() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCellEqual(t *testing.T) {
	noon := time.Date(2025, 3, 15, 12, 30, 0, 0, time.UTC)
	if !IntCell(5).Equal(IntCell(5)) {
		t.Error("equal ints not equal")
	}
	if IntCell(5).Equal(FloatCell(5)) {
		t.Error("int and float cells must differ by kind")
	}
	if !NullCell().Equal(NullCell()) {
		t.Error("nulls not equal")
	}
	if TimeCell(noon).Equal(DateCell(noon)) {
		t.Error("datetime and date-only cells must differ")
	}
	if !TextCell("a").Equal(TextCell("a")) || TextCell("a").Equal(TextCell("b")) {
		t.Error("text equality broken")
	}
}

func TestInferValueType(t *testing.T) {
	noon := time.Date(2025, 3, 15, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		cell Cell
		want ValueType
	}{
		{BoolCell(true), ValueBoolean},
		{IntCell(1), ValueNumber},
		{FloatCell(1.5), ValueNumber},
		{TimeCell(noon), ValueDate},
		{DateCell(noon), ValueDate},
		{TextCell("x"), ValueString},
		{JSONCell("{}"), ValueJSON},
		{NullCell(), ValueString},
	}
	for _, tt := range tests {
		if got := InferValueType(tt.cell); got != tt.want {
			t.Errorf("InferValueType(%v) = %q, want %q", tt.cell.Kind, got, tt.want)
		}
	}
}
