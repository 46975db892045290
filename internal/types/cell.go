package types

import (
	"strconv"
	"time"
)

// CellKind tags the dynamic type of a spreadsheet cell.
type CellKind int

const (
	CellNull CellKind = iota
	CellBool
	CellInt
	CellFloat
	CellTime
	CellText
	CellJSON
)

// Cell is the tagged variant for dynamically typed source cells.
// A cell arrives from a workbook as one of null, bool, integral number,
// float, date/datetime, or text; JSON cells enter through non-tabular
// sources. Canonical serialization dispatches on Kind.
type Cell struct {
	Kind     CellKind
	BoolVal  bool
	IntVal   int64
	FloatVal float64
	TimeVal  time.Time
	Text     string // text payload; raw JSON document for CellJSON
	DateOnly bool   // CellTime without a time-of-day component
}

// NullCell returns the null cell.
func NullCell() Cell { return Cell{Kind: CellNull} }

// BoolCell wraps a boolean value.
func BoolCell(b bool) Cell { return Cell{Kind: CellBool, BoolVal: b} }

// IntCell wraps an integral number.
func IntCell(i int64) Cell { return Cell{Kind: CellInt, IntVal: i} }

// FloatCell wraps a non-integral number.
func FloatCell(f float64) Cell { return Cell{Kind: CellFloat, FloatVal: f} }

// TimeCell wraps a datetime value.
func TimeCell(t time.Time) Cell { return Cell{Kind: CellTime, TimeVal: t.UTC()} }

// DateCell wraps a pure date (no time-of-day).
func DateCell(t time.Time) Cell {
	return Cell{Kind: CellTime, TimeVal: t.UTC(), DateOnly: true}
}

// TextCell wraps a text value.
func TextCell(s string) Cell { return Cell{Kind: CellText, Text: s} }

// JSONCell wraps a raw JSON document.
func JSONCell(raw string) Cell { return Cell{Kind: CellJSON, Text: raw} }

// IsNull reports whether the cell carries no value.
func (c Cell) IsNull() bool { return c.Kind == CellNull }

// Display renders the cell the way the parsed value displays: booleans
// lowercase, integers without decimals, floats in shortest round-trip
// form, datetimes in RFC 3339 (date-only cells as 2006-01-02), null as
// the empty string. This rendering feeds both stored property values
// and, with the configured null representation substituted, the
// canonical hash serialization. Frozen contract.
func (c Cell) Display() string {
	switch c.Kind {
	case CellNull:
		return ""
	case CellBool:
		if c.BoolVal {
			return "true"
		}
		return "false"
	case CellInt:
		return strconv.FormatInt(c.IntVal, 10)
	case CellFloat:
		return FormatFloat(c.FloatVal)
	case CellTime:
		if c.DateOnly {
			return c.TimeVal.Format("2006-01-02")
		}
		return c.TimeVal.Format(time.RFC3339)
	default:
		return c.Text
	}
}

// Equal compares two cells by kind and payload.
func (c Cell) Equal(o Cell) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case CellNull:
		return true
	case CellBool:
		return c.BoolVal == o.BoolVal
	case CellInt:
		return c.IntVal == o.IntVal
	case CellFloat:
		return c.FloatVal == o.FloatVal
	case CellTime:
		return c.TimeVal.Equal(o.TimeVal) && c.DateOnly == o.DateOnly
	default:
		return c.Text == o.Text
	}
}

