package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/types"
)

func defaultSer() ingestspec.Serialization {
	return ingestspec.DefaultSerialization()
}

func defaultRules() ingestspec.NormalizationRules {
	return ingestspec.DefaultNormalizationRules()
}

func TestRawRowHashDeterministic(t *testing.T) {
	cells := []types.Cell{types.TextCell("hello"), types.TextCell("world"), types.IntCell(42)}
	h1 := RawRowHash(cells, defaultSer())
	h2 := RawRowHash(cells, defaultSer())
	if h1 != h2 {
		t.Fatalf("raw hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(h1))
	}
}

func TestRawRowHashSerialization(t *testing.T) {
	tests := []struct {
		name  string
		cells []types.Cell
		want  string // expected canonical serialization
	}{
		{
			name:  "null uses null representation",
			cells: []types.Cell{types.NullCell(), types.TextCell("test")},
			want:  "<NULL>|test",
		},
		{
			name:  "bool lowercases",
			cells: []types.Cell{types.BoolCell(true), types.BoolCell(false)},
			want:  "true|false",
		},
		{
			name:  "int and float display distinctly",
			cells: []types.Cell{types.IntCell(42), types.FloatCell(9.99)},
			want:  "42|9.99",
		},
		{
			name:  "date only",
			cells: []types.Cell{types.DateCell(mustDate(t, "2025-03-01"))},
			want:  "2025-03-01",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RawRowHash(tt.cells, defaultSer())
			sum := sha256.Sum256([]byte(tt.want))
			if want := hex.EncodeToString(sum[:]); got != want {
				t.Errorf("RawRowHash = %s, want hash of %q", got, tt.want)
			}
		})
	}
}

func TestRawRowHashCustomDelimiter(t *testing.T) {
	cells := []types.Cell{types.TextCell("a"), types.TextCell("b")}
	comma := defaultSer()
	comma.Delimiter = ","
	if RawRowHash(cells, comma) == RawRowHash(cells, defaultSer()) {
		t.Error("delimiter change must change the hash")
	}
}

func TestRawRowHashSensitivity(t *testing.T) {
	ser := defaultSer()
	base := RawRowHash([]types.Cell{types.TextCell("hello")}, ser)
	if RawRowHash([]types.Cell{types.TextCell("hello ")}, ser) == base {
		t.Error("raw hash must see trailing whitespace")
	}
	if RawRowHash([]types.Cell{types.TextCell("Hello")}, ser) == base {
		t.Error("raw hash must see casing")
	}
}

func TestNormalizedRowHashEquivalences(t *testing.T) {
	ser, rules := defaultSer(), defaultRules()

	tests := []struct {
		name string
		a, b types.Cell
	}{
		{"whitespace trimmed", types.TextCell("hello"), types.TextCell("  hello  ")},
		{"casing folded", types.TextCell("Hello"), types.TextCell("hello")},
		{"null pattern N/A", types.NullCell(), types.TextCell("N/A")},
		{"null pattern null", types.NullCell(), types.TextCell("null")},
		{"null pattern dash", types.NullCell(), types.TextCell("-")},
		{"null pattern empty", types.NullCell(), types.TextCell("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ha := NormalizedRowHash([]types.Cell{tt.a}, nil, ser, rules)
			hb := NormalizedRowHash([]types.Cell{tt.b}, nil, ser, rules)
			if ha != hb {
				t.Errorf("normalized hashes differ: %s vs %s", ha, hb)
			}
		})
	}

	// Meaningful change still detected.
	if NormalizedRowHash([]types.Cell{types.TextCell("active")}, nil, ser, rules) ==
		NormalizedRowHash([]types.Cell{types.TextCell("inactive")}, nil, ser, rules) {
		t.Error("normalization must not collapse distinct values")
	}
}

func TestNormalizedRowHashNumberFormat(t *testing.T) {
	ser := defaultSer()
	rules := defaultRules()
	two := 2
	rules.NumberFormat = &ingestspec.NumberFormat{DecimalPlaces: &two}

	vt := []types.ValueType{types.ValueNumber}
	h1 := NormalizedRowHash([]types.Cell{types.TextCell("42")}, vt, ser, rules)
	h2 := NormalizedRowHash([]types.Cell{types.TextCell("42.00")}, vt, ser, rules)
	if h1 != h2 {
		t.Error("decimal_places must align 42 and 42.00")
	}
}

func TestNormalizedRowHashDateFormat(t *testing.T) {
	ser := defaultSer()
	rules := defaultRules()
	rules.DateFormat = "YYYY-MM-DD"

	vt := []types.ValueType{types.ValueDate}
	h1 := NormalizedRowHash([]types.Cell{types.TextCell("2025-03-01")}, vt, ser, rules)
	h2 := NormalizedRowHash([]types.Cell{types.TextCell("03/01/2025")}, vt, ser, rules)
	if h1 != h2 {
		t.Error("date reformatting must align 2025-03-01 and 03/01/2025")
	}
}

func TestNormalizedDiffersFromRaw(t *testing.T) {
	cells := []types.Cell{types.TextCell("  Hello  "), types.TextCell("N/A")}
	raw := RawRowHash(cells, defaultSer())
	norm := NormalizedRowHash(cells, nil, defaultSer(), defaultRules())
	if raw == norm {
		t.Error("normalization changed the cells, hashes must differ")
	}
}

func TestJSONCellCanonicalization(t *testing.T) {
	a := types.JSONCell(`{"b": 1, "a": 2}`)
	b := types.JSONCell(`{"a": 2, "b": 1}`)
	if RawRowHash([]types.Cell{a}, defaultSer()) != RawRowHash([]types.Cell{b}, defaultSer()) {
		t.Error("JSON key order must not perturb the raw hash")
	}
}

func TestPropertyHashIsSingleCellRowHash(t *testing.T) {
	c := types.TextCell("Widget")
	if PropertyRawHash(c, defaultSer()) != RawRowHash([]types.Cell{c}, defaultSer()) {
		t.Error("property raw hash must equal the single-cell row hash")
	}
}

func TestAssertionKeys(t *testing.T) {
	got := PropertyKey("acme", "Item", "ITM001", "price")
	if want := "acme:Item:ITM001:prop:price"; got != want {
		t.Errorf("PropertyKey = %q, want %q", got, want)
	}
	got = RelationshipKey("acme", "Item", "ITM001", "STORED_AT", "Location", "LOC9")
	if want := "acme:Item:ITM001:STORED_AT:Location:LOC9"; got != want {
		t.Errorf("RelationshipKey = %q, want %q", got, want)
	}
}

func TestRawRowHashHexAlphabet(t *testing.T) {
	h := RawRowHash([]types.Cell{types.TextCell("test")}, defaultSer())
	if strings.Trim(h, "0123456789abcdef") != "" {
		t.Errorf("hash %q is not lowercase hex", h)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}
