package tabular

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/types"
)

func itemsSpec(t *testing.T) *ingestspec.Spec {
	t.Helper()
	spec, err := ingestspec.Parse([]byte(`
spec_name: items_inventory
workspace_id: acme
sheets:
  - sheet_name: Items
    header_row: 0
    entities:
      item:
        entity_type: Item
        key_columns: [item_code]
        key_template: "{item_code}"
        properties:
          - source_column: "Item Code"
            target_property: item_code
            transform: strip
          - source_column: "Name"
            target_property: name
          - source_column: "Price"
            target_property: price
      location:
        entity_type: Location
        key_columns: [location_id]
        key_template: "{location_id}"
        properties:
          - source_column: "Location"
            target_property: location_id
    relationships:
      - relationship_type: STORED_AT
        from_entity: item
        to_entity: location
`))
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	return spec
}

// writeWorkbook builds an xlsx fixture with one Items sheet.
func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "Items"); err != nil {
		t.Fatal(err)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Items", cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "items.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCleanWorkbook(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Item Code", "Name", "Price", "Location"},
		{"ITM001", "Widget", 9.99, "LOC1"},
		{"ITM002", "Gadget", 19.99, "LOC1"},
	})

	var p Parser
	rows, err := p.ParseFile(path, itemsSpec(t))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("staged rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if first.RowIndex != 1 {
		t.Errorf("row index = %d, want 1", first.RowIndex)
	}
	if len(first.Entities) != 2 {
		t.Fatalf("entities = %d, want item + location", len(first.Entities))
	}
	item := first.Entities[0]
	if item.EntityType != "Item" || item.PrimaryKey != "ITM001" {
		t.Errorf("item = %s/%s", item.EntityType, item.PrimaryKey)
	}
	if item.DisplayName != "Widget" {
		t.Errorf("display_name = %q, want first non-key property", item.DisplayName)
	}
	if item.SourceRef != "sheet:Items,row:1" {
		t.Errorf("source_ref = %q", item.SourceRef)
	}
	if len(first.Relationships) != 1 {
		t.Fatalf("relationships = %d, want 1", len(first.Relationships))
	}
	rel := first.Relationships[0]
	if rel.RelationshipType != "STORED_AT" || rel.FromPrimaryKey != "ITM001" || rel.ToPrimaryKey != "LOC1" {
		t.Errorf("relationship = %+v", rel)
	}
	if first.RawHash == "" || first.NormalizedHash == "" || first.RawHash == rows[1].RawHash {
		t.Error("row hashes must be computed and distinct per row")
	}
}

func TestParseHashStability(t *testing.T) {
	rows := [][]interface{}{
		{"Item Code", "Name", "Price", "Location"},
		{"ITM001", "Widget", 9.99, "LOC1"},
	}
	var p Parser
	a, err := p.ParseFile(writeWorkbook(t, rows), itemsSpec(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.ParseFile(writeWorkbook(t, rows), itemsSpec(t))
	if err != nil {
		t.Fatal(err)
	}
	if a[0].RawHash != b[0].RawHash || a[0].NormalizedHash != b[0].NormalizedHash {
		t.Error("identical workbooks must hash identically")
	}
}

func TestParseNormalizedEquivalence(t *testing.T) {
	var p Parser
	spec := itemsSpec(t)
	clean, err := p.ParseFile(writeWorkbook(t, [][]interface{}{
		{"Item Code", "Name", "Price", "Location"},
		{"ITM001", "Widget", 9.99, "LOC1"},
	}), spec)
	if err != nil {
		t.Fatal(err)
	}
	padded, err := p.ParseFile(writeWorkbook(t, [][]interface{}{
		{"Item Code", "Name", "Price", "Location"},
		{"ITM001", "  Widget  ", 9.99, "LOC1"},
	}), spec)
	if err != nil {
		t.Fatal(err)
	}
	if clean[0].RawHash == padded[0].RawHash {
		t.Error("raw hash must see the whitespace")
	}
	if clean[0].NormalizedHash != padded[0].NormalizedHash {
		t.Error("normalized hash must not see the whitespace")
	}
}

func TestParseSkipsRowsWithoutKeys(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Item Code", "Name", "Price", "Location"},
		{"", "Orphan", 1.0, ""},
		{"ITM002", "Gadget", 19.99, "LOC1"},
	})
	var p Parser
	rows, err := p.ParseFile(path, itemsSpec(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Entities[0].PrimaryKey != "ITM002" {
		t.Errorf("rows without key columns must be dropped, got %d rows", len(rows))
	}
}

func TestParseSkipRowsAndEmptyRows(t *testing.T) {
	spec := itemsSpec(t)
	spec.Sheets[0].SkipRows = []int{2}
	path := writeWorkbook(t, [][]interface{}{
		{"Item Code", "Name", "Price", "Location"},
		{"ITM001", "Widget", 9.99, "LOC1"},
		{"ITM777", "Skipped", 1.0, "LOC1"},
		{}, // entirely empty
		{"ITM002", "Gadget", 19.99, "LOC1"},
	})
	var p Parser
	rows, err := p.ParseFile(path, spec)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("staged rows = %d, want 2 (skip_rows and empty rows dropped)", len(rows))
	}
	if rows[0].Entities[0].PrimaryKey != "ITM001" || rows[1].Entities[0].PrimaryKey != "ITM002" {
		t.Errorf("wrong rows staged: %s, %s", rows[0].Entities[0].PrimaryKey, rows[1].Entities[0].PrimaryKey)
	}
}

func TestParseMissingSheetIsSkipped(t *testing.T) {
	spec := itemsSpec(t)
	spec.Sheets[0].SheetName = "Ghost"
	path := writeWorkbook(t, [][]interface{}{
		{"Item Code", "Name", "Price", "Location"},
		{"ITM001", "Widget", 9.99, "LOC1"},
	})
	var p Parser
	rows, err := p.ParseFile(path, spec)
	if err != nil {
		t.Fatalf("a missing sheet must not be fatal: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}

func TestParseUnreadableWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	if err := os.WriteFile(path, []byte("this is not a workbook"), 0o644); err != nil {
		t.Fatal(err)
	}
	var p Parser
	if _, err := p.ParseFile(path, itemsSpec(t)); !errors.Is(err, ErrWorkbook) {
		t.Errorf("want ErrWorkbook, got %v", err)
	}
}

func TestApplyTransform(t *testing.T) {
	tests := []struct {
		name      string
		in        types.Cell
		transform string
		want      string
	}{
		{"strip", types.TextCell("  x  "), ingestspec.TransformStrip, "x"},
		{"lower", types.TextCell("ABC"), ingestspec.TransformLower, "abc"},
		{"upper", types.TextCell("abc"), ingestspec.TransformUpper, "ABC"},
		{"int from float text", types.TextCell("42.7"), ingestspec.TransformInt, "42"},
		{"float", types.TextCell("9.5"), ingestspec.TransformFloat, "9.5"},
		{"int failure keeps original", types.TextCell("abc"), ingestspec.TransformInt, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyTransform(tt.in, tt.transform).Display(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	if !applyTransform(types.NullCell(), ingestspec.TransformUpper).IsNull() {
		t.Error("null cells pass through transforms")
	}
}

func TestInferCell(t *testing.T) {
	tests := []struct {
		in   string
		kind types.CellKind
	}{
		{"", types.CellNull},
		{"TRUE", types.CellBool},
		{"false", types.CellBool},
		{"42", types.CellInt},
		{"9.99", types.CellFloat},
		{"2025-03-01", types.CellTime},
		{"Widget", types.CellText},
	}
	for _, tt := range tests {
		if got := InferCell(tt.in).Kind; got != tt.kind {
			t.Errorf("InferCell(%q).Kind = %v, want %v", tt.in, got, tt.kind)
		}
	}
}
