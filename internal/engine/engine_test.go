package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/sqlite"
	"github.com/weftdb/weft/internal/types"
)

const inventorySpecYAML = `
spec_name: inventory
workspace_id: acme
sheets:
  - sheet_name: Items
    header_row: 0
    entities:
      item:
        entity_type: Item
        key_columns: [sku]
        key_template: "{sku}"
        properties:
          - source_column: "SKU"
            target_property: sku
            transform: strip
          - source_column: "Quantity"
            target_property: quantity
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
`

func inventorySpec(t *testing.T) *ingestspec.Spec {
	t.Helper()
	spec, err := ingestspec.Parse([]byte(inventorySpecYAML))
	require.NoError(t, err)
	return spec
}

func strictSpec(t *testing.T) *ingestspec.Spec {
	t.Helper()
	spec := inventorySpec(t)
	spec.ChangeDetection.Mode = ingestspec.ModeStrict
	return spec
}

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Items"))
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Items", cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "inventory.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

var header = []interface{}{"SKU", "Quantity", "Price", "Location"}

type fixture struct {
	store storage.Storage
	clock *idgen.ManualClock
	eng   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := idgen.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store.SetClock(clock)
	return &fixture{store: store, clock: clock, eng: New(store, WithClock(clock))}
}

func (f *fixture) run(t *testing.T, spec *ingestspec.Spec, file string) *Result {
	t.Helper()
	res, err := f.eng.Run(context.Background(), Options{
		WorkspaceID: "acme",
		SpecName:    spec.SpecName,
		Spec:        spec,
		SourceFile:  file,
	})
	require.NoError(t, err)
	return res
}

func TestInitialImport(t *testing.T) {
	f := newFixture(t)
	file := writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
		{"SKU-002", 5, 19.99, "WH-1"},
	})

	res := f.run(t, inventorySpec(t), file)
	require.Equal(t, types.RunCompleted, res.Status)
	assert.Empty(t, res.Errors)

	// Two items, one shared location.
	assert.Equal(t, 3, res.Stats.EntitiesCreated)
	assert.Equal(t, 0, res.Stats.EntitiesExisting)
	// Per item: sku, quantity, price; location: location_id. Plus two
	// relationship assertions.
	assert.Equal(t, 2, res.Stats.RelationshipsCreated)
	assert.Equal(t, 9, res.Stats.AssertionsCreated)
	assert.Equal(t, 0, res.Stats.AssertionsClosed)
	assert.Equal(t, 0, res.Stats.AssertionsModified)
	// The shared WH-1 location property is staged by both rows; the
	// second occurrence reads the first one's write.
	assert.Equal(t, 1, res.Stats.AssertionsUnchanged)

	ctx := context.Background()
	item, err := f.store.LookupEntity(ctx, "acme", "Item", "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, "SKU-001", item.PrimaryKey)

	hanging, err := f.store.GetAssertionsForEntity(ctx, "acme", item.EntityID)
	require.NoError(t, err)
	assert.Len(t, hanging, 4) // 3 properties + 1 relationship

	// The change event links every created assertion.
	ce, err := f.store.GetChangeEventByImportRun(ctx, res.ImportRunID)
	require.NoError(t, err)
	assert.Equal(t, res.ChangeEventID, ce.ChangeEventID)
	assert.Equal(t, types.EventImportDiff, ce.EventType)
	assert.Equal(t, "system:import", ce.Actor)
	assert.Contains(t, ce.Description, "9 created, 0 modified, 0 closed, 1 unchanged")
	assert.JSONEq(t, `{"created":9,"closed":0,"modified":0,"unchanged":1}`, ce.Stats)

	created, closed, err := f.store.ListChangeEventAssertions(ctx, "acme", ce.ChangeEventID)
	require.NoError(t, err)
	assert.Len(t, created, 9)
	assert.Empty(t, closed)
}

func TestReimportUnchangedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	file := writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	})
	spec := inventorySpec(t)

	first := f.run(t, spec, file)
	require.Equal(t, types.RunCompleted, first.Status)

	f.clock.Advance(time.Hour)
	second := f.run(t, spec, file)
	require.Equal(t, types.RunCompleted, second.Status)

	assert.Equal(t, 0, second.Stats.EntitiesCreated)
	assert.Equal(t, 2, second.Stats.EntitiesExisting)
	assert.Equal(t, 0, second.Stats.AssertionsCreated)
	assert.Equal(t, 0, second.Stats.AssertionsClosed)
	assert.Equal(t, 0, second.Stats.AssertionsModified)
	assert.Equal(t, 5, second.Stats.AssertionsUnchanged)

	// No change → no change event.
	_, err := f.store.GetChangeEventByImportRun(context.Background(), second.ImportRunID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, second.ChangeEventID)
}

func TestValueChangeClosesAndSupersedes(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)
	ctx := context.Background()

	f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	}))

	key := "acme:Item:SKU-001:prop:quantity"
	before, err := f.store.LookupAssertionsByKey(ctx, "acme", key, "")
	require.NoError(t, err)
	require.Len(t, before, 1)
	oldID := before[0].AssertionID

	f.clock.Advance(time.Hour)
	res := f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 12, 9.99, "WH-1"},
	}))
	require.Equal(t, types.RunCompleted, res.Status)

	assert.Equal(t, 1, res.Stats.AssertionsModified)
	assert.Equal(t, 0, res.Stats.AssertionsCreated)
	assert.Equal(t, 0, res.Stats.AssertionsClosed, "modified closure is not counted as closed")
	assert.Equal(t, 4, res.Stats.AssertionsUnchanged)

	after, err := f.store.LookupAssertionsByKey(ctx, "acme", key, "")
	require.NoError(t, err)
	require.Len(t, after, 1, "at most one open assertion per key")
	assert.Equal(t, oldID, after[0].Supersedes)
	assert.NotEqual(t, oldID, after[0].AssertionID)

	old, err := f.store.GetAssertion(ctx, "acme", oldID)
	require.NoError(t, err)
	require.NotNil(t, old.ValidTo)
	assert.True(t, old.ValidTo.Equal(after[0].ValidFrom), "closure instant equals successor validity start")

	// A modified-only run still records a change event, with the
	// superseded assertion linked as closed and its replacement as
	// created.
	ce, err := f.store.GetChangeEventByImportRun(ctx, res.ImportRunID)
	require.NoError(t, err)
	created, closed, err := f.store.ListChangeEventAssertions(ctx, "acme", ce.ChangeEventID)
	require.NoError(t, err)
	assert.Equal(t, []string{after[0].AssertionID}, created)
	assert.Equal(t, []string{oldID}, closed)
}

func TestMultipleOpenRepairClosesAll(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)
	ctx := context.Background()

	f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	}))

	// Seed two extra open assertions under the quantity key, as a
	// buggy or interrupted writer would have left them.
	key := "acme:Item:SKU-001:prop:quantity"
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err := f.store.InsertAssertion(ctx, &types.AssertionRecord{
			WorkspaceID:      "acme",
			AssertionKey:     key,
			RawHash:          fmt.Sprintf("stale-raw-%d", i),
			NormalizedHash:   fmt.Sprintf("stale-norm-%d", i),
			SourceType:       types.SourceExcel,
			RecordedAt:       base.Add(time.Duration(i) * time.Minute),
			ValidFrom:        base.Add(time.Duration(i) * time.Minute),
			RelationshipType: types.RelTypeHasProperty,
			PropertyKey:      "quantity",
		})
		require.NoError(t, err)
	}
	seeded, err := f.store.LookupAssertionsByKey(ctx, "acme", key, "")
	require.NoError(t, err)
	require.Len(t, seeded, 3)

	f.clock.Advance(time.Hour)
	res := f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 12, 9.99, "WH-1"},
	}))
	require.Equal(t, types.RunCompleted, res.Status)
	assert.Equal(t, 1, res.Stats.AssertionsModified)

	// Every pre-existing open assertion is closed, restoring the
	// at-most-one-open invariant.
	open, err := f.store.LookupAssertionsByKey(ctx, "acme", key, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Nil(t, open[0].ValidTo)

	ce, err := f.store.GetChangeEventByImportRun(ctx, res.ImportRunID)
	require.NoError(t, err)
	_, closed, err := f.store.ListChangeEventAssertions(ctx, "acme", ce.ChangeEventID)
	require.NoError(t, err)
	assert.Len(t, closed, 3)
}

func TestNormalizedModeIgnoresFormatting(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)

	f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", "widget", 9.99, "WH-1"},
	}))

	f.clock.Advance(time.Hour)
	// Same value modulo whitespace and case: normalized mode sees no
	// change.
	res := f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", "  Widget ", 9.99, "WH-1"},
	}))
	assert.Equal(t, 0, res.Stats.AssertionsModified)
	assert.Equal(t, 5, res.Stats.AssertionsUnchanged)
}

func TestStrictModeSeesFormatting(t *testing.T) {
	f := newFixture(t)
	spec := strictSpec(t)

	f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", "widget", 9.99, "WH-1"},
	}))

	f.clock.Advance(time.Hour)
	res := f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", "  Widget ", 9.99, "WH-1"},
	}))
	assert.Equal(t, 1, res.Stats.AssertionsModified)
	assert.Equal(t, 4, res.Stats.AssertionsUnchanged)
}

func TestDisappearanceDetection(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)
	ctx := context.Background()

	f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
		{"SKU-002", 5, 19.99, "WH-1"},
	}))

	f.clock.Advance(time.Hour)
	// SKU-002 vanished: its 3 properties plus its relationship close.
	res := f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	}))
	require.Equal(t, types.RunCompleted, res.Status)
	assert.Equal(t, 4, res.Stats.AssertionsClosed)
	assert.Equal(t, 0, res.Stats.AssertionsCreated)
	assert.Equal(t, 0, res.Stats.AssertionsModified)

	open, err := f.store.LookupAssertionsByKey(ctx, "acme", "acme:Item:SKU-002:prop:quantity", "")
	require.NoError(t, err)
	assert.Empty(t, open)

	// Closures are linked on the change event.
	ce, err := f.store.GetChangeEventByImportRun(ctx, res.ImportRunID)
	require.NoError(t, err)
	created, closed, err := f.store.ListChangeEventAssertions(ctx, "acme", ce.ChangeEventID)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Len(t, closed, 4)

	// The entity itself survives; only its claims close.
	_, err = f.store.LookupEntity(ctx, "acme", "Item", "SKU-002")
	assert.NoError(t, err)
}

func TestDisappearedKeyReturns(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)

	full := [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
		{"SKU-002", 5, 19.99, "WH-1"},
	}
	f.run(t, spec, writeWorkbook(t, full))

	f.clock.Advance(time.Hour)
	f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	}))

	f.clock.Advance(time.Hour)
	// SKU-002 is back: new open assertions, entity reused.
	res := f.run(t, spec, writeWorkbook(t, full))
	assert.Equal(t, 0, res.Stats.EntitiesCreated)
	assert.Equal(t, 4, res.Stats.AssertionsCreated)
	assert.Equal(t, 0, res.Stats.AssertionsClosed)
}

func TestUnreadableWorkbookFailsRun(t *testing.T) {
	f := newFixture(t)
	garbage := filepath.Join(t.TempDir(), "not-a-workbook.xlsx")
	require.NoError(t, writeFile(garbage, "this is not a zip archive"))

	res, err := f.eng.Run(context.Background(), Options{
		WorkspaceID: "acme",
		SpecName:    "inventory",
		Spec:        inventorySpec(t),
		SourceFile:  garbage,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "parse")

	// The failed run is finalized in storage.
	ir, err := f.store.GetImportRun(context.Background(), "acme", res.ImportRunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, ir.Status)
	require.NotNil(t, ir.CompletedAt)
}

func TestFailedRunNotUsedForDisappearance(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)

	f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	}))

	// A failed run in between must not become the disappearance
	// baseline.
	f.clock.Advance(time.Hour)
	garbage := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, writeFile(garbage, "junk"))
	bad, err := f.eng.Run(context.Background(), Options{
		WorkspaceID: "acme", SpecName: spec.SpecName, Spec: spec, SourceFile: garbage,
	})
	require.NoError(t, err)
	require.Equal(t, types.RunFailed, bad.Status)

	f.clock.Advance(time.Hour)
	res := f.run(t, spec, writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	}))
	assert.Equal(t, 0, res.Stats.AssertionsClosed)
	assert.Equal(t, 5, res.Stats.AssertionsUnchanged)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.eng.Run(ctx, Options{
		WorkspaceID: "acme",
		SpecName:    "inventory",
		Spec:        inventorySpec(t),
		SourceFile:  "ignored.xlsx",
	})
	require.Error(t, err)
	assert.Equal(t, types.RunFailed, res.Status)
}

func TestActorOverride(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)
	file := writeWorkbook(t, [][]interface{}{
		header,
		{"SKU-001", 10, 9.99, "WH-1"},
	})

	res, err := f.eng.Run(context.Background(), Options{
		WorkspaceID: "acme",
		SpecName:    spec.SpecName,
		Spec:        spec,
		SourceFile:  file,
		Actor:       "user:csanden",
	})
	require.NoError(t, err)

	ce, err := f.store.GetChangeEventByImportRun(context.Background(), res.ImportRunID)
	require.NoError(t, err)
	assert.Equal(t, "user:csanden", ce.Actor)
}

func TestSourceAttribution(t *testing.T) {
	f := newFixture(t)
	spec := inventorySpec(t)
	ctx := context.Background()

	srcID, err := f.store.UpsertSource(ctx, &types.Source{
		WorkspaceID:   "acme",
		SourceName:    "erp",
		SourceType:    types.SourceExcel,
		AuthorityRank: 1,
	})
	require.NoError(t, err)

	res, err := f.eng.Run(ctx, Options{
		WorkspaceID: "acme",
		SpecName:    spec.SpecName,
		Spec:        spec,
		SourceFile: writeWorkbook(t, [][]interface{}{
			header,
			{"SKU-001", 10, 9.99, "WH-1"},
		}),
		SourceID: srcID,
	})
	require.NoError(t, err)
	require.Equal(t, types.RunCompleted, res.Status)

	open, err := f.store.LookupAssertionsByKey(ctx, "acme", "acme:Item:SKU-001:prop:quantity", "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, srcID, open[0].SourceID)
	assert.Equal(t, res.ImportRunID, open[0].ImportRunID)
	assert.Contains(t, open[0].SourceRef, "sheet:Items")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
