// Package storagetest holds the conformance suite every storage
// backend must pass. Driver test files call TestStorage with a
// constructor for a fresh, empty store.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

// Factory opens a fresh, empty store. Cleanup registration is the
// factory's job (t.Cleanup with Close).
type Factory func(t *testing.T) storage.Storage

const wid = "acme"

// TestStorage runs the full conformance suite against the backend.
func TestStorage(t *testing.T, open Factory) {
	t.Run("EntityUpsert", func(t *testing.T) { testEntityUpsert(t, open(t)) })
	t.Run("EntitySearch", func(t *testing.T) { testEntitySearch(t, open(t)) })
	t.Run("AssertionLifecycle", func(t *testing.T) { testAssertionLifecycle(t, open(t)) })
	t.Run("AssertionValidation", func(t *testing.T) { testAssertionValidation(t, open(t)) })
	t.Run("PropertyValues", func(t *testing.T) { testPropertyValues(t, open(t)) })
	t.Run("AssertedRelTopology", func(t *testing.T) { testAssertedRelTopology(t, open(t)) })
	t.Run("ChangeEvents", func(t *testing.T) { testChangeEvents(t, open(t)) })
	t.Run("ImportRuns", func(t *testing.T) { testImportRuns(t, open(t)) })
	t.Run("Sources", func(t *testing.T) { testSources(t, open(t)) })
	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, open(t).Ping(context.Background()))
	})
}

func testEntityUpsert(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	id1, created, err := s.UpsertEntity(ctx, wid, "item", "SKU-001", "Widget")
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, id1)

	// Second upsert of the same natural key reuses the id.
	id2, created, err := s.UpsertEntity(ctx, wid, "item", "SKU-001", "Widget Renamed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	e, err := s.LookupEntity(ctx, wid, "item", "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, id1, e.EntityID)
	assert.Equal(t, "Widget", e.DisplayName)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := s.GetEntity(ctx, wid, id1)
	require.NoError(t, err)
	assert.Equal(t, e.PrimaryKey, got.PrimaryKey)

	_, err = s.LookupEntity(ctx, wid, "item", "SKU-404")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Same primary key in another workspace is a distinct entity.
	other, created, err := s.UpsertEntity(ctx, "globex", "item", "SKU-001", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, id1, other)
}

func testEntitySearch(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for _, pk := range []string{"SKU-001", "SKU-002", "BIN-007"} {
		_, _, err := s.UpsertEntity(ctx, wid, "item", pk, "")
		require.NoError(t, err)
	}
	_, _, err := s.UpsertEntity(ctx, wid, "location", "WH-1", "")
	require.NoError(t, err)

	byType, err := s.SearchEntities(ctx, wid, "item", "", 0)
	require.NoError(t, err)
	assert.Len(t, byType, 3)

	byPrefix, err := s.SearchEntities(ctx, wid, "item", "SKU-", 0)
	require.NoError(t, err)
	require.Len(t, byPrefix, 2)
	assert.Equal(t, "SKU-001", byPrefix[0].PrimaryKey)

	limited, err := s.SearchEntities(ctx, wid, "", "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// LIKE metacharacters in the prefix match literally.
	none, err := s.SearchEntities(ctx, wid, "item", "SKU_", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func newAssertion(key string, recordedAt time.Time) *types.AssertionRecord {
	return &types.AssertionRecord{
		WorkspaceID:      wid,
		AssertionKey:     key,
		RawHash:          "aaaa",
		NormalizedHash:   "bbbb",
		SourceType:       types.SourceExcel,
		RecordedAt:       recordedAt,
		ValidFrom:        recordedAt,
		RelationshipType: types.RelTypeHasProperty,
		PropertyKey:      "quantity",
	}
}

func testAssertionLifecycle(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	key := wid + ":item:SKU-001:prop:quantity"

	first := newAssertion(key, t0)
	firstID, err := s.InsertAssertion(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultScenario, first.ScenarioID)
	assert.Equal(t, 1.0, first.Confidence)

	got, err := s.GetAssertion(ctx, wid, firstID)
	require.NoError(t, err)
	assert.Equal(t, key, got.AssertionKey)
	assert.True(t, got.IsOpen())
	assert.True(t, got.RecordedAt.Equal(t0))

	second := newAssertion(key, t0.Add(time.Hour))
	second.NormalizedHash = "cccc"
	second.Supersedes = firstID
	secondID, err := s.InsertAssertion(ctx, second)
	require.NoError(t, err)

	// Both are open: lookup returns newest first.
	open, err := s.LookupAssertionsByKey(ctx, wid, key, "")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, secondID, open[0].AssertionID)
	assert.Equal(t, firstID, open[1].AssertionID)

	require.NoError(t, s.CloseAssertion(ctx, wid, firstID, t0.Add(time.Hour)))

	open, err = s.LookupAssertionsByKey(ctx, wid, key, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, secondID, open[0].AssertionID)

	closed, err := s.GetAssertion(ctx, wid, firstID)
	require.NoError(t, err)
	require.NotNil(t, closed.ValidTo)
	assert.True(t, closed.ValidTo.Equal(t0.Add(time.Hour)))

	// Scenario overlays are invisible to the base lookup.
	overlay := newAssertion(key, t0.Add(2*time.Hour))
	overlay.ScenarioID = "what-if"
	_, err = s.InsertAssertion(ctx, overlay)
	require.NoError(t, err)

	base, err := s.LookupAssertionsByKey(ctx, wid, key, types.DefaultScenario)
	require.NoError(t, err)
	assert.Len(t, base, 1)
	whatIf, err := s.LookupAssertionsByKey(ctx, wid, key, "what-if")
	require.NoError(t, err)
	assert.Len(t, whatIf, 1)

	err = s.CloseAssertion(ctx, wid, "asrt_missing", t0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testAssertionValidation(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	bad := newAssertion("k", time.Now().UTC())
	bad.RawHash = ""
	_, err := s.InsertAssertion(ctx, bad)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	bad = newAssertion("k", time.Now().UTC())
	bad.SourceType = "carrier-pigeon"
	_, err = s.InsertAssertion(ctx, bad)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func testPropertyValues(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	v := "42"
	pv := &types.PropertyValue{
		WorkspaceID: wid,
		PropertyKey: "quantity",
		Value:       &v,
		ValueType:   types.ValueNumber,
	}
	id, err := s.InsertPropertyValue(ctx, pv)
	require.NoError(t, err)

	got, err := s.GetPropertyValue(ctx, wid, id)
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, "42", *got.Value)
	assert.Equal(t, types.ValueNumber, got.ValueType)

	// Empty cells carry a nil value.
	null := &types.PropertyValue{WorkspaceID: wid, PropertyKey: "notes", ValueType: types.ValueString}
	nullID, err := s.InsertPropertyValue(ctx, null)
	require.NoError(t, err)
	got, err = s.GetPropertyValue(ctx, wid, nullID)
	require.NoError(t, err)
	assert.Nil(t, got.Value)

	_, err = s.GetPropertyValue(ctx, wid, "pv_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testAssertedRelTopology(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	entityID, _, err := s.UpsertEntity(ctx, wid, "item", "SKU-001", "")
	require.NoError(t, err)
	v := "7"
	pvID, err := s.InsertPropertyValue(ctx, &types.PropertyValue{
		WorkspaceID: wid, PropertyKey: "quantity", Value: &v, ValueType: types.ValueNumber,
	})
	require.NoError(t, err)
	aID, err := s.InsertAssertion(ctx, newAssertion(wid+":item:SKU-001:prop:quantity", t0))
	require.NoError(t, err)

	require.NoError(t, s.CreateAssertedRel(ctx, wid, entityID, aID, pvID))
	// Idempotent: replaying the edges is not an error.
	require.NoError(t, s.CreateAssertedRel(ctx, wid, entityID, aID, pvID))

	target, err := s.GetAssertedTarget(ctx, wid, aID)
	require.NoError(t, err)
	assert.Equal(t, pvID, target)

	hanging, err := s.GetAssertionsForEntity(ctx, wid, entityID)
	require.NoError(t, err)
	require.Len(t, hanging, 1)
	assert.Equal(t, aID, hanging[0].AssertionID)

	_, err = s.GetAssertedTarget(ctx, wid, "asrt_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testChangeEvents(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	runID, err := s.InsertImportRun(ctx, &types.ImportRun{WorkspaceID: wid, SpecName: "inventory", StartedAt: t0})
	require.NoError(t, err)

	_, err = s.GetChangeEventByImportRun(ctx, runID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ceID, err := s.InsertChangeEvent(ctx, &types.ChangeEvent{
		WorkspaceID: wid,
		EventType:   types.EventImportDiff,
		Description: "Import run " + runID + ": 2 created, 0 modified, 1 closed, 0 unchanged",
		TS:          t0.Add(time.Minute),
		ImportRunID: runID,
		Actor:       "system:import",
		Stats:       `{"created":2,"closed":1,"modified":0,"unchanged":0}`,
	})
	require.NoError(t, err)

	ce, err := s.GetChangeEventByImportRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, ceID, ce.ChangeEventID)
	assert.Equal(t, types.EventImportDiff, ce.EventType)
	assert.Equal(t, "system:import", ce.Actor)

	require.NoError(t, s.LinkTriggeredBy(ctx, wid, ceID, runID))
	require.NoError(t, s.LinkCreatedAssertion(ctx, wid, ceID, "asrt_a"))
	require.NoError(t, s.LinkCreatedAssertion(ctx, wid, ceID, "asrt_b"))
	require.NoError(t, s.LinkClosedAssertion(ctx, wid, ceID, "asrt_c"))

	created, closed, err := s.ListChangeEventAssertions(ctx, wid, ceID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"asrt_a", "asrt_b"}, created)
	assert.ElementsMatch(t, []string{"asrt_c"}, closed)
}

func testImportRuns(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ir := &types.ImportRun{WorkspaceID: wid, SourceFile: "inventory.xlsx", SpecName: "inventory", StartedAt: t0}
	runID, err := s.InsertImportRun(ctx, ir)
	require.NoError(t, err)
	assert.Equal(t, types.RunRunning, ir.Status)

	got, err := s.GetImportRun(ctx, wid, runID)
	require.NoError(t, err)
	assert.Equal(t, types.RunRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	done := t0.Add(5 * time.Second)
	got.Status = types.RunCompleted
	got.CompletedAt = &done
	got.Stats = `{"entities_created":3}`
	require.NoError(t, s.UpdateImportRun(ctx, got))

	got, err = s.GetImportRun(ctx, wid, runID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	// A later run lists first.
	later := &types.ImportRun{WorkspaceID: wid, SpecName: "inventory", StartedAt: t0.Add(time.Hour)}
	laterID, err := s.InsertImportRun(ctx, later)
	require.NoError(t, err)

	runs, err := s.ListImportRuns(ctx, wid, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, laterID, runs[0].ImportRunID)

	runs, err = s.ListImportRuns(ctx, wid, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = s.GetImportRun(ctx, wid, "ir_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSources(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	erp := &types.Source{
		WorkspaceID:      wid,
		SourceName:       "erp",
		SourceType:       types.SourceExcel,
		AuthorityRank:    1,
		AuthorityDomains: []string{"inventory", "pricing"},
		UpdateFrequency:  "daily",
	}
	erpID, err := s.UpsertSource(ctx, erp)
	require.NoError(t, err)

	manual := &types.Source{WorkspaceID: wid, SourceName: "ops-team", SourceType: types.SourceManual, AuthorityRank: 5}
	_, err = s.UpsertSource(ctx, manual)
	require.NoError(t, err)

	// Re-registering by name keeps the id and rewrites the metadata.
	erp2 := &types.Source{WorkspaceID: wid, SourceName: "erp", SourceType: types.SourceExcel, AuthorityRank: 2}
	erpID2, err := s.UpsertSource(ctx, erp2)
	require.NoError(t, err)
	assert.Equal(t, erpID, erpID2)

	got, err := s.GetSource(ctx, wid, erpID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AuthorityRank)
	assert.Empty(t, got.AuthorityDomains)

	list, err := s.ListSources(ctx, wid)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "erp", list[0].SourceName)

	ranks, err := s.GetSourceAuthorityMap(ctx, wid)
	require.NoError(t, err)
	assert.Equal(t, 2, ranks[erpID])
	assert.Len(t, ranks, 2)

	_, err = s.GetSource(ctx, wid, "src_missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
