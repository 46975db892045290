package weft

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/types"
)

func TestPublicAPIMemory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	defer store.Close()

	id, created, err := store.UpsertEntity(ctx, "acme", "Item", "SKU-001", "Widget")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, id)

	ent, err := store.GetEntity(ctx, "acme", id)
	require.NoError(t, err)
	assert.Equal(t, "SKU-001", ent.PrimaryKey)
}

func TestPublicAPISQLite(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStorage(ctx, filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))
}

func TestResolveAssertionExported(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &types.AssertionRecord{
		AssertionID:  "as-1",
		AssertionKey: "acme:Item:SKU-001:prop:quantity",
		ScenarioID:   DefaultScenario,
		RecordedAt:   now,
		ValidFrom:    now,
	}
	b := &types.AssertionRecord{
		AssertionID:  "as-2",
		AssertionKey: "acme:Item:SKU-001:prop:quantity",
		ScenarioID:   DefaultScenario,
		RecordedAt:   now.Add(time.Hour),
		ValidFrom:    now.Add(time.Hour),
	}

	winner := ResolveAssertion([]*types.AssertionRecord{a, b}, DefaultScenario, nil, nil)
	require.NotNil(t, winner)
	assert.Equal(t, "as-2", winner.AssertionID)
}
