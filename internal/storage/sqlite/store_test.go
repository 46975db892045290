package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/storagetest"
)

func openTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "weft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteConformance(t *testing.T) {
	storagetest.TestStorage(t, openTestStore)
}

func TestNewCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "weft.db")
	s, err := New(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Ping(context.Background()))
}

func TestMemoryDatabase(t *testing.T) {
	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	id, created, err := s.UpsertEntity(ctx, "acme", "item", "SKU-001", "")
	require.NoError(t, err)
	assert.True(t, created)

	// Writes stay visible across pooled calls.
	e, err := s.GetEntity(ctx, "acme", id)
	require.NoError(t, err)
	assert.Equal(t, "SKU-001", e.PrimaryKey)
}

func TestSchemaIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.db")
	ctx := context.Background()

	s, err := New(ctx, path)
	require.NoError(t, err)
	_, _, err = s.UpsertEntity(ctx, "acme", "item", "SKU-001", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening applies the DDL again and keeps the data.
	s, err = New(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	e, err := s.LookupEntity(ctx, "acme", "item", "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, "item", e.EntityType)
}
