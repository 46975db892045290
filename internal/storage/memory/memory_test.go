package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/storagetest"
)

func TestMemoryConformance(t *testing.T) {
	storagetest.TestStorage(t, func(t *testing.T) storage.Storage {
		s := New()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestClosedStoreFailsPing(t *testing.T) {
	s := New()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), storage.ErrStoreUnavailable)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	id, _, err := s.UpsertEntity(ctx, "acme", "item", "SKU-001", "Widget")
	require.NoError(t, err)

	e, err := s.GetEntity(ctx, "acme", id)
	require.NoError(t, err)
	e.DisplayName = "mutated"

	again, err := s.GetEntity(ctx, "acme", id)
	require.NoError(t, err)
	assert.Equal(t, "Widget", again.DisplayName)
}
