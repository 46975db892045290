//go:build integration

package mysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/storagetest"
)

// TestMySQLConformance needs Docker; run with -tags integration.
func TestMySQLConformance(t *testing.T) {
	ctx := context.Background()

	ctr, err := tcmysql.Run(ctx, "mysql:8.4",
		tcmysql.WithDatabase("weft"),
		tcmysql.WithUsername("weft"),
		tcmysql.WithPassword("weft"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(ctr))
	})

	dsn, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	storagetest.TestStorage(t, func(t *testing.T) storage.Storage {
		s, err := New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() {
			wipeTables(t, s)
			s.Close()
		})
		return s
	})
}

// wipeTables empties every table so each subtest starts clean; the
// container is shared across the suite.
func wipeTables(t *testing.T, s *Store) {
	t.Helper()
	for _, table := range []string{"entities", "assertions", "property_values", "change_events", "import_runs", "sources", "edges"} {
		_, err := s.db.Exec("DELETE FROM " + table)
		require.NoError(t, err)
	}
}
