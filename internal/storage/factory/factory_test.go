package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinBackendsRegistered(t *testing.T) {
	assert.Equal(t, []string{"memory", "mysql", "sqlite"}, Backends())
}

func TestNewMemoryBackend(t *testing.T) {
	s, err := New(context.Background(), Config{Backend: "memory"})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
}

func TestNewDefaultsToSQLite(t *testing.T) {
	s, err := New(context.Background(), Config{Path: t.TempDir() + "/weft.db"})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "dolt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "sqlite"})
	require.Error(t, err)
}

func TestMySQLRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "mysql"})
	require.Error(t, err)
}
