package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Run from an empty dir so a stray weft.yaml cannot leak in.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "data/weft.db", cfg.StorePath)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Equal(t, "schemas", cfg.SchemasDir)
	assert.Equal(t, "specs", cfg.SpecsDir)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, ":8432", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
	assert.Equal(t, 10*time.Second, cfg.LockWait)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weft.yaml")
	yaml := `
store:
  backend: mysql
  dsn: weft:weft@tcp(localhost:3306)/weft
redis:
  addr: localhost:6379
  db: 3
listen:
  addr: ":9000"
lock:
  ttl: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.StoreBackend)
	assert.Equal(t, "weft:weft@tcp(localhost:3306)/weft", cfg.StoreDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	// Unset keys keep their defaults.
	assert.Equal(t, "schemas", cfg.SchemasDir)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: sqlite\n"), 0o644))

	t.Setenv("WEFT_STORE_BACKEND", "memory")
	t.Setenv("WEFT_DATA_DIR", "/var/lib/weft")
	t.Setenv("WEFT_LOCK_WAIT", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "/var/lib/weft", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.LockWait)
}

func TestInvalidBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WEFT_STORE_BACKEND", "postgres")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
}

func TestMySQLRequiresDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WEFT_STORE_BACKEND", "mysql")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn")
}

func TestExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
