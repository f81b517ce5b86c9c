package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/meta"
)

func TestDefaultMatchesMetaDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, int64(meta.DefaultCache), cfg.DefaultCacheBytes)
	require.Equal(t, int64(meta.DefaultBlockIncrement), cfg.DefaultBlockIncrement)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hujson"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadParsesCommentsAndTrailingCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flintdb.hujson")
	content := `{
  // operators keep this under version control with comments
  "data_dir": "/var/lib/flintdb",
  "default_sync": "FULL",
  "default_cache_bytes": 4194304,
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/flintdb", cfg.DataDir)
	require.Equal(t, meta.SyncFull, meta.WALSyncMode(cfg.DefaultSync))
	require.Equal(t, int64(4194304), cfg.DefaultCacheBytes)
	require.Equal(t, Default().DefaultBlockIncrement, cfg.DefaultBlockIncrement)
}

func TestLoadRejectsUnknownSyncMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flintdb.hujson")
	require.NoError(t, os.WriteFile(path, []byte(`{"default_sync": "WEIRD"}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSeedSchemaFillsOnlyZeroFields(t *testing.T) {
	cfg := Default()
	s := &meta.Schema{Storage: meta.StorageOptions{CacheBytes: 999}}
	cfg.SeedSchema(s)
	require.Equal(t, int64(999), s.Storage.CacheBytes)
	require.Equal(t, cfg.DefaultBlockIncrement, s.Storage.BlockIncrement)
}

func TestSeedSchemaIsNilSafe(t *testing.T) {
	var cfg *EngineConfig
	s := &meta.Schema{}
	cfg.SeedSchema(s)
	require.Zero(t, s.Storage.CacheBytes)
}
