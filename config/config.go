// Package config loads the engine-wide defaults FlintDB falls back to
// when a new table's schema leaves storage/WAL tuning unset: data
// directory, default sync mode, default cache and block-growth sizes.
// The config file is JSONC: hujson.Standardize strips comments and
// trailing commas, then encoding/json unmarshals into a plain struct.
package config

import (
	"encoding/json"
	"os"

	"github.com/tailscale/hujson"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/meta"
)

// EngineConfig holds the defaults table.Open seeds a fresh schema with
// when the caller's schema leaves a field at its zero value. Only a
// schema supplied for a table that has no ".desc" sidecar yet is
// seeded; a schema read from an existing sidecar is used as stored.
type EngineConfig struct {
	DataDir               string       `json:"data_dir,omitempty"`
	DefaultSync           syncModeJSON `json:"default_sync,omitempty"`
	DefaultCacheBytes     int64        `json:"default_cache_bytes,omitempty"`
	DefaultBlockIncrement int64        `json:"default_block_increment,omitempty"`
}

// syncModeJSON lets EngineConfig round-trip meta.WALSyncMode as the
// names operators would actually write in a config file ("OFF",
// "NORMAL", "FULL") rather than a bare integer.
type syncModeJSON meta.WALSyncMode

func (m syncModeJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(meta.WALSyncMode(m).String())
}

func (m *syncModeJSON) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "OFF":
		*m = syncModeJSON(meta.SyncOff)
	case "NORMAL", "":
		*m = syncModeJSON(meta.SyncNormal)
	case "FULL":
		*m = syncModeJSON(meta.SyncFull)
	default:
		return flintdb.New(flintdb.KindUnsupported, "config.UnmarshalJSON", "unknown sync mode: "+s)
	}
	return nil
}

// Default returns the engine defaults used when no config file is
// supplied, mirroring meta's own per-schema defaults so a table opened
// with or without a config file behaves the same until an operator
// overrides it.
func Default() *EngineConfig {
	return &EngineConfig{
		DataDir:               ".",
		DefaultSync:           syncModeJSON(meta.SyncNormal),
		DefaultCacheBytes:     meta.DefaultCache,
		DefaultBlockIncrement: meta.DefaultBlockIncrement,
	}
}

// Load reads the HuJSON (JSON with comments and trailing commas)
// config file at path, standardizes it to plain JSON, and overlays it
// onto Default(). A missing file is not an error; Default() is
// returned unchanged.
func Load(path string) (*EngineConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "config.Load", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindUnsupported, "config.Load", err)
	}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return nil, flintdb.Wrap(flintdb.KindUnsupported, "config.Load", err)
	}
	return cfg, nil
}

// SeedSchema fills in storage/WAL fields a schema left at their zero
// value with the config's defaults, leaving every non-zero value as it
// is. WAL.Sync counts as unset when it is SyncOff, its zero value, so a
// schema that asks for SyncOff gets the config's DefaultSync whenever
// that is not SyncOff. Called by table.Open before
// Schema.Validate when an EngineConfig is supplied.
func (c *EngineConfig) SeedSchema(s *meta.Schema) {
	if c == nil {
		return
	}
	if s.Storage.CacheBytes == 0 {
		s.Storage.CacheBytes = c.DefaultCacheBytes
	}
	if s.Storage.BlockIncrement == 0 {
		s.Storage.BlockIncrement = c.DefaultBlockIncrement
	}
	if s.WAL.Sync == meta.SyncOff && c.DefaultSync != syncModeJSON(meta.SyncOff) {
		s.WAL.Sync = meta.WALSyncMode(c.DefaultSync)
	}
}
