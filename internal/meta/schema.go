// Package meta implements FlintDB's table schema: columns, indexes,
// storage/WAL options, and serialization to and from a SQL CREATE
// TABLE-style string.
package meta

import (
	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/variant"
)

// Limits enforced by Validate, per spec.md §3.
const (
	MaxColumns     = 200
	MaxIndexes     = 5
	MaxIndexKeys   = 5
	MaxNameLength  = 40
	PrimaryIndex   = "primary"
	DefaultCache   = 1 << 20  // 1 MiB
	MinCache       = 256 << 10 // 256 KiB floor
	DefaultBlockIncrement = 16 << 20 // 16 MiB
)

// Column describes one typed, fixed-width (on the wire) column.
type Column struct {
	Name       string
	Type       variant.Tag
	ByteWidth  int // declared width for variable-width types; ignored for fixed types
	Precision  int // decimal scale, meaningful only for Type == TagDecimal
	Nullable   bool
	Default    *variant.Variant
	Comment    string
}

// EncodedWidth returns the number of bytes this column occupies in a
// row slot: u16 type tag + payload. Variable-width types pay a u16
// length prefix plus their declared byte budget (zero-padded).
func (c Column) EncodedWidth() int {
	const tagWidth = 2
	if c.Type.IsVariableWidth() {
		return tagWidth + 2 + c.ByteWidth
	}
	return tagWidth + c.Type.FixedWidth()
}

// IndexDef describes one B+Tree index over a prefix-ordered key list.
type IndexDef struct {
	Name string
	Keys []string // column names, in key order
	Desc []bool   // per-key descending flag; len(Desc) == len(Keys) or 0
}

// StorageOptions configures the block storage heap file (C5).
type StorageOptions struct {
	BlockIncrement int64 // file growth chunk size, bytes
	CompactSize    int64 // optional; 0 disables compaction on close
	CacheBytes     int64 // row cache capacity
}

// WALSyncMode controls how aggressively commits are flushed to disk.
type WALSyncMode int

const (
	SyncOff WALSyncMode = iota
	SyncNormal
	SyncFull
)

func (m WALSyncMode) String() string {
	switch m {
	case SyncOff:
		return "OFF"
	case SyncNormal:
		return "NORMAL"
	case SyncFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// WALMode selects whether the table's storage is journaled at all.
type WALMode int

const (
	WALDisabled WALMode = iota
	WALLog
)

// WALOptions configures the write-ahead log (C7).
type WALOptions struct {
	Mode            WALMode
	BatchSize       int  // bytes, wal_buffer_size
	Sync            WALSyncMode
	BufferSize      int  // default 4 MiB
	PageImage       bool // wal_page_data
	DirectWriteSize int  // direct_write_threshold, default 64 KiB
}

// DefaultWALOptions mirrors the defaults called out in spec.md §4.5.
func DefaultWALOptions() WALOptions {
	return WALOptions{
		Mode:            WALLog,
		BatchSize:       4 << 20,
		Sync:            SyncNormal,
		BufferSize:      4 << 20,
		PageImage:       true,
		DirectWriteSize: 64 << 10,
	}
}

// Schema is a table's full metadata: columns, indexes, and the
// storage/WAL options that govern how its data file is laid out.
type Schema struct {
	Name    string
	Columns []Column
	Indexes []IndexDef
	Storage StorageOptions
	WAL     WALOptions

	byName map[string]int // name -> column index cache
}

// ColumnIndex returns the ordinal of the named column, or -1.
// Accelerated by a small name->index cache built on first use.
func (s *Schema) ColumnIndex(name string) int {
	if s.byName == nil {
		s.byName = make(map[string]int, len(s.Columns))
		for i, c := range s.Columns {
			s.byName[c.Name] = i
		}
	}
	if idx, ok := s.byName[name]; ok {
		return idx
	}
	return -1
}

// Column returns the named column, or (Column{}, false).
func (s *Schema) Column(name string) (Column, bool) {
	idx := s.ColumnIndex(name)
	if idx < 0 {
		return Column{}, false
	}
	return s.Columns[idx], true
}

// PrimaryIndex returns the schema's primary index (always index 0,
// always named "primary"), or false if the schema has no indexes yet.
func (s *Schema) PrimaryIndex() (IndexDef, bool) {
	if len(s.Indexes) == 0 {
		return IndexDef{}, false
	}
	return s.Indexes[0], true
}

// Index looks up an index by name.
func (s *Schema) Index(name string) (IndexDef, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexDef{}, false
}

// RowBytes computes the fixed on-disk row width: 2 (column count
// prefix) + the sum of each column's encoded width.
func (s *Schema) RowBytes() int {
	total := 2
	for _, c := range s.Columns {
		total += c.EncodedWidth()
	}
	return total
}

// Validate enforces the structural invariants of spec.md §3.
func (s *Schema) Validate() error {
	if len(s.Name) == 0 || len(s.Name) > MaxNameLength {
		return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "invalid table name length")
	}
	if len(s.Columns) > MaxColumns {
		return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "too many columns")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if len(c.Name) == 0 || len(c.Name) > MaxNameLength {
			return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "invalid column name length: "+c.Name)
		}
		if seen[c.Name] {
			return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "duplicate column name: "+c.Name)
		}
		seen[c.Name] = true
	}
	if len(s.Indexes) > MaxIndexes {
		return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "too many indexes")
	}
	if len(s.Indexes) > 0 && s.Indexes[0].Name != PrimaryIndex {
		return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "index 0 must be named primary")
	}
	for _, idx := range s.Indexes {
		if len(idx.Keys) == 0 || len(idx.Keys) > MaxIndexKeys {
			return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "index "+idx.Name+" has invalid key count")
		}
		for _, k := range idx.Keys {
			if s.ColumnIndex(k) < 0 {
				return flintdb.New(flintdb.KindUnsupported, "meta.Validate", "index "+idx.Name+" references unknown column "+k)
			}
		}
	}
	if s.Storage.CacheBytes == 0 {
		s.Storage.CacheBytes = DefaultCache
	} else if s.Storage.CacheBytes < MinCache {
		s.Storage.CacheBytes = MinCache
	}
	if s.Storage.BlockIncrement == 0 {
		s.Storage.BlockIncrement = DefaultBlockIncrement
	}
	return nil
}
