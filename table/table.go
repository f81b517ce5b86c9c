// Package table implements FlintDB's table and transaction coordinator:
// it composes the row codec, block storage, one B+Tree per index, the
// write-ahead log, and the row cache into the single exported handle
// the CLI and any embedding application opens a data file through.
package table

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/config"
	"github.com/flintdb/flintdb/internal/block"
	"github.com/flintdb/flintdb/internal/buffer"
	"github.com/flintdb/flintdb/internal/btree"
	"github.com/flintdb/flintdb/internal/cache"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
	"github.com/flintdb/flintdb/internal/wal"
)

// Mode selects whether a table is opened for reads only or for reads
// and writes; write operations and transactions require RDWR.
type Mode int

const (
	RDONLY Mode = iota
	RDWR
)

const (
	indexPageSize  = 4096
	indexMaxEntries = 128
)

var log = logrus.WithField("component", "table")

// SetDebug raises or lowers the package logger's verbosity at runtime.
func SetDebug(enabled bool) {
	if enabled {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// Table is an open data file: heap storage, one B+Tree per index (the
// first always named "primary"), an optional write-ahead log, and a
// row cache, all guarded by one exclusive lock per the single-writer
// concurrency model of spec.md §5.
type Table struct {
	mu sync.Mutex

	path   string
	mode   Mode
	schema *meta.Schema

	heap    *block.Storage
	indexes map[string]*btree.Tree
	wal     *wal.Log
	cache   *cache.Cache

	closed bool
}

func descPath(path string) string { return path + ".desc" }
func walPath(path string) string  { return path + ".wal" }
func indexPath(path, name string) string { return path + ".i." + name }

// Open opens (or creates, under RDWR) the table rooted at path. If
// schema is nil it is read from path's ".desc" sidecar; if schema is
// supplied and a sidecar already exists, their serialized forms must
// match or Open fails — a caller opening with a schema
// that has drifted from the on-disk description must migrate first.
// cfg may be nil; when supplied, its defaults seed any storage/WAL
// field the schema left at its zero value (see EngineConfig.SeedSchema).
func Open(path string, mode Mode, schema *meta.Schema, cfg *config.EngineConfig) (*Table, error) {
	existing, err := readSidecar(path)
	if err != nil {
		return nil, err
	}

	if schema == nil {
		if existing == nil {
			return nil, flintdb.New(flintdb.KindNotFound, "table.Open", "no schema supplied and no .desc sidecar found")
		}
		schema = existing
	} else if existing != nil {
		if meta.Serialize(schema) != meta.Serialize(existing) {
			return nil, flintdb.New(flintdb.KindUnsupported, "table.Open", "supplied schema does not match existing .desc sidecar")
		}
	} else {
		cfg.SeedSchema(schema)
		if mode == RDWR {
			if err := writeSidecar(path, schema); err != nil {
				return nil, err
			}
		}
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if _, ok := schema.PrimaryIndex(); !ok {
		return nil, flintdb.New(flintdb.KindUnsupported, "table.Open", "schema has no primary index")
	}

	managedByWAL := schema.WAL.Mode == meta.WALLog
	heap, err := block.Open(path, int64(schema.RowBytes()), schema.Storage.BlockIncrement, managedByWAL)
	if err != nil {
		return nil, err
	}

	t := &Table{
		path:    path,
		mode:    mode,
		schema:  schema,
		heap:    heap,
		indexes: make(map[string]*btree.Tree, len(schema.Indexes)),
		cache:   cache.New(schema.Storage.CacheBytes),
	}

	for _, idx := range schema.Indexes {
		storage, err := block.Open(indexPath(path, idx.Name), indexPageSize, schema.Storage.BlockIncrement, managedByWAL)
		if err != nil {
			_ = heap.Close()
			return nil, err
		}
		tree, err := btree.Open(storage, indexMaxEntries)
		if err != nil {
			_ = heap.Close()
			return nil, err
		}
		t.indexes[idx.Name] = tree
	}

	if managedByWAL {
		w, err := wal.Open(walPath(path), schema.WAL)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		t.wal = w
		if err := wal.Recover(walPath(path), t.applyDuringRecovery); err != nil {
			_ = t.Close()
			return nil, err
		}
		// Put/Delete no longer flush an index's meta page on every
		// call (see btree.Tree.Put); recovery must flush once at the
		// end so the replayed root/count survive the next close.
		for _, tree := range t.indexes {
			if err := tree.FlushMeta(); err != nil {
				_ = t.Close()
				return nil, err
			}
		}
	}

	log.WithFields(logrus.Fields{"table": schema.Name, "path": path, "indexes": len(schema.Indexes)}).Debug("table opened")
	return t, nil
}

func readSidecar(path string) (*meta.Schema, error) {
	data, err := os.ReadFile(descPath(path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "table.Open", err)
	}
	s, err := meta.Parse(string(data))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func writeSidecar(path string, schema *meta.Schema) error {
	text := meta.Serialize(schema)
	if err := atomic.WriteFile(descPath(path), strings.NewReader(text)); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "table.Open", err)
	}
	return nil
}

// Drop removes path, its .desc sidecar, its WAL file, and every
// path.i.* index file.
func Drop(path string) error {
	_ = os.Remove(path)
	_ = os.Remove(descPath(path))
	_ = os.Remove(walPath(path))
	matches, err := filepath.Glob(path + ".i.*")
	if err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "table.Drop", err)
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
	return nil
}

// Schema returns the table's schema.
func (t *Table) Schema() *meta.Schema { return t.schema }

// Checkpoint records that the table's heap and indexes are durable as
// of the WAL's current LSN, flushing both before the marker's fsync,
// and (under CheckpointTruncate) discards the log records that
// preceded it. A no-op, returning nil, on a table opened without WAL.
func (t *Table) Checkpoint(mode wal.CheckpointMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wal == nil {
		return nil
	}
	refresh := func() error {
		for _, tree := range t.indexes {
			if err := tree.FlushMeta(); err != nil {
				return err
			}
		}
		return t.heap.Sync()
	}
	return t.wal.Checkpoint(mode, refresh)
}

// Close flushes and closes every index, the heap, the WAL (if any),
// and drops the row cache.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, tree := range t.indexes {
		record(tree.Close())
	}
	record(t.heap.Sync())
	record(t.heap.Close())
	if t.wal != nil {
		record(t.wal.Close())
	}
	t.cache.InvalidateAll()
	return firstErr
}

// applyDuringRecovery redoes one committed WAL record against the
// already-open heap and indexes, or writes back the pre-image of an
// INDEX_PAGE record from a transaction that did not commit. It is
// called once per record by wal.Recover before the table is handed
// back to its caller.
func (t *Table) applyDuringRecovery(r wal.Record) error {
	switch r.Type {
	case wal.RecIndexPage:
		tree, ok := t.indexes[r.IndexName]
		if !ok {
			return nil
		}
		return tree.UndoPage(r.PageID, r.OldImage)
	case wal.RecInsert:
		if err := t.heap.WriteAt(r.RowID, r.NewImage); err != nil {
			return err
		}
		newRow, err := row.Decode(t.schema, r.RowID, buffer.New(r.NewImage))
		if err != nil {
			return err
		}
		return t.insertIndexEntries(newRow.Values, r.RowID)
	case wal.RecUpdate:
		if err := t.heap.WriteAt(r.RowID, r.NewImage); err != nil {
			return err
		}
		if len(r.OldImage) > 0 {
			oldRow, err := row.Decode(t.schema, r.RowID, buffer.New(r.OldImage))
			if err != nil {
				return err
			}
			if err := t.removeIndexEntries(oldRow.Values, r.RowID); err != nil {
				return err
			}
		}
		newRow, err := row.Decode(t.schema, r.RowID, buffer.New(r.NewImage))
		if err != nil {
			return err
		}
		return t.insertIndexEntries(newRow.Values, r.RowID)
	case wal.RecDelete:
		_ = t.heap.Delete(r.RowID)
		if len(r.OldImage) == 0 {
			return nil
		}
		oldRow, err := row.Decode(t.schema, r.RowID, buffer.New(r.OldImage))
		if err != nil {
			return err
		}
		return t.removeIndexEntries(oldRow.Values, r.RowID)
	}
	return nil
}

func (t *Table) insertIndexEntries(values []variant.Variant, rowID int64) error {
	for _, idx := range t.schema.Indexes {
		key, err := storedIndexKey(t.schema, idx, values, rowID)
		if err != nil {
			return err
		}
		if err := t.indexes[idx.Name].Put(key, encodeRowID(rowID)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) removeIndexEntries(values []variant.Variant, rowID int64) error {
	for _, idx := range t.schema.Indexes {
		key, err := storedIndexKey(t.schema, idx, values, rowID)
		if err != nil {
			return err
		}
		if err := t.indexes[idx.Name].Delete(key); err != nil && flintdb.KindOf(err) != flintdb.KindNotFound {
			return err
		}
	}
	return nil
}
