package table

import (
	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/buffer"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
	"github.com/flintdb/flintdb/internal/wal"
)

// Apply inserts values, or — when a row with the same primary key
// already exists and upsert is true — rewrites it in place (removing
// and reinserting its secondary index entries). With upsert false, a
// colliding primary key fails with DuplicateKey. Returns the row's id.
func (t *Table) Apply(values []variant.Variant, upsert bool) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mode != RDWR {
		return 0, flintdb.New(flintdb.KindUnsupported, "table.Apply", "table was opened RDONLY")
	}

	walTx, err := t.beginWAL()
	if err != nil {
		return 0, err
	}
	rowID, err := t.mutateApply(walTx, values, upsert)
	if err != nil {
		t.abortWAL(walTx)
		return 0, err
	}
	if err := t.commitWAL(walTx); err != nil {
		return 0, err
	}
	return rowID, nil
}

// ApplyAt forces a write at rowID, which must already exist. Index
// maintenance (including the primary index, if values' primary key
// differs from the row's current key) is the same as Apply's update
// path.
func (t *Table) ApplyAt(rowID int64, values []variant.Variant) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mode != RDWR {
		return flintdb.New(flintdb.KindUnsupported, "table.ApplyAt", "table was opened RDONLY")
	}

	walTx, err := t.beginWAL()
	if err != nil {
		return err
	}
	if err := t.mutateApplyAt(walTx, rowID, values); err != nil {
		t.abortWAL(walTx)
		return err
	}
	return t.commitWAL(walTx)
}

// DeleteAt removes the row at rowID from the heap and every index,
// and invalidates its cache entry.
func (t *Table) DeleteAt(rowID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mode != RDWR {
		return flintdb.New(flintdb.KindUnsupported, "table.DeleteAt", "table was opened RDONLY")
	}

	walTx, err := t.beginWAL()
	if err != nil {
		return err
	}
	if err := t.mutateDeleteAt(walTx, rowID); err != nil {
		t.abortWAL(walTx)
		return err
	}
	return t.commitWAL(walTx)
}

// Read returns the row at rowID, serving a cache hit directly or
// decoding from storage on a miss (caching the result). Concurrent
// misses for the same rowID are deduplicated by the cache's
// singleflight group.
func (t *Table) Read(rowID int64) (*row.Row, error) {
	return t.cache.GetOrLoad(rowID, func() (*row.Row, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.decodeAt(rowID)
	})
}

// ReadStream decodes the row at rowID directly from storage, bypassing
// the cache entirely — for bulk scans (e.g. a full-table dump) that
// would otherwise evict a cache's working set with rows it will never
// revisit.
func (t *Table) ReadStream(rowID int64) (*row.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decodeAt(rowID)
}

func (t *Table) decodeAt(rowID int64) (*row.Row, error) {
	raw, err := t.heap.Read(rowID)
	if err != nil {
		return nil, err
	}
	return row.Decode(t.schema, rowID, buffer.New(raw))
}

// One builds a probe key from argv (one string per key column of the
// named index, in index key order) and returns the matching row, or a
// NotFound error. The primary index's key is unique, so it is a direct
// point lookup; any other index allows duplicate key values, so One
// range-scans the business-key prefix and returns the first match in
// insertion order (the order a secondary index's rowid tie-break
// suffix sorts by).
func (t *Table) One(indexName string, argv []string) (*row.Row, error) {
	t.mu.Lock()
	idx, ok := t.schema.Index(indexName)
	t.mu.Unlock()
	if !ok {
		return nil, flintdb.New(flintdb.KindIndexMissing, "table.One", "unknown index "+indexName)
	}
	if len(argv) != len(idx.Keys) {
		return nil, flintdb.New(flintdb.KindColumnMismatch, "table.One", "argument count does not match index key count")
	}

	values := make([]variant.Variant, len(t.schema.Columns))
	for i, keyCol := range idx.Keys {
		col, _ := t.schema.Column(keyCol)
		v, err := coerceProbe(col, argv[i])
		if err != nil {
			return nil, err
		}
		values[t.schema.ColumnIndex(keyCol)] = v
	}

	t.mu.Lock()
	key, err := encodeIndexKey(t.schema, idx, values)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	var rowIDBytes []byte
	if idx.Name == meta.PrimaryIndex {
		rowIDBytes, err = t.indexes[idx.Name].Get(key)
	} else {
		err = t.indexes[idx.Name].Scan(key, prefixUpperBound(key), true, false, func(_, value []byte) bool {
			rowIDBytes = value
			return false
		})
	}
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if rowIDBytes == nil {
		return nil, flintdb.New(flintdb.KindNotFound, "table.One", "no row matches probe key")
	}
	return t.Read(decodeRowID(rowIDBytes))
}

// ParseRowValues parses one string per schema column, in column order,
// into typed Variants — the shape cmd/flintdb's shell and query
// commands need to turn command-line/REPL argv into an Apply call
// without each caller reimplementing coerceProbe's type switch.
func (t *Table) ParseRowValues(argv []string) ([]variant.Variant, error) {
	if len(argv) != len(t.schema.Columns) {
		return nil, flintdb.New(flintdb.KindColumnMismatch, "table.ParseRowValues", "argument count does not match schema column count")
	}
	values := make([]variant.Variant, len(argv))
	for i, col := range t.schema.Columns {
		v, err := coerceProbe(col, argv[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (t *Table) beginWAL() (*wal.Transaction, error) {
	if t.wal == nil {
		return nil, nil
	}
	walTx, err := wal.Begin(t.wal)
	if err != nil {
		return nil, err
	}
	t.beginCapture(walTx)
	return walTx, nil
}

func (t *Table) abortWAL(walTx *wal.Transaction) {
	_ = t.rollbackCapture()
	if walTx != nil {
		_ = walTx.Rollback()
	}
}

func (t *Table) commitWAL(walTx *wal.Transaction) error {
	for _, tree := range t.indexes {
		if err := tree.FlushMeta(); err != nil {
			t.abortWAL(walTx)
			return err
		}
	}
	t.endCapture()
	if walTx == nil {
		return nil
	}
	return walTx.Commit()
}

// beginCapture arms every index's page-undo capture for the duration
// of walTx, routing each first-touched page's pre-image into an
// INDEX_PAGE WAL record so a crash before commit can be undone on the
// next open. A nil walTx (WAL disabled) leaves capture off.
func (t *Table) beginCapture(walTx *wal.Transaction) {
	if walTx == nil {
		return
	}
	for name, tree := range t.indexes {
		name, tree, walTx := name, tree, walTx
		tree.BeginCapture(func(pageID int64, before []byte) error {
			return walTx.IndexPage(name, pageID, before)
		})
	}
}

func (t *Table) endCapture() {
	for _, tree := range t.indexes {
		tree.EndCapture()
	}
}

// rollbackCapture undoes every index page write made since the active
// transaction's beginCapture, restoring each tree's root pointer and
// live-key count from the page it finds itself written back to.
func (t *Table) rollbackCapture() error {
	for _, tree := range t.indexes {
		if err := tree.RollbackCapture(); err != nil {
			return err
		}
	}
	return nil
}

// mutateApply performs Apply's insert-or-update logic against an
// already-open (or nil, when WAL is disabled) transaction; the caller
// holds t.mu and decides how/when to commit.
func (t *Table) mutateApply(walTx *wal.Transaction, values []variant.Variant, upsert bool) (int64, error) {
	if len(values) != len(t.schema.Columns) {
		return 0, flintdb.New(flintdb.KindColumnMismatch, "table.apply", "value count does not match schema column count")
	}
	primary, _ := t.schema.PrimaryIndex()
	pk, err := encodeIndexKey(t.schema, primary, values)
	if err != nil {
		return 0, err
	}
	existing, err := t.indexes[primary.Name].Get(pk)
	if err != nil {
		return 0, err
	}

	buf := buffer.Make(t.schema.RowBytes())
	if err := row.Encode(t.schema, values, buf); err != nil {
		return 0, err
	}
	newImage := buf.Written()

	if existing != nil {
		if !upsert {
			return 0, flintdb.New(flintdb.KindDuplicateKey, "table.apply", "primary key already exists")
		}
		rowID := decodeRowID(existing)
		if err := t.rewriteRow(walTx, rowID, newImage, values); err != nil {
			return 0, err
		}
		return rowID, nil
	}

	rowID, err := t.heap.Write(newImage)
	if err != nil {
		return 0, err
	}
	if walTx != nil {
		if err := walTx.Insert(t.schema.Name, rowID, newImage); err != nil {
			return 0, err
		}
	}
	if err := t.insertIndexEntries(values, rowID); err != nil {
		return 0, err
	}
	t.cache.Put(rowID, row.New(rowID, values))
	return rowID, nil
}

func (t *Table) mutateApplyAt(walTx *wal.Transaction, rowID int64, values []variant.Variant) error {
	if len(values) != len(t.schema.Columns) {
		return flintdb.New(flintdb.KindColumnMismatch, "table.apply_at", "value count does not match schema column count")
	}
	buf := buffer.Make(t.schema.RowBytes())
	if err := row.Encode(t.schema, values, buf); err != nil {
		return err
	}
	return t.rewriteRow(walTx, rowID, buf.Written(), values)
}

// rewriteRow replaces the row currently stored at rowID with newImage/
// values, removing its old index entries and inserting the new ones.
func (t *Table) rewriteRow(walTx *wal.Transaction, rowID int64, newImage []byte, values []variant.Variant) error {
	oldRaw, err := t.heap.Read(rowID)
	if err != nil {
		return err
	}
	oldRow, err := row.Decode(t.schema, rowID, buffer.New(oldRaw))
	if err != nil {
		return err
	}
	if walTx != nil {
		if err := walTx.Update(t.schema.Name, rowID, oldRaw, newImage); err != nil {
			return err
		}
	}
	if err := t.heap.WriteAt(rowID, newImage); err != nil {
		return err
	}
	if err := t.removeIndexEntries(oldRow.Values, rowID); err != nil {
		return err
	}
	if err := t.insertIndexEntries(values, rowID); err != nil {
		return err
	}
	t.cache.Put(rowID, row.New(rowID, values))
	return nil
}

func (t *Table) mutateDeleteAt(walTx *wal.Transaction, rowID int64) error {
	oldRaw, err := t.heap.Read(rowID)
	if err != nil {
		return err
	}
	oldRow, err := row.Decode(t.schema, rowID, buffer.New(oldRaw))
	if err != nil {
		return err
	}
	if walTx != nil {
		if err := walTx.Delete(t.schema.Name, rowID, oldRaw); err != nil {
			return err
		}
	}
	if err := t.heap.Delete(rowID); err != nil {
		return err
	}
	if err := t.removeIndexEntries(oldRow.Values, rowID); err != nil {
		return err
	}
	t.cache.Invalidate(rowID)
	return nil
}
