// Package btree implements FlintDB's paged, persistent B+Tree: the
// index structure backing both a table's primary key and its
// secondary indexes. Pages are stored one-per-block in an
// internal/block.Storage heap file, header block first and numbered
// data blocks after, with split-on-overflow inserts.
package btree

import (
	"bytes"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/block"
	"github.com/flintdb/flintdb/internal/buffer"
)

// Comparator orders two encoded keys. The zero value (nil) defaults to
// bytes.Compare; a descending index supplies a comparator that negates
// the natural order instead of reversing scans after the fact.
type Comparator func(a, b []byte) int

const (
	metaPageID = 0
	pageLeaf   = 0
	pageInner  = 1
	noChild    = int64(-1)
)

type entry struct {
	key   []byte
	value []byte // leaf only
	child int64  // internal only
}

type page struct {
	id       int64
	leaf     bool
	entries  []entry
	next     int64 // leaf sibling pointer, -1 if none
	rightmost int64 // internal-only trailing child
}

// UndoLogger durably records a page's pre-mutation image the first
// time a capture span overwrites it, so a caller journaling through a
// WAL can undo the write during crash recovery if its transaction
// never reaches a commit marker.
type UndoLogger func(pageID int64, before []byte) error

// Tree is a paged B+Tree index over a block.Storage heap file.
type Tree struct {
	storage    *block.Storage
	cmp        Comparator
	pageSize   int64
	root       int64
	count      int64
	maxEntries int

	undo    map[int64][]byte // first pre-image per page touched since BeginCapture, nil when not capturing
	onTouch UndoLogger
}

// Open opens (or initializes) a B+Tree backed by storage. The page size
// is storage's block size; maxEntries caps how many entries a
// page may hold before a Put triggers a split.
func Open(storage *block.Storage, maxEntries int) (*Tree, error) {
	t := &Tree{storage: storage, cmp: bytes.Compare, pageSize: storage.BlockSize(), maxEntries: maxEntries}
	if storage.BlockCount() == 0 {
		// Block id 0 is reserved for the meta page; the root leaf is
		// allocated immediately after it, at block id 1.
		if _, err := storage.Write(nil); err != nil {
			return nil, flintdb.Wrap(flintdb.KindIoError, "btree.Open", err)
		}
		root, err := t.allocPage(&page{leaf: true, next: noChild})
		if err != nil {
			return nil, err
		}
		t.root = root
		if err := t.flushMeta(); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err := t.loadMeta(); err != nil {
		return nil, err
	}
	return t, nil
}

// SetComparator overrides the default byte-lexicographic ordering,
// e.g. to implement a descending index key.
func (t *Tree) SetComparator(cmp Comparator) { t.cmp = cmp }

func (t *Tree) compare(a, b []byte) int {
	if t.cmp == nil {
		return bytes.Compare(a, b)
	}
	return t.cmp(a, b)
}

// Count returns the number of live key/value pairs.
func (t *Tree) Count() int64 { return t.count }

// Root returns the current root page id.
func (t *Tree) Root() int64 { return t.root }

// BeginCapture starts recording the first pre-mutation image of every
// page this tree overwrites in place (including the meta page), until
// EndCapture or RollbackCapture. log is optional and, when non-nil, is
// called alongside the in-memory capture so a caller can journal the
// same image durably.
func (t *Tree) BeginCapture(log UndoLogger) {
	t.undo = make(map[int64][]byte)
	t.onTouch = log
}

// EndCapture discards the capture buffer without undoing anything: the
// transaction committed, so every page already written to storage is
// the correct forward state.
func (t *Tree) EndCapture() {
	t.undo = nil
	t.onTouch = nil
}

// RollbackCapture writes every page captured since BeginCapture back to
// its pre-mutation bytes and reloads the root pointer and live-key
// count from the restored meta page, undoing every structural change
// made during the span. Pages allocated fresh during the span (splits)
// are not reclaimed and become unreachable garbage once their parent's
// child pointer is restored, the same trade-off Delete already makes
// by skipping merge/rebalance.
func (t *Tree) RollbackCapture() error {
	if t.undo == nil {
		return nil
	}
	for id, before := range t.undo {
		if err := t.storage.WriteAt(id, before); err != nil {
			return flintdb.Wrap(flintdb.KindIoError, "btree.RollbackCapture", err)
		}
	}
	t.undo = nil
	t.onTouch = nil
	return t.loadMeta()
}

// UndoPage writes before back onto the page at id, outside of any
// active capture span. Used by WAL recovery to unwind an index page
// mutation belonging to a transaction that never reached a commit
// marker.
func (t *Tree) UndoPage(id int64, before []byte) error {
	if err := t.storage.WriteAt(id, before); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "btree.UndoPage", err)
	}
	if id == metaPageID {
		return t.loadMeta()
	}
	return nil
}

// captureBeforeWrite records id's current on-disk bytes the first time
// it is overwritten during an active capture span.
func (t *Tree) captureBeforeWrite(id int64) error {
	if t.undo == nil {
		return nil
	}
	if _, seen := t.undo[id]; seen {
		return nil
	}
	before, err := t.storage.Read(id)
	if err != nil {
		return err
	}
	t.undo[id] = before
	if t.onTouch != nil {
		return t.onTouch(id, before)
	}
	return nil
}

func (t *Tree) loadMeta() error {
	raw, err := t.storage.Read(metaPageID)
	if err != nil {
		return err
	}
	buf := buffer.New(raw)
	root, err := buf.GetI64()
	if err != nil {
		return flintdb.Wrap(flintdb.KindWalCorrupted, "btree.loadMeta", err)
	}
	count, err := buf.GetI64()
	if err != nil {
		return flintdb.Wrap(flintdb.KindWalCorrupted, "btree.loadMeta", err)
	}
	t.root = root
	t.count = count
	return nil
}

// FlushMeta persists the root pointer and live-key count.
func (t *Tree) FlushMeta() error { return t.flushMeta() }

func (t *Tree) flushMeta() error {
	if err := t.captureBeforeWrite(metaPageID); err != nil {
		return err
	}
	buf := buffer.Make(int(t.pageSize))
	if err := buf.PutI64(t.root); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "btree.flushMeta", err)
	}
	if err := buf.PutI64(t.count); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "btree.flushMeta", err)
	}
	return t.storage.WriteAt(metaPageID, buf.Written())
}

func (t *Tree) allocPage(p *page) (int64, error) {
	enc := encodePage(p, int(t.pageSize))
	id, err := t.storage.Write(enc)
	if err != nil {
		return 0, flintdb.Wrap(flintdb.KindIoError, "btree.allocPage", err)
	}
	p.id = id
	return id, nil
}

func (t *Tree) writePage(p *page) error {
	if err := t.captureBeforeWrite(p.id); err != nil {
		return err
	}
	enc := encodePage(p, int(t.pageSize))
	return t.storage.WriteAt(p.id, enc)
}

func (t *Tree) readPage(id int64) (*page, error) {
	raw, err := t.storage.Read(id)
	if err != nil {
		return nil, err
	}
	p, err := decodePage(raw)
	if err != nil {
		return nil, err
	}
	p.id = id
	return p, nil
}

func encodePage(p *page, size int) []byte {
	buf := buffer.Make(size)
	if p.leaf {
		_ = buf.PutU8(pageLeaf)
	} else {
		_ = buf.PutU8(pageInner)
	}
	_ = buf.PutU16(uint16(len(p.entries)))
	_ = buf.PutI64(p.next)
	for _, e := range p.entries {
		_ = buf.PutArray(e.key)
		if p.leaf {
			_ = buf.PutArray(e.value)
		} else {
			_ = buf.PutI64(e.child)
		}
	}
	if !p.leaf {
		_ = buf.PutI64(p.rightmost)
	}
	return buf.Bytes()
}

func decodePage(raw []byte) (*page, error) {
	buf := buffer.New(raw)
	kind, err := buf.GetU8()
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindWalCorrupted, "btree.decodePage", err)
	}
	count, err := buf.GetU16()
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindWalCorrupted, "btree.decodePage", err)
	}
	next, err := buf.GetI64()
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindWalCorrupted, "btree.decodePage", err)
	}
	p := &page{leaf: kind == pageLeaf, next: next}
	p.entries = make([]entry, count)
	for i := range p.entries {
		key, err := buf.GetArray()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindWalCorrupted, "btree.decodePage", err)
		}
		keyCopy := append([]byte(nil), key...)
		if p.leaf {
			val, err := buf.GetArray()
			if err != nil {
				return nil, flintdb.Wrap(flintdb.KindWalCorrupted, "btree.decodePage", err)
			}
			p.entries[i] = entry{key: keyCopy, value: append([]byte(nil), val...)}
		} else {
			child, err := buf.GetI64()
			if err != nil {
				return nil, flintdb.Wrap(flintdb.KindWalCorrupted, "btree.decodePage", err)
			}
			p.entries[i] = entry{key: keyCopy, child: child}
		}
	}
	if !p.leaf {
		rightmost, err := buf.GetI64()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindWalCorrupted, "btree.decodePage", err)
		}
		p.rightmost = rightmost
	}
	return p, nil
}
