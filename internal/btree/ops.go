package btree

import (
	"golang.org/x/exp/slices"

	"github.com/flintdb/flintdb"
)

// childSlot identifies where in an internal page a child pointer lives:
// either entries[idx].child (idx < len(entries)) or the rightmost
// catch-all pointer (idx == len(entries)). Uses the same binary-search
// primitive as leaf lookups (slices.BinarySearchFunc) rather than a
// hand-rolled bisection.
func childSlotFor(p *page, key []byte, cmp Comparator) int {
	idx, found := slices.BinarySearchFunc(p.entries, key, func(e entry, k []byte) int {
		return cmp(e.key, k)
	})
	if found {
		// A separator key is the first key of its right-hand child.
		idx++
	}
	return idx
}

// searchEntries returns the index of the first entry whose key is >=
// key, and whether that entry's key equals key exactly.
func searchEntries(entries []entry, key []byte, cmp Comparator) (int, bool) {
	return slices.BinarySearchFunc(entries, key, func(e entry, k []byte) int {
		return cmp(e.key, k)
	})
}

func childAt(p *page, slot int) int64 {
	if slot == len(p.entries) {
		return p.rightmost
	}
	return p.entries[slot].child
}

func setChildAt(p *page, slot int, id int64) {
	if slot == len(p.entries) {
		p.rightmost = id
	} else {
		p.entries[slot].child = id
	}
}

// Get returns the value stored under key, or (nil, nil) if key is absent.
func (t *Tree) Get(key []byte) ([]byte, error) {
	p, err := t.readPage(t.root)
	if err != nil {
		return nil, err
	}
	for !p.leaf {
		slot := childSlotFor(p, key, t.compare)
		p, err = t.readPage(childAt(p, slot))
		if err != nil {
			return nil, err
		}
	}
	idx, found := searchEntries(p.entries, key, t.compare)
	if found {
		return p.entries[idx].value, nil
	}
	return nil, nil
}

// Put inserts or updates key's value, splitting pages on overflow. The
// root pointer and live-key count are updated in memory immediately;
// persisting them to the meta page is the caller's responsibility
// (FlushMeta), so a transaction that never commits leaves no trace on
// disk of a root change a split would otherwise cause.
func (t *Tree) Put(key, value []byte) error {
	splitKey, splitID, err := t.insert(t.root, key, value)
	if err != nil {
		return err
	}
	if splitID != noChild {
		newRoot := &page{leaf: false, entries: []entry{{key: splitKey, child: t.root}}, rightmost: splitID}
		id, err := t.allocPage(newRoot)
		if err != nil {
			return err
		}
		t.root = id
	}
	return nil
}

func (t *Tree) insert(pageID int64, key, value []byte) ([]byte, int64, error) {
	p, err := t.readPage(pageID)
	if err != nil {
		return nil, noChild, err
	}

	if p.leaf {
		idx, found := searchEntries(p.entries, key, t.compare)
		switch {
		case found:
			p.entries[idx].value = value
		default:
			p.entries = append(p.entries, entry{})
			copy(p.entries[idx+1:], p.entries[idx:])
			p.entries[idx] = entry{key: key, value: value}
			t.count++
		}
		if len(p.entries) <= t.maxEntries {
			return nil, noChild, t.writePage(p)
		}
		mid := len(p.entries) / 2
		right := &page{leaf: true, entries: append([]entry(nil), p.entries[mid:]...), next: p.next}
		rightID, err := t.allocPage(right)
		if err != nil {
			return nil, noChild, err
		}
		p.entries = p.entries[:mid]
		p.next = rightID
		if err := t.writePage(p); err != nil {
			return nil, noChild, err
		}
		return right.entries[0].key, rightID, nil
	}

	slot := childSlotFor(p, key, t.compare)
	childID := childAt(p, slot)
	splitKey, splitID, err := t.insert(childID, key, value)
	if err != nil {
		return nil, noChild, err
	}
	if splitID == noChild {
		return nil, noChild, nil
	}

	setChildAt(p, slot, splitID)
	p.entries = append(p.entries, entry{})
	copy(p.entries[slot+1:], p.entries[slot:])
	p.entries[slot] = entry{key: splitKey, child: childID}

	if len(p.entries) <= t.maxEntries {
		return nil, noChild, t.writePage(p)
	}
	mid := len(p.entries) / 2
	promoted := p.entries[mid].key
	right := &page{leaf: false, entries: append([]entry(nil), p.entries[mid+1:]...), rightmost: p.rightmost}
	rightID, err := t.allocPage(right)
	if err != nil {
		return nil, noChild, err
	}
	p.rightmost = p.entries[mid].child
	p.entries = p.entries[:mid]
	if err := t.writePage(p); err != nil {
		return nil, noChild, err
	}
	return promoted, rightID, nil
}

// Delete removes key if present. Underfull pages are not merged back
// together; reclaiming that space is left to a future compaction pass
// rather than complicating every delete with rebalancing.
func (t *Tree) Delete(key []byte) error {
	p, err := t.readPage(t.root)
	if err != nil {
		return err
	}
	for !p.leaf {
		slot := childSlotFor(p, key, t.compare)
		p, err = t.readPage(childAt(p, slot))
		if err != nil {
			return err
		}
	}
	idx, found := searchEntries(p.entries, key, t.compare)
	if !found {
		return flintdb.New(flintdb.KindNotFound, "btree.Delete", "key not found")
	}
	p.entries = append(p.entries[:idx], p.entries[idx+1:]...)
	t.count--
	return t.writePage(p)
}

// ScanFunc is called once per matching key/value pair during a Scan,
// in ascending key order. Returning false stops the scan early.
type ScanFunc func(key, value []byte) bool

// Scan walks entries in [low, high] (bounds tri-state: nil means
// unbounded on that side; the *Inclusive flags control boundary
// membership when a bound is present) in ascending key order.
func (t *Tree) Scan(low, high []byte, lowInclusive, highInclusive bool, fn ScanFunc) error {
	p, err := t.findLeaf(low)
	if err != nil {
		return err
	}
	for p != nil {
		for _, e := range p.entries {
			if low != nil {
				c := t.compare(e.key, low)
				if c < 0 || (c == 0 && !lowInclusive) {
					continue
				}
			}
			if high != nil {
				c := t.compare(e.key, high)
				if c > 0 || (c == 0 && !highInclusive) {
					return nil
				}
			}
			if !fn(e.key, e.value) {
				return nil
			}
		}
		if p.next == noChild {
			return nil
		}
		p, err = t.readPage(p.next)
		if err != nil {
			return err
		}
	}
	return nil
}

// findLeaf descends to the leaf that would contain key, or the
// leftmost leaf if key is nil (unbounded scan start).
func (t *Tree) findLeaf(key []byte) (*page, error) {
	p, err := t.readPage(t.root)
	if err != nil {
		return nil, err
	}
	for !p.leaf {
		var slot int
		if key == nil {
			slot = 0
		} else {
			slot = childSlotFor(p, key, t.compare)
		}
		p, err = t.readPage(childAt(p, slot))
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Close flushes metadata and closes the underlying storage.
func (t *Tree) Close() error {
	if err := t.flushMeta(); err != nil {
		return err
	}
	return t.storage.Close()
}
