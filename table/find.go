package table

import (
	"github.com/flintdb/flintdb/internal/btree"
	"github.com/flintdb/flintdb/internal/filter"
	"github.com/flintdb/flintdb/internal/meta"
)

// Cursor iterates the rowids matched by a Find call, already filtered
// and paged according to its where/limit/offset arguments.
type Cursor struct {
	rowIDs []int64
	pos    int
}

// Next returns the next matching rowid, or (0, false) when exhausted.
func (c *Cursor) Next() (int64, bool) {
	if c.pos >= len(c.rowIDs) {
		return 0, false
	}
	id := c.rowIDs[c.pos]
	c.pos++
	return id, true
}

// Len reports how many rowids remain in the window.
func (c *Cursor) Len() int { return len(c.rowIDs) - c.pos }

// Find compiles where (an empty string matches every row), selects the
// index whose leading key columns best cover where's sargable
// conjuncts, range-scans that index with the covered prefix pushed
// down, applies the residual filter to each candidate row, and returns
// a Cursor over at most limit matching rowids after skipping the first
// offset (limit <= 0 means unbounded).
//
// The scan is materialized eagerly rather than streamed lazily behind
// the returned Cursor: a result set is gathered in one pass over the
// source before the caller iterates it.
func (t *Table) Find(where string, limit, offset int) (*Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var f *filter.Filter
	if where != "" {
		compiled, err := filter.Compile(where, t.schema)
		if err != nil {
			return nil, err
		}
		f = compiled
	}

	idx, tree, pushable, residual := t.planScan(f)
	low, high, lowIncl, highIncl := buildScanRange(t.schema, idx, pushable)

	var matched []int64
	err := tree.Scan(low, high, lowIncl, highIncl, func(_, value []byte) bool {
		rowID := decodeRowID(value)
		if residual != nil {
			candidate, err := t.decodeAt(rowID)
			if err != nil {
				return false
			}
			ok, err := filter.Eval(residual, t.schema, candidate)
			if err != nil || !ok {
				return true
			}
		}
		matched = append(matched, rowID)
		return limit <= 0 || len(matched) < offset+limit
	})
	if err != nil {
		return nil, err
	}

	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return &Cursor{rowIDs: matched}, nil
}

// planScan picks the index whose keys match the longest leading prefix
// of f's top-level sargable conjuncts, falling back to a full primary
// index scan when nothing matches.
func (t *Table) planScan(f *filter.Filter) (idx meta.IndexDef, tree *btree.Tree, pushable, residual *filter.Filter) {
	if best, ok := filter.BestIndex(t.schema, f); ok {
		pushable, residual = filter.Split(f, best.Keys)
		return best, t.indexes[best.Name], pushable, residual
	}
	primary, _ := t.schema.PrimaryIndex()
	return primary, t.indexes[primary.Name], nil, f
}
