package table

import (
	"bytes"

	"github.com/flintdb/flintdb/internal/filter"
	"github.com/flintdb/flintdb/internal/meta"
)

// conditionMap flattens a top-level AND filter (or a single leaf) into
// column -> []Condition, preserving every condition seen for a column
// (a range-bounded column commonly carries both a lower and an upper
// bound) in the shape buildScanRange needs to walk an index's key
// columns in order. A bare OR filter yields no entries, since OR
// cannot be pushed into a single contiguous key range.
func conditionMap(f *filter.Filter) map[string][]filter.Condition {
	m := make(map[string][]filter.Condition)
	if f == nil {
		return m
	}
	if f.Cond != nil {
		m[f.Cond.Column] = append(m[f.Cond.Column], *f.Cond)
		return m
	}
	if f.Logical == filter.LogicalAnd {
		for _, c := range f.Children {
			for k, v := range conditionMap(c) {
				m[k] = append(m[k], v...)
			}
		}
	}
	return m
}

func findEq(list []filter.Condition) (filter.Condition, bool) {
	for _, c := range list {
		if c.Op == filter.OpEq {
			return c, true
		}
	}
	return filter.Condition{}, false
}

// rangeBounds folds every >=/>/<=/< condition on one column into a
// single [low, high] bound relative to prefix, tightening toward the
// intersection when more than one bound constrains the same side
// (e.g. "k > 50 AND k >= 100" keeps the tighter k >= 100).
//
// A secondary index's stored key carries a trailing rowid tie-break
// suffix after the business-key bytes (see storedIndexKey), so a
// row whose key column exactly equals a bound is never byte-equal to
// the bound itself — it is always longer. An exclusive-lower (>) or
// inclusive-upper (<=) bound therefore cannot rely on an equal-length
// compare to land exactly on the boundary value; instead it is bumped
// with prefixUpperBound to the smallest key that must sort after every
// key (suffixed or not) whose field equals the boundary value.
func rangeBounds(prefix []byte, col meta.Column, list []filter.Condition) (low, high []byte, lowInclusive, highInclusive bool) {
	lowInclusive, highInclusive = true, true
	for _, c := range list {
		field, err := encodeKeyField(col, c.Value)
		if err != nil {
			continue
		}
		candidate := append(append([]byte(nil), prefix...), field...)
		switch c.Op {
		case filter.OpGe:
			if low == nil || bytes.Compare(candidate, low) > 0 {
				low = candidate
			}
		case filter.OpGt:
			bumped := prefixUpperBound(candidate)
			if low == nil || bytes.Compare(bumped, low) > 0 {
				low = bumped
			}
		case filter.OpLe:
			bumped := prefixUpperBound(candidate)
			if high == nil || bytes.Compare(bumped, high) < 0 {
				high, highInclusive = bumped, false
			}
		case filter.OpLt:
			if high == nil || bytes.Compare(candidate, high) < 0 {
				high, highInclusive = candidate, false
			}
		}
	}
	if low == nil && len(prefix) > 0 {
		low = append([]byte(nil), prefix...)
	}
	if high == nil {
		high, highInclusive = prefixUpperBound(prefix), false
	}
	return low, high, lowInclusive, highInclusive
}

// buildScanRange walks idx's key columns in order, accumulating an
// exact-match prefix from leading equality conditions in pushable and,
// if the next column after that prefix carries one or more range
// conditions, folding all of them into a single low/high bound. Any
// key column left uncovered ends the walk; only the columns seen so
// far constrain the scan.
func buildScanRange(schema *meta.Schema, idx meta.IndexDef, pushable *filter.Filter) (low, high []byte, lowInclusive, highInclusive bool) {
	conds := conditionMap(pushable)
	var prefix []byte

	for _, key := range idx.Keys {
		list := conds[key]
		if len(list) == 0 {
			break
		}
		col, ok := schema.Column(key)
		if !ok {
			break
		}

		if eqCond, ok := findEq(list); ok {
			field, err := encodeKeyField(col, eqCond.Value)
			if err != nil {
				break
			}
			prefix = append(prefix, field...)
			continue
		}

		return rangeBounds(prefix, col, list)
	}

	if len(prefix) == 0 {
		return nil, nil, true, true
	}
	return prefix, prefixUpperBound(prefix), true, false
}
