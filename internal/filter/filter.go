// Package filter implements FlintDB's WHERE-clause evaluator:
// compiling a filter string into an AST, evaluating it against a
// decoded row, and splitting/scoring it against a table's indexes so
// the table layer can push the sargable prefix down into a B+Tree
// range scan instead of a full scan. The compiler is a small
// recursive-descent parser with operator precedence.
package filter

import (
	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
)

// Op identifies a comparison operator in a leaf Condition.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLike:
		return "LIKE"
	default:
		return "?"
	}
}

// LogicalOp combines child filters.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// Condition is a leaf comparison: column OP literal.
type Condition struct {
	Column string
	Op     Op
	Value  variant.Variant
}

// Filter is either a leaf Condition or a logical combination of
// child Filters; exactly one of Cond / Children is populated.
type Filter struct {
	Cond     *Condition
	Logical  LogicalOp
	Children []*Filter
}

func leaf(c Condition) *Filter { return &Filter{Cond: &c} }

// Eval reports whether r satisfies f. NULL columns never satisfy any
// comparison (SQL three-valued-logic UNKNOWN folds to false here),
// matching filter_compare's tri-state comparator: Lt/Le/Gt/Ge/Eq/Ne
// against NULL is always false rather than erroring.
func Eval(f *Filter, schema *meta.Schema, r *row.Row) (bool, error) {
	if f == nil {
		return true, nil
	}
	if f.Cond != nil {
		return evalCondition(f.Cond, schema, r)
	}
	switch f.Logical {
	case LogicalAnd:
		for _, c := range f.Children {
			ok, err := Eval(c, schema, r)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case LogicalOr:
		for _, c := range f.Children {
			ok, err := Eval(c, schema, r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, flintdb.New(flintdb.KindUnsupported, "filter.Eval", "unknown logical operator")
	}
}

func evalCondition(c *Condition, schema *meta.Schema, r *row.Row) (bool, error) {
	idx := schema.ColumnIndex(c.Column)
	if idx < 0 {
		return false, flintdb.New(flintdb.KindColumnMismatch, "filter.Eval", "unknown column "+c.Column)
	}
	actual := r.Values[idx]
	if actual.IsNull() {
		return false, nil
	}
	if c.Op == OpLike {
		s, err := actual.String()
		if err != nil {
			return false, flintdb.New(flintdb.KindTypeMismatch, "filter.Eval", "LIKE against non-string column "+c.Column)
		}
		pattern, err := c.Value.String()
		if err != nil {
			return false, flintdb.New(flintdb.KindTypeMismatch, "filter.Eval", "LIKE pattern must be a string")
		}
		return matchLike(s, pattern), nil
	}
	cmp := variant.Compare(actual, c.Value)
	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, flintdb.New(flintdb.KindUnsupported, "filter.Eval", "unsupported operator")
	}
}

// matchLike implements SQL LIKE semantics with % (any run, including
// empty) and _ (exactly one rune) wildcards, hand-rolled rather than
// translated to regexp since LIKE's escaping rules diverge from it.
func matchLike(s, pattern string) bool {
	return likeMatch([]rune(s), []rune(pattern))
}

func likeMatch(s, p []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			// Collapse consecutive %, then try every possible split.
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatch(s[i:], p) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			p = p[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			s = s[1:]
			p = p[1:]
		}
	}
	return len(s) == 0
}

// Split partitions a top-level AND filter into the conjuncts that
// reference only columns in the given ordered key prefix (pushable
// into an index range scan) and everything else (evaluated as a
// residual filter after the scan). A single bare condition on the
// first key column is returned whole as pushable; any other non-AND
// filter (OR, or a bare condition on another column) is returned whole
// as the residual, since OR cannot be safely pushed into a
// single-range index scan.
func Split(f *Filter, keys []string) (pushable, residual *Filter) {
	if f == nil {
		return nil, nil
	}
	if f.Cond == nil && f.Logical == LogicalAnd {
		keySet := make(map[string]bool, len(keys))
		for _, k := range keys {
			keySet[k] = true
		}
		var push, rest []*Filter
		for _, c := range f.Children {
			if c.Cond != nil && keySet[c.Cond.Column] {
				push = append(push, c)
			} else {
				rest = append(rest, c)
			}
		}
		return and(push), and(rest)
	}
	if f.Cond != nil && len(keys) > 0 && f.Cond.Column == keys[0] {
		return f, nil
	}
	return nil, f
}

func and(children []*Filter) *Filter {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	default:
		return &Filter{Logical: LogicalAnd, Children: children}
	}
}

// BestIndex scores each of schema's indexes against filter's top-level
// AND conjuncts and returns the one whose key prefix is covered by the
// most leading equality/range conditions, or false if no index beats
// a full scan (zero leading columns matched).
func BestIndex(schema *meta.Schema, f *Filter) (meta.IndexDef, bool) {
	var best meta.IndexDef
	bestScore := 0
	found := false
	for _, idx := range schema.Indexes {
		score := scoreIndex(idx, f)
		if score > bestScore {
			bestScore = score
			best = idx
			found = true
		}
	}
	return best, found && bestScore > 0
}

func scoreIndex(idx meta.IndexDef, f *Filter) int {
	columns := conditionColumns(f)
	score := 0
	for _, k := range idx.Keys {
		if !columns[k] {
			break
		}
		score++
	}
	return score
}

func conditionColumns(f *Filter) map[string]bool {
	cols := make(map[string]bool)
	if f == nil {
		return cols
	}
	if f.Cond != nil {
		cols[f.Cond.Column] = true
		return cols
	}
	if f.Logical == LogicalAnd {
		for _, c := range f.Children {
			for k := range conditionColumns(c) {
				cols[k] = true
			}
		}
	}
	return cols
}
