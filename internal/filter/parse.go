package filter

import (
	"strconv"
	"strings"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/decimal"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/variant"
)

// tokenizer splits a WHERE-clause string into a stream of identifiers,
// operators, parens, string literals, and bare words (numbers/NULL).
type tokenizer struct {
	src []rune
	pos int
}

func newTokenizer(s string) *tokenizer { return &tokenizer{src: []rune(s)} }

func (t *tokenizer) skipSpace() {
	for t.pos < len(t.src) && t.src[t.pos] == ' ' {
		t.pos++
	}
}

func (t *tokenizer) peek() rune {
	t.skipSpace()
	if t.pos >= len(t.src) {
		return 0
	}
	return t.src[t.pos]
}

// next returns the next token, or "" at end of input.
func (t *tokenizer) next() string {
	t.skipSpace()
	if t.pos >= len(t.src) {
		return ""
	}
	c := t.src[t.pos]
	switch {
	case c == '(' || c == ')':
		t.pos++
		return string(c)
	case c == '\'':
		start := t.pos
		t.pos++
		for t.pos < len(t.src) && t.src[t.pos] != '\'' {
			t.pos++
		}
		t.pos++ // consume closing quote
		return string(t.src[start:t.pos])
	case c == '!' || c == '<' || c == '>' || c == '=':
		start := t.pos
		t.pos++
		if t.pos < len(t.src) && t.src[t.pos] == '=' {
			t.pos++
		}
		return string(t.src[start:t.pos])
	default:
		start := t.pos
		for t.pos < len(t.src) && t.src[t.pos] != ' ' && t.src[t.pos] != '(' && t.src[t.pos] != ')' {
			t.pos++
		}
		return string(t.src[start:t.pos])
	}
}

// Compile parses a WHERE-clause expression (AND/OR, comparison
// operators, parens, LIKE) against schema, coercing literals to each
// referenced column's declared type.
func Compile(expr string, schema *meta.Schema) (*Filter, error) {
	p := &parser{tok: newTokenizer(expr), schema: schema}
	p.advance()
	f, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur != "" {
		return nil, flintdb.New(flintdb.KindUnsupported, "filter.Compile", "unexpected trailing input: "+p.cur)
	}
	return f, nil
}

type parser struct {
	tok    *tokenizer
	cur    string
	schema *meta.Schema
}

func (p *parser) advance() { p.cur = p.tok.next() }

func (p *parser) parseOr() (*Filter, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*Filter{left}
	for strings.EqualFold(p.cur, "OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &Filter{Logical: LogicalOr, Children: children}, nil
}

func (p *parser) parseAnd() (*Filter, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	children := []*Filter{left}
	for strings.EqualFold(p.cur, "AND") {
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &Filter{Logical: LogicalAnd, Children: children}, nil
}

func (p *parser) parsePrimary() (*Filter, error) {
	if p.cur == "(" {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur != ")" {
			return nil, flintdb.New(flintdb.KindUnsupported, "filter.Compile", "expected )")
		}
		p.advance()
		return inner, nil
	}
	return p.parseCondition()
}

func (p *parser) parseCondition() (*Filter, error) {
	column := p.cur
	if column == "" {
		return nil, flintdb.New(flintdb.KindUnsupported, "filter.Compile", "expected column name")
	}
	col, ok := p.schema.Column(column)
	if !ok {
		return nil, flintdb.New(flintdb.KindColumnMismatch, "filter.Compile", "unknown column "+column)
	}
	p.advance()

	opTok := p.cur
	var op Op
	switch strings.ToUpper(opTok) {
	case "=":
		op = OpEq
	case "!=", "<>":
		op = OpNe
	case "<":
		op = OpLt
	case "<=":
		op = OpLe
	case ">":
		op = OpGt
	case ">=":
		op = OpGe
	case "LIKE":
		op = OpLike
	case "BETWEEN", "IN", "NOT", "IS":
		return nil, flintdb.New(flintdb.KindUnsupported, "filter.Compile", "operator not supported: "+opTok)
	default:
		return nil, flintdb.New(flintdb.KindUnsupported, "filter.Compile", "expected comparison operator, got "+opTok)
	}
	p.advance()

	litTok := p.cur
	if litTok == "" {
		return nil, flintdb.New(flintdb.KindUnsupported, "filter.Compile", "expected literal value")
	}
	p.advance()

	value, err := coerceLiteral(litTok, col)
	if err != nil {
		return nil, err
	}
	return leaf(Condition{Column: column, Op: op, Value: value}), nil
}

func coerceLiteral(tok string, col meta.Column) (variant.Variant, error) {
	if strings.HasPrefix(tok, "'") {
		return variant.String(strings.Trim(tok, "'")), nil
	}
	if strings.EqualFold(tok, "NULL") {
		return variant.Null(), nil
	}
	switch col.Type {
	case variant.TagF32, variant.TagF64:
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return variant.Variant{}, flintdb.New(flintdb.KindTypeMismatch, "filter.Compile", "invalid float literal: "+tok)
		}
		if col.Type == variant.TagF32 {
			return variant.Float32(float32(f)), nil
		}
		return variant.Float64(f), nil
	case variant.TagDecimal:
		d, err := decimal.FromString(tok, col.Precision)
		if err != nil {
			return variant.Variant{}, flintdb.New(flintdb.KindInvalidDecimal, "filter.Compile", "invalid decimal literal: "+tok)
		}
		return variant.Decimal(d), nil
	default:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return variant.Variant{}, flintdb.New(flintdb.KindTypeMismatch, "filter.Compile", "invalid integer literal: "+tok)
		}
		return intVariantFor(col.Type, n), nil
	}
}

func intVariantFor(t variant.Tag, n int64) variant.Variant {
	switch t {
	case variant.TagI8:
		return variant.Int8(int8(n))
	case variant.TagU8:
		return variant.Uint8(uint8(n))
	case variant.TagI16:
		return variant.Int16(int16(n))
	case variant.TagU16:
		return variant.Uint16(uint16(n))
	case variant.TagI32:
		return variant.Int32(int32(n))
	case variant.TagU32:
		return variant.Uint32(uint32(n))
	case variant.TagU64:
		return variant.Uint64(uint64(n))
	case variant.TagDate:
		return variant.Date(int32(n))
	case variant.TagTime:
		return variant.Time(n)
	default:
		return variant.Int64(n)
	}
}
