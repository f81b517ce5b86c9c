package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/decimal"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
)

func testSchema(t *testing.T) *meta.Schema {
	t.Helper()
	s := &meta.Schema{
		Name: "widgets",
		Columns: []meta.Column{
			{Name: "id", Type: variant.TagU64, Nullable: false},
			{Name: "name", Type: variant.TagString, ByteWidth: 32, Nullable: true},
			{Name: "price", Type: variant.TagDecimal, Precision: 2, ByteWidth: 32, Nullable: true},
		},
		Indexes: []meta.IndexDef{
			{Name: meta.PrimaryIndex, Keys: []string{"id"}},
			{Name: "by_name_price", Keys: []string{"name", "price"}},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

func testRow(id uint64, name string, priceStr string) *row.Row {
	var priceVal variant.Variant
	if priceStr == "" {
		priceVal = variant.Null()
	} else {
		d, _ := decimal.FromString(priceStr, 2)
		priceVal = variant.Decimal(d)
	}
	var nameVal variant.Variant
	if name == "" {
		nameVal = variant.Null()
	} else {
		nameVal = variant.String(name)
	}
	return row.New(int64(id), []variant.Variant{variant.Uint64(id), nameVal, priceVal})
}

func TestCompileAndEval(t *testing.T) {
	s := testSchema(t)
	f, err := Compile("id = 1 AND name = 'widget'", s)
	require.NoError(t, err)

	ok, err := Eval(f, s, testRow(1, "widget", "9.99"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Eval(f, s, testRow(1, "other", "9.99"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompileOrParens(t *testing.T) {
	s := testSchema(t)
	f, err := Compile("(id = 1 OR id = 2) AND name != 'skip'", s)
	require.NoError(t, err)

	ok, err := Eval(f, s, testRow(2, "keep", "1.00"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Eval(f, s, testRow(3, "keep", "1.00"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompileLike(t *testing.T) {
	s := testSchema(t)
	f, err := Compile("name LIKE 'wid%'", s)
	require.NoError(t, err)

	ok, err := Eval(f, s, testRow(1, "widget", ""))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Eval(f, s, testRow(1, "gadget", ""))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompileRejectsUnsupportedOperator(t *testing.T) {
	s := testSchema(t)
	_, err := Compile("id IN 1", s)
	require.Error(t, err)
}

func TestNullColumnNeverMatchesComparison(t *testing.T) {
	s := testSchema(t)
	f, err := Compile("price = 1.00", s)
	require.NoError(t, err)
	ok, err := Eval(f, s, testRow(1, "x", ""))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLikeWildcards(t *testing.T) {
	require.True(t, matchLike("hello", "h_llo"))
	require.True(t, matchLike("hello world", "%world"))
	require.True(t, matchLike("anything", "%"))
	require.False(t, matchLike("hello", "h_l"))
}

func TestSplitPushesKeyPrefixConditions(t *testing.T) {
	s := testSchema(t)
	f, err := Compile("name = 'a' AND price = 1.00", s)
	require.NoError(t, err)

	pushable, residual := Split(f, []string{"name", "price"})
	require.NotNil(t, pushable)
	require.Nil(t, residual)
}

func TestBestIndexPrefersLongestPrefixMatch(t *testing.T) {
	s := testSchema(t)
	f, err := Compile("name = 'a' AND price = 1.00", s)
	require.NoError(t, err)

	idx, ok := BestIndex(s, f)
	require.True(t, ok)
	require.Equal(t, "by_name_price", idx.Name)
}

func TestBestIndexFallsBackWhenNoColumnsMatch(t *testing.T) {
	s := testSchema(t)
	f := leaf(Condition{Column: "nonindexed", Op: OpEq, Value: variant.Int64(1)})
	_, ok := BestIndex(s, f)
	require.False(t, ok)
}
