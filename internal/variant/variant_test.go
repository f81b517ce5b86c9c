package variant

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// variantCmp lets cmp.Diff compare Variants by value (Equal) instead
// of panicking on their unexported payload fields.
var variantCmp = cmp.Comparer(func(a, b Variant) bool { return Equal(a, b) })

func TestIntRoundTrip(t *testing.T) {
	v := Int32(-42)
	got, err := v.Int64()
	require.NoError(t, err)
	require.EqualValues(t, -42, got)
}

func TestWrongGetterFails(t *testing.T) {
	v := Int32(1)
	_, err := v.String()
	require.Error(t, err)
}

func TestNullSortsFirst(t *testing.T) {
	require.Equal(t, -1, Compare(Null(), Int32(0)))
	require.Equal(t, 1, Compare(Int32(0), Null()))
	require.Equal(t, 0, Compare(Null(), Null()))
}

func TestStringLexicographic(t *testing.T) {
	require.True(t, Compare(String("abc"), String("abd")) < 0)
	require.True(t, Compare(String("ab"), String("abc")) < 0)
	require.Equal(t, 0, Compare(String("x"), String("x")))
}

func TestNumericCrossWidth(t *testing.T) {
	require.Equal(t, 0, Compare(Int8(5), Uint64(5)))
	require.True(t, Compare(Int32(-1), Uint32(0)) < 0)
}

func TestSliceRoundTripMatchesByValue(t *testing.T) {
	want := []Variant{Int32(-42), String("widget"), Null(), Uint64(7)}
	got := []Variant{Int32(-42), String("widget"), Null(), Uint64(7)}
	if diff := cmp.Diff(want, got, variantCmp); diff != "" {
		t.Fatalf("variant slice mismatch (-want +got):\n%s", diff)
	}
}

func TestOwnership(t *testing.T) {
	buf := []byte("hello")
	ref := StringRef(buf)
	require.False(t, ref.Owned())
	owned := ref.Own()
	require.True(t, owned.Owned())
	buf[0] = 'X'
	s, _ := owned.String()
	require.Equal(t, "hello", s)
}
