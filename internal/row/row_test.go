package row

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/buffer"
	"github.com/flintdb/flintdb/internal/decimal"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/variant"
)

// variantCmp lets cmp.Diff compare Variant values by Equal instead of
// panicking on their unexported payload fields.
var variantCmp = cmp.Comparer(func(a, b variant.Variant) bool { return variant.Equal(a, b) })

func testSchema(t *testing.T) *meta.Schema {
	t.Helper()
	s := &meta.Schema{
		Name: "widgets",
		Columns: []meta.Column{
			{Name: "id", Type: variant.TagU64, Nullable: false},
			{Name: "label", Type: variant.TagString, ByteWidth: 16, Nullable: true},
			{Name: "price", Type: variant.TagDecimal, Precision: 2, ByteWidth: 32, Nullable: true},
		},
		Indexes: []meta.IndexDef{{Name: meta.PrimaryIndex, Keys: []string{"id"}}},
	}
	require.NoError(t, s.Validate())
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := testSchema(t)
	price, err := decimal.FromString("19.99", 2)
	require.NoError(t, err)

	values := []variant.Variant{
		variant.Uint64(7),
		variant.String("widget"),
		variant.Decimal(price),
	}

	buf := buffer.Make(s.RowBytes())
	require.NoError(t, Encode(s, values, buf))
	buf.Flip()

	got, err := Decode(s, 7, buf)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.RowID)

	if diff := cmp.Diff(values, got.Values, variantCmp); diff != "" {
		t.Fatalf("decoded values mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRejectsNullOnNonNullableColumn(t *testing.T) {
	s := testSchema(t)
	values := []variant.Variant{variant.Null(), variant.Null(), variant.Null()}
	buf := buffer.Make(s.RowBytes())
	err := Encode(s, values, buf)
	require.Error(t, err)
}

func TestEncodeDecodeNullableColumn(t *testing.T) {
	s := testSchema(t)
	values := []variant.Variant{variant.Uint64(1), variant.Null(), variant.Null()}
	buf := buffer.Make(s.RowBytes())
	require.NoError(t, Encode(s, values, buf))
	buf.Flip()

	got, err := Decode(s, 1, buf)
	require.NoError(t, err)
	require.True(t, got.Values[1].IsNull())
	require.True(t, got.Values[2].IsNull())
}

func TestEncodeRejectsOversizedString(t *testing.T) {
	s := testSchema(t)
	values := []variant.Variant{
		variant.Uint64(1),
		variant.String("this label is far too long to fit in sixteen bytes"),
		variant.Null(),
	}
	buf := buffer.Make(s.RowBytes())
	err := Encode(s, values, buf)
	require.Error(t, err)
}

func TestDecodeRejectsColumnCountMismatch(t *testing.T) {
	s := testSchema(t)
	buf := buffer.Make(4)
	require.NoError(t, buf.PutU16(99))
	buf.Flip()
	_, err := Decode(s, 1, buf)
	require.Error(t, err)
}

func TestCloneOwnsValues(t *testing.T) {
	s := testSchema(t)
	values := []variant.Variant{variant.Uint64(1), variant.String("x"), variant.Null()}
	buf := buffer.Make(s.RowBytes())
	require.NoError(t, Encode(s, values, buf))
	buf.Flip()

	decoded, err := Decode(s, 1, buf)
	require.NoError(t, err)
	cloned := decoded.Clone()
	for _, v := range cloned.Values {
		require.True(t, v.Owned() || v.IsNull() || v.Tag() == variant.TagU64)
	}
}
