package buffer

import (
	"testing"

	"github.com/flintdb/flintdb"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	b := Make(32)
	require.NoError(t, b.PutU16(7))
	require.NoError(t, b.PutI32(-12345))
	require.NoError(t, b.PutU64(18446744073709551615))
	require.NoError(t, b.PutArray([]byte("hello")))

	b.Flip()

	u16, err := b.GetU16()
	require.NoError(t, err)
	require.EqualValues(t, 7, u16)

	i32, err := b.GetI32()
	require.NoError(t, err)
	require.EqualValues(t, -12345, i32)

	u64, err := b.GetU64()
	require.NoError(t, err)
	require.EqualValues(t, uint64(18446744073709551615), u64)

	arr, err := b.GetArray()
	require.NoError(t, err)
	require.Equal(t, "hello", string(arr))
}

func TestPutOverflow(t *testing.T) {
	b := Make(1)
	err := b.PutU32(1)
	require.Error(t, err)
	require.Equal(t, flintdb.KindBufferOverflow, flintdb.KindOf(err))
}

func TestFixedWidthZeroPad(t *testing.T) {
	b := Make(8)
	require.NoError(t, b.PutFixed([]byte("ab"), 8))
	b.Flip()
	out, err := b.GetFixed(8)
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 'b', 0, 0, 0, 0, 0, 0}, out)
}

func TestSliceIsBoundedView(t *testing.T) {
	b := Make(16)
	require.NoError(t, b.PutU64(42))
	require.NoError(t, b.PutU64(7))
	sub, err := b.Slice(8, 8)
	require.NoError(t, err)
	v, err := sub.GetU64()
	require.NoError(t, err)
	require.EqualValues(t, 7, v)

	_, err = b.Slice(8, 100)
	require.Error(t, err)
}

func TestPoolStackDiscipline(t *testing.T) {
	p := NewPool(64)
	b1 := p.Get(10)
	b2 := p.Get(20)
	p.Put(b2)
	p.Put(b1)

	b3 := p.Get(5)
	require.Equal(t, 5, b3.Cap())
}
