package block

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heap.itbl")
	s, err := Open(path, 64, 4096, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := openTemp(t)
	id, err := s.Write([]byte("hello block"))
	require.NoError(t, err)
	require.EqualValues(t, 0, id)

	got, err := s.Read(id)
	require.NoError(t, err)
	require.Equal(t, "hello block", string(got[:len("hello block")]))
}

func TestDeleteReusesFreeSlot(t *testing.T) {
	s := openTemp(t)
	a, err := s.Write([]byte("a"))
	require.NoError(t, err)
	b, err := s.Write([]byte("b"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(a))

	reused, err := s.Write([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, a, reused)
	require.NotEqual(t, b, reused)
}

func TestWriteRejectsOversizedPayload(t *testing.T) {
	s := openTemp(t)
	_, err := s.Write(make([]byte, 128))
	require.Error(t, err)
}

func TestReopenPreservesBlockCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.itbl")
	s1, err := Open(path, 32, 4096, false)
	require.NoError(t, err)
	_, err = s1.Write([]byte("x"))
	require.NoError(t, err)
	_, err = s1.Write([]byte("y"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, 32, 4096, false)
	require.NoError(t, err)
	defer s2.Close()
	require.EqualValues(t, 2, s2.BlockCount())
}

func TestMmapServesBytesGet(t *testing.T) {
	s := openTemp(t)
	id, err := s.Write([]byte("mmapped"))
	require.NoError(t, err)
	require.NoError(t, s.Mmap())

	got, err := s.BytesGet(id)
	require.NoError(t, err)
	require.Equal(t, "mmapped", string(got[:len("mmapped")]))
	require.NoError(t, s.Unmap())
}
