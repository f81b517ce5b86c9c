package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/block"
)

func openTree(t *testing.T, maxEntries int) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.itbl")
	storage, err := block.Open(path, 4096, 1<<20, false)
	require.NoError(t, err)
	tree, err := Open(storage, maxEntries)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func TestPutGetRoundTrip(t *testing.T) {
	tree := openTree(t, 4)
	require.NoError(t, tree.Put([]byte("a"), []byte("1")))
	require.NoError(t, tree.Put([]byte("b"), []byte("2")))

	v, err := tree.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))

	v, err = tree.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestPutUpdatesExistingKey(t *testing.T) {
	tree := openTree(t, 4)
	require.NoError(t, tree.Put([]byte("k"), []byte("old")))
	require.NoError(t, tree.Put([]byte("k"), []byte("new")))
	require.EqualValues(t, 1, tree.Count())

	v, err := tree.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "new", string(v))
}

func TestSplitsAcrossManyInserts(t *testing.T) {
	tree := openTree(t, 3)
	const n = 200
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key-%04d", i)
		require.NoError(t, tree.Put([]byte(key), []byte(fmt.Sprintf("val-%d", i))))
	}
	require.EqualValues(t, n, tree.Count())

	for i := 0; i < n; i += 17 {
		key := fmt.Sprintf("key-%04d", i)
		v, err := tree.Get([]byte(key))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("val-%d", i), string(v))
	}
}

func TestScanAscendingWithBounds(t *testing.T) {
	tree := openTree(t, 3)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%03d", i)
		require.NoError(t, tree.Put([]byte(key), []byte{byte(i)}))
	}

	var got []string
	err := tree.Scan([]byte("k010"), []byte("k020"), true, false, func(key, value []byte) bool {
		got = append(got, string(key))
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.Equal(t, "k010", got[0])
	require.Equal(t, "k019", got[len(got)-1])
}

func TestScanUnboundedVisitsEverythingInOrder(t *testing.T) {
	tree := openTree(t, 3)
	keys := []string{"d", "b", "a", "c"}
	for _, k := range keys {
		require.NoError(t, tree.Put([]byte(k), []byte(k)))
	}
	var got []string
	require.NoError(t, tree.Scan(nil, nil, true, true, func(key, value []byte) bool {
		got = append(got, string(key))
		return true
	}))
	require.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestDeleteRemovesKey(t *testing.T) {
	tree := openTree(t, 4)
	require.NoError(t, tree.Put([]byte("x"), []byte("1")))
	require.NoError(t, tree.Delete([]byte("x")))
	require.EqualValues(t, 0, tree.Count())

	v, err := tree.Get([]byte("x"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestDeleteMissingKeyErrors(t *testing.T) {
	tree := openTree(t, 4)
	err := tree.Delete([]byte("nope"))
	require.Error(t, err)
}

func TestRollbackCaptureUndoesInPlacePageWrite(t *testing.T) {
	tree := openTree(t, 8)
	require.NoError(t, tree.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tree.FlushMeta())

	tree.BeginCapture(nil)
	require.NoError(t, tree.Put([]byte("k2"), []byte("v2")))
	require.EqualValues(t, 2, tree.Count())

	require.NoError(t, tree.RollbackCapture())
	require.EqualValues(t, 1, tree.Count())

	v, err := tree.Get([]byte("k2"))
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = tree.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))
}

func TestRollbackCaptureUndoesSplitRoot(t *testing.T) {
	tree := openTree(t, 3)
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, tree.Put([]byte(key), []byte(key)))
	}
	require.NoError(t, tree.FlushMeta())
	rootBefore := tree.Root()

	tree.BeginCapture(nil)
	for i := 3; i < 20; i++ {
		key := fmt.Sprintf("k%02d", i)
		require.NoError(t, tree.Put([]byte(key), []byte(key)))
	}
	require.NotEqual(t, rootBefore, tree.Root())

	require.NoError(t, tree.RollbackCapture())
	require.Equal(t, rootBefore, tree.Root())
	require.EqualValues(t, 3, tree.Count())

	v, err := tree.Get([]byte("k10"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestPutDoesNotFlushMetaUntilExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.itbl")
	storage, err := block.Open(path, 4096, 1<<20, false)
	require.NoError(t, err)
	tree, err := Open(storage, 4)
	require.NoError(t, err)
	require.NoError(t, tree.Put([]byte("a"), []byte("1")))

	storage2, err := block.Open(path, 4096, 1<<20, false)
	require.NoError(t, err)
	tree2, err := Open(storage2, 4)
	require.NoError(t, err)
	defer tree2.Close()
	require.EqualValues(t, 0, tree2.Count())
}

func TestReopenPreservesTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.itbl")
	storage, err := block.Open(path, 4096, 1<<20, false)
	require.NoError(t, err)
	tree, err := Open(storage, 4)
	require.NoError(t, err)
	require.NoError(t, tree.Put([]byte("persisted"), []byte("yes")))
	require.NoError(t, tree.Close())

	storage2, err := block.Open(path, 4096, 1<<20, false)
	require.NoError(t, err)
	tree2, err := Open(storage2, 4)
	require.NoError(t, err)
	defer tree2.Close()

	v, err := tree2.Get([]byte("persisted"))
	require.NoError(t, err)
	require.Equal(t, "yes", string(v))
}
