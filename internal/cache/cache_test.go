package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
)

func mkRow(id int64, label string) *row.Row {
	return row.New(id, []variant.Variant{variant.Uint64(uint64(id)), variant.String(label)})
}

func TestGetPutHitsAndMisses(t *testing.T) {
	c := New(1 << 20)
	_, ok := c.Get(1)
	require.False(t, ok)

	c.Put(1, mkRow(1, "a"))
	got, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(1), got.RowID)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(1) // tiny budget forces eviction on every insert beyond the first
	c.Put(1, mkRow(1, "a"))
	c.Put(2, mkRow(2, "b"))

	_, ok := c.Get(1)
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(2)
	require.True(t, ok)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(1 << 20)
	c.Put(1, mkRow(1, "a"))
	c.Invalidate(1)
	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestInvalidateAllClearsCache(t *testing.T) {
	c := New(1 << 20)
	c.Put(1, mkRow(1, "a"))
	c.Put(2, mkRow(2, "b"))
	c.InvalidateAll()
	require.Equal(t, 0, c.Len())
}

func TestGetOrLoadDeduplicatesConcurrentMisses(t *testing.T) {
	c := New(1 << 20)
	var loads int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrLoad(42, func() (*row.Row, error) {
				mu.Lock()
				loads++
				mu.Unlock()
				return mkRow(42, "loaded"), nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, loads)
}
