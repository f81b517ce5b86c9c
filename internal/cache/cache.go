// Package cache implements FlintDB's per-table row cache: an LRU keyed
// by rowid, sized in bytes rather than entry count
// so a table of wide rows and one of narrow rows both respect the
// same memory budget. Cache-miss loads are deduplicated with
// singleflight so a burst of readers for the same cold row only pays
// one block-storage fetch.
package cache

import (
	"container/list"
	"strconv"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/singleflight"

	"github.com/flintdb/flintdb/internal/row"
)

type entry struct {
	rowID int64
	row   *row.Row
	bytes int64
	elem  *list.Element
}

// Cache is a byte-capacity-bounded LRU of decoded rows.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	order    *list.List // back = most recently used
	byRowID  map[int64]*entry

	loadGroup singleflight.Group
}

// New builds a Cache with the given byte capacity.
func New(capacityBytes int64) *Cache {
	return &Cache{
		capacity: capacityBytes,
		order:    list.New(),
		byRowID:  make(map[int64]*entry),
	}
}

func rowSize(r *row.Row) int64 {
	size := int64(16)
	for _, v := range r.Values {
		if b, err := v.Bytes(); err == nil {
			size += int64(len(b))
		} else {
			size += 16
		}
	}
	return size
}

// Get returns the cached row for rowID, promoting it to
// most-recently-used, or (nil, false) on a miss.
func (c *Cache) Get(rowID int64) (*row.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byRowID[rowID]
	if !ok {
		return nil, false
	}
	c.order.MoveToBack(e.elem)
	return e.row, true
}

// Put inserts or replaces the cached row for rowID, evicting
// least-recently-used entries until the byte budget is satisfied. The
// entry just inserted is never evicted, so a row larger than the whole
// budget stays cached on its own.
func (c *Cache) Put(rowID int64, r *row.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(rowID, r)
}

func (c *Cache) putLocked(rowID int64, r *row.Row) {
	if old, ok := c.byRowID[rowID]; ok {
		c.order.Remove(old.elem)
		c.used -= old.bytes
		delete(c.byRowID, rowID)
	}
	size := rowSize(r)
	e := &entry{rowID: rowID, row: r, bytes: size}
	e.elem = c.order.PushBack(e)
	c.byRowID[rowID] = e
	c.used += size
	c.evictLocked()
}

func (c *Cache) evictLocked() {
	for c.used > c.capacity && c.order.Len() > 1 {
		front := c.order.Front()
		e := front.Value.(*entry)
		c.order.Remove(front)
		delete(c.byRowID, e.rowID)
		c.used -= e.bytes
	}
}

// Invalidate drops rowID from the cache. The table layer calls it on
// delete; writes and updates replace the cached row through Put.
func (c *Cache) Invalidate(rowID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byRowID[rowID]
	if !ok {
		return
	}
	c.order.Remove(e.elem)
	delete(c.byRowID, rowID)
	c.used -= e.bytes
}

// InvalidateAll clears the cache. The table layer calls it on Close
// and on transaction rollback.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.byRowID = make(map[int64]*entry)
	c.used = 0
}

// Len returns the number of cached rows.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byRowID)
}

// CachedRowIDs returns the rowids currently resident, in no particular
// order.
func (c *Cache) CachedRowIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Keys(c.byRowID)
}

// GetOrLoad returns the cached row for rowID, or calls load (with
// concurrent duplicate calls for the same rowID collapsed into one)
// and caches the result.
func (c *Cache) GetOrLoad(rowID int64, load func() (*row.Row, error)) (*row.Row, error) {
	if r, ok := c.Get(rowID); ok {
		return r, nil
	}
	v, err, _ := c.loadGroup.Do(strconv.FormatInt(rowID, 10), func() (interface{}, error) {
		if r, ok := c.Get(rowID); ok {
			return r, nil
		}
		r, err := load()
		if err != nil {
			return nil, err
		}
		c.Put(rowID, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*row.Row), nil
}
