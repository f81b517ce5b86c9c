package buffer

import "sync"

// Pool borrows row-sized buffers and returns them on release, with
// stack discipline: buffers are expected to be released in roughly
// the reverse order they were borrowed, the way a single table's
// writer borrows one buffer per apply() call. A Pool is bound to a
// single table's writer per the concurrency model — cross-table
// aggregation paths use ThreadSafePool instead.
type Pool struct {
	size  int
	stack [][]byte
}

// NewPool creates a pool whose buffers are at least minSize bytes.
func NewPool(minSize int) *Pool {
	return &Pool{size: minSize}
}

// Get borrows a buffer of at least n bytes. If n exceeds the pool's
// configured minimum, a larger one-off slice is allocated and never
// returned to the stack.
func (p *Pool) Get(n int) *Buffer {
	if n <= p.size && len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		return New(top[:n])
	}
	size := p.size
	if n > size {
		size = n
	}
	return New(make([]byte, size)[:n])
}

// Put releases a buffer back to the pool for reuse. Buffers smaller
// than the pool's configured size, or taken from a one-off
// over-allocation, are simply dropped.
func (p *Pool) Put(b *Buffer) {
	if cap(b.data) != p.size {
		return
	}
	p.stack = append(p.stack, b.data[:cap(b.data)])
}

// ThreadSafePool wraps a Pool in a mutex for the cross-table
// aggregation paths that the concurrency model calls out as the one
// legitimate use of a shared pool across goroutines.
type ThreadSafePool struct {
	mu   sync.Mutex
	pool *Pool
}

func NewThreadSafePool(minSize int) *ThreadSafePool {
	return &ThreadSafePool{pool: NewPool(minSize)}
}

func (p *ThreadSafePool) Get(n int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool.Get(n)
}

func (p *ThreadSafePool) Put(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pool.Put(b)
}
