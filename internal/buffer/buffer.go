// Package buffer provides a typed little-endian reader/writer over a
// backing byte region, a stateful cursor so the row codec and WAL
// writer do not re-derive offsets by hand at every call site.
package buffer

import (
	"encoding/binary"

	"github.com/flintdb/flintdb"
)

// Buffer is a bounded view over a byte slice with a read/write cursor.
// It never owns memory beyond the slice handed to it at construction:
// a Buffer backed by an mmap window is a borrowed view whose validity
// ends when the window is unmapped; a Buffer backed by a pooled or
// freshly allocated slice owns that slice for as long as the caller
// retains the Buffer.
type Buffer struct {
	data []byte
	pos  int
	lim  int // write/read limit, <= len(data)
}

// New wraps an existing slice. The buffer's limit starts at len(data).
func New(data []byte) *Buffer {
	return &Buffer{data: data, lim: len(data)}
}

// Make allocates a new heap-backed buffer of the given capacity.
func Make(capacity int) *Buffer {
	return New(make([]byte, capacity))
}

// Bytes returns the full backing slice (capacity, not just the
// written prefix). Callers needing only what has been written should
// use Written.
func (b *Buffer) Bytes() []byte { return b.data }

// Written returns the slice of bytes written/read so far (data[:pos]).
func (b *Buffer) Written() []byte { return b.data[:b.pos] }

// Cap returns the buffer's total capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Remaining returns the number of bytes left before the limit.
func (b *Buffer) Remaining() int { return b.lim - b.pos }

// Position returns the current cursor offset.
func (b *Buffer) Position() int { return b.pos }

// Skip advances the cursor by n bytes without reading/writing.
func (b *Buffer) Skip(n int) error {
	if b.pos+n > b.lim || b.pos+n < 0 {
		return flintdb.New(flintdb.KindBufferOverflow, "buffer.Skip", "skip past limit")
	}
	b.pos += n
	return nil
}

// Seek repositions the cursor to an absolute offset.
func (b *Buffer) Seek(off int) error {
	if off < 0 || off > b.lim {
		return flintdb.New(flintdb.KindBufferOverflow, "buffer.Seek", "seek out of range")
	}
	b.pos = off
	return nil
}

// Flip resets the cursor to 0 and sets the limit to the current
// position, the classic NIO-style "switch from writing to reading".
func (b *Buffer) Flip() {
	b.lim = b.pos
	b.pos = 0
}

// Clear resets the cursor to 0 and the limit back to full capacity.
func (b *Buffer) Clear() {
	b.pos = 0
	b.lim = len(b.data)
}

// Realloc grows the backing array to at least n bytes, copying
// existing content. Mmap-backed buffers must not call this — callers
// are expected to construct a fresh window instead, matching the
// "mmap windows may not be resized" contract of the block storage
// layer.
func (b *Buffer) Realloc(n int) {
	if n <= len(b.data) {
		return
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
	b.lim = len(b.data)
}

func (b *Buffer) checkPut(n int) error {
	if b.pos+n > len(b.data) {
		return flintdb.New(flintdb.KindBufferOverflow, "buffer.put", "write past capacity")
	}
	return nil
}

func (b *Buffer) checkGet(n int) error {
	if b.pos+n > b.lim {
		return flintdb.New(flintdb.KindBufferOverflow, "buffer.get", "read past limit")
	}
	return nil
}

// PutI8/PutU8 write a single byte.
func (b *Buffer) PutU8(v uint8) error {
	if err := b.checkPut(1); err != nil {
		return err
	}
	b.data[b.pos] = v
	b.pos++
	return nil
}

func (b *Buffer) PutI8(v int8) error { return b.PutU8(uint8(v)) }

func (b *Buffer) GetU8() (uint8, error) {
	if err := b.checkGet(1); err != nil {
		return 0, err
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *Buffer) GetI8() (int8, error) {
	v, err := b.GetU8()
	return int8(v), err
}

// PutU16/PutI16 write a 16-bit little-endian value.
func (b *Buffer) PutU16(v uint16) error {
	if err := b.checkPut(2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b.data[b.pos:], v)
	b.pos += 2
	return nil
}

func (b *Buffer) PutI16(v int16) error { return b.PutU16(uint16(v)) }

func (b *Buffer) GetU16() (uint16, error) {
	if err := b.checkGet(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

func (b *Buffer) GetI16() (int16, error) {
	v, err := b.GetU16()
	return int16(v), err
}

// PutU32/PutI32/PutF32 write a 32-bit little-endian value.
func (b *Buffer) PutU32(v uint32) error {
	if err := b.checkPut(4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.data[b.pos:], v)
	b.pos += 4
	return nil
}

func (b *Buffer) PutI32(v int32) error { return b.PutU32(uint32(v)) }

func (b *Buffer) GetU32() (uint32, error) {
	if err := b.checkGet(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

func (b *Buffer) GetI32() (int32, error) {
	v, err := b.GetU32()
	return int32(v), err
}

// PutU64/PutI64/PutF64 write a 64-bit little-endian value.
func (b *Buffer) PutU64(v uint64) error {
	if err := b.checkPut(8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b.data[b.pos:], v)
	b.pos += 8
	return nil
}

func (b *Buffer) PutI64(v int64) error { return b.PutU64(uint64(v)) }

func (b *Buffer) GetU64() (uint64, error) {
	if err := b.checkGet(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(b.data[b.pos:])
	b.pos += 8
	return v, nil
}

func (b *Buffer) GetI64() (int64, error) {
	v, err := b.GetU64()
	return int64(v), err
}

// PutArray writes a u16 length prefix followed by raw bytes — the
// variable-length field layout used by both the row codec and WAL
// payloads.
func (b *Buffer) PutArray(data []byte) error {
	if len(data) > 0xFFFF {
		return flintdb.New(flintdb.KindRowBytesExceeded, "buffer.PutArray", "array exceeds u16 length")
	}
	if err := b.PutU16(uint16(len(data))); err != nil {
		return err
	}
	if err := b.checkPut(len(data)); err != nil {
		return err
	}
	copy(b.data[b.pos:], data)
	b.pos += len(data)
	return nil
}

// GetArray reads a u16-length-prefixed byte slice. The returned slice
// aliases the buffer's backing array (zero-copy); callers that need it
// to outlive the buffer's lifetime must copy it themselves.
func (b *Buffer) GetArray() ([]byte, error) {
	n, err := b.GetU16()
	if err != nil {
		return nil, err
	}
	if err := b.checkGet(int(n)); err != nil {
		return nil, err
	}
	out := b.data[b.pos : b.pos+int(n)]
	b.pos += int(n)
	return out, nil
}

// PutFixed writes exactly len(data) bytes with no length prefix, zero
// padding up to width if data is shorter, matching the row codec's
// "zero-pad to declared width" rule for fixed-width variable-typed
// columns.
func (b *Buffer) PutFixed(data []byte, width int) error {
	if len(data) > width {
		return flintdb.New(flintdb.KindRowBytesExceeded, "buffer.PutFixed", "value exceeds declared width")
	}
	if err := b.checkPut(width); err != nil {
		return err
	}
	n := copy(b.data[b.pos:b.pos+width], data)
	for i := n; i < width; i++ {
		b.data[b.pos+i] = 0
	}
	b.pos += width
	return nil
}

// GetFixed reads exactly width bytes verbatim (no length interpretation).
func (b *Buffer) GetFixed(width int) ([]byte, error) {
	if err := b.checkGet(width); err != nil {
		return nil, err
	}
	out := b.data[b.pos : b.pos+width]
	b.pos += width
	return out, nil
}

// Slice returns a zero-copy sub-buffer over [offset, offset+length) of
// the backing array. The returned Buffer's lifetime is bounded by the
// parent: it is a borrowed view, never an owning copy.
func (b *Buffer) Slice(offset, length int) (*Buffer, error) {
	if offset < 0 || length < 0 || offset+length > len(b.data) {
		return nil, flintdb.New(flintdb.KindBufferOverflow, "buffer.Slice", "slice out of range")
	}
	return New(b.data[offset : offset+length]), nil
}
