// Package block implements FlintDB's block storage layer: a flat heap
// file of fixed-size blocks with a free list for
// reclaimed slots, read either through a pread-style call or through
// an mmap window. The header (signature, version, block size and
// block count) is read once at open. The free list is held in memory
// only: it starts empty on every Open and the header's free counter
// is not updated, so slots freed before a close are not reused after
// a reopen.
package block

import (
	"encoding/binary"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/flintdb/flintdb"
)

// Signature identifies a FlintDB heap file, written at byte 0.
var Signature = [4]byte{'I', 'T', 'B', 'L'}

const (
	headerSize    = 32
	formatVersion = 1
)

// Header is the heap file's fixed leading record.
type Header struct {
	Version     uint32
	BlockSize   uint32
	BlockCount  uint32
	FreeCount   uint32
	ManagedByWAL bool
}

func (h Header) encode() [headerSize]byte {
	var buf [headerSize]byte
	copy(buf[0:4], Signature[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.BlockSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.BlockCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.FreeCount)
	if h.ManagedByWAL {
		buf[20] = 1
	}
	return buf
}

func decodeHeader(buf [headerSize]byte) (Header, error) {
	if [4]byte(buf[0:4]) != Signature {
		return Header{}, flintdb.New(flintdb.KindIoError, "block.Open", "bad heap file signature")
	}
	return Header{
		Version:      binary.LittleEndian.Uint32(buf[4:8]),
		BlockSize:    binary.LittleEndian.Uint32(buf[8:12]),
		BlockCount:   binary.LittleEndian.Uint32(buf[12:16]),
		FreeCount:    binary.LittleEndian.Uint32(buf[16:20]),
		ManagedByWAL: buf[20] == 1,
	}, nil
}

// Storage is a fixed-size-block heap file with free-slot reuse. It is
// safe for concurrent use; callers needing transactional durability
// wrap it with internal/wal rather than writing directly while
// ManagedByWAL is set.
type Storage struct {
	mu sync.Mutex

	file      *os.File
	path      string
	blockSize int64
	increment int64

	blockCount int64
	freeList   []int64 // reclaimed block IDs available for reuse

	mmapData []byte // present once Mmap has been called
}

// offsetOf is the byte offset of block id within the file.
func (s *Storage) offsetOf(id int64) int64 { return headerSize + id*s.blockSize }

// Open opens or creates a heap file at path with the given fixed block
// size and growth increment. managedByWAL marks the heap as only
// mutable through a WAL-wrapped write path; direct Write/WriteAt calls
// on such a Storage are still permitted (the WAL layer calls into this
// package), but a standalone caller should check ManagedByWAL first.
func Open(path string, blockSize, increment int64, managedByWAL bool) (*Storage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "block.Open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, flintdb.Wrap(flintdb.KindIoError, "block.Open", err)
	}

	s := &Storage{file: f, path: path, blockSize: blockSize, increment: increment}

	if info.Size() == 0 {
		h := Header{Version: formatVersion, BlockSize: uint32(blockSize), ManagedByWAL: managedByWAL}
		enc := h.encode()
		if _, err := f.WriteAt(enc[:], 0); err != nil {
			f.Close()
			return nil, flintdb.Wrap(flintdb.KindIoError, "block.Open", err)
		}
		return s, nil
	}

	var buf [headerSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		f.Close()
		return nil, flintdb.Wrap(flintdb.KindIoError, "block.Open", err)
	}
	h, err := decodeHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.blockSize = int64(h.BlockSize)
	s.blockCount = int64(h.BlockCount)
	return s, nil
}

func (s *Storage) Path() string      { return s.path }
func (s *Storage) BlockSize() int64  { return s.blockSize }
func (s *Storage) BlockCount() int64 { return s.blockCount }

func (s *Storage) writeBlockCount() error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(s.blockCount))
	_, err := s.file.WriteAt(buf[:], 12)
	return err
}

// Write appends data (padded/truncated to blockSize) into a free slot
// if one is available, else at the end of the file. It returns the
// new block's id.
func (s *Storage) Write(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	if n := len(s.freeList); n > 0 {
		id = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
	} else {
		id = s.blockCount
		s.blockCount++
		if err := s.writeBlockCount(); err != nil {
			return 0, flintdb.Wrap(flintdb.KindIoError, "block.Write", err)
		}
	}
	if err := s.writeAtLocked(id, data); err != nil {
		return 0, err
	}
	return id, nil
}

// WriteAt overwrites the block at id in place.
func (s *Storage) WriteAt(id int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtLocked(id, data)
}

func (s *Storage) writeAtLocked(id int64, data []byte) error {
	if int64(len(data)) > s.blockSize {
		return flintdb.New(flintdb.KindRowBytesExceeded, "block.Write", "payload exceeds block size")
	}
	if err := s.growIfNeeded(s.offsetOf(id) + s.blockSize); err != nil {
		return err
	}
	padded := make([]byte, s.blockSize)
	copy(padded, data)
	if _, err := unix.Pwrite(int(s.file.Fd()), padded, s.offsetOf(id)); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.Write", err)
	}
	return nil
}

// growIfNeeded extends the file to the next BlockIncrement boundary at
// or beyond need, so successive block writes amortize the cost of
// extending the underlying file across many blocks instead of growing
// one block at a time.
func (s *Storage) growIfNeeded(need int64) error {
	if s.increment <= 0 {
		return nil
	}
	info, err := s.file.Stat()
	if err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.grow", err)
	}
	if info.Size() >= need {
		return nil
	}
	target := ((need + s.increment - 1) / s.increment) * s.increment
	if err := s.file.Truncate(target); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.grow", err)
	}
	return nil
}

// Read returns a copy of the block at id. A block on the free list
// (deleted and not yet reused) is NotFound.
func (s *Storage) Read(id int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= s.blockCount {
		return nil, flintdb.New(flintdb.KindNotFound, "block.Read", "block id out of range")
	}
	for _, free := range s.freeList {
		if free == id {
			return nil, flintdb.New(flintdb.KindNotFound, "block.Read", "block id is deleted")
		}
	}
	buf := make([]byte, s.blockSize)
	if _, err := s.file.ReadAt(buf, s.offsetOf(id)); err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "block.Read", err)
	}
	return buf, nil
}

// BytesGet returns a view over the block at id, served from the mmap
// window when one is active (zero-copy) or from a fresh Read otherwise.
func (s *Storage) BytesGet(id int64) ([]byte, error) {
	s.mu.Lock()
	mapped := s.mmapData
	s.mu.Unlock()
	if mapped == nil {
		return s.Read(id)
	}
	off := s.offsetOf(id)
	if off+s.blockSize > int64(len(mapped)) {
		return s.Read(id)
	}
	return mapped[off : off+s.blockSize], nil
}

// Delete reclaims block id onto the free list for future reuse.
func (s *Storage) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= s.blockCount {
		return flintdb.New(flintdb.KindNotFound, "block.Delete", "block id out of range")
	}
	s.freeList = append(s.freeList, id)
	return nil
}

// Mmap maps the whole file read-only for zero-copy BytesGet access.
// Callers must call Unmap (or Close) before the file grows further,
// matching the "mmap windows may not be resized" contract the codec
// layer relies on.
func (s *Storage) Mmap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := s.file.Stat()
	if err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.Mmap", err)
	}
	if info.Size() == 0 {
		return nil
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.Mmap", err)
	}
	s.mmapData = data
	return nil
}

// Unmap releases the mmap window established by Mmap, if any.
func (s *Storage) Unmap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mmapData == nil {
		return nil
	}
	err := unix.Munmap(s.mmapData)
	s.mmapData = nil
	if err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.Unmap", err)
	}
	return nil
}

// Sync flushes file metadata and data to stable storage.
func (s *Storage) Sync() error {
	if err := s.file.Sync(); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.Sync", err)
	}
	return nil
}

// Close unmaps (if mapped) and closes the underlying file.
func (s *Storage) Close() error {
	_ = s.Unmap()
	if err := s.file.Close(); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "block.Close", err)
	}
	return nil
}
