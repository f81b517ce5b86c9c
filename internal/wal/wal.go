package wal

import (
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/meta"
)

const fileMagic = "FWAL"
const headerSize = 32

// ApplyFunc is invoked once per replayed record during Recover, in log
// order, so the table layer can bring its heap/index state back up to
// date. Returning an error aborts recovery.
type ApplyFunc func(r Record) error

// Log is an append-only, checksum-framed transaction journal.
type Log struct {
	mu sync.Mutex

	file    *os.File
	path    string
	opts    meta.WALOptions
	nextLSN int64

	pending []byte // batched, not-yet-flushed record bytes
	txSeq   uint64
}

// Open opens or creates a WAL file at path. If the file is new, a
// header is written; otherwise Open does not itself replay records —
// call Recover for that once the owning table's heap is ready to
// receive replayed mutations.
func Open(path string, opts meta.WALOptions) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "wal.Open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, flintdb.Wrap(flintdb.KindIoError, "wal.Open", err)
	}
	l := &Log{file: f, path: path, opts: opts}
	if info.Size() == 0 {
		if err := l.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		l.nextLSN = headerSize
		return l, nil
	}
	l.nextLSN = info.Size()
	return l, nil
}

func (l *Log) writeHeader() error {
	var buf [headerSize]byte
	copy(buf[0:4], fileMagic)
	if _, err := l.file.WriteAt(buf[:], 0); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.writeHeader", err)
	}
	return nil
}

// NextTxID allocates a new transaction identifier.
func (l *Log) NextTxID() uint64 { return atomic.AddUint64(&l.txSeq, 1) }

// Append writes one record. Small records (below DirectWriteSize) are
// batched in memory and flushed together; records at or above the
// threshold bypass the batch and are written immediately via pwrite,
// the "direct-write escape hatch" that keeps one oversized row from
// holding up every other transaction's batched commit.
func (l *Log) Append(r Record) error {
	enc, err := encode(r)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(enc) >= l.opts.DirectWriteSize && l.opts.DirectWriteSize > 0 {
		if err := l.flushLocked(); err != nil {
			return err
		}
		return l.directWriteLocked(enc)
	}

	l.pending = append(l.pending, enc...)
	if len(l.pending) >= l.opts.BatchSize && l.opts.BatchSize > 0 {
		if err := l.flushLocked(); err != nil {
			return err
		}
	}
	if r.Type == RecCommit && l.opts.Sync != meta.SyncOff {
		if err := l.flushLocked(); err != nil {
			return err
		}
		return l.syncLocked()
	}
	if l.opts.Sync == meta.SyncFull {
		if err := l.flushLocked(); err != nil {
			return err
		}
		return l.syncLocked()
	}
	return nil
}

func (l *Log) directWriteLocked(enc []byte) error {
	if _, err := unix.Pwrite(int(l.file.Fd()), enc, l.nextLSN); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.Append", err)
	}
	l.nextLSN += int64(len(enc))
	if l.opts.Sync != meta.SyncOff {
		return l.syncLocked()
	}
	return nil
}

func (l *Log) flushLocked() error {
	if len(l.pending) == 0 {
		return nil
	}
	if _, err := unix.Pwrite(int(l.file.Fd()), l.pending, l.nextLSN); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.flush", err)
	}
	l.nextLSN += int64(len(l.pending))
	l.pending = l.pending[:0]
	return nil
}

func (l *Log) syncLocked() error {
	if err := l.file.Sync(); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.Sync", err)
	}
	return nil
}

// Flush forces any batched records out to the file without fsync.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Sync forces a durable flush of batched records and an fsync.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(); err != nil {
		return err
	}
	return l.syncLocked()
}

// LSN returns the current end-of-log offset.
func (l *Log) LSN() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextLSN
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	if err := l.Sync(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.Close", err)
	}
	return nil
}
