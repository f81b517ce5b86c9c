package wal

import (
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/flintdb/flintdb"
)

// CheckpointMode selects how Checkpoint reclaims log space once the
// owning table's heap and indexes are durable as of the checkpoint.
type CheckpointMode int

const (
	// CheckpointLog appends a CHECKPOINT marker but keeps prior
	// records on disk, for tooling (wal-dump) that wants full history.
	CheckpointLog CheckpointMode = iota
	// CheckpointTruncate discards everything before the checkpoint,
	// resetting the file to just its header; the marker is discarded
	// along with the records before it.
	CheckpointTruncate
)

// Checkpoint records that all mutations up to the log's current LSN
// are durably reflected in the owning table's heap and indexes.
// refresh is run concurrently with appending the CHECKPOINT marker (via
// errgroup) — it is the table layer's hook to flush its block storage
// and B+Tree pages. Once both finish the log is fsynced and then
// (optionally) truncated.
func (l *Log) Checkpoint(mode CheckpointMode, refresh func() error) error {
	var g errgroup.Group
	g.Go(func() error {
		return l.Append(Record{Type: RecCheckpoint, CheckpointLSN: l.LSN()})
	})
	if refresh != nil {
		g.Go(refresh)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := l.Sync(); err != nil {
		return err
	}

	if mode != CheckpointTruncate {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Truncate(headerSize); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.Checkpoint", err)
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.Checkpoint", err)
	}
	l.nextLSN = headerSize
	l.pending = l.pending[:0]
	return nil
}
