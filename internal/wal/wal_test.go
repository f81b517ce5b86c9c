package wal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/meta"
)

func openLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.wal")
	opts := meta.DefaultWALOptions()
	opts.BatchSize = 64
	opts.DirectWriteSize = 1 << 16
	l, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestCommittedTransactionReplays(t *testing.T) {
	l, path := openLog(t)
	tx, err := Begin(l)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("widgets", 1, []byte("row-1")))
	require.NoError(t, tx.Insert("widgets", 2, []byte("row-2")))
	require.NoError(t, tx.Commit())
	require.NoError(t, l.Sync())

	var replayed []Record
	require.NoError(t, Recover(path, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Len(t, replayed, 2)
	require.Equal(t, int64(1), replayed[0].RowID)
	require.Equal(t, "row-2", string(replayed[1].NewImage))
}

func TestRolledBackTransactionDoesNotReplay(t *testing.T) {
	l, path := openLog(t)
	tx, err := Begin(l)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("widgets", 1, []byte("row-1")))
	require.NoError(t, tx.Rollback())
	require.NoError(t, l.Sync())

	var replayed []Record
	require.NoError(t, Recover(path, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Empty(t, replayed)
}

func TestUncommittedTailIsDiscarded(t *testing.T) {
	l, path := openLog(t)
	tx, err := Begin(l)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("widgets", 1, []byte("row-1")))
	require.NoError(t, l.Flush())
	// No commit/rollback — simulates a crash mid-transaction.

	var replayed []Record
	require.NoError(t, Recover(path, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Empty(t, replayed)
}

func TestMutationAfterCommitFails(t *testing.T) {
	l, _ := openLog(t)
	tx, err := Begin(l)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Error(t, tx.Insert("widgets", 1, []byte("x")))
}

func TestCheckpointTruncateResetsLog(t *testing.T) {
	l, path := openLog(t)
	tx, err := Begin(l)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("widgets", 1, []byte("row-1")))
	require.NoError(t, tx.Commit())

	require.NoError(t, l.Checkpoint(CheckpointTruncate, func() error { return nil }))

	var replayed []Record
	require.NoError(t, Recover(path, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Empty(t, replayed)
}

func TestUpdateAndDeleteCarryOldImage(t *testing.T) {
	l, path := openLog(t)
	tx, err := Begin(l)
	require.NoError(t, err)
	require.NoError(t, tx.Update("widgets", 1, []byte("old"), []byte("new")))
	require.NoError(t, tx.Delete("widgets", 1, []byte("new")))
	require.NoError(t, tx.Commit())
	require.NoError(t, l.Sync())

	var replayed []Record
	require.NoError(t, Recover(path, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Len(t, replayed, 2)
	require.Equal(t, "old", string(replayed[0].OldImage))
	require.Equal(t, "new", string(replayed[1].OldImage))
}
