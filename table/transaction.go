package table

import (
	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
	"github.com/flintdb/flintdb/internal/wal"
)

// Transaction groups several mutations into one WAL-committed unit.
// Begin acquires the table's exclusive lock for the duration of the
// transaction; Commit and Rollback both release it. Requires a WAL-
// enabled table (RDWR with WALMode log).
type Transaction struct {
	t      *Table
	walTx  *wal.Transaction
	closed bool
}

// Begin starts a transaction against t, blocking until any other
// mutator (or transaction) on t has finished.
func (t *Table) Begin() (*Transaction, error) {
	if t.mode != RDWR {
		return nil, flintdb.New(flintdb.KindUnsupported, "table.Begin", "table was opened RDONLY")
	}
	if t.wal == nil {
		return nil, flintdb.New(flintdb.KindUnsupported, "table.Begin", "table was not opened with WAL enabled")
	}
	t.mu.Lock()

	walTx, err := wal.Begin(t.wal)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.beginCapture(walTx)
	return &Transaction{t: t, walTx: walTx}, nil
}

func (tx *Transaction) checkOpen(op string) error {
	if tx.closed {
		return flintdb.New(flintdb.KindTransactionState, op, "transaction is already closed")
	}
	return nil
}

// Validate reports whether the transaction is still open for
// mutation.
func (tx *Transaction) Validate() error { return tx.checkOpen("table.Transaction.Validate") }

// Apply performs an insert-or-upsert within the transaction, without
// committing it.
func (tx *Transaction) Apply(values []variant.Variant, upsert bool) (int64, error) {
	if err := tx.checkOpen("table.Transaction.Apply"); err != nil {
		return 0, err
	}
	return tx.t.mutateApply(tx.walTx, values, upsert)
}

// ApplyAt forces a write at rowID within the transaction.
func (tx *Transaction) ApplyAt(rowID int64, values []variant.Variant) error {
	if err := tx.checkOpen("table.Transaction.ApplyAt"); err != nil {
		return err
	}
	return tx.t.mutateApplyAt(tx.walTx, rowID, values)
}

// DeleteAt removes rowID within the transaction.
func (tx *Transaction) DeleteAt(rowID int64) error {
	if err := tx.checkOpen("table.Transaction.DeleteAt"); err != nil {
		return err
	}
	return tx.t.mutateDeleteAt(tx.walTx, rowID)
}

// Read is a convenience pass-through to the owning table's Read,
// usable mid-transaction since the table lock is already held by this
// goroutine.
func (tx *Transaction) Read(rowID int64) (*row.Row, error) {
	return tx.t.decodeAt(rowID)
}

// Commit flushes every index's metadata page and then durably commits
// the underlying WAL transaction, releasing the table lock.
func (tx *Transaction) Commit() error {
	if err := tx.checkOpen("table.Transaction.Commit"); err != nil {
		return err
	}
	defer func() {
		tx.closed = true
		tx.t.mu.Unlock()
	}()
	for _, tree := range tx.t.indexes {
		if err := tree.FlushMeta(); err != nil {
			tx.t.abortWAL(tx.walTx)
			return err
		}
	}
	tx.t.endCapture()
	return tx.walTx.Commit()
}

// Rollback rewinds the WAL transaction, clears the row cache (staged
// reads during the transaction may no longer be valid), and undoes
// every index page this transaction wrote, restoring each tree's root
// pointer and live-key count from the pages it finds itself written
// back to. Pages allocated fresh during the transaction (splits) are
// not reclaimed and become unreachable garbage once their parent is
// restored, the same trade-off btree.Delete makes.
func (tx *Transaction) Rollback() error {
	if err := tx.checkOpen("table.Transaction.Rollback"); err != nil {
		return err
	}
	defer func() {
		tx.closed = true
		tx.t.mu.Unlock()
	}()
	if err := tx.t.rollbackCapture(); err != nil {
		return err
	}
	tx.t.cache.InvalidateAll()
	return tx.walTx.Rollback()
}

// Close rolls back an uncommitted transaction; it is a no-op once the
// transaction has already been committed or rolled back.
func (tx *Transaction) Close() error {
	if tx.closed {
		return nil
	}
	return tx.Rollback()
}
