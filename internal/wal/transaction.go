package wal

import "github.com/flintdb/flintdb"

// TxState tracks a Transaction's position in its lifecycle.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

// Transaction buffers one logical unit of work against a Log. Begin
// allocates the transaction id and writes its BEGIN record; Insert/
// Update/Delete append typed mutation records; Commit or Rollback ends
// it. Calling any mutation method after Commit/Rollback is a
// TransactionState error.
type Transaction struct {
	log   *Log
	id    uint64
	state TxState
}

// Begin starts a new transaction against log.
func Begin(log *Log) (*Transaction, error) {
	tx := &Transaction{log: log, id: log.NextTxID(), state: TxActive}
	if err := log.Append(Record{Type: RecBegin, TxID: tx.id}); err != nil {
		return nil, err
	}
	return tx, nil
}

// ID returns the transaction's identifier.
func (tx *Transaction) ID() uint64 { return tx.id }

func (tx *Transaction) checkActive(op string) error {
	if tx.state != TxActive {
		return flintdb.New(flintdb.KindTransactionState, op, "transaction is not active")
	}
	return nil
}

// Insert records a new row's image.
func (tx *Transaction) Insert(table string, rowID int64, newImage []byte) error {
	if err := tx.checkActive("wal.Transaction.Insert"); err != nil {
		return err
	}
	return tx.log.Append(Record{Type: RecInsert, TxID: tx.id, Table: table, RowID: rowID, NewImage: newImage})
}

// Update records a row mutation. oldImage is the pre-update page
// image, captured so Rollback (or crash recovery before commit) can
// restore it; it may be nil.
func (tx *Transaction) Update(table string, rowID int64, oldImage, newImage []byte) error {
	if err := tx.checkActive("wal.Transaction.Update"); err != nil {
		return err
	}
	return tx.log.Append(Record{Type: RecUpdate, TxID: tx.id, Table: table, RowID: rowID, OldImage: oldImage, NewImage: newImage})
}

// Delete records a row removal, with its pre-delete image for undo.
func (tx *Transaction) Delete(table string, rowID int64, oldImage []byte) error {
	if err := tx.checkActive("wal.Transaction.Delete"); err != nil {
		return err
	}
	return tx.log.Append(Record{Type: RecDelete, TxID: tx.id, Table: table, RowID: rowID, OldImage: oldImage})
}

// IndexPage records pageID's pre-mutation bytes from indexName's
// B+Tree, the first time this transaction overwrites that page. It is
// an undo-only record: Recover never replays it forward on commit,
// only to unwind a transaction that is rolled back or never reaches a
// commit marker before the log ends.
func (tx *Transaction) IndexPage(indexName string, pageID int64, oldImage []byte) error {
	if err := tx.checkActive("wal.Transaction.IndexPage"); err != nil {
		return err
	}
	return tx.log.Append(Record{Type: RecIndexPage, TxID: tx.id, IndexName: indexName, PageID: pageID, OldImage: oldImage})
}

// Commit durably closes the transaction.
func (tx *Transaction) Commit() error {
	if err := tx.checkActive("wal.Transaction.Commit"); err != nil {
		return err
	}
	if err := tx.log.Append(Record{Type: RecCommit, TxID: tx.id}); err != nil {
		return err
	}
	tx.state = TxCommitted
	return nil
}

// Rollback abandons the transaction; none of its records are replayed
// during recovery once the ROLLBACK marker is written.
func (tx *Transaction) Rollback() error {
	if err := tx.checkActive("wal.Transaction.Rollback"); err != nil {
		return err
	}
	if err := tx.log.Append(Record{Type: RecRollback, TxID: tx.id}); err != nil {
		return err
	}
	tx.state = TxRolledBack
	return nil
}

// Close is a convenience for deferred cleanup: it rolls back an
// active transaction, and is a no-op for one already committed or
// rolled back.
func (tx *Transaction) Close() error {
	if tx.state != TxActive {
		return nil
	}
	return tx.Rollback()
}
