package wal

import (
	"io"
	"os"

	"github.com/flintdb/flintdb"
)

// Recover reads every record from path in order and replays committed
// transactions through apply. Records belonging to a transaction that
// never reaches a COMMIT record before end-of-log (a torn write from a
// crash mid-transaction) are buffered and discarded rather than
// applied, matching undo-on-crash semantics: only durable (committed)
// work survives.
func Recover(path string, apply ApplyFunc) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.Recover", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return flintdb.Wrap(flintdb.KindIoError, "wal.Recover", err)
	}
	if len(data) < headerSize || string(data[0:4]) != fileMagic {
		if len(data) == 0 {
			return nil
		}
		return flintdb.New(flintdb.KindWalCorrupted, "wal.Recover", "bad WAL header")
	}

	pending := make(map[uint64][]Record)
	offset := headerSize
	for offset < len(data) {
		r, n, err := decode(data[offset:])
		if err != nil {
			// A partially written trailing record at the tail of the
			// log is expected after a crash; stop replay there.
			break
		}
		offset += n

		switch r.Type {
		case RecCommit:
			for _, buffered := range pending[r.TxID] {
				// RecIndexPage is undo-only bookkeeping for a
				// transaction that does not reach this point: the
				// page it describes is already correct on disk from
				// the eager write that produced it, so re-applying
				// its pre-image here would undo a committed change.
				if buffered.Type == RecIndexPage {
					continue
				}
				if err := apply(buffered); err != nil {
					return err
				}
			}
			delete(pending, r.TxID)
		case RecRollback:
			if err := undoIndexPages(pending[r.TxID], apply); err != nil {
				return err
			}
			delete(pending, r.TxID)
		case RecCheckpoint:
			pending = make(map[uint64][]Record)
		case RecBegin:
			// BEGIN only opens the transaction; there is nothing to apply.
		default:
			pending[r.TxID] = append(pending[r.TxID], r)
		}
	}

	// Transactions still buffered at end-of-log crashed before writing
	// either a COMMIT or ROLLBACK marker; their torn index page writes
	// are undone the same way an explicit rollback's would be. Row
	// images for these transactions are simply never applied, matching
	// the existing undo-on-crash semantics for heap data.
	for _, buffered := range pending {
		if err := undoIndexPages(buffered, apply); err != nil {
			return err
		}
	}
	return nil
}

// undoIndexPages applies only the RecIndexPage entries in records,
// restoring each page to its pre-transaction bytes.
func undoIndexPages(records []Record, apply ApplyFunc) error {
	for _, r := range records {
		if r.Type != RecIndexPage {
			continue
		}
		if err := apply(r); err != nil {
			return err
		}
	}
	return nil
}
