// Package wal implements FlintDB's write-ahead log: a
// transaction-framed, checksum-protected append log that the table
// layer replays after an unclean shutdown. Record framing is a
// length-prefixed header followed by a typed payload.
package wal

import (
	"hash/crc32"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/buffer"
)

// RecordType tags a WAL record's payload shape.
type RecordType uint8

const (
	RecBegin RecordType = iota + 1
	RecInsert
	RecUpdate
	RecDelete
	RecCommit
	RecRollback
	RecCheckpoint
	RecIndexPage
)

func (t RecordType) String() string {
	switch t {
	case RecBegin:
		return "BEGIN"
	case RecInsert:
		return "INSERT"
	case RecUpdate:
		return "UPDATE"
	case RecDelete:
		return "DELETE"
	case RecCommit:
		return "COMMIT"
	case RecRollback:
		return "ROLLBACK"
	case RecCheckpoint:
		return "CHECKPOINT"
	case RecIndexPage:
		return "INDEX_PAGE"
	default:
		return "UNKNOWN"
	}
}

// crcTable is the Castagnoli (CRC32C) polynomial table, the checksum
// spec.md's WAL open question resolves on — the same variant widely
// used for storage-log checksums (e.g. iSCSI, ext4 metadata).
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Record is one logical WAL entry. Table/RowID/OldImage/NewImage are
// populated according to Type; OldImage is the pre-image the table
// layer captures for every UPDATE/DELETE, whether or not the owning
// table's WALOptions.PageImage is set. IndexName/PageID/OldImage carry an index B+Tree page's
// pre-mutation bytes for RecIndexPage, an undo-only record: it is never
// replayed forward on commit, only applied to unwind a transaction that
// is rolled back or never reaches a commit marker.
type Record struct {
	Type          RecordType
	TxID          uint64
	Table         string
	RowID         int64
	OldImage      []byte
	NewImage      []byte
	CheckpointLSN int64
	IndexName     string
	PageID        int64
}

// bodyCapacity upper-bounds the encoded payload size for r so encode
// can allocate a buffer guaranteed not to overflow mid-write.
func bodyCapacity(r Record) int {
	return 1 + 8 + 2 + len(r.Table) + 8 + 2 + len(r.OldImage) + 2 + len(r.NewImage) + 8 + 16 + 2 + len(r.IndexName) + 8
}

// encode serializes r as a self-contained framed record:
//
//	u32 bodyLen | u8 type | u64 txID | payload... | u32 crc32c
//
// bodyLen and crc32c both cover everything from type through the end
// of payload.
func encode(r Record) ([]byte, error) {
	body := buffer.Make(bodyCapacity(r))
	if err := body.PutU8(uint8(r.Type)); err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
	}
	if err := body.PutU64(r.TxID); err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
	}
	switch r.Type {
	case RecInsert, RecUpdate, RecDelete:
		if err := body.PutArray([]byte(r.Table)); err != nil {
			return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
		}
		if err := body.PutI64(r.RowID); err != nil {
			return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
		}
		if r.Type != RecInsert {
			if err := body.PutArray(r.OldImage); err != nil {
				return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
			}
		}
		if r.Type != RecDelete {
			if err := body.PutArray(r.NewImage); err != nil {
				return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
			}
		}
	case RecCheckpoint:
		if err := body.PutI64(r.CheckpointLSN); err != nil {
			return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
		}
	case RecIndexPage:
		if err := body.PutArray([]byte(r.IndexName)); err != nil {
			return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
		}
		if err := body.PutI64(r.PageID); err != nil {
			return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
		}
		if err := body.PutArray(r.OldImage); err != nil {
			return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
		}
	}

	payload := body.Written()
	crc := crc32.Checksum(payload, crcTable)

	out := buffer.Make(4 + len(payload) + 4)
	if err := out.PutU32(uint32(len(payload))); err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
	}
	if err := out.PutFixed(payload, len(payload)); err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
	}
	if err := out.PutU32(crc); err != nil {
		return nil, flintdb.Wrap(flintdb.KindIoError, "wal.encode", err)
	}
	return out.Written(), nil
}

// decode parses one framed record starting at the beginning of raw,
// returning the record and the number of bytes consumed.
func decode(raw []byte) (Record, int, error) {
	if len(raw) < 4 {
		return Record{}, 0, flintdb.New(flintdb.KindWalCorrupted, "wal.decode", "truncated length prefix")
	}
	head := buffer.New(raw)
	payloadLen, err := head.GetU32()
	if err != nil {
		return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
	}
	total := 4 + int(payloadLen) + 4
	if len(raw) < total {
		return Record{}, 0, flintdb.New(flintdb.KindWalCorrupted, "wal.decode", "truncated record")
	}
	payload := raw[4 : 4+int(payloadLen)]
	wantCRC, err := buffer.New(raw[4+int(payloadLen):]).GetU32()
	if err != nil {
		return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
	}
	if gotCRC := crc32.Checksum(payload, crcTable); gotCRC != wantCRC {
		return Record{}, 0, flintdb.New(flintdb.KindWalCorrupted, "wal.decode", "checksum mismatch")
	}

	buf := buffer.New(payload)
	typ, err := buf.GetU8()
	if err != nil {
		return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
	}
	txID, err := buf.GetU64()
	if err != nil {
		return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
	}
	r := Record{Type: RecordType(typ), TxID: txID}
	switch r.Type {
	case RecInsert, RecUpdate, RecDelete:
		table, err := buf.GetArray()
		if err != nil {
			return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
		}
		r.Table = string(table)
		rowID, err := buf.GetI64()
		if err != nil {
			return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
		}
		r.RowID = rowID
		if r.Type != RecInsert {
			old, err := buf.GetArray()
			if err != nil {
				return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
			}
			r.OldImage = old
		}
		if r.Type != RecDelete {
			n, err := buf.GetArray()
			if err != nil {
				return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
			}
			r.NewImage = n
		}
	case RecCheckpoint:
		lsn, err := buf.GetI64()
		if err != nil {
			return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
		}
		r.CheckpointLSN = lsn
	case RecIndexPage:
		name, err := buf.GetArray()
		if err != nil {
			return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
		}
		r.IndexName = string(name)
		pageID, err := buf.GetI64()
		if err != nil {
			return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
		}
		r.PageID = pageID
		old, err := buf.GetArray()
		if err != nil {
			return Record{}, 0, flintdb.Wrap(flintdb.KindWalCorrupted, "wal.decode", err)
		}
		r.OldImage = old
	}
	return r, total, nil
}
