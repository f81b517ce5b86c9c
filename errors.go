// Package flintdb is the root of the FlintDB embedded storage engine.
// It defines the error taxonomy shared by every internal component;
// the storage core itself lives in the table and internal/* packages.
package flintdb

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind enumerates the tagged error sum described in the storage
// core's error handling design. Every fallible operation in FlintDB
// returns a *Error carrying one of these kinds, so callers can branch
// on Kind() rather than parsing messages.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindOutOfMemory
	KindIoError
	KindBufferOverflow
	KindColumnMismatch
	KindRowBytesExceeded
	KindTypeMismatch
	KindInvalidDecimal
	KindDuplicateKey
	KindNotFound
	KindIndexMissing
	KindUnsupported
	KindWalCorrupted
	KindTransactionState
)

func (k ErrorKind) String() string {
	switch k {
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindIoError:
		return "IoError"
	case KindBufferOverflow:
		return "BufferOverflow"
	case KindColumnMismatch:
		return "ColumnMismatch"
	case KindRowBytesExceeded:
		return "RowBytesExceeded"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindInvalidDecimal:
		return "InvalidDecimal"
	case KindDuplicateKey:
		return "DuplicateKey"
	case KindNotFound:
		return "NotFound"
	case KindIndexMissing:
		return "IndexMissing"
	case KindUnsupported:
		return "Unsupported"
	case KindWalCorrupted:
		return "WalCorrupted"
	case KindTransactionState:
		return "TransactionState"
	default:
		return "Unknown"
	}
}

// Error is FlintDB's tagged error sum. It wraps an optional underlying
// cause (I/O errors, parse errors) without losing the Kind a caller
// needs to decide how to react.
type Error struct {
	Kind    ErrorKind
	Op      string // component/operation that raised it, e.g. "block.write"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, flintdb.ErrNotFound) style sentinel checks
// to match on Kind alone, ignoring Op/Message/Cause.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// New builds a *Error and attaches a stack trace via pkg/errors so the
// first detection point of a leaf failure (buffer, codec, storage,
// WAL) survives unchanged propagation up through the table layer.
func New(kind ErrorKind, op, message string) error {
	return errors.WithStack(&Error{Kind: kind, Op: op, Message: message})
}

// Wrap attaches kind/op context to an underlying error (typically from
// the OS or a lower layer) while preserving it as Cause.
func Wrap(kind ErrorKind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Op: op, Message: cause.Error(), Cause: cause})
}

// KindOf extracts the ErrorKind from err, walking Unwrap/Cause chains.
// Returns KindUnknown if err does not originate from this package.
func KindOf(err error) ErrorKind {
	var fe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			fe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if fe == nil {
		return KindUnknown
	}
	return fe.Kind
}

// Sentinels usable with errors.Is for the common terminal kinds.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrDuplicateKey      = &Error{Kind: KindDuplicateKey}
	ErrBufferOverflow    = &Error{Kind: KindBufferOverflow}
	ErrColumnMismatch    = &Error{Kind: KindColumnMismatch}
	ErrRowBytesExceeded  = &Error{Kind: KindRowBytesExceeded}
	ErrTypeMismatch      = &Error{Kind: KindTypeMismatch}
	ErrInvalidDecimal    = &Error{Kind: KindInvalidDecimal}
	ErrIndexMissing      = &Error{Kind: KindIndexMissing}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
	ErrWalCorrupted      = &Error{Kind: KindWalCorrupted}
	ErrTransactionState  = &Error{Kind: KindTransactionState}
)

// NotFound is the inline sentinel rowid used throughout the storage
// core where returning an error for "absent" would be noise (e.g.
// B+Tree compare_get probes during an insert-or-upsert check).
const NotFound int64 = -1
