// Package variant implements FlintDB's tagged value type: the
// row-level union of null, signed/unsigned integers, floating point,
// strings, bytes, decimal, date, time, uuid, and ipv6 values that the
// row codec (internal/row) reads and writes. Comparisons establish
// the total order the B+Tree comparator and filter evaluator rely on.
package variant

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/decimal"
)

// Tag identifies which payload of a Variant is live.
type Tag uint16

const (
	TagNull Tag = iota
	TagI8
	TagU8
	TagI16
	TagU16
	TagI32
	TagU32
	TagI64
	TagU64
	TagF32
	TagF64
	TagString
	TagBytes
	TagDecimal
	TagDate
	TagTime
	TagUUID
	TagIPv6
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagI8:
		return "i8"
	case TagU8:
		return "u8"
	case TagI16:
		return "i16"
	case TagU16:
		return "u16"
	case TagI32:
		return "i32"
	case TagU32:
		return "u32"
	case TagI64:
		return "i64"
	case TagU64:
		return "u64"
	case TagF32:
		return "f32"
	case TagF64:
		return "f64"
	case TagString:
		return "string"
	case TagBytes:
		return "bytes"
	case TagDecimal:
		return "decimal"
	case TagDate:
		return "date"
	case TagTime:
		return "time"
	case TagUUID:
		return "uuid"
	case TagIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// IsVariableWidth reports whether the tag's encoded payload carries a
// length prefix (string/bytes/decimal), per the row codec layout.
func (t Tag) IsVariableWidth() bool {
	return t == TagString || t == TagBytes || t == TagDecimal
}

// FixedWidth returns the payload width in bytes for fixed-width tags,
// or -1 for variable-width tags (see row codec §4.2).
func (t Tag) FixedWidth() int {
	switch t {
	case TagNull:
		return 0
	case TagI8, TagU8:
		return 1
	case TagI16, TagU16:
		return 2
	case TagI32, TagU32, TagF32:
		return 4
	case TagI64, TagU64, TagF64, TagTime:
		return 8
	case TagDate:
		return 3
	case TagUUID, TagIPv6:
		return 16
	default:
		return -1
	}
}

// UUID is a 16-byte RFC 4122 identifier.
type UUID [16]byte

// Variant is FlintDB's tagged value. Ownership for byte-carrying
// variants (string and bytes) is tracked explicitly
// with Owned: a non-owning Variant holds a reference into a producing
// row's decode buffer and is only valid for that row's lifetime; an
// owning Variant has copied its bytes and may outlive the row.
type Variant struct {
	tag     Tag
	owned   bool
	i       int64   // i8/u8/i16/u16/i32/u32/i64/u64/date/time payload
	f       float64 // f32/f64 payload
	bytes   []byte  // string/bytes payload
	decimal decimal.Decimal
	uuid    UUID
	ip      net.IP // always a 16-byte form for TagIPv6
}

// Null returns the NULL variant.
func Null() Variant { return Variant{tag: TagNull} }

func Int8(v int8) Variant   { return Variant{tag: TagI8, i: int64(v)} }
func Uint8(v uint8) Variant { return Variant{tag: TagU8, i: int64(v)} }
func Int16(v int16) Variant { return Variant{tag: TagI16, i: int64(v)} }
func Uint16(v uint16) Variant {
	return Variant{tag: TagU16, i: int64(v)}
}
func Int32(v int32) Variant { return Variant{tag: TagI32, i: int64(v)} }
func Uint32(v uint32) Variant {
	return Variant{tag: TagU32, i: int64(v)}
}
func Int64(v int64) Variant { return Variant{tag: TagI64, i: v} }
func Uint64(v uint64) Variant {
	return Variant{tag: TagU64, i: int64(v)}
}
func Float32(v float32) Variant { return Variant{tag: TagF32, f: float64(v)} }
func Float64(v float64) Variant { return Variant{tag: TagF64, f: v} }

// String builds an owning string variant (bytes are copied).
func String(v string) Variant {
	return Variant{tag: TagString, bytes: []byte(v), owned: true}
}

// StringRef builds a non-owning string variant that aliases buf.
// Validity is tied to the producing row's decode buffer.
func StringRef(buf []byte) Variant {
	return Variant{tag: TagString, bytes: buf, owned: false}
}

// Bytes builds an owning bytes variant (copies data).
func Bytes(data []byte) Variant {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Variant{tag: TagBytes, bytes: cp, owned: true}
}

// BytesRef builds a non-owning bytes variant aliasing data.
func BytesRef(data []byte) Variant {
	return Variant{tag: TagBytes, bytes: data, owned: false}
}

func Decimal(d decimal.Decimal) Variant { return Variant{tag: TagDecimal, decimal: d} }

// Date stores a day count (days since the epoch), fitting the
// 24-bit on-disk payload of the row codec.
func Date(days int32) Variant { return Variant{tag: TagDate, i: int64(days)} }

// Time stores an i64 time value in whatever unit the caller
// standardizes on; FromTime stores nanoseconds since the Unix epoch.
func Time(v int64) Variant { return Variant{tag: TagTime, i: v} }

func FromTime(t time.Time) Variant { return Time(t.UnixNano()) }

func UUIDValue(u UUID) Variant { return Variant{tag: TagUUID, uuid: u} }

// IPv6 stores an IP address; 4-byte (v4-mapped) addresses are
// normalized to their 16-byte form so on-disk width is fixed.
func IPv6(ip net.IP) Variant {
	return Variant{tag: TagIPv6, ip: ip.To16()}
}

func (v Variant) Tag() Tag     { return v.tag }
func (v Variant) IsNull() bool { return v.tag == TagNull }
func (v Variant) Owned() bool  { return v.owned }

// Own returns a copy of v whose byte-carrying payload (if any) is
// independently owned, safe to retain past the producing row's
// lifetime.
func (v Variant) Own() Variant {
	if v.owned || (v.tag != TagString && v.tag != TagBytes) {
		return v
	}
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	v.bytes = cp
	v.owned = true
	return v
}

func mismatch(op string, tag Tag) error {
	return flintdb.New(flintdb.KindTypeMismatch, op, "variant tag is "+tag.String())
}

func (v Variant) Int64() (int64, error) {
	switch v.tag {
	case TagI8, TagU8, TagI16, TagU16, TagI32, TagU32, TagI64, TagU64, TagDate, TagTime:
		return v.i, nil
	default:
		return 0, mismatch("variant.Int64", v.tag)
	}
}

func (v Variant) Uint64() (uint64, error) {
	switch v.tag {
	case TagU8, TagU16, TagU32, TagU64:
		return uint64(v.i), nil
	default:
		return 0, mismatch("variant.Uint64", v.tag)
	}
}

func (v Variant) Float64() (float64, error) {
	switch v.tag {
	case TagF32, TagF64:
		return v.f, nil
	default:
		return 0, mismatch("variant.Float64", v.tag)
	}
}

func (v Variant) String() (string, error) {
	if v.tag != TagString {
		return "", mismatch("variant.String", v.tag)
	}
	return string(v.bytes), nil
}

func (v Variant) Bytes() ([]byte, error) {
	if v.tag != TagBytes && v.tag != TagString {
		return nil, mismatch("variant.Bytes", v.tag)
	}
	return v.bytes, nil
}

func (v Variant) Decimal() (decimal.Decimal, error) {
	if v.tag != TagDecimal {
		return decimal.Decimal{}, mismatch("variant.Decimal", v.tag)
	}
	return v.decimal, nil
}

func (v Variant) Date() (int32, error) {
	if v.tag != TagDate {
		return 0, mismatch("variant.Date", v.tag)
	}
	return int32(v.i), nil
}

func (v Variant) UUID() (UUID, error) {
	if v.tag != TagUUID {
		return UUID{}, mismatch("variant.UUID", v.tag)
	}
	return v.uuid, nil
}

func (v Variant) IPv6() (net.IP, error) {
	if v.tag != TagIPv6 {
		return nil, mismatch("variant.IPv6", v.tag)
	}
	return v.ip, nil
}

// numericFamily reports whether the tag participates in the numeric
// total order (all integer widths + float + decimal + date + time,
// per spec.md §3 "numeric comparison is total within the numeric
// family").
func numericFamily(t Tag) bool {
	switch t {
	case TagI8, TagU8, TagI16, TagU16, TagI32, TagU32, TagI64, TagU64,
		TagF32, TagF64, TagDecimal, TagDate, TagTime:
		return true
	default:
		return false
	}
}

func (v Variant) asFloat() float64 {
	switch v.tag {
	case TagF32, TagF64:
		return v.f
	case TagDecimal:
		f, _ := bigFloatApprox(v.decimal)
		return f
	default:
		return float64(v.i)
	}
}

func bigFloatApprox(d decimal.Decimal) (float64, bool) {
	// Used by asFloat for a decimal operand. Compare does not reach
	// it: any comparison with a decimal operand goes through toDecimal
	// and decimal.Compare instead, see Compare below.
	var f float64
	_, err := fmt.Sscan(d.String(), &f)
	return f, err == nil
}

// Compare establishes FlintDB's total order over Variants:
//   - NULL sorts before all non-NULL values.
//   - Values within the numeric family compare numerically.
//   - Strings/bytes compare lexicographically, length as final tie-break.
//   - Distinct, non-coercible types compare by Tag.
func Compare(a, b Variant) int {
	if a.tag == TagNull || b.tag == TagNull {
		switch {
		case a.tag == TagNull && b.tag == TagNull:
			return 0
		case a.tag == TagNull:
			return -1
		default:
			return 1
		}
	}

	if numericFamily(a.tag) && numericFamily(b.tag) {
		if a.tag == TagDecimal || b.tag == TagDecimal {
			ad := toDecimal(a)
			bd := toDecimal(b)
			return decimal.Compare(ad, bd)
		}
		af, bf := a.asFloat(), b.asFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	if (a.tag == TagString || a.tag == TagBytes) && (b.tag == TagString || b.tag == TagBytes) {
		return bytes.Compare(a.bytes, b.bytes)
	}

	if a.tag == TagUUID && b.tag == TagUUID {
		return bytes.Compare(a.uuid[:], b.uuid[:])
	}

	if a.tag == TagIPv6 && b.tag == TagIPv6 {
		return bytes.Compare(a.ip, b.ip)
	}

	if a.tag != b.tag {
		if a.tag < b.tag {
			return -1
		}
		return 1
	}
	return 0
}

func toDecimal(v Variant) decimal.Decimal {
	if v.tag == TagDecimal {
		return v.decimal
	}
	d, _ := decimal.FromString(fmt.Sprintf("%g", v.asFloat()), 6)
	return d
}

// Equal reports whether a and b compare equal under Compare.
func Equal(a, b Variant) bool { return Compare(a, b) == 0 }
