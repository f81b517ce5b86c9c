package table

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/decimal"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/variant"
)

func encodeRowID(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func decodeRowID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// encodeIndexKey builds idx's ordered, order-preserving B+Tree key for
// values (in schema column order). Each field carries a one-byte null
// presence marker (NULL sorts first, matching variant.Compare) so
// bytes.Compare over the concatenation matches the column-by-column
// comparison filter.Eval would perform; descending key columns have
// their encoded bytes bitwise-inverted so a single default comparator
// serves both ascending and descending indexes without a per-index
// Comparator callback.
func encodeIndexKey(schema *meta.Schema, idx meta.IndexDef, values []variant.Variant) ([]byte, error) {
	var out []byte
	for i, name := range idx.Keys {
		col, ok := schema.Column(name)
		if !ok {
			return nil, flintdb.New(flintdb.KindIndexMissing, "table.encodeIndexKey", "index "+idx.Name+" references unknown column "+name)
		}
		field, err := encodeKeyField(col, values[schema.ColumnIndex(name)])
		if err != nil {
			return nil, err
		}
		if i < len(idx.Desc) && idx.Desc[i] {
			invert(field)
		}
		out = append(out, field...)
	}
	return out, nil
}

func invert(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}

// storedIndexKey builds the byte string actually stored in idx's
// B+Tree for values/rowID. The primary index's key is the bare
// business key: it is both the tree's uniqueness constraint and the
// probe key business lookups encode, so it must stay free of any
// per-row suffix. Every other index allows duplicate key values (a
// secondary key's row order is otherwise insertion order, not
// uniqueness), so its stored key appends the rowid as a tie-break
// suffix — two rows sharing a secondary key value then occupy two
// distinct B+Tree entries instead of one overwriting the other.
func storedIndexKey(schema *meta.Schema, idx meta.IndexDef, values []variant.Variant, rowID int64) ([]byte, error) {
	key, err := encodeIndexKey(schema, idx, values)
	if err != nil {
		return nil, err
	}
	if idx.Name == meta.PrimaryIndex {
		return key, nil
	}
	return append(key, encodeRowID(rowID)...), nil
}

// encodeKeyField renders one column's value as an order-preserving
// byte string prefixed with a presence marker (0x00 null, 0x01
// present). Variable-width fields (string/bytes) are escaped and
// NUL-terminated so they can safely sit ahead of further fields in a
// composite key without ambiguity between "short value" and "long
// value with a common prefix".
func encodeKeyField(col meta.Column, v variant.Variant) ([]byte, error) {
	if v.IsNull() {
		return []byte{0x00}, nil
	}

	var payload []byte
	switch col.Type {
	case variant.TagI8, variant.TagI16, variant.TagI32, variant.TagI64, variant.TagDate, variant.TagTime:
		n, err := v.Int64()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		payload = signFlippedInt(n, col.Type.FixedWidth())
	case variant.TagU8, variant.TagU16, variant.TagU32, variant.TagU64:
		n, err := v.Uint64()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		payload = bigEndianUint(n, col.Type.FixedWidth())
	case variant.TagF32, variant.TagF64:
		f, err := v.Float64()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		if col.Type == variant.TagF32 {
			payload = orderPreservingFloat(uint64(math.Float32bits(float32(f))), 4)
		} else {
			payload = orderPreservingFloat(math.Float64bits(f), 8)
		}
	case variant.TagUUID:
		u, err := v.UUID()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		payload = append([]byte(nil), u[:]...)
	case variant.TagIPv6:
		ip, err := v.IPv6()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		payload = append([]byte(nil), ip...)
	case variant.TagDecimal:
		d, err := v.Decimal()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		payload = decimalKeyBytes(d)
	case variant.TagString:
		s, err := v.String()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		payload = escapeVariable([]byte(s))
	case variant.TagBytes:
		b, err := v.Bytes()
		if err != nil {
			return nil, flintdb.Wrap(flintdb.KindTypeMismatch, "table.encodeKeyField", err)
		}
		payload = escapeVariable(b)
	default:
		return nil, flintdb.New(flintdb.KindUnsupported, "table.encodeKeyField", "unsupported index column type")
	}
	return append([]byte{0x01}, payload...), nil
}

// signFlippedInt encodes a two's-complement integer as big-endian
// bytes with the sign bit flipped, so lexicographic byte order matches
// numeric order (negative values sort before positive ones).
func signFlippedInt(n int64, width int) []byte {
	b := make([]byte, width)
	switch width {
	case 1:
		b[0] = byte(n) ^ 0x80
	case 2:
		binary.BigEndian.PutUint16(b, uint16(n)^0x8000)
	case 3:
		v := uint32(n) ^ 0x800000
		b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
	case 4:
		binary.BigEndian.PutUint32(b, uint32(n)^0x80000000)
	default:
		binary.BigEndian.PutUint64(b, uint64(n)^0x8000000000000000)
	}
	return b
}

func bigEndianUint(n uint64, width int) []byte {
	b := make([]byte, width)
	switch width {
	case 1:
		b[0] = byte(n)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(n))
	case 4:
		binary.BigEndian.PutUint32(b, uint32(n))
	default:
		binary.BigEndian.PutUint64(b, n)
	}
	return b
}

// orderPreservingFloat applies the standard IEEE-754 sortable
// transform: flip every bit when the sign bit is set (negative
// numbers), otherwise flip only the sign bit.
func orderPreservingFloat(bits uint64, width int) []byte {
	if bits&(1<<(uint(width)*8-1)) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << (uint(width)*8 - 1)
	}
	return bigEndianUint(bits, width)
}

// escapeVariable makes a variable-length byte string safe to place
// ahead of further fields in a composite key: 0x00 bytes are escaped
// to 0x00 0xFF, and the field is terminated with an unescaped 0x00
// 0x00, so no value is ever a byte-wise prefix of another value
// followed by more fields.
func escapeVariable(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	for _, b := range data {
		if b == 0x00 {
			out = append(out, 0x00, 0xFF)
		} else {
			out = append(out, b)
		}
	}
	return append(out, 0x00, 0x00)
}

// decimalKeyBytes renders a Decimal as sign byte + 16 zero-padded BCD
// bytes; BCD digits stored MSB-first means left-zero-padding an
// unsigned magnitude to full width preserves numeric order.
func decimalKeyBytes(d decimal.Decimal) []byte {
	padded := make([]byte, 16)
	copy(padded[16-d.Length:], d.Data[:d.Length])
	if d.Sign < 0 {
		invert(padded)
		return append([]byte{0x00}, padded...)
	}
	return append([]byte{0x01}, padded...)
}

// prefixUpperBound returns the smallest byte string that sorts after
// every string with the given prefix, or nil if no such bound exists
// (the prefix is all 0xFF).
func prefixUpperBound(prefix []byte) []byte {
	up := append([]byte(nil), prefix...)
	for i := len(up) - 1; i >= 0; i-- {
		if up[i] != 0xFF {
			up[i]++
			return up[:i+1]
		}
	}
	return nil
}

// coerceProbe parses a raw command-line-style argument string into a
// typed Variant for One's probe row, following the same type switch
// filter.coerceLiteral uses for WHERE-clause literals but without
// quote stripping, since probe argv values arrive unquoted.
func coerceProbe(col meta.Column, s string) (variant.Variant, error) {
	if strings.EqualFold(s, "NULL") {
		return variant.Null(), nil
	}
	switch col.Type {
	case variant.TagString:
		return variant.String(s), nil
	case variant.TagBytes:
		return variant.Bytes([]byte(s)), nil
	case variant.TagF32, variant.TagF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return variant.Variant{}, flintdb.New(flintdb.KindTypeMismatch, "table.One", "invalid float argument: "+s)
		}
		if col.Type == variant.TagF32 {
			return variant.Float32(float32(f)), nil
		}
		return variant.Float64(f), nil
	case variant.TagDecimal:
		d, err := decimal.FromString(s, col.Precision)
		if err != nil {
			return variant.Variant{}, flintdb.New(flintdb.KindInvalidDecimal, "table.One", "invalid decimal argument: "+s)
		}
		return variant.Decimal(d), nil
	case variant.TagU8, variant.TagU16, variant.TagU32, variant.TagU64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return variant.Variant{}, flintdb.New(flintdb.KindTypeMismatch, "table.One", "invalid integer argument: "+s)
		}
		return uintVariantFor(col.Type, n), nil
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return variant.Variant{}, flintdb.New(flintdb.KindTypeMismatch, "table.One", "invalid integer argument: "+s)
		}
		return intVariantFor(col.Type, n), nil
	}
}

func intVariantFor(t variant.Tag, n int64) variant.Variant {
	switch t {
	case variant.TagI8:
		return variant.Int8(int8(n))
	case variant.TagI16:
		return variant.Int16(int16(n))
	case variant.TagI32:
		return variant.Int32(int32(n))
	case variant.TagDate:
		return variant.Date(int32(n))
	case variant.TagTime:
		return variant.Time(n)
	default:
		return variant.Int64(n)
	}
}

func uintVariantFor(t variant.Tag, n uint64) variant.Variant {
	switch t {
	case variant.TagU8:
		return variant.Uint8(uint8(n))
	case variant.TagU16:
		return variant.Uint16(uint16(n))
	case variant.TagU32:
		return variant.Uint32(uint32(n))
	default:
		return variant.Uint64(n)
	}
}
