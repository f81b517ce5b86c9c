// Package row implements FlintDB's row codec: encoding and decoding a
// typed tuple of variant.Variant values to and from the fixed-width
// binary layout a table's Schema describes.
package row

import (
	"math"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/buffer"
	"github.com/flintdb/flintdb/internal/decimal"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/variant"
)

func decodeDecimal(s string, scale int) (decimal.Decimal, error) {
	d, err := decimal.FromString(s, scale)
	if err != nil {
		return decimal.Decimal{}, flintdb.Wrap(flintdb.KindInvalidDecimal, "row.Decode", err)
	}
	return d, nil
}

// Row is one decoded tuple: its slot values in schema column order,
// plus the rowid (primary B+Tree key) and block-storage refcount the
// table and cache layers track alongside the data.
//
// Refs counts live references into the row's decode buffer (non-owning
// variants) held by callers; Release must be called once per Retain
// before the row's backing buffer is allowed to be reused, mirroring
// the manual refcount note in the storage core's re-architecture list.
type Row struct {
	RowID  int64
	Values []variant.Variant

	refs int32
}

// New builds a Row ready for encoding, with values supplied in schema
// column order.
func New(rowID int64, values []variant.Variant) *Row {
	return &Row{RowID: rowID, Values: values, refs: 1}
}

// Retain increments the row's reference count. Call before handing a
// non-owning Row (e.g. one returned directly from a cache hit) to a
// second caller who will read it concurrently with eviction.
func (r *Row) Retain() { r.refs++ }

// Release decrements the reference count. Once it reaches zero the
// row's decode buffer may be reused by the block/cache layer; callers
// must not dereference non-owning Values after this point.
func (r *Row) Release() { r.refs-- }

// Live reports whether the row still has outstanding references.
func (r *Row) Live() bool { return r.refs > 0 }

// Clone returns a Row whose Values are all independently owned
// (Variant.Own), safe to retain past the producing buffer's lifetime
// without holding a reference.
func (r *Row) Clone() *Row {
	values := make([]variant.Variant, len(r.Values))
	for i, v := range r.Values {
		values[i] = v.Own()
	}
	return &Row{RowID: r.RowID, Values: values, refs: 1}
}

// Encode writes row's values into a fixed-width buffer matching
// schema.RowBytes(), in schema column order: a u16 column count
// followed by each column's u16 type tag and payload. Variable-width
// payloads (string/bytes/decimal) carry a u16 length prefix and are
// zero-padded out to the column's declared ByteWidth; exceeding it is
// a RowBytesExceeded error.
func Encode(schema *meta.Schema, values []variant.Variant, out *buffer.Buffer) error {
	if len(values) != len(schema.Columns) {
		return flintdb.New(flintdb.KindColumnMismatch, "row.Encode", "value count does not match schema column count")
	}
	if err := out.PutU16(uint16(len(schema.Columns))); err != nil {
		return flintdb.Wrap(flintdb.KindBufferOverflow, "row.Encode", err)
	}
	for i, col := range schema.Columns {
		v := values[i]
		if v.IsNull() {
			if !col.Nullable {
				return flintdb.New(flintdb.KindColumnMismatch, "row.Encode", "column "+col.Name+" is not nullable")
			}
			if err := out.PutU16(uint16(variant.TagNull)); err != nil {
				return flintdb.Wrap(flintdb.KindBufferOverflow, "row.Encode", err)
			}
			if err := padZero(col, out); err != nil {
				return err
			}
			continue
		}
		if v.Tag() != col.Type {
			return flintdb.New(flintdb.KindColumnMismatch, "row.Encode", "column "+col.Name+" type mismatch")
		}
		if err := out.PutU16(uint16(col.Type)); err != nil {
			return flintdb.Wrap(flintdb.KindBufferOverflow, "row.Encode", err)
		}
		if err := encodeValue(col, v, out); err != nil {
			return err
		}
	}
	return nil
}

func wrapOverflow(err error) error {
	if err == nil {
		return nil
	}
	return flintdb.Wrap(flintdb.KindBufferOverflow, "row", err)
}

func padZero(col meta.Column, out *buffer.Buffer) error {
	if col.Type.IsVariableWidth() {
		if err := out.PutU16(0); err != nil {
			return wrapOverflow(err)
		}
		return wrapOverflow(out.PutFixed(nil, col.ByteWidth))
	}
	return wrapOverflow(out.PutFixed(nil, col.Type.FixedWidth()))
}

func encodeValue(col meta.Column, v variant.Variant, out *buffer.Buffer) error {
	var err error
	switch col.Type {
	case variant.TagI8:
		n, _ := v.Int64()
		err = out.PutI8(int8(n))
	case variant.TagU8:
		n, _ := v.Uint64()
		err = out.PutU8(uint8(n))
	case variant.TagI16:
		n, _ := v.Int64()
		err = out.PutI16(int16(n))
	case variant.TagU16:
		n, _ := v.Uint64()
		err = out.PutU16(uint16(n))
	case variant.TagI32:
		n, _ := v.Int64()
		err = out.PutI32(int32(n))
	case variant.TagU32:
		n, _ := v.Uint64()
		err = out.PutU32(uint32(n))
	case variant.TagI64:
		n, _ := v.Int64()
		err = out.PutI64(n)
	case variant.TagU64:
		n, _ := v.Uint64()
		err = out.PutU64(n)
	case variant.TagF32:
		f, _ := v.Float64()
		err = out.PutU32(math.Float32bits(float32(f)))
	case variant.TagF64:
		f, _ := v.Float64()
		err = out.PutU64(math.Float64bits(f))
	case variant.TagDate:
		d, _ := v.Date()
		err = out.PutFixed([]byte{byte(d), byte(d >> 8), byte(d >> 16)}, 3)
	case variant.TagTime:
		n, _ := v.Int64()
		err = out.PutI64(n)
	case variant.TagUUID:
		u, _ := v.UUID()
		err = out.PutFixed(u[:], 16)
	case variant.TagIPv6:
		ip, _ := v.IPv6()
		err = out.PutFixed(ip, 16)
	case variant.TagString:
		s, _ := v.String()
		return encodeVarWidth(col, []byte(s), out)
	case variant.TagBytes:
		b, _ := v.Bytes()
		return encodeVarWidth(col, b, out)
	case variant.TagDecimal:
		d, _ := v.Decimal()
		return encodeVarWidth(col, []byte(d.String()), out)
	default:
		return flintdb.New(flintdb.KindUnsupported, "row.Encode", "unsupported column type")
	}
	return wrapOverflow(err)
}

func encodeVarWidth(col meta.Column, data []byte, out *buffer.Buffer) error {
	if len(data) > col.ByteWidth {
		return flintdb.New(flintdb.KindRowBytesExceeded, "row.Encode", "column "+col.Name+" exceeds declared width")
	}
	if err := out.PutU16(uint16(len(data))); err != nil {
		return wrapOverflow(err)
	}
	return wrapOverflow(out.PutFixed(data, col.ByteWidth))
}

// Decode reads a row's values out of in, in schema column order. The
// returned Values alias in directly (non-owning): callers that need
// to retain a value past in's lifetime must call Variant.Own (or
// Row.Clone to own the whole row) before releasing it.
func Decode(schema *meta.Schema, rowID int64, in *buffer.Buffer) (*Row, error) {
	count, err := in.GetU16()
	if err != nil {
		return nil, wrapOverflow(err)
	}
	if int(count) != len(schema.Columns) {
		return nil, flintdb.New(flintdb.KindColumnMismatch, "row.Decode", "encoded column count does not match schema")
	}
	values := make([]variant.Variant, count)
	for i := 0; i < int(count); i++ {
		col := schema.Columns[i]
		v, err := decodeValue(col, in)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return &Row{RowID: rowID, Values: values, refs: 1}, nil
}

func decodeValue(col meta.Column, in *buffer.Buffer) (variant.Variant, error) {
	tag, err := in.GetU16()
	if err != nil {
		return variant.Variant{}, wrapOverflow(err)
	}
	if variant.Tag(tag) == variant.TagNull {
		if err := skipPayload(col, in); err != nil {
			return variant.Variant{}, err
		}
		return variant.Null(), nil
	}
	switch col.Type {
	case variant.TagI8:
		n, err := in.GetI8()
		return variant.Int8(n), wrapOverflow(err)
	case variant.TagU8:
		n, err := in.GetU8()
		return variant.Uint8(n), wrapOverflow(err)
	case variant.TagI16:
		n, err := in.GetI16()
		return variant.Int16(n), wrapOverflow(err)
	case variant.TagU16:
		n, err := in.GetU16()
		return variant.Uint16(n), wrapOverflow(err)
	case variant.TagI32:
		n, err := in.GetI32()
		return variant.Int32(n), wrapOverflow(err)
	case variant.TagU32:
		n, err := in.GetU32()
		return variant.Uint32(n), wrapOverflow(err)
	case variant.TagI64:
		n, err := in.GetI64()
		return variant.Int64(n), wrapOverflow(err)
	case variant.TagU64:
		n, err := in.GetU64()
		return variant.Uint64(n), wrapOverflow(err)
	case variant.TagF32:
		bits, err := in.GetU32()
		return variant.Float32(math.Float32frombits(bits)), wrapOverflow(err)
	case variant.TagF64:
		bits, err := in.GetU64()
		return variant.Float64(math.Float64frombits(bits)), wrapOverflow(err)
	case variant.TagDate:
		b, err := in.GetFixed(3)
		if err != nil {
			return variant.Variant{}, wrapOverflow(err)
		}
		return variant.Date(int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16), nil
	case variant.TagTime:
		n, err := in.GetI64()
		return variant.Time(n), wrapOverflow(err)
	case variant.TagUUID:
		b, err := in.GetFixed(16)
		if err != nil {
			return variant.Variant{}, wrapOverflow(err)
		}
		var u variant.UUID
		copy(u[:], b)
		return variant.UUIDValue(u), nil
	case variant.TagIPv6:
		b, err := in.GetFixed(16)
		if err != nil {
			return variant.Variant{}, wrapOverflow(err)
		}
		return variant.IPv6(append([]byte(nil), b...)), nil
	case variant.TagString:
		data, err := decodeVarWidth(col, in)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.StringRef(data), nil
	case variant.TagBytes:
		data, err := decodeVarWidth(col, in)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.BytesRef(data), nil
	case variant.TagDecimal:
		data, err := decodeVarWidth(col, in)
		if err != nil {
			return variant.Variant{}, err
		}
		d, err := decodeDecimal(string(data), col.Precision)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.Decimal(d), nil
	default:
		return variant.Variant{}, flintdb.New(flintdb.KindUnsupported, "row.Decode", "unsupported column type")
	}
}

func decodeVarWidth(col meta.Column, in *buffer.Buffer) ([]byte, error) {
	length, err := in.GetU16()
	if err != nil {
		return nil, wrapOverflow(err)
	}
	padded, err := in.GetFixed(col.ByteWidth)
	if err != nil {
		return nil, wrapOverflow(err)
	}
	if int(length) > len(padded) {
		return nil, flintdb.New(flintdb.KindRowBytesExceeded, "row.Decode", "column "+col.Name+" length exceeds declared width")
	}
	return padded[:length], nil
}

func skipPayload(col meta.Column, in *buffer.Buffer) error {
	if col.Type.IsVariableWidth() {
		if _, err := in.GetU16(); err != nil {
			return wrapOverflow(err)
		}
		_, err := in.GetFixed(col.ByteWidth)
		return wrapOverflow(err)
	}
	_, err := in.GetFixed(col.Type.FixedWidth())
	return wrapOverflow(err)
}
