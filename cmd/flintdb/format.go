package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
)

// formatRow renders a decoded row as tab-separated fields, the text
// shape the shell and query commands print to stdout.
func formatRow(r *row.Row) string {
	fields := make([]string, len(r.Values))
	for i, v := range r.Values {
		fields[i] = formatVariant(v)
	}
	return fmt.Sprintf("%d\t%s", r.RowID, strings.Join(fields, "\t"))
}

func formatVariant(v variant.Variant) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Tag() {
	case variant.TagString:
		s, _ := v.String()
		return s
	case variant.TagBytes:
		b, _ := v.Bytes()
		return fmt.Sprintf("%x", b)
	case variant.TagDecimal:
		d, _ := v.Decimal()
		return d.String()
	case variant.TagUUID:
		u, _ := v.UUID()
		return fmt.Sprintf("%x", u[:])
	case variant.TagIPv6:
		ip, _ := v.IPv6()
		return ip.String()
	case variant.TagF32, variant.TagF64:
		f, _ := v.Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case variant.TagU8, variant.TagU16, variant.TagU32, variant.TagU64:
		n, _ := v.Uint64()
		return strconv.FormatUint(n, 10)
	default:
		n, _ := v.Int64()
		return strconv.FormatInt(n, 10)
	}
}
