package meta

import (
	"encoding/binary"
	"fmt"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/block"
	"github.com/flintdb/flintdb/internal/variant"
)

// Recover performs a best-effort reconstruction of a minimal Schema by
// scanning heapPath's row codec headers directly, for the case where
// the ".desc" sidecar is missing or corrupt — the same willingness the
// teacher's relmap.go shows reading pg_filenode.map straight off disk
// when the catalog it maps isn't otherwise available.
//
// Recovery finds the column count and per-column type tags; it cannot
// recover column names (synthesized as col0, col1, ...), nullability,
// indexes, or storage/WAL options, and for variable-width columns it
// only approximates the declared byte width by splitting the heap
// row's leftover space evenly across however many variable-width
// columns it found. This is a diagnostic of last resort invoked by
// cmd/flintdb's repair subcommand, never a substitute for meta.Parse.
func Recover(heapPath string) (*Schema, error) {
	storage, err := block.Open(heapPath, 0, DefaultBlockIncrement, false)
	if err != nil {
		return nil, err
	}
	defer storage.Close()

	rowBytes := storage.BlockSize()
	for id := int64(0); id < storage.BlockCount(); id++ {
		raw, err := storage.Read(id)
		if err != nil {
			continue
		}
		if schema, ok := recoverFromRow(raw, rowBytes); ok {
			return schema, nil
		}
	}
	return nil, flintdb.New(flintdb.KindNotFound, "meta.Recover", "no row in heap file decoded as a plausible row header")
}

// recoverFromRow attempts to parse raw as one row-codec header: a u16
// column count followed by each column's u16 type tag and, for
// variable-width tags, a u16 declared-data length. It bails out (ok
// false) the moment anything looks inconsistent, since a free or
// never-written block is indistinguishable from garbage without a
// live schema to validate against.
func recoverFromRow(raw []byte, rowBytes int64) (*Schema, bool) {
	if len(raw) < 2 {
		return nil, false
	}
	count := int(binary.LittleEndian.Uint16(raw))
	if count <= 0 || count > MaxColumns {
		return nil, false
	}

	pos := 2
	fixedTotal := 0
	var cols []Column
	var varIdx []int
	for i := 0; i < count; i++ {
		if pos+2 > len(raw) {
			return nil, false
		}
		tag := variant.Tag(binary.LittleEndian.Uint16(raw[pos:]))
		pos += 2
		if tag > variant.TagIPv6 {
			return nil, false
		}
		col := Column{Name: fmt.Sprintf("col%d", i), Type: tag, Nullable: true}
		if tag.IsVariableWidth() {
			if pos+2 > len(raw) {
				return nil, false
			}
			dataLen := int(binary.LittleEndian.Uint16(raw[pos:]))
			pos += 2
			if pos+dataLen > len(raw) {
				return nil, false
			}
			pos += dataLen
			if tag == variant.TagDecimal {
				// Precision isn't recoverable from the row bytes; 2 is
				// FlintDB's common default and a safer guess than 0.
				col.Precision = 2
			}
			varIdx = append(varIdx, len(cols))
		} else {
			width := tag.FixedWidth()
			if width < 0 || pos+width > len(raw) {
				return nil, false
			}
			pos += width
			fixedTotal += 2 + width
		}
		cols = append(cols, col)
	}

	// Distribute whatever's left of the fixed row width evenly across
	// the variable-width columns, each of which also paid a u16 tag
	// and u16 length prefix.
	if len(varIdx) > 0 {
		perHeader := 2 + 2
		leftover := int(rowBytes) - 2 - fixedTotal - len(varIdx)*perHeader
		if leftover < 0 {
			leftover = 0
		}
		share := leftover / len(varIdx)
		for _, idx := range varIdx {
			cols[idx].ByteWidth = share
		}
	}

	s := &Schema{
		Name:    "recovered",
		Columns: cols,
		Storage: StorageOptions{CacheBytes: DefaultCache, BlockIncrement: DefaultBlockIncrement},
	}
	return s, true
}
