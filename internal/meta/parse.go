package meta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/variant"
)

// Parse reads a CREATE TABLE-style statement and builds a validated
// Schema. Grammar (informal):
//
//	CREATE TABLE name (
//	  col TYPE[(width)] [NOT NULL] [DEFAULT lit] [COMMENT 'text'],
//	  ...,
//	  INDEX name (col[ASC|DESC], ...)
//	) [WITH (wal=log|off, sync=off|normal|full, cache=bytes,
//	         block_increment=bytes, compact=bytes, page_image=true|false)];
//
// The first INDEX clause must be named "primary". Serialize is the
// inverse and the pair is round-trip stable for every field the
// statement carries: Parse(Serialize(s)) yields a Schema equal to s in
// those fields. The WAL batch, buffer and direct-write sizes are not
// part of the statement; Parse always sets them to their defaults.
func Parse(ddl string) (*Schema, error) {
	ddl = strings.TrimSpace(ddl)
	ddl = strings.TrimSuffix(ddl, ";")

	upper := strings.ToUpper(ddl)
	if !strings.HasPrefix(upper, "CREATE TABLE") {
		return nil, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "expected CREATE TABLE")
	}
	rest := strings.TrimSpace(ddl[len("CREATE TABLE"):])

	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return nil, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "missing column list")
	}
	name := strings.TrimSpace(rest[:open])
	if name == "" {
		return nil, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "missing table name")
	}

	close := matchingParen(rest, open)
	if close < 0 {
		return nil, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "unbalanced parens in column list")
	}
	body := rest[open+1 : close]
	tail := strings.TrimSpace(rest[close+1:])

	s := &Schema{Name: name}
	for _, clause := range splitTopLevel(body) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		upperClause := strings.ToUpper(clause)
		if strings.HasPrefix(upperClause, "INDEX") {
			idx, err := parseIndexClause(clause)
			if err != nil {
				return nil, err
			}
			s.Indexes = append(s.Indexes, idx)
			continue
		}
		col, err := parseColumnClause(clause)
		if err != nil {
			return nil, err
		}
		s.Columns = append(s.Columns, col)
	}

	if err := parseOptions(tail, s); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits on commas that are not nested inside parens.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseColumnClause(clause string) (Column, error) {
	fields := strings.Fields(clause)
	if len(fields) < 2 {
		return Column{}, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "malformed column: "+clause)
	}
	name := fields[0]
	typeTok := fields[1]

	width := 0
	typeName := typeTok
	if open := strings.IndexByte(typeTok, '('); open >= 0 {
		closeIdx := strings.IndexByte(typeTok, ')')
		if closeIdx < 0 {
			return Column{}, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "unbalanced type width: "+typeTok)
		}
		typeName = typeTok[:open]
		n, err := strconv.Atoi(typeTok[open+1 : closeIdx])
		if err != nil {
			return Column{}, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "bad type width: "+typeTok)
		}
		width = n
	}

	tag, precision, err := typeTagOf(typeName, width)
	if err != nil {
		return Column{}, err
	}

	col := Column{Name: name, Type: tag, ByteWidth: width, Precision: precision, Nullable: true}

	rest := strings.Join(fields[2:], " ")
	upperRest := strings.ToUpper(rest)
	if strings.Contains(upperRest, "NOT NULL") {
		col.Nullable = false
	}
	if idx := strings.Index(upperRest, "DEFAULT"); idx >= 0 {
		// Default literal is whatever token follows DEFAULT, read from
		// the original-case rest string to preserve string quoting.
		after := strings.TrimSpace(rest[idx+len("DEFAULT"):])
		lit := strings.Fields(after)
		if len(lit) > 0 {
			dv, err := literalVariant(lit[0], tag)
			if err == nil {
				col.Default = &dv
			}
		}
	}
	if idx := strings.Index(rest, "COMMENT"); idx >= 0 {
		after := strings.TrimSpace(rest[idx+len("COMMENT"):])
		col.Comment = strings.Trim(after, "'\"")
	}

	return col, nil
}

func typeTagOf(name string, width int) (variant.Tag, int, error) {
	switch strings.ToUpper(name) {
	case "I8":
		return variant.TagI8, 0, nil
	case "U8":
		return variant.TagU8, 0, nil
	case "I16":
		return variant.TagI16, 0, nil
	case "U16":
		return variant.TagU16, 0, nil
	case "I32":
		return variant.TagI32, 0, nil
	case "U32", "UINT":
		return variant.TagU32, 0, nil
	case "I64", "INT":
		return variant.TagI64, 0, nil
	case "U64":
		return variant.TagU64, 0, nil
	case "F32":
		return variant.TagF32, 0, nil
	case "F64", "FLOAT", "DOUBLE":
		return variant.TagF64, 0, nil
	case "STRING":
		return variant.TagString, 0, nil
	case "BYTES", "BLOB":
		return variant.TagBytes, 0, nil
	case "DECIMAL":
		return variant.TagDecimal, width, nil
	case "DATE":
		return variant.TagDate, 0, nil
	case "TIME":
		return variant.TagTime, 0, nil
	case "UUID":
		return variant.TagUUID, 0, nil
	case "IPV6":
		return variant.TagIPv6, 0, nil
	default:
		return 0, 0, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "unknown column type: "+name)
	}
}

func typeName(c Column) string {
	base := strings.ToUpper(c.Type.String())
	if c.Type.IsVariableWidth() {
		width := c.ByteWidth
		if c.Type == variant.TagDecimal {
			width = c.Precision
		}
		return fmt.Sprintf("%s(%d)", base, width)
	}
	return base
}

func literalVariant(lit string, tag variant.Tag) (variant.Variant, error) {
	if strings.HasPrefix(lit, "'") {
		return variant.String(strings.Trim(lit, "'")), nil
	}
	switch tag {
	case variant.TagF32, variant.TagF64:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.Float64(f), nil
	default:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.Int64(n), nil
	}
}

func parseIndexClause(clause string) (IndexDef, error) {
	fields := strings.SplitN(strings.TrimSpace(clause), " ", 2)
	if len(fields) < 2 {
		return IndexDef{}, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "malformed index: "+clause)
	}
	rest := strings.TrimSpace(fields[1])
	open := strings.IndexByte(rest, '(')
	closeIdx := strings.LastIndexByte(rest, ')')
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return IndexDef{}, flintdb.New(flintdb.KindUnsupported, "meta.Parse", "malformed index key list: "+clause)
	}
	name := strings.TrimSpace(rest[:open])
	keyList := rest[open+1 : closeIdx]

	idx := IndexDef{Name: name}
	for _, k := range strings.Split(keyList, ",") {
		k = strings.TrimSpace(k)
		desc := false
		upperK := strings.ToUpper(k)
		if strings.HasSuffix(upperK, " DESC") {
			desc = true
			k = strings.TrimSpace(k[:len(k)-len(" DESC")])
		} else if strings.HasSuffix(upperK, " ASC") {
			k = strings.TrimSpace(k[:len(k)-len(" ASC")])
		}
		idx.Keys = append(idx.Keys, k)
		idx.Desc = append(idx.Desc, desc)
	}
	return idx, nil
}

func parseOptions(tail string, s *Schema) error {
	s.WAL = DefaultWALOptions()
	s.Storage = StorageOptions{}

	upper := strings.ToUpper(tail)
	if !strings.HasPrefix(upper, "WITH") {
		return nil
	}
	open := strings.IndexByte(tail, '(')
	closeIdx := strings.LastIndexByte(tail, ')')
	if open < 0 || closeIdx < 0 {
		return flintdb.New(flintdb.KindUnsupported, "meta.Parse", "malformed WITH clause")
	}
	for _, opt := range strings.Split(tail[open+1:closeIdx], ",") {
		kv := strings.SplitN(opt, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		switch key {
		case "WAL":
			if strings.EqualFold(val, "OFF") {
				s.WAL.Mode = WALDisabled
			} else {
				s.WAL.Mode = WALLog
			}
		case "SYNC":
			switch strings.ToUpper(val) {
			case "OFF":
				s.WAL.Sync = SyncOff
			case "FULL":
				s.WAL.Sync = SyncFull
			default:
				s.WAL.Sync = SyncNormal
			}
		case "CACHE":
			n, _ := strconv.ParseInt(val, 10, 64)
			s.Storage.CacheBytes = n
		case "BLOCK_INCREMENT":
			n, _ := strconv.ParseInt(val, 10, 64)
			s.Storage.BlockIncrement = n
		case "COMPACT":
			n, _ := strconv.ParseInt(val, 10, 64)
			s.Storage.CompactSize = n
		case "PAGE_IMAGE":
			s.WAL.PageImage = strings.EqualFold(val, "true")
		}
	}
	return nil
}

// Serialize renders the Schema back to a CREATE TABLE-style
// statement, the inverse of Parse.
func Serialize(s *Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", s.Name)
	parts := make([]string, 0, len(s.Columns)+len(s.Indexes))
	for _, c := range s.Columns {
		line := fmt.Sprintf("  %s %s", c.Name, typeName(c))
		if !c.Nullable {
			line += " NOT NULL"
		}
		if c.Default != nil {
			line += " DEFAULT " + defaultLiteral(*c.Default)
		}
		if c.Comment != "" {
			line += fmt.Sprintf(" COMMENT '%s'", c.Comment)
		}
		parts = append(parts, line)
	}
	for _, idx := range s.Indexes {
		keys := make([]string, len(idx.Keys))
		for i, k := range idx.Keys {
			if i < len(idx.Desc) && idx.Desc[i] {
				keys[i] = k + " DESC"
			} else {
				keys[i] = k
			}
		}
		parts = append(parts, fmt.Sprintf("  INDEX %s (%s)", idx.Name, strings.Join(keys, ", ")))
	}
	b.WriteString(strings.Join(parts, ",\n"))
	b.WriteString("\n)")
	fmt.Fprintf(&b, " WITH (wal=%s, sync=%s, cache=%d, block_increment=%d, compact=%d, page_image=%t);",
		walModeString(s.WAL.Mode), strings.ToLower(s.WAL.Sync.String()), s.Storage.CacheBytes,
		s.Storage.BlockIncrement, s.Storage.CompactSize, s.WAL.PageImage)
	return b.String()
}

func walModeString(m WALMode) string {
	if m == WALDisabled {
		return "off"
	}
	return "log"
}

func defaultLiteral(v variant.Variant) string {
	if v.Tag() == variant.TagString {
		s, _ := v.String()
		return "'" + s + "'"
	}
	if f, err := v.Float64(); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	i, _ := v.Int64()
	return strconv.FormatInt(i, 10)
}
