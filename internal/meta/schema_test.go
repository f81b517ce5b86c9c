package meta

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/variant"
)

const usersDDL = `CREATE TABLE users (
  id U64 NOT NULL,
  email STRING(120) NOT NULL COMMENT 'login handle',
  balance DECIMAL(2) DEFAULT 0,
  INDEX primary (id),
  INDEX by_email (email DESC)
) WITH (wal=log, sync=full, cache=2097152, block_increment=33554432, page_image=true);`

func TestParseBuildsSchema(t *testing.T) {
	s, err := Parse(usersDDL)
	require.NoError(t, err)
	require.Equal(t, "users", s.Name)
	require.Len(t, s.Columns, 3)

	id, ok := s.Column("id")
	require.True(t, ok)
	require.Equal(t, variant.TagU64, id.Type)
	require.False(t, id.Nullable)

	email, ok := s.Column("email")
	require.True(t, ok)
	require.Equal(t, variant.TagString, email.Type)
	require.Equal(t, 120, email.ByteWidth)
	require.Equal(t, "login handle", email.Comment)

	balance, ok := s.Column("balance")
	require.True(t, ok)
	require.Equal(t, variant.TagDecimal, balance.Type)
	require.Equal(t, 2, balance.Precision)
	require.NotNil(t, balance.Default)

	primary, ok := s.PrimaryIndex()
	require.True(t, ok)
	require.Equal(t, []string{"id"}, primary.Keys)

	byEmail, ok := s.Index("by_email")
	require.True(t, ok)
	require.Equal(t, []string{"email"}, byEmail.Keys)
	require.Equal(t, []bool{true}, byEmail.Desc)

	require.Equal(t, WALLog, s.WAL.Mode)
	require.Equal(t, SyncFull, s.WAL.Sync)
	require.EqualValues(t, 2097152, s.Storage.CacheBytes)
	require.EqualValues(t, 33554432, s.Storage.BlockIncrement)
}

func TestSerializeRoundTrips(t *testing.T) {
	s, err := Parse(usersDDL)
	require.NoError(t, err)

	out := Serialize(s)
	s2, err := Parse(out)
	require.NoError(t, err)

	require.Equal(t, s.Name, s2.Name)
	require.Equal(t, s.Columns, s2.Columns)
	require.Equal(t, s.Indexes, s2.Indexes)
	require.Equal(t, s.Storage, s2.Storage)
	require.Equal(t, s.WAL, s2.WAL)
}

func TestValidateAppliesCacheFloor(t *testing.T) {
	s := &Schema{
		Name:    "t",
		Columns: []Column{{Name: "a", Type: variant.TagI32, Nullable: true}},
		Indexes: []IndexDef{{Name: PrimaryIndex, Keys: []string{"a"}}},
		Storage: StorageOptions{CacheBytes: 1024},
	}
	require.NoError(t, s.Validate())
	require.EqualValues(t, MinCache, s.Storage.CacheBytes)
}

func TestValidateRejectsNonPrimaryFirstIndex(t *testing.T) {
	s := &Schema{
		Name:    "t",
		Columns: []Column{{Name: "a", Type: variant.TagI32, Nullable: true}},
		Indexes: []IndexDef{{Name: "secondary", Keys: []string{"a"}}},
	}
	require.Error(t, s.Validate())
}

func TestValidateRejectsUnknownIndexColumn(t *testing.T) {
	s := &Schema{
		Name:    "t",
		Columns: []Column{{Name: "a", Type: variant.TagI32, Nullable: true}},
		Indexes: []IndexDef{{Name: PrimaryIndex, Keys: []string{"missing"}}},
	}
	require.Error(t, s.Validate())
}

func TestValidateRejectsDuplicateColumn(t *testing.T) {
	s := &Schema{
		Name: "t",
		Columns: []Column{
			{Name: "a", Type: variant.TagI32, Nullable: true},
			{Name: "a", Type: variant.TagI64, Nullable: true},
		},
	}
	require.Error(t, s.Validate())
}

func TestRowBytesSumsColumnWidths(t *testing.T) {
	s := &Schema{
		Columns: []Column{
			{Name: "a", Type: variant.TagI32},
			{Name: "b", Type: variant.TagString, ByteWidth: 10},
		},
	}
	require.Equal(t, 2+(2+4)+(2+2+10), s.RowBytes())
}
