package meta_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb/internal/block"
	"github.com/flintdb/flintdb/internal/buffer"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/row"
	"github.com/flintdb/flintdb/internal/variant"
)

func TestRecoverReconstructsColumnTypesFromHeapFile(t *testing.T) {
	schema := &meta.Schema{
		Name: "widgets",
		Columns: []meta.Column{
			{Name: "id", Type: variant.TagU64, Nullable: false},
			{Name: "name", Type: variant.TagString, ByteWidth: 32, Nullable: true},
		},
		Indexes: []meta.IndexDef{{Name: meta.PrimaryIndex, Keys: []string{"id"}}},
	}
	require.NoError(t, schema.Validate())

	path := filepath.Join(t.TempDir(), "widgets.heap")
	storage, err := block.Open(path, int64(schema.RowBytes()), meta.DefaultBlockIncrement, false)
	require.NoError(t, err)

	buf := buffer.Make(schema.RowBytes())
	require.NoError(t, row.Encode(schema, []variant.Variant{variant.Uint64(1), variant.String("bolt")}, buf))
	_, err = storage.Write(buf.Written())
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	recovered, err := meta.Recover(path)
	require.NoError(t, err)
	require.Len(t, recovered.Columns, 2)
	require.Equal(t, variant.TagU64, recovered.Columns[0].Type)
	require.Equal(t, variant.TagString, recovered.Columns[1].Type)
	require.Greater(t, recovered.Columns[1].ByteWidth, 0)
}

func TestRecoverFailsOnEmptyHeapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.heap")
	storage, err := block.Open(path, 64, meta.DefaultBlockIncrement, false)
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	_, err = meta.Recover(path)
	require.Error(t, err)
}
