package table

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flintdb/flintdb"
	"github.com/flintdb/flintdb/internal/decimal"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/internal/variant"
)

func widgetSchema() *meta.Schema {
	return &meta.Schema{
		Name: "widgets",
		Columns: []meta.Column{
			{Name: "id", Type: variant.TagU64, Nullable: false},
			{Name: "name", Type: variant.TagString, ByteWidth: 32, Nullable: true},
			{Name: "price", Type: variant.TagDecimal, Precision: 2, ByteWidth: 32, Nullable: true},
		},
		Indexes: []meta.IndexDef{
			{Name: meta.PrimaryIndex, Keys: []string{"id"}},
			{Name: "by_name", Keys: []string{"name"}},
		},
		WAL: meta.DefaultWALOptions(),
	}
}

func openWidgets(t *testing.T) (*Table, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "widgets.flint")
	tbl, err := Open(path, RDWR, widgetSchema(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })
	return tbl, path
}

func price(s string) variant.Variant {
	d, err := decimal.FromString(s, 2)
	if err != nil {
		panic(err)
	}
	return variant.Decimal(d)
}

func widgetValues(id uint64, name string, priceStr string) []variant.Variant {
	return []variant.Variant{variant.Uint64(id), variant.String(name), price(priceStr)}
}

func TestOpenWritesSidecarAndReopenUsesIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.flint")
	tbl, err := Open(path, RDWR, widgetSchema(), nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	reopened, err := Open(path, RDWR, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, "widgets", reopened.Schema().Name)
}

func TestOpenRejectsMismatchedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.flint")
	tbl, err := Open(path, RDWR, widgetSchema(), nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	drifted := widgetSchema()
	drifted.Columns = append(drifted.Columns, meta.Column{Name: "extra", Type: variant.TagI32})
	_, err = Open(path, RDWR, drifted, nil)
	require.Error(t, err)
	require.Equal(t, flintdb.KindUnsupported, flintdb.KindOf(err))
}

func TestOpenWithNoSchemaAndNoSidecarFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.flint")
	_, err := Open(path, RDWR, nil, nil)
	require.Error(t, err)
	require.Equal(t, flintdb.KindNotFound, flintdb.KindOf(err))
}

func TestApplyInsertsAndRejectsDuplicateKey(t *testing.T) {
	tbl, _ := openWidgets(t)

	id, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)
	require.Equal(t, int64(0), id)

	_, err = tbl.Apply(widgetValues(1, "other-bolt", "2.00"), false)
	require.Error(t, err)
	require.Equal(t, flintdb.KindDuplicateKey, flintdb.KindOf(err))
}

func TestApplyUpsertRewritesRowAndSecondaryIndex(t *testing.T) {
	tbl, _ := openWidgets(t)

	rowID, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)

	second, err := tbl.Apply(widgetValues(1, "bolt-v2", "1.75"), true)
	require.NoError(t, err)
	require.Equal(t, rowID, second)

	got, err := tbl.One("by_name", []string{"bolt-v2"})
	require.NoError(t, err)
	require.Equal(t, rowID, got.RowID)

	_, err = tbl.One("by_name", []string{"bolt"})
	require.Error(t, err)
	require.Equal(t, flintdb.KindNotFound, flintdb.KindOf(err))
}

func TestApplyAtForcesWriteWithChangedPrimaryKey(t *testing.T) {
	tbl, _ := openWidgets(t)

	rowID, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)

	require.NoError(t, tbl.ApplyAt(rowID, widgetValues(2, "bolt", "1.50")))

	got, err := tbl.One("primary", []string{"2"})
	require.NoError(t, err)
	require.Equal(t, rowID, got.RowID)

	_, err = tbl.One("primary", []string{"1"})
	require.Error(t, err)
	require.Equal(t, flintdb.KindNotFound, flintdb.KindOf(err))
}

func TestDeleteAtRemovesFromHeapAndIndexes(t *testing.T) {
	tbl, _ := openWidgets(t)

	rowID, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)

	require.NoError(t, tbl.DeleteAt(rowID))

	_, err = tbl.Read(rowID)
	require.Error(t, err)

	_, err = tbl.One("by_name", []string{"bolt"})
	require.Error(t, err)
	require.Equal(t, flintdb.KindNotFound, flintdb.KindOf(err))
}

func TestReadServesCacheHitAfterApply(t *testing.T) {
	tbl, _ := openWidgets(t)

	rowID, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)

	got, err := tbl.Read(rowID)
	require.NoError(t, err)
	require.Equal(t, rowID, got.RowID)

	streamed, err := tbl.ReadStream(rowID)
	require.NoError(t, err)
	require.Equal(t, got.RowID, streamed.RowID)
}

func TestFindFiltersByResidualCondition(t *testing.T) {
	tbl, _ := openWidgets(t)

	_, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)
	_, err = tbl.Apply(widgetValues(2, "nut", "0.75"), false)
	require.NoError(t, err)
	_, err = tbl.Apply(widgetValues(3, "washer", "0.10"), false)
	require.NoError(t, err)

	cur, err := tbl.Find("price >= 0.50", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, cur.Len())
}

func TestFindPushesEqualityPrefixIntoSecondaryIndex(t *testing.T) {
	tbl, _ := openWidgets(t)

	_, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)
	_, err = tbl.Apply(widgetValues(2, "nut", "0.75"), false)
	require.NoError(t, err)

	cur, err := tbl.Find("name = 'nut'", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Len())
	id, ok := cur.Next()
	require.True(t, ok)
	row, err := tbl.Read(id)
	require.NoError(t, err)
	name, err := row.Values[1].String()
	require.NoError(t, err)
	require.Equal(t, "nut", name)
}

func TestFindAppliesLimitAndOffset(t *testing.T) {
	tbl, _ := openWidgets(t)
	for i := uint64(1); i <= 5; i++ {
		_, err := tbl.Apply(widgetValues(i, "item", "1.00"), false)
		require.NoError(t, err)
	}

	cur, err := tbl.Find("", 2, 1)
	require.NoError(t, err)
	require.Equal(t, 2, cur.Len())
}

func TestTransactionCommitPersistsMutations(t *testing.T) {
	tbl, _ := openWidgets(t)

	tx, err := tbl.Begin()
	require.NoError(t, err)
	rowID, err := tx.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	got, err := tbl.Read(rowID)
	require.NoError(t, err)
	require.Equal(t, rowID, got.RowID)
}

func TestTransactionRollbackRestoresIndexes(t *testing.T) {
	tbl, _ := openWidgets(t)

	rowID, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)

	tx, err := tbl.Begin()
	require.NoError(t, err)
	_, err = tx.Apply(widgetValues(2, "nut", "0.75"), false)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = tbl.One("primary", []string{"2"})
	require.Error(t, err)
	require.Equal(t, flintdb.KindNotFound, flintdb.KindOf(err))

	got, err := tbl.Read(rowID)
	require.NoError(t, err)
	require.Equal(t, rowID, got.RowID)
}

func TestTransactionRequiresWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.flint")
	schema := widgetSchema()
	schema.WAL.Mode = meta.WALDisabled
	tbl, err := Open(path, RDWR, schema, nil)
	require.NoError(t, err)
	defer tbl.Close()

	_, err = tbl.Begin()
	require.Error(t, err)
	require.Equal(t, flintdb.KindUnsupported, flintdb.KindOf(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	tbl, _ := openWidgets(t)
	require.NoError(t, tbl.Close())
	require.NoError(t, tbl.Close())
}

func TestReopenRecoversCommittedRowsFromWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.flint")
	tbl, err := Open(path, RDWR, widgetSchema(), nil)
	require.NoError(t, err)

	rowID, err := tbl.Apply(widgetValues(1, "bolt", "1.50"), false)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	reopened, err := Open(path, RDWR, nil, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Read(rowID)
	require.NoError(t, err)
	require.Equal(t, rowID, got.RowID)

	one, err := reopened.One("by_name", []string{"bolt"})
	require.NoError(t, err)
	require.Equal(t, rowID, one.RowID)
}

func TestDropRemovesAllFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.flint")
	tbl, err := Open(path, RDWR, widgetSchema(), nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	require.NoError(t, Drop(path))
	_, err = Open(path, RDWR, nil, nil)
	require.Error(t, err)
	require.Equal(t, flintdb.KindNotFound, flintdb.KindOf(err))
}
