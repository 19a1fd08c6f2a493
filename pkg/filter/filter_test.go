package filter_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/filter"
)

func openStores(t *testing.T) (*catalog.Store, *catalog.Store) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	src, err := catalog.Open(ctx, filepath.Join(dir, "source.db"), catalog.KindSource)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	flt, err := catalog.Open(ctx, filepath.Join(dir, "filter.db"), catalog.KindFilter)
	require.NoError(t, err)
	t.Cleanup(func() { flt.Close() })

	return src, flt
}

func seedTables(t *testing.T, src *catalog.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, src.AddTable(ctx, catalog.Table{OID: 1, Qname: "public.orders", Nspname: "public", Relname: "orders", RestoreListName: "orders"}))
	require.NoError(t, src.AddTable(ctx, catalog.Table{OID: 2, Qname: "internal.audit_log", Nspname: "internal", Relname: "audit_log", RestoreListName: "audit_log"}))
}

func includedOIDs(t *testing.T, flt *catalog.Store, kind catalog.FilterObjectKind) []int64 {
	t.Helper()
	it, err := flt.ListFilterEntries(context.Background(), kind)
	require.NoError(t, err)
	entries, err := catalog.Collect(it)
	require.NoError(t, err)
	var out []int64
	for _, e := range entries {
		out = append(out, e.OID)
	}
	return out
}

func TestRunIncludesEverythingByDefault(t *testing.T) {
	src, flt := openStores(t)
	seedTables(t, src)

	eng := filter.New(src, flt, filter.Spec{})
	require.NoError(t, eng.Run(context.Background()))

	assert.ElementsMatch(t, []int64{1, 2}, includedOIDs(t, flt, catalog.FilterKindTable))
}

func TestRunExcludesSchema(t *testing.T) {
	src, flt := openStores(t)
	seedTables(t, src)

	eng := filter.New(src, flt, filter.Spec{ExcludeSchemas: []string{"internal"}})
	require.NoError(t, eng.Run(context.Background()))

	assert.ElementsMatch(t, []int64{1}, includedOIDs(t, flt, catalog.FilterKindTable))
}

func TestRunIncludeListIsExclusive(t *testing.T) {
	src, flt := openStores(t)
	seedTables(t, src)

	eng := filter.New(src, flt, filter.Spec{IncludeTables: []string{"public.orders"}})
	require.NoError(t, eng.Run(context.Background()))

	assert.ElementsMatch(t, []int64{1}, includedOIDs(t, flt, catalog.FilterKindTable))
}

func TestRunCarriesIndexesAndConstraintsOfSelectedTablesOnly(t *testing.T) {
	src, flt := openStores(t)
	seedTables(t, src)
	ctx := context.Background()
	require.NoError(t, src.AddIndex(ctx, catalog.Index{OID: 10, Qname: "orders_pkey", TableOID: 1, IsPrimary: true}))
	require.NoError(t, src.AddIndex(ctx, catalog.Index{OID: 11, Qname: "audit_log_idx", TableOID: 2}))
	require.NoError(t, src.AddConstraint(ctx, catalog.Constraint{OID: 20, Name: "orders_pkey", IndexOID: sql.NullInt64{Int64: 10, Valid: true}}))

	eng := filter.New(src, flt, filter.Spec{ExcludeSchemas: []string{"internal"}})
	require.NoError(t, eng.Run(ctx))

	assert.ElementsMatch(t, []int64{10}, includedOIDs(t, flt, catalog.FilterKindIndex))
	// Constraints carry over unconditionally: they have no independent
	// inclusion rule and are addressed by name at restore time.
	assert.ElementsMatch(t, []int64{20}, includedOIDs(t, flt, catalog.FilterKindConstraint))
}

func TestRunSequenceOwnedByPresentWhenSequenceAndOwnerExcluded(t *testing.T) {
	src, flt := openStores(t)
	ctx := context.Background()
	require.NoError(t, src.AddSequence(ctx, catalog.Sequence{
		OID: 30, Qname: "public.orders_id_seq", OwnerTableOID: sql.NullInt64{Int64: 99, Valid: true},
	}))

	eng := filter.New(src, flt, filter.Spec{ExcludeSequences: []string{"public.orders_id_seq"}})
	require.NoError(t, eng.Run(ctx))

	entries, err := catalog.Collect(mustListSeq(t, flt))
	require.NoError(t, err)

	var seqCount, ownedByCount, defaultCount int
	for _, e := range entries {
		switch {
		case e.OID == 30 && e.RestoreListName == "public.orders_id_seq":
			seqCount++
		case e.RestoreListName == "public.orders_id_seq OWNED BY":
			ownedByCount++
		case e.OID == 99 && e.RestoreListName == "":
			defaultCount++
		}
	}
	assert.Equal(t, 1, seqCount, "excluded sequence still records its own filter entry")
	assert.Equal(t, 1, ownedByCount, "OWNED BY clause is recorded when the owning table was never selected")
	assert.Equal(t, 1, defaultCount, "DEFAULT attribute entry is recorded for the owning table")
}

func TestRunSequenceOwnedByAbsentWhenOwnerSelected(t *testing.T) {
	src, flt := openStores(t)
	ctx := context.Background()
	require.NoError(t, src.AddTable(ctx, catalog.Table{OID: 99, Qname: "public.orders", Nspname: "public", RestoreListName: "orders"}))
	require.NoError(t, src.AddSequence(ctx, catalog.Sequence{
		OID: 30, Qname: "public.orders_id_seq", OwnerTableOID: sql.NullInt64{Int64: 99, Valid: true},
	}))

	eng := filter.New(src, flt, filter.Spec{ExcludeSequences: []string{"public.orders_id_seq"}})
	require.NoError(t, eng.Run(ctx))

	entries, err := catalog.Collect(mustListSeq(t, flt))
	require.NoError(t, err)

	var ownedByCount int
	for _, e := range entries {
		if e.RestoreListName == "public.orders_id_seq OWNED BY" {
			ownedByCount++
		}
	}
	assert.Zero(t, ownedByCount, "OWNED BY clause is dropped when the owning table was itself selected")
}

func mustListSeq(t *testing.T, flt *catalog.Store) *catalog.Iterator[catalog.FilterEntry] {
	t.Helper()
	it, err := flt.ListFilterEntries(context.Background(), catalog.FilterKindSequence)
	require.NoError(t, err)
	return it
}

func TestRunExtensionsAndCollationsSwitches(t *testing.T) {
	src, flt := openStores(t)

	eng := filter.New(src, flt, filter.Spec{SkipExtensions: true, SkipCollations: true})
	require.NoError(t, eng.Run(context.Background()))

	ext, err := catalog.Collect(mustList(t, flt, catalog.FilterKindExtension))
	require.NoError(t, err)
	assert.Len(t, ext, 1)

	coll, err := catalog.Collect(mustList(t, flt, catalog.FilterKindCollation))
	require.NoError(t, err)
	assert.Len(t, coll, 1)
}

func mustList(t *testing.T, flt *catalog.Store, kind catalog.FilterObjectKind) *catalog.Iterator[catalog.FilterEntry] {
	t.Helper()
	it, err := flt.ListFilterEntries(context.Background(), kind)
	require.NoError(t, err)
	return it
}
