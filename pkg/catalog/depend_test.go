package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

func TestAddDependAllowsDuplicates(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	d := catalog.Depend{Nspname: "public", Relname: "orders", RefClassID: 1247, RefObjID: 50, ClassID: 1259, ObjID: 100, DepType: "a", Type: "sequence", Identity: "public.orders_id_seq"}
	require.NoError(t, s.AddDepend(ctx, d))
	require.NoError(t, s.AddDepend(ctx, d))

	all, err := catalog.Collect(mustListDepends(t, s, ctx))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListDependsOnFiltersByReferencedObject(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.AddDepend(ctx, catalog.Depend{RefClassID: 1247, RefObjID: 50, Type: "extension", Identity: "pgcrypto"}))
	require.NoError(t, s.AddDepend(ctx, catalog.Depend{RefClassID: 1247, RefObjID: 99, Type: "extension", Identity: "postgis"}))

	it, err := s.ListDependsOn(ctx, 1247, 50)
	require.NoError(t, err)
	edges, err := catalog.Collect(it)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "pgcrypto", edges[0].Identity)
}

func mustListDepends(t *testing.T, s *catalog.Store, ctx context.Context) *catalog.Iterator[catalog.Depend] {
	t.Helper()
	it, err := s.ListDepends(ctx)
	require.NoError(t, err)
	return it
}
