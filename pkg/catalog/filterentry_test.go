package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

func TestAddFilterEntryAndIsIncluded(t *testing.T) {
	s := openTestStore(t, catalog.KindFilter)
	ctx := context.Background()

	included, err := s.IsIncluded(ctx, 42)
	require.NoError(t, err)
	assert.False(t, included)

	require.NoError(t, s.AddFilterEntry(ctx, catalog.FilterEntry{
		OID: 42, RestoreListName: "orders", Kind: catalog.FilterKindTable,
	}))

	included, err = s.IsIncluded(ctx, 42)
	require.NoError(t, err)
	assert.True(t, included)
}

func TestListFilterEntriesFiltersByKind(t *testing.T) {
	s := openTestStore(t, catalog.KindFilter)
	ctx := context.Background()

	require.NoError(t, s.AddFilterEntry(ctx, catalog.FilterEntry{OID: 1, RestoreListName: "orders", Kind: catalog.FilterKindTable}))
	require.NoError(t, s.AddFilterEntry(ctx, catalog.FilterEntry{OID: 2, RestoreListName: "orders_pkey", Kind: catalog.FilterKindIndex}))
	require.NoError(t, s.AddFilterEntry(ctx, catalog.FilterEntry{OID: 3, RestoreListName: "customers", Kind: catalog.FilterKindTable}))

	it, err := s.ListFilterEntries(ctx, catalog.FilterKindTable)
	require.NoError(t, err)
	defer it.Close()

	var names []string
	for it.Next() {
		names = append(names, it.Item().RestoreListName)
	}
	require.NoError(t, it.Err())
	assert.ElementsMatch(t, []string{"orders", "customers"}, names)
}

func TestListFilterEntriesAllKinds(t *testing.T) {
	s := openTestStore(t, catalog.KindFilter)
	ctx := context.Background()

	require.NoError(t, s.AddFilterEntry(ctx, catalog.FilterEntry{OID: 1, RestoreListName: "orders", Kind: catalog.FilterKindTable}))
	require.NoError(t, s.AddFilterEntry(ctx, catalog.FilterEntry{OID: 0, RestoreListName: "orders_check", Kind: catalog.FilterKindConstraint}))

	it, err := s.ListFilterEntries(ctx, "")
	require.NoError(t, err)
	defer it.Close()

	count := 0
	for it.Next() {
		count++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, count)
}
