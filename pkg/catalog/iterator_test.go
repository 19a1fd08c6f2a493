package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

func TestIteratorNextAndItem(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.AddTable(ctx, catalog.Table{OID: 1, Qname: "a"}))
	require.NoError(t, s.AddTable(ctx, catalog.Table{OID: 2, Qname: "b"}))

	it, err := s.ListTables(ctx)
	require.NoError(t, err)
	defer it.Close()

	var seen []string
	for it.Next() {
		seen = append(seen, it.Item().Qname)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.False(t, it.Next(), "Next must keep returning false once exhausted")
}

func TestCollectDrainsAndClosesIterator(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	it, err := s.ListTables(ctx)
	require.NoError(t, err)

	all, err := catalog.Collect(it)
	require.NoError(t, err)
	assert.Empty(t, all)
}
