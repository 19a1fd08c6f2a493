package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

func TestAddTablePartUpsertsOnConflict(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.AddTablePart(ctx, catalog.TablePart{TableOID: 1, PartNum: 0, PartCount: 2, Min: "0", Max: "500", RowCount: 500}))
	require.NoError(t, s.AddTablePart(ctx, catalog.TablePart{TableOID: 1, PartNum: 0, PartCount: 2, Min: "0", Max: "600", RowCount: 600}))

	parts, err := catalog.Collect(mustListTableParts(t, s, ctx, 1))
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "600", parts[0].Max)
	assert.Equal(t, int64(600), parts[0].RowCount)
}

func TestListTablePartsOrdersByPartNum(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.AddTablePart(ctx, catalog.TablePart{TableOID: 1, PartNum: 2, PartCount: 3}))
	require.NoError(t, s.AddTablePart(ctx, catalog.TablePart{TableOID: 1, PartNum: 0, PartCount: 3}))
	require.NoError(t, s.AddTablePart(ctx, catalog.TablePart{TableOID: 1, PartNum: 1, PartCount: 3}))

	parts, err := catalog.Collect(mustListTableParts(t, s, ctx, 1))
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, int32(0), parts[0].PartNum)
	assert.Equal(t, int32(1), parts[1].PartNum)
	assert.Equal(t, int32(2), parts[2].PartNum)
}

func TestHasTablePartsReflectsExistingPlan(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	has, err := s.HasTableParts(ctx, 1)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.AddTablePart(ctx, catalog.TablePart{TableOID: 1, PartNum: 0, PartCount: 1}))

	has, err = s.HasTableParts(ctx, 1)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasTableParts(ctx, 2)
	require.NoError(t, err)
	assert.False(t, has)
}

func mustListTableParts(t *testing.T, s *catalog.Store, ctx context.Context, tableOID int64) *catalog.Iterator[catalog.TablePart] {
	t.Helper()
	it, err := s.ListTableParts(ctx, tableOID)
	require.NoError(t, err)
	return it
}
