package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/lsn"
)

func TestAddTimelineEntryUpsertsAndOrdersByTLI(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.AddTimelineEntry(ctx, catalog.TimelineEntry{TLI: 2, StartLSN: lsn.MustParse("0/100"), EndLSN: lsn.MustParse("0/200")}))
	require.NoError(t, s.AddTimelineEntry(ctx, catalog.TimelineEntry{TLI: 1, StartLSN: lsn.Zero, EndLSN: lsn.MustParse("0/100")}))
	require.NoError(t, s.AddTimelineEntry(ctx, catalog.TimelineEntry{TLI: 2, StartLSN: lsn.MustParse("0/100"), EndLSN: lsn.MustParse("0/300")}))

	it, err := s.ListTimelineHistory(ctx)
	require.NoError(t, err)
	all, err := catalog.Collect(it)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint32(1), all[0].TLI)
	assert.Equal(t, uint32(2), all[1].TLI)
	assert.Equal(t, lsn.MustParse("0/300"), all[1].EndLSN)
}
