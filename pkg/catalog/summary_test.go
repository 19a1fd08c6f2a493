package catalog_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

func TestStartAndFinishSummary(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	tableOID := sql.NullInt64{Int64: 1, Valid: true}
	partNum := sql.NullInt32{Int32: 0, Valid: true}

	require.NoError(t, s.StartSummary(ctx, catalog.Summary{
		TableOID: tableOID, PartNum: partNum, PID: 7, StartEpoch: 100, Command: "COPY",
	}))
	require.NoError(t, s.FinishSummary(ctx, tableOID, partNum, sql.NullInt64{}, 150, 50000, 8192))

	it, err := s.ListSummaries(ctx)
	require.NoError(t, err)
	all, err := catalog.Collect(it)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].DoneEpoch.Valid)
	assert.Equal(t, int64(150), all[0].DoneEpoch.Int64)
	assert.Equal(t, int64(8192), all[0].Bytes)
}

func TestFinishSummaryMatchesMostRecentInFlightRow(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	indexOID := sql.NullInt64{Int64: 55, Valid: true}
	require.NoError(t, s.StartSummary(ctx, catalog.Summary{IndexOID: indexOID, PID: 1, StartEpoch: 1, Command: "CREATE INDEX"}))
	require.NoError(t, s.StartSummary(ctx, catalog.Summary{IndexOID: indexOID, PID: 2, StartEpoch: 2, Command: "CREATE INDEX CONCURRENTLY"}))
	require.NoError(t, s.FinishSummary(ctx, sql.NullInt64{}, sql.NullInt32{}, indexOID, 3, 1000, 0))

	it, err := s.ListSummaries(ctx)
	require.NoError(t, err)
	all, err := catalog.Collect(it)
	require.NoError(t, err)
	require.Len(t, all, 2)

	var finished int
	for _, sm := range all {
		if sm.DoneEpoch.Valid {
			finished++
			assert.Equal(t, int64(2), sm.PID, "the most recently started row should be the one finished")
		}
	}
	assert.Equal(t, 1, finished)
}
