package catalog_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

func TestAddSequenceUpsertsOnConflict(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.AddSequence(ctx, catalog.Sequence{OID: 1, Qname: `"public"."orders_id_seq"`, LastValue: 100, IsCalled: true}))
	require.NoError(t, s.AddSequence(ctx, catalog.Sequence{OID: 1, Qname: `"public"."orders_id_seq"`, LastValue: 150, IsCalled: true}))

	all, err := catalog.Collect(mustListSequences(t, s, ctx))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(150), all[0].LastValue)
}

func TestSequenceOwnerTableOIDRoundTrips(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.AddSequence(ctx, catalog.Sequence{OID: 1, Qname: "owned_seq", OwnerTableOID: sql.NullInt64{Int64: 10, Valid: true}}))
	require.NoError(t, s.AddSequence(ctx, catalog.Sequence{OID: 2, Qname: "standalone_seq"}))

	all, err := catalog.Collect(mustListSequences(t, s, ctx))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].OwnerTableOID.Valid)
	assert.Equal(t, int64(10), all[0].OwnerTableOID.Int64)
	assert.False(t, all[1].OwnerTableOID.Valid)
}

func mustListSequences(t *testing.T, s *catalog.Store, ctx context.Context) *catalog.Iterator[catalog.Sequence] {
	t.Helper()
	it, err := s.ListSequences(ctx)
	require.NoError(t, err)
	return it
}
