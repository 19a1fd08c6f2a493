package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

func openTestStore(t *testing.T, kind catalog.Kind) *catalog.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), string(kind)+".db")
	s, err := catalog.Open(context.Background(), path, kind)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchemaOnFirstUse(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	assert.Equal(t, catalog.KindSource, s.Kind())
	assert.NotEmpty(t, s.Path())

	setup, err := s.GetSetup(context.Background())
	require.NoError(t, err)
	assert.Nil(t, setup)
}

func TestOpenIsIdempotentAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.db")
	ctx := context.Background()

	s1, err := catalog.Open(ctx, path, catalog.KindSource)
	require.NoError(t, err)
	_, err = s1.RegisterSetup(ctx, catalog.Setup{SourceDSN: "postgres://a"}, false, false)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := catalog.Open(ctx, path, catalog.KindSource)
	require.NoError(t, err)
	defer s2.Close()

	setup, err := s2.GetSetup(ctx)
	require.NoError(t, err)
	require.NotNil(t, setup)
	assert.Equal(t, "postgres://a", setup.SourceDSN)
}

func TestBeginImmediateAndCommit(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	tx, err := s.BeginImmediate(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := openTestStore(t, catalog.KindFilter)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO filter_entry (oid, restore_list_name, kind) VALUES (1, 'orders', 'table')`)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	included, err := s.IsIncluded(ctx, 1)
	require.NoError(t, err)
	assert.False(t, included)
}

func TestDropAndRecreateSchema(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.DropSchema(ctx, catalog.KindSource))
	require.NoError(t, s.CreateSchema(ctx, catalog.KindSource))

	setup, err := s.GetSetup(ctx)
	require.NoError(t, err)
	assert.Nil(t, setup)
}
