package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/lsn"
)

func TestGetSentinelCreatesDefaultRow(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	sent, err := s.GetSentinel(ctx)
	require.NoError(t, err)
	assert.Equal(t, lsn.Zero, sent.StartPos)
	assert.Equal(t, lsn.Zero, sent.EndPos)
	assert.False(t, sent.Apply)

	again, err := s.GetSentinel(ctx)
	require.NoError(t, err)
	assert.Equal(t, sent, again)
}

func TestSetStartPosAndEndPos(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	start := lsn.MustParse("0/100")
	end := lsn.MustParse("0/F00")
	require.NoError(t, s.SetStartPos(ctx, start))
	require.NoError(t, s.SetEndPos(ctx, end))

	sent, err := s.GetSentinel(ctx)
	require.NoError(t, err)
	assert.Equal(t, start, sent.StartPos)
	assert.Equal(t, end, sent.EndPos)
}

func TestSetApplyToggles(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	require.NoError(t, s.SetApply(ctx, true))
	sent, err := s.GetSentinel(ctx)
	require.NoError(t, err)
	assert.True(t, sent.Apply)

	require.NoError(t, s.SetApply(ctx, false))
	sent, err = s.GetSentinel(ctx)
	require.NoError(t, err)
	assert.False(t, sent.Apply)
}

func TestUpdateReplayProgress(t *testing.T) {
	s := openTestStore(t, catalog.KindSource)
	ctx := context.Background()

	write := lsn.MustParse("0/10")
	flush := lsn.MustParse("0/20")
	replay := lsn.MustParse("0/30")
	require.NoError(t, s.UpdateReplayProgress(ctx, write, flush, replay))

	sent, err := s.GetSentinel(ctx)
	require.NoError(t, err)
	assert.Equal(t, write, sent.WriteLSN)
	assert.Equal(t, flush, sent.FlushLSN)
	assert.Equal(t, replay, sent.ReplayLSN)
}
