package transform_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/cdc/transform"
	"github.com/pgbulk/pgbulk/pkg/lsn"
)

func writeSegment(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestTransformFileInsertUpdateDelete(t *testing.T) {
	dir := t.TempDir()
	in := writeSegment(t, dir, "0000000A.json",
		`{"action":"begin","lsn":"0/A","xid":501,"timestamp":"2026-01-01 00:00:00","nextlsn":"0/F"}`,
		`{"action":"insert","schema":"public","table":"orders","columns":[{"name":"id","type":"int4","value":1},{"name":"total","type":"numeric","value":9.5}]}`,
		`{"action":"update","schema":"public","table":"orders","columns":[{"name":"total","type":"numeric","value":12}],"identity":[{"name":"id","type":"int4","value":1}]}`,
		`{"action":"delete","schema":"public","table":"orders","identity":[{"name":"id","type":"int4","value":1}]}`,
		`{"action":"commit","lsn":"0/F"}`,
	)
	out := filepath.Join(dir, "0000000A.sql")

	tr := transform.New(dir)
	require.NoError(t, tr.TransformFile(in, out, lsn.Zero))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	sql := string(data)

	assert.Contains(t, sql, "-- BEGIN {lsn=0/A,xid=501")
	assert.Contains(t, sql, `PREPARE p`)
	assert.Contains(t, sql, `INSERT INTO public.orders ("id", "total") VALUES ($1, $2)`)
	assert.Contains(t, sql, `UPDATE public.orders SET "total" = $1 WHERE "id" = $2`)
	assert.Contains(t, sql, `DELETE FROM public.orders WHERE "id" = $1`)
	assert.Contains(t, sql, "COMMIT;")
}

func TestTransformFileDedupesPreparedStatements(t *testing.T) {
	dir := t.TempDir()
	in := writeSegment(t, dir, "seg.json",
		`{"action":"begin","lsn":"0/1","xid":1,"nextlsn":"0/9"}`,
		`{"action":"insert","schema":"public","table":"t","columns":[{"name":"id","type":"int4","value":1}]}`,
		`{"action":"insert","schema":"public","table":"t","columns":[{"name":"id","type":"int4","value":2}]}`,
		`{"action":"commit","lsn":"0/9"}`,
	)
	out := filepath.Join(dir, "seg.sql")

	require.NoError(t, transform.New(dir).TransformFile(in, out, lsn.Zero))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "PREPARE"))
	assert.Equal(t, 2, strings.Count(string(data), "EXECUTE"))
}

func TestTransformFileBeginFallsBackToXidMetaFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "77.json"), []byte(`{"commit_lsn":"0/50","timestamp":"2026-01-01 00:00:00"}`), 0o644))

	in := writeSegment(t, dir, "seg.json",
		`{"action":"begin","lsn":"0/10","xid":77}`,
		`{"action":"commit","lsn":"0/50"}`,
	)
	out := filepath.Join(dir, "seg.sql")

	require.NoError(t, transform.New(dir).TransformFile(in, out, lsn.Zero))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "commit_lsn=0/50")
}

func TestTransformFileEmitsEndposMarker(t *testing.T) {
	dir := t.TempDir()
	in := writeSegment(t, dir, "seg.json",
		`{"action":"begin","lsn":"0/1","xid":1,"nextlsn":"0/20"}`,
		`{"action":"commit","lsn":"0/20"}`,
	)
	out := filepath.Join(dir, "seg.sql")
	endpos, err := lsn.Parse("0/20")
	require.NoError(t, err)

	require.NoError(t, transform.New(dir).TransformFile(in, out, endpos))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- ENDPOS 0/20")
}

func TestTransformFileTruncateAndKeepalive(t *testing.T) {
	dir := t.TempDir()
	in := writeSegment(t, dir, "seg.json",
		`{"action":"truncate","schema":"public","table":"orders"}`,
		`{"action":"keepalive","lsn":"0/5","timestamp":"2026-01-01 00:00:00"}`,
		`{"action":"switch","lsn":"0/6000000"}`,
	)
	out := filepath.Join(dir, "seg.sql")

	require.NoError(t, transform.New(dir).TransformFile(in, out, lsn.Zero))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	sql := string(data)
	assert.Contains(t, sql, "TRUNCATE public.orders;")
	assert.Contains(t, sql, "-- KEEPALIVE")
	assert.Contains(t, sql, "-- SWITCH")
}

func TestTransformFileUpdateWithoutIdentityErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeSegment(t, dir, "seg.json",
		`{"action":"update","schema":"public","table":"orders","columns":[{"name":"total","type":"numeric","value":1}]}`,
	)
	out := filepath.Join(dir, "seg.sql")

	err := transform.New(dir).TransformFile(in, out, lsn.Zero)
	assert.Error(t, err)
}
