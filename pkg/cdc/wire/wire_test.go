package wire_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/cdc/wire"
	"github.com/pgbulk/pgbulk/pkg/lsn"
)

func TestQualifiedWithAndWithoutSchema(t *testing.T) {
	assert.Equal(t, "public.orders", wire.Message{Schema: "public", Table: "orders"}.Qualified())
	assert.Equal(t, "orders", wire.Message{Table: "orders"}.Qualified())
}

func TestMessageDecodesWal2JSONShape(t *testing.T) {
	raw := `{"action":"insert","lsn":"0/1A2B","xid":99,"schema":"public","table":"orders",
		"columns":[{"name":"id","type":"int4","value":1}]}`

	var msg wire.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, wire.KindInsert, msg.Kind)
	assert.Equal(t, lsn.MustParse("0/1A2B"), msg.LSN)
	assert.Equal(t, int64(99), msg.Xid)
	assert.Equal(t, "public.orders", msg.Qualified())
	require.Len(t, msg.Columns, 1)
	assert.Equal(t, "id", msg.Columns[0].Name)
}

func TestMessageOmitsZeroLSNFields(t *testing.T) {
	b, err := json.Marshal(wire.Message{Kind: wire.KindTruncate, Schema: "public", Table: "orders"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"lsn"`)
	assert.NotContains(t, string(b), `"nextlsn"`)
}
