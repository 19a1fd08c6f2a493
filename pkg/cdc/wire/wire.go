// Package wire defines the JSON segment-file record shapes shared between
// the CDC receiver, transformer and applier: the wal2json-style decoded
// message, and the synthetic records (SWITCH, ENDPOS) the pipeline
// interleaves with real replication data.
package wire

import "github.com/pgbulk/pgbulk/pkg/lsn"

// MessageKind identifies a decoded replication message or a synthetic
// pipeline marker.
type MessageKind string

const (
	KindBegin     MessageKind = "begin"
	KindCommit    MessageKind = "commit"
	KindInsert    MessageKind = "insert"
	KindUpdate    MessageKind = "update"
	KindDelete    MessageKind = "delete"
	KindTruncate  MessageKind = "truncate"
	KindKeepalive MessageKind = "keepalive"
	KindSwitch    MessageKind = "switch"
	KindEndpos    MessageKind = "endpos"
)

// Column is one column value in a wal2json-style row image.
type Column struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Message is one decoded replication event as written to a segment file by
// the receiver, consumed by the transformer. Fields are a superset of
// wal2json format-version=2's shape with include-xids/include-lsn/
// include-transaction enabled; not every field is populated for every
// Kind.
type Message struct {
	Kind      MessageKind `json:"action"`
	LSN       lsn.LSN     `json:"lsn,omitempty"`
	CommitLSN lsn.LSN     `json:"nextlsn,omitempty"`
	Xid       int64       `json:"xid,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`

	Schema string `json:"schema,omitempty"`
	Table  string `json:"table,omitempty"`

	Columns    []Column `json:"columns,omitempty"`
	Identity   []Column `json:"identity,omitempty"`
	OldColumns []Column `json:"oldkeys,omitempty"`
}

// Qualified returns the message's schema-qualified target table name.
func (m Message) Qualified() string {
	if m.Schema == "" {
		return m.Table
	}
	return m.Schema + "." + m.Table
}
