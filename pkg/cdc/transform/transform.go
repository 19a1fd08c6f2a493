// Package transform converts a segment of JSON replication messages into
// an equivalent segment of SQL statements, one per line, preserving
// message order: the second stage of the change-capture pipeline, reading
// files the receiver wrote and producing files the applier consumes.
package transform

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pgbulk/pgbulk/pkg/cdc/wire"
	"github.com/pgbulk/pgbulk/pkg/lsn"
)

// xidMeta is the per-transaction side file payload, used when the BEGIN
// message itself omits commit_lsn.
type xidMeta struct {
	CommitLSN string `json:"commit_lsn"`
	Timestamp string `json:"timestamp"`
}

// Transformer converts one JSON segment file at a time. Its prepared-
// statement fingerprint map is reset per segment, matching the applier's
// expectation that PREPARE is re-issued once per session per file.
type Transformer struct {
	Dir string // the cdc working directory, holding <xid>.json side files

	templates map[uint32]string
}

// New returns a Transformer rooted at dir.
func New(dir string) *Transformer {
	return &Transformer{Dir: dir}
}

// TransformFile reads the JSON messages in inPath and writes the
// corresponding SQL segment to outPath, truncating and recreating the
// fingerprint map for the new segment. endpos, if non-zero, is synthesised
// as a trailing ENDPOS marker when it falls strictly inside the segment.
func (t *Transformer) TransformFile(inPath, outPath string, endpos lsn.LSN) error {
	t.templates = make(map[uint32]string)

	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	defer w.Flush()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg wire.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return fmt.Errorf("decoding message: %w", err)
		}

		if err := t.emit(w, msg); err != nil {
			return err
		}

		if endpos != lsn.Zero && msg.Kind == wire.KindCommit && endpos <= msg.LSN {
			fmt.Fprintf(w, "-- ENDPOS %s\n", endpos)
		}
	}
	return sc.Err()
}

func (t *Transformer) emit(w io.Writer, msg wire.Message) error {
	switch msg.Kind {
	case wire.KindBegin:
		return t.emitBegin(w, msg)
	case wire.KindCommit:
		_, err := fmt.Fprintln(w, "COMMIT;")
		return err
	case wire.KindInsert, wire.KindUpdate, wire.KindDelete:
		return t.emitDML(w, msg)
	case wire.KindTruncate:
		_, err := fmt.Fprintf(w, "TRUNCATE %s;\n", msg.Qualified())
		return err
	case wire.KindKeepalive:
		_, err := fmt.Fprintf(w, "-- KEEPALIVE {lsn=%s,ts=%q}\n", msg.LSN, msg.Timestamp)
		return err
	case wire.KindSwitch:
		_, err := fmt.Fprintf(w, "-- SWITCH {%s}\n", msg.LSN)
		return err
	default:
		return fmt.Errorf("transform: unhandled message kind %q", msg.Kind)
	}
}

// emitBegin resolves commit_lsn from the message or, if absent, from the
// transaction's side file, and writes the BEGIN comment the applier scans
// for its reached-end check.
func (t *Transformer) emitBegin(w io.Writer, msg wire.Message) error {
	commitLSN := msg.CommitLSN
	if commitLSN == lsn.Zero {
		if meta, err := t.readXidMeta(msg.Xid); err == nil {
			if parsed, err := lsn.Parse(meta.CommitLSN); err == nil {
				commitLSN = parsed
			}
		}
	}
	_, err := fmt.Fprintf(w, "-- BEGIN {lsn=%s,xid=%d,ts=%q,commit_lsn=%s}\n",
		msg.LSN, msg.Xid, msg.Timestamp, commitLSN)
	return err
}

func (t *Transformer) readXidMeta(xid int64) (xidMeta, error) {
	path := filepath.Join(t.Dir, fmt.Sprintf("%d.json", xid))
	data, err := os.ReadFile(path)
	if err != nil {
		return xidMeta{}, err
	}
	var meta xidMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return xidMeta{}, err
	}
	return meta, nil
}

// emitDML emits a lazily-prepared statement template on first occurrence
// of its fingerprint, then always the matching EXECUTE with the row's
// values bound positionally.
func (t *Transformer) emitDML(w io.Writer, msg wire.Message) error {
	template, params, err := buildTemplate(msg)
	if err != nil {
		return err
	}
	fp := fingerprint(template)

	if t.templates[fp] != template {
		if _, err := fmt.Fprintf(w, "PREPARE p%08x AS %s;\n", fp, template); err != nil {
			return err
		}
		t.templates[fp] = template
	}

	encodedParams, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "EXECUTE p%08x%s;\n", fp, encodedParams)
	return err
}

// fingerprint is a 32-bit FNV hash of a statement template, used to
// deduplicate PREPARE issuance within a segment.
func fingerprint(template string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(template))
	return h.Sum32()
}

// buildTemplate renders the parameterised INSERT/UPDATE/DELETE statement
// and its bound values for one decoded row change.
func buildTemplate(msg wire.Message) (string, []any, error) {
	switch msg.Kind {
	case wire.KindInsert:
		return buildInsert(msg)
	case wire.KindUpdate:
		return buildUpdate(msg)
	case wire.KindDelete:
		return buildDelete(msg)
	default:
		return "", nil, fmt.Errorf("transform: %q is not a row change", msg.Kind)
	}
}

func buildInsert(msg wire.Message) (string, []any, error) {
	names := make([]string, len(msg.Columns))
	placeholders := make([]string, len(msg.Columns))
	params := make([]any, len(msg.Columns))
	for i, c := range msg.Columns {
		names[i] = quoteIdent(c.Name)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		params[i] = c.Value
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		msg.Qualified(), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return stmt, params, nil
}

func buildUpdate(msg wire.Message) (string, []any, error) {
	identity := msg.Identity
	if len(identity) == 0 {
		identity = msg.OldColumns
	}
	if len(identity) == 0 {
		return "", nil, fmt.Errorf("transform: update on %s has no identity columns", msg.Qualified())
	}

	sets := make([]string, len(msg.Columns))
	params := make([]any, 0, len(msg.Columns)+len(identity))
	n := 1
	for i, c := range msg.Columns {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(c.Name), n)
		params = append(params, c.Value)
		n++
	}

	wheres := make([]string, len(identity))
	for i, c := range identity {
		wheres[i] = fmt.Sprintf("%s = $%d", quoteIdent(c.Name), n)
		params = append(params, c.Value)
		n++
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		msg.Qualified(), strings.Join(sets, ", "), strings.Join(wheres, " AND "))
	return stmt, params, nil
}

func buildDelete(msg wire.Message) (string, []any, error) {
	identity := msg.Identity
	if len(identity) == 0 {
		identity = msg.OldColumns
	}
	if len(identity) == 0 {
		return "", nil, fmt.Errorf("transform: delete on %s has no identity columns", msg.Qualified())
	}

	wheres := make([]string, len(identity))
	params := make([]any, len(identity))
	for i, c := range identity {
		wheres[i] = fmt.Sprintf("%s = $%d", quoteIdent(c.Name), i+1)
		params[i] = c.Value
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", msg.Qualified(), strings.Join(wheres, " AND "))
	return stmt, params, nil
}

func quoteIdent(s string) string { return `"` + s + `"` }
