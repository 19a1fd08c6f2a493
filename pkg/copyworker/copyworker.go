// Package copyworker executes one copy unit (a table, or one partition of
// it) end to end: a snapshot-consistent streaming COPY from the source
// piped directly into a COPY FROM STDIN on the target, using pgx's raw
// COPY protocol support the way the corpus' bulk-loading examples drive
// the COPY protocol directly rather than buffering rows in Go.
package copyworker

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/pgconn"
)

// Worker executes copy units claimed from the scheduler.
type Worker struct {
	pid      int
	source   *pgconn.DB
	target   *pgconn.DB
	store    *catalog.Store
	snapshot string
}

// New returns a Worker that copies from source to target, recording
// progress in store. snapshotID pins every source transaction to the same
// exported snapshot for the duration of the run.
func New(pid int, source, target *pgconn.DB, store *catalog.Store, snapshotID string) *Worker {
	return &Worker{pid: pid, source: source, target: target, store: store, snapshot: snapshotID}
}

// CopyUnit copies table's data, constrained to part when non-nil, and
// records the resulting summary row. It never aborts peers: a failure is
// returned to the caller with the process claim left in place so a
// restart can discover and retry it.
func (w *Worker) CopyUnit(ctx context.Context, table catalog.Table, attrs []catalog.Attribute, part *catalog.TablePart) error {
	start := time.Now()

	cols, hasGenerated := dataColumns(attrs)
	selectList := buildSelectList(table.Qname, table.PartKey, cols, part)
	insertList := buildInsertTarget(table.Qname, cols, hasGenerated)

	srcConn, err := w.source.AcquireConn(ctx)
	if err != nil {
		return err
	}
	defer srcConn.Release()

	if _, err := srcConn.Exec(ctx, `BEGIN ISOLATION LEVEL REPEATABLE READ`); err != nil {
		return err
	}
	defer srcConn.Exec(ctx, "ROLLBACK")

	if w.snapshot != "" {
		if _, err := srcConn.Exec(ctx, `SET TRANSACTION SNAPSHOT $1`, w.snapshot); err != nil {
			return fmt.Errorf("pinning export snapshot: %w", err)
		}
	}

	tgtConn, err := w.target.AcquireConn(ctx)
	if err != nil {
		return err
	}
	defer tgtConn.Release()

	if _, err := tgtConn.Exec(ctx, "BEGIN"); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tgtConn.Exec(ctx, "ROLLBACK")
		}
	}()

	pr, pw := io.Pipe()
	copyErrCh := make(chan error, 1)
	go func() {
		_, copyErr := srcConn.Conn().PgConn().CopyTo(ctx, pw, selectList)
		pw.CloseWithError(copyErr)
		copyErrCh <- copyErr
	}()

	tag, err := tgtConn.Conn().PgConn().CopyFrom(ctx, pr, insertList)
	if err != nil {
		return fmt.Errorf("copy into target: %w", err)
	}
	if copyErr := <-copyErrCh; copyErr != nil {
		return fmt.Errorf("copy from source: %w", copyErr)
	}

	if _, err := tgtConn.Exec(ctx, "COMMIT"); err != nil {
		return err
	}
	committed = true

	return w.store.FinishSummary(ctx,
		sql.NullInt64{Int64: table.OID, Valid: true},
		partNumOf(part),
		sql.NullInt64{},
		time.Now().Unix(), time.Since(start).Milliseconds(), tag.RowsAffected())
}

// dataColumns excludes generated columns from the copy's column list,
// since generated values are computed by the target, never copied.
func dataColumns(attrs []catalog.Attribute) (cols []catalog.Attribute, hasGenerated bool) {
	for _, a := range attrs {
		if a.IsGenerated {
			hasGenerated = true
			continue
		}
		cols = append(cols, a)
	}
	return cols, hasGenerated
}

func buildSelectList(qname, partKey string, cols []catalog.Attribute, part *catalog.TablePart) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.AttName)
	}
	stmt := fmt.Sprintf(`COPY (SELECT %s FROM %s`, strings.Join(names, ", "), qname)
	if part != nil {
		stmt += " WHERE " + partitionPredicate(partKey, part)
	}
	stmt += `) TO STDOUT`
	return stmt
}

// partitionPredicate emits a ctid block-range predicate for the
// tuple-identifier fallback, or a range over partKey for the integer-key
// strategy: half-open [Min, Max) for every part but the last, whose Max is
// the key's observed maximum and is therefore included.
func partitionPredicate(partKey string, part *catalog.TablePart) string {
	if partKey == "ctid" {
		return fmt.Sprintf("ctid >= '%s'::tid AND ctid < '%s'::tid", part.Min, part.Max)
	}
	col := quoteIdent(partKey)
	upper := "<"
	if part.PartNum == part.PartCount {
		upper = "<="
	}
	return fmt.Sprintf("%s >= %s AND %s %s %s", col, part.Min, col, upper, part.Max)
}

// buildInsertTarget emits the matching COPY ... FROM STDIN, using
// OVERRIDING SYSTEM VALUE when the table carries generated columns so that
// any identity-column-by-default values copied from the source are
// respected rather than silently regenerated.
func buildInsertTarget(qname string, cols []catalog.Attribute, overriding bool) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c.AttName)
	}
	stmt := fmt.Sprintf(`COPY %s (%s) `, qname, strings.Join(names, ", "))
	if overriding {
		stmt += "OVERRIDING SYSTEM VALUE "
	}
	stmt += "FROM STDIN"
	return stmt
}

func partNumOf(part *catalog.TablePart) sql.NullInt32 {
	if part == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: part.PartNum, Valid: true}
}

func quoteIdent(s string) string { return `"` + s + `"` }
