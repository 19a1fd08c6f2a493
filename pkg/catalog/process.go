package catalog

import (
	"context"
	"database/sql"
)

// ProcessRole identifies what kind of worker a process row represents.
type ProcessRole string

const (
	RoleCopyWorker  ProcessRole = "copy"
	RoleIndexWorker ProcessRole = "index"
	RoleReceiver    ProcessRole = "receive"
	RoleApplier     ProcessRole = "apply"
	RoleController  ProcessRole = "control"
)

// Process is the §3 process record: a live claim on a unit of work,
// keyed by the claiming OS pid so a liveness scan can detect and clear
// claims left behind by a process that vanished without releasing them.
type Process struct {
	PID      int
	Role     ProcessRole
	Title    string
	TableOID sql.NullInt64
	PartNum  sql.NullInt32
	IndexOID sql.NullInt64
}

// ErrNoWork is returned by ClaimTablePart/ClaimIndex when nothing remains
// unclaimed.
var ErrNoWork = errNoWork{}

type errNoWork struct{}

func (errNoWork) Error() string { return "catalog: no unclaimed work remains" }

// Register inserts this process's claim row. Called once at worker
// startup before any claim is attempted, and again (idempotently, via
// REPLACE) each time the process claims a new unit.
func (s *Store) Register(ctx context.Context, p Process) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO process (pid, role, title, table_oid, partnum, index_oid)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(pid) DO UPDATE SET
				role=excluded.role, title=excluded.title, table_oid=excluded.table_oid,
				partnum=excluded.partnum, index_oid=excluded.index_oid`,
			p.PID, string(p.Role), p.Title, p.TableOID, p.PartNum, p.IndexOID)
		return err
	})
}

// Unregister removes this process's claim row, releasing any unit it held.
func (s *Store) Unregister(ctx context.Context, pid int) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM process WHERE pid = ?`, pid)
		return err
	})
}

// ListProcesses returns every live claim, for `list progress` and for the
// liveness scan driven by the caller's own pid-alive check (platform
// specific; the catalog only stores and returns pids).
func (s *Store) ListProcesses(ctx context.Context) (*Iterator[Process], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pid, role, title, table_oid, partnum, index_oid FROM process ORDER BY pid`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanProcess), nil
}

func scanProcess(rows *sql.Rows) (Process, error) {
	var p Process
	var role string
	err := rows.Scan(&p.PID, &role, &p.Title, &p.TableOID, &p.PartNum, &p.IndexOID)
	p.Role = ProcessRole(role)
	return p, err
}

// ClaimTablePart atomically picks one partition of tableOID that has no
// completed summary row and no live process claim, and records pid's claim
// on it in the same transaction, so two workers never race onto the same
// partition (§4.E pull-based claim-a-unit scheduling).
func (s *Store) ClaimTablePart(ctx context.Context, pid int, title string, tableOID int64) (*TablePart, error) {
	var part TablePart
	err := s.withWrite(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT tp.table_oid, tp.partnum, tp.partcount, tp.min, tp.max, tp.row_count
			FROM s_table_part tp
			WHERE tp.table_oid = ?
			  AND NOT EXISTS (SELECT 1 FROM summary sm WHERE sm.table_oid = tp.table_oid AND sm.partnum = tp.partnum AND sm.index_oid IS NULL AND sm.done_epoch IS NOT NULL)
			  AND NOT EXISTS (SELECT 1 FROM process pr WHERE pr.table_oid = tp.table_oid AND pr.partnum = tp.partnum)
			ORDER BY tp.partnum LIMIT 1`, tableOID)
		if err := row.Scan(&part.TableOID, &part.PartNum, &part.PartCount, &part.Min, &part.Max, &part.RowCount); err != nil {
			if err == sql.ErrNoRows {
				return ErrNoWork
			}
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO process (pid, role, title, table_oid, partnum, index_oid)
			VALUES (?, ?, ?, ?, ?, NULL)
			ON CONFLICT(pid) DO UPDATE SET role=excluded.role, title=excluded.title,
				table_oid=excluded.table_oid, partnum=excluded.partnum, index_oid=NULL`,
			pid, string(RoleCopyWorker), title, part.TableOID, part.PartNum)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &part, nil
}

// ClaimIndex atomically picks one index with no completed summary row and
// no live process claim, from a table whose partitions have all completed,
// preferring the largest owning table first, and records pid's claim on
// it.
func (s *Store) ClaimIndex(ctx context.Context, pid int, title string) (*Index, error) {
	var idx Index
	err := s.withWrite(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT si.oid, si.qname, si.table_oid, si.is_primary, si.is_unique, si.columns, si.definition
			FROM s_index si
			JOIN s_table st ON st.oid = si.table_oid
			WHERE NOT EXISTS (SELECT 1 FROM summary sm WHERE sm.index_oid = si.oid AND sm.done_epoch IS NOT NULL)
			  AND NOT EXISTS (SELECT 1 FROM process pr WHERE pr.index_oid = si.oid)
			  AND NOT EXISTS (
			    SELECT 1 FROM s_table_part tp
			    WHERE tp.table_oid = si.table_oid
			      AND NOT EXISTS (
			        SELECT 1 FROM summary sm2
			        WHERE sm2.table_oid = tp.table_oid AND sm2.partnum = tp.partnum
			          AND sm2.index_oid IS NULL AND sm2.done_epoch IS NOT NULL
			      )
			  )
			ORDER BY st.bytes DESC, si.oid LIMIT 1`)
		var primary, unique int
		if err := row.Scan(&idx.OID, &idx.Qname, &idx.TableOID, &primary, &unique, &idx.Columns, &idx.Definition); err != nil {
			if err == sql.ErrNoRows {
				return ErrNoWork
			}
			return err
		}
		idx.IsPrimary, idx.IsUnique = primary != 0, unique != 0
		_, err := tx.ExecContext(ctx, `INSERT INTO process (pid, role, title, table_oid, partnum, index_oid)
			VALUES (?, ?, ?, NULL, NULL, ?)
			ON CONFLICT(pid) DO UPDATE SET role=excluded.role, title=excluded.title,
				table_oid=NULL, partnum=NULL, index_oid=excluded.index_oid`,
			pid, string(RoleIndexWorker), title, idx.OID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &idx, nil
}
