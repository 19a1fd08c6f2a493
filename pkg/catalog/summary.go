package catalog

import (
	"context"
	"database/sql"
)

// Summary is the §3 summary record: the timing and byte-count history of
// one completed (or in-flight) unit of work -- a table's data copy, one
// partition of it, or one index build.
type Summary struct {
	TableOID   sql.NullInt64
	PartNum    sql.NullInt32
	IndexOID   sql.NullInt64
	PID        int
	StartEpoch int64
	DoneEpoch  sql.NullInt64
	DurationMS sql.NullInt64
	Bytes      int64
	Command    string
}

// StartSummary records that pid has begun a unit of work.
func (s *Store) StartSummary(ctx context.Context, sum Summary) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO summary
			(table_oid, partnum, index_oid, pid, start_epoch, bytes, command)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sum.TableOID, sum.PartNum, sum.IndexOID, sum.PID, sum.StartEpoch, sum.Bytes, sum.Command)
		return err
	})
}

// FinishSummary records completion of the most recent in-flight summary row
// matching the given unit, setting its done epoch, duration, and final byte
// count.
func (s *Store) FinishSummary(ctx context.Context, tableOID sql.NullInt64, partNum sql.NullInt32, indexOID sql.NullInt64, doneEpoch, durationMS, bytes int64) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE summary SET done_epoch = ?, duration_ms = ?, bytes = ?
			WHERE rowid = (
				SELECT rowid FROM summary
				WHERE table_oid IS ? AND partnum IS ? AND index_oid IS ? AND done_epoch IS NULL
				ORDER BY start_epoch DESC LIMIT 1
			)`, doneEpoch, durationMS, bytes, tableOID, partNum, indexOID)
		return err
	})
}

// ListSummaries returns the full work history, most recent first, for the
// `list progress` command.
func (s *Store) ListSummaries(ctx context.Context) (*Iterator[Summary], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_oid, partnum, index_oid, pid, start_epoch, done_epoch, duration_ms, bytes, command
		FROM summary ORDER BY start_epoch DESC`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanSummary), nil
}

func scanSummary(rows *sql.Rows) (Summary, error) {
	var sm Summary
	err := rows.Scan(&sm.TableOID, &sm.PartNum, &sm.IndexOID, &sm.PID, &sm.StartEpoch, &sm.DoneEpoch, &sm.DurationMS, &sm.Bytes, &sm.Command)
	return sm, err
}
