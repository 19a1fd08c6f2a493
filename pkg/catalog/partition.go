package catalog

import (
	"context"
	"database/sql"
)

// TablePart is the §3 s_table_part record: one claimable range of a
// partitioned table's copy work, bounded by [Min, Max) in whatever key
// space the partitioner chose (integer pkey value or ctid block number,
// both carried as their text representation so the catalog stays agnostic
// to the partitioning strategy). The last part of an integer-key plan is
// the exception: its Max is the key's observed maximum and is inclusive.
type TablePart struct {
	TableOID  int64
	PartNum   int32
	PartCount int32
	Min       string
	Max       string
	RowCount  int64
}

// AddTablePart inserts (or replaces) one partition row in its own write
// transaction. A table's parts are added one call at a time, so a
// concurrent reader can observe a partial partition set while they are
// being recorded.
func (s *Store) AddTablePart(ctx context.Context, p TablePart) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_table_part
			(table_oid, partnum, partcount, min, max, row_count)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(table_oid, partnum) DO UPDATE SET
				partcount=excluded.partcount, min=excluded.min, max=excluded.max, row_count=excluded.row_count`,
			p.TableOID, p.PartNum, p.PartCount, p.Min, p.Max, p.RowCount)
		return err
	})
}

// ListTableParts returns every partition of tableOID in partnum order.
func (s *Store) ListTableParts(ctx context.Context, tableOID int64) (*Iterator[TablePart], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_oid, partnum, partcount, min, max, row_count
		FROM s_table_part WHERE table_oid = ? ORDER BY partnum`, tableOID)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanTablePart), nil
}

func scanTablePart(rows *sql.Rows) (TablePart, error) {
	var p TablePart
	err := rows.Scan(&p.TableOID, &p.PartNum, &p.PartCount, &p.Min, &p.Max, &p.RowCount)
	return p, err
}

// HasTableParts reports whether tableOID already has a partition plan,
// letting a resumed run skip re-partitioning.
func (s *Store) HasTableParts(ctx context.Context, tableOID int64) (bool, error) {
	var n int
	err := s.withRead(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM s_table_part WHERE table_oid = ?`, tableOID).Scan(&n)
	})
	return n > 0, err
}
