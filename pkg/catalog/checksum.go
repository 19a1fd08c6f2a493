package catalog

import (
	"context"
	"database/sql"
)

// Checksum is the §3 s_checksum record: the post-copy verification result
// for one table, comparing row counts and an aggregate checksum computed
// on each side.
type Checksum struct {
	TableOID       int64
	SourceRowCount int64
	SourceChecksum string
	TargetRowCount int64
	TargetChecksum string
}

// Match reports whether the source and target sides agree.
func (c Checksum) Match() bool {
	return c.SourceRowCount == c.TargetRowCount && c.SourceChecksum == c.TargetChecksum
}

// SetChecksum upserts the verification result for a table.
func (s *Store) SetChecksum(ctx context.Context, c Checksum) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_checksum
			(table_oid, source_row_count, source_checksum, target_row_count, target_checksum)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(table_oid) DO UPDATE SET
				source_row_count=excluded.source_row_count, source_checksum=excluded.source_checksum,
				target_row_count=excluded.target_row_count, target_checksum=excluded.target_checksum`,
			c.TableOID, c.SourceRowCount, c.SourceChecksum, c.TargetRowCount, c.TargetChecksum)
		return err
	})
}

// GetChecksum returns the verification result for a table, or nil if it has
// not been computed yet.
func (s *Store) GetChecksum(ctx context.Context, tableOID int64) (*Checksum, error) {
	var c Checksum
	err := s.withRead(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT table_oid, source_row_count, source_checksum,
			target_row_count, target_checksum FROM s_checksum WHERE table_oid = ?`, tableOID)
		return row.Scan(&c.TableOID, &c.SourceRowCount, &c.SourceChecksum, &c.TargetRowCount, &c.TargetChecksum)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChecksums returns every recorded checksum.
func (s *Store) ListChecksums(ctx context.Context) (*Iterator[Checksum], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_oid, source_row_count, source_checksum,
		target_row_count, target_checksum FROM s_checksum ORDER BY table_oid`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanChecksum), nil
}

func scanChecksum(rows *sql.Rows) (Checksum, error) {
	var c Checksum
	err := rows.Scan(&c.TableOID, &c.SourceRowCount, &c.SourceChecksum, &c.TargetRowCount, &c.TargetChecksum)
	return c, err
}
