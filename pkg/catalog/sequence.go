package catalog

import (
	"context"
	"database/sql"
)

// Sequence is the §3 s_sequence record: one sequence and, for
// column-owned sequences, its current value pair as read at snapshot time.
// OwnerTableOID is the oid of the table the sequence is OWNED BY (pg_depend
// deptype='a' refobjid), stored in the column_oid field for historical
// reasons; a pg_dump archive's DEFAULT entry for the owning attribute is
// keyed by this same table oid, not a separate attribute identifier.
type Sequence struct {
	OID           int64
	OwnerTableOID sql.NullInt64
	Qname         string
	LastValue     int64
	IsCalled      bool
}

// AddSequence inserts or replaces a sequence row.
func (s *Store) AddSequence(ctx context.Context, seq Sequence) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_sequence
			(oid, column_oid, qname, last_value, is_called)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(oid) DO UPDATE SET
				column_oid=excluded.column_oid, qname=excluded.qname,
				last_value=excluded.last_value, is_called=excluded.is_called`,
			seq.OID, seq.OwnerTableOID, seq.Qname, seq.LastValue, boolToInt(seq.IsCalled))
		return err
	})
}

// ListSequences returns every tracked sequence.
func (s *Store) ListSequences(ctx context.Context) (*Iterator[Sequence], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT oid, column_oid, qname, last_value, is_called
		FROM s_sequence ORDER BY oid`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanSequence), nil
}

func scanSequence(rows *sql.Rows) (Sequence, error) {
	var seq Sequence
	var called int
	err := rows.Scan(&seq.OID, &seq.OwnerTableOID, &seq.Qname, &seq.LastValue, &called)
	seq.IsCalled = called != 0
	return seq, err
}
