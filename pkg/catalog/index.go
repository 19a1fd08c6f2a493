package catalog

import (
	"context"
	"database/sql"
)

// Index is the §3 s_index record: one index belonging to a tracked table.
type Index struct {
	OID        int64
	Qname      string
	TableOID   int64
	IsPrimary  bool
	IsUnique   bool
	Columns    string
	Definition string
}

// AddIndex inserts or replaces an index row.
func (s *Store) AddIndex(ctx context.Context, idx Index) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_index
			(oid, qname, table_oid, is_primary, is_unique, columns, definition)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(oid) DO UPDATE SET
				qname=excluded.qname, table_oid=excluded.table_oid, is_primary=excluded.is_primary,
				is_unique=excluded.is_unique, columns=excluded.columns, definition=excluded.definition`,
			idx.OID, idx.Qname, idx.TableOID, boolToInt(idx.IsPrimary), boolToInt(idx.IsUnique),
			idx.Columns, idx.Definition)
		return err
	})
}

// ListIndexes returns every index belonging to tableOID.
func (s *Store) ListIndexes(ctx context.Context, tableOID int64) (*Iterator[Index], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT oid, qname, table_oid, is_primary, is_unique, columns, definition
		FROM s_index WHERE table_oid = ? ORDER BY oid`, tableOID)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanIndex), nil
}

// ListAllIndexes returns every index in the catalog.
func (s *Store) ListAllIndexes(ctx context.Context) (*Iterator[Index], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT oid, qname, table_oid, is_primary, is_unique, columns, definition
		FROM s_index ORDER BY table_oid, oid`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanIndex), nil
}

func scanIndex(rows *sql.Rows) (Index, error) {
	var idx Index
	var primary, unique int
	err := rows.Scan(&idx.OID, &idx.Qname, &idx.TableOID, &primary, &unique, &idx.Columns, &idx.Definition)
	idx.IsPrimary = primary != 0
	idx.IsUnique = unique != 0
	return idx, err
}

// Constraint is the §3 s_constraint record: one constraint, optionally
// backed by an index (primary key / unique / exclusion constraints carry an
// index_oid; check constraints do not).
type Constraint struct {
	OID          int64
	Name         string
	IndexOID     sql.NullInt64
	IsDeferrable bool
	IsDeferred   bool
	Definition   string
}

// AddConstraint inserts or replaces a constraint row.
func (s *Store) AddConstraint(ctx context.Context, c Constraint) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_constraint
			(oid, name, index_oid, is_deferrable, is_deferred, definition)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(oid) DO UPDATE SET
				name=excluded.name, index_oid=excluded.index_oid,
				is_deferrable=excluded.is_deferrable, is_deferred=excluded.is_deferred, definition=excluded.definition`,
			c.OID, c.Name, c.IndexOID, boolToInt(c.IsDeferrable), boolToInt(c.IsDeferred), c.Definition)
		return err
	})
}

// ListConstraints returns every tracked constraint.
func (s *Store) ListConstraints(ctx context.Context) (*Iterator[Constraint], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT oid, name, index_oid, is_deferrable, is_deferred, definition
		FROM s_constraint ORDER BY oid`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanConstraint), nil
}

func scanConstraint(rows *sql.Rows) (Constraint, error) {
	var c Constraint
	var deferrable, deferred int
	err := rows.Scan(&c.OID, &c.Name, &c.IndexOID, &deferrable, &deferred, &c.Definition)
	c.IsDeferrable = deferrable != 0
	c.IsDeferred = deferred != 0
	return c, err
}
