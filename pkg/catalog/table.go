package catalog

import (
	"context"
	"database/sql"
)

// Table is the §3 s_table record: one source or target relation with its
// partitioning key and size estimate.
type Table struct {
	OID             int64
	Qname           string
	Nspname         string
	Relname         string
	AMName          string
	RestoreListName string
	RelPages        int64
	RelTuples       float64
	ExcludeData     bool
	PartKey         string
	Bytes           int64
}

// AddTable inserts or replaces a table row.
func (s *Store) AddTable(ctx context.Context, t Table) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_table
			(oid, qname, nspname, relname, amname, restore_list_name, rel_pages, rel_tuples, exclude_data, part_key, bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(oid) DO UPDATE SET
				qname=excluded.qname, nspname=excluded.nspname, relname=excluded.relname,
				amname=excluded.amname, restore_list_name=excluded.restore_list_name,
				rel_pages=excluded.rel_pages, rel_tuples=excluded.rel_tuples,
				exclude_data=excluded.exclude_data, part_key=excluded.part_key, bytes=excluded.bytes`,
			t.OID, t.Qname, t.Nspname, t.Relname, t.AMName, t.RestoreListName,
			t.RelPages, t.RelTuples, boolToInt(t.ExcludeData), t.PartKey, t.Bytes)
		return err
	})
}

// GetTable looks up a table by oid. Returns nil, nil if absent.
func (s *Store) GetTable(ctx context.Context, oid int64) (*Table, error) {
	var t Table
	var exclude int
	err := s.withRead(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT oid, qname, nspname, relname, amname, restore_list_name,
			rel_pages, rel_tuples, exclude_data, part_key, bytes FROM s_table WHERE oid = ?`, oid)
		return row.Scan(&t.OID, &t.Qname, &t.Nspname, &t.Relname, &t.AMName, &t.RestoreListName,
			&t.RelPages, &t.RelTuples, &exclude, &t.PartKey, &t.Bytes)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.ExcludeData = exclude != 0
	return &t, nil
}

// ListTables returns every table in oid order.
func (s *Store) ListTables(ctx context.Context) (*Iterator[Table], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT oid, qname, nspname, relname, amname, restore_list_name,
		rel_pages, rel_tuples, exclude_data, part_key, bytes FROM s_table ORDER BY oid`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanTable), nil
}

func scanTable(rows *sql.Rows) (Table, error) {
	var t Table
	var exclude int
	err := rows.Scan(&t.OID, &t.Qname, &t.Nspname, &t.Relname, &t.AMName, &t.RestoreListName,
		&t.RelPages, &t.RelTuples, &exclude, &t.PartKey, &t.Bytes)
	t.ExcludeData = exclude != 0
	return t, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Attribute is the §3 s_attr record: one column of a tracked table.
type Attribute struct {
	TableOID    int64
	AttNum      int32
	AttTypeOID  int64
	AttName     string
	IsPKey      bool
	IsGenerated bool
}

// AddAttribute inserts or replaces a column row.
func (s *Store) AddAttribute(ctx context.Context, a Attribute) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_attr
			(table_oid, attnum, atttypid, attname, is_pkey, is_generated)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(table_oid, attnum) DO UPDATE SET
				atttypid=excluded.atttypid, attname=excluded.attname,
				is_pkey=excluded.is_pkey, is_generated=excluded.is_generated`,
			a.TableOID, a.AttNum, a.AttTypeOID, a.AttName, boolToInt(a.IsPKey), boolToInt(a.IsGenerated))
		return err
	})
}

// ListAttributes returns every column of tableOID in attnum order.
func (s *Store) ListAttributes(ctx context.Context, tableOID int64) (*Iterator[Attribute], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_oid, attnum, atttypid, attname, is_pkey, is_generated
		FROM s_attr WHERE table_oid = ? ORDER BY attnum`, tableOID)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanAttribute), nil
}

func scanAttribute(rows *sql.Rows) (Attribute, error) {
	var a Attribute
	var pkey, generated int
	err := rows.Scan(&a.TableOID, &a.AttNum, &a.AttTypeOID, &a.AttName, &pkey, &generated)
	a.IsPKey = pkey != 0
	a.IsGenerated = generated != 0
	return a, err
}
