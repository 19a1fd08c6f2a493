package catalog

import (
	"context"
	"database/sql"
)

// FilterObjectKind is the object kind a filter_entry row was inserted for.
type FilterObjectKind string

const (
	FilterKindTable      FilterObjectKind = "table"
	FilterKindIndex      FilterObjectKind = "index"
	FilterKindConstraint FilterObjectKind = "constraint"
	FilterKindSequence   FilterObjectKind = "sequence"
	FilterKindExtension  FilterObjectKind = "extension"
	FilterKindCollation  FilterObjectKind = "collation"
	FilterKindNamespace  FilterObjectKind = "namespace"
)

// FilterEntry is the §3/§4.B filter_entry record: one inclusion decision
// made by the filter engine. A row with oid = 0 represents a decision keyed
// only by restore_list_name (used for objects, such as some constraints,
// that the archive catalog addresses by name rather than oid); the partial
// unique index on oid only applies when oid > 0, so any number of
// oid-less rows may coexist.
type FilterEntry struct {
	OID             int64
	RestoreListName string
	Kind            FilterObjectKind
}

// AddFilterEntry appends one inclusion decision. filter_entry is additive
// and write-once per run: once the filter pass has completed, every
// downstream consumer (archive restore, copy scheduling) treats its
// contents as fixed for the duration of the run.
func (s *Store) AddFilterEntry(ctx context.Context, e FilterEntry) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO filter_entry (oid, restore_list_name, kind) VALUES (?, ?, ?)`,
			e.OID, e.RestoreListName, string(e.Kind))
		return err
	})
}

// IsIncluded reports whether oid has been recorded as an included object.
func (s *Store) IsIncluded(ctx context.Context, oid int64) (bool, error) {
	var n int
	err := s.withRead(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM filter_entry WHERE oid = ?`, oid).Scan(&n)
	})
	return n > 0, err
}

// ListFilterEntries returns every recorded inclusion decision, optionally
// restricted to one object kind (pass "" for all kinds).
func (s *Store) ListFilterEntries(ctx context.Context, kind FilterObjectKind) (*Iterator[FilterEntry], error) {
	if kind == "" {
		rows, err := s.db.QueryContext(ctx, `SELECT oid, restore_list_name, kind FROM filter_entry`)
		if err != nil {
			return nil, err
		}
		return newIterator(rows, scanFilterEntry), nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT oid, restore_list_name, kind FROM filter_entry WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanFilterEntry), nil
}

func scanFilterEntry(rows *sql.Rows) (FilterEntry, error) {
	var e FilterEntry
	var kind string
	err := rows.Scan(&e.OID, &e.RestoreListName, &kind)
	e.Kind = FilterObjectKind(kind)
	return e, err
}
