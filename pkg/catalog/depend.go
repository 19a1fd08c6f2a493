package catalog

import (
	"context"
	"database/sql"
)

// Depend is the §3 s_depend record: one pg_depend edge captured at fetch
// time, read by the filter engine's pg_depend pass. Extensions and
// collations are not decided from these edges; the filter engine handles
// them only through its global skip switches.
type Depend struct {
	Nspname    string
	Relname    string
	RefClassID int64
	RefObjID   int64
	ClassID    int64
	ObjID      int64
	DepType    string
	Type       string
	Identity   string
}

// AddDepend inserts one dependency edge. The table has no primary key;
// duplicates are harmless since every consumer treats it as a multiset
// scanned in full per fetch run.
func (s *Store) AddDepend(ctx context.Context, d Depend) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO s_depend
			(nspname, relname, refclassid, refobjid, classid, objid, deptype, type, identity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Nspname, d.Relname, d.RefClassID, d.RefObjID, d.ClassID, d.ObjID, d.DepType, d.Type, d.Identity)
		return err
	})
}

// ListDepends returns every captured dependency edge.
func (s *Store) ListDepends(ctx context.Context) (*Iterator[Depend], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT nspname, relname, refclassid, refobjid, classid, objid, deptype, type, identity
		FROM s_depend`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanDepend), nil
}

// ListDependsOn returns every edge whose referenced object matches
// (refClassID, refObjID) -- "what depends on this extension/collation".
func (s *Store) ListDependsOn(ctx context.Context, refClassID, refObjID int64) (*Iterator[Depend], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT nspname, relname, refclassid, refobjid, classid, objid, deptype, type, identity
		FROM s_depend WHERE refclassid = ? AND refobjid = ?`, refClassID, refObjID)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanDepend), nil
}

func scanDepend(rows *sql.Rows) (Depend, error) {
	var d Depend
	err := rows.Scan(&d.Nspname, &d.Relname, &d.RefClassID, &d.RefObjID, &d.ClassID, &d.ObjID, &d.DepType, &d.Type, &d.Identity)
	return d, err
}
