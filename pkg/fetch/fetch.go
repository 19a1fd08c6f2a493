// Package fetch populates a catalog store from a live Postgres database's
// system catalogs, one routine per entity of the data model, grounded on
// the corpus' pg_catalog introspection queries (a single-connection,
// CTE-heavy style) adapted to write straight into the catalog store
// instead of an in-memory snapshot.
package fetch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/pgconn"
)

// Fetcher populates one catalog.Store from one Postgres database.
type Fetcher struct {
	db    *pgconn.DB
	store *catalog.Store
}

// New returns a Fetcher that reads from db and writes into store.
func New(db *pgconn.DB, store *catalog.Store) *Fetcher {
	return &Fetcher{db: db, store: store}
}

// snapshotTx runs fn against a transaction that has set its snapshot to
// snapshotID when non-empty, so every fetch routine in a run observes
// exactly the same view of the source. Disabling system-catalog index
// scans sidesteps a known planner pathology when pg_attribute/pg_class
// statistics are stale on a freshly-restored or very large catalog.
func (f *Fetcher) snapshotTx(ctx context.Context, snapshotID string, fn func(pgx.Tx) error) error {
	return f.db.WithRetryableTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET LOCAL enable_indexscan = off`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `SET LOCAL enable_bitmapscan = off`); err != nil {
			return err
		}
		if snapshotID != "" {
			if _, err := tx.Exec(ctx, `SET TRANSACTION SNAPSHOT $1`, snapshotID); err != nil {
				return fmt.Errorf("setting shared snapshot: %w", err)
			}
		}
		return fn(tx)
	})
}

// FetchTables loads every ordinary table and materialized view visible in
// the given schemas (nil/empty means all non-system schemas), along with
// its size estimate from pg_class and, opportunistically, from
// pg_stat_user_tables.
func (f *Fetcher) FetchTables(ctx context.Context, snapshotID string, schemas []string) error {
	return f.snapshotTx(ctx, snapshotID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT c.oid, n.nspname, c.relname, c.relam::regclass::text, c.relpages, c.reltuples,
			       COALESCE(st.n_live_tup, 0) AS live_tup
			FROM pg_catalog.pg_class c
			JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
			LEFT JOIN pg_catalog.pg_stat_user_tables st ON st.relid = c.oid
			WHERE c.relkind IN ('r', 'm')
			  AND n.nspname != ALL ('{pg_catalog,information_schema,pg_toast}')
			  AND (cardinality($1::text[]) = 0 OR n.nspname = ANY ($1))
			ORDER BY c.oid`, schemas)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var oid int64
			var nspname, relname, amname string
			var relpages int64
			var reltuples float64
			var liveTup int64
			if err := rows.Scan(&oid, &nspname, &relname, &amname, &relpages, &reltuples, &liveTup); err != nil {
				return err
			}
			tuples := reltuples
			if tuples <= 0 && liveTup > 0 {
				tuples = float64(liveTup)
			}
			t := catalog.Table{
				OID:             oid,
				Qname:           qualify(nspname, relname),
				Nspname:         nspname,
				Relname:         relname,
				AMName:          amname,
				RestoreListName: relname,
				RelPages:        relpages,
				RelTuples:       tuples,
				Bytes:           relpages * 8192,
			}
			if err := f.store.AddTable(ctx, t); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// FetchRowCountEstimate falls back to an exact count(*) for a table whose
// pg_class statistics look stale (relpages == 0 on a table that isn't
// actually empty), matching the corpus' count(*)-fallback convention for
// size estimation.
func (f *Fetcher) FetchRowCountEstimate(ctx context.Context, qname string) (int64, error) {
	var n int64
	row := f.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, qname))
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// FetchAttributes loads every live, non-dropped column of tableOID along
// with whether it participates in the primary key and whether it is
// generated.
func (f *Fetcher) FetchAttributes(ctx context.Context, snapshotID string, tableOID int64) error {
	return f.snapshotTx(ctx, snapshotID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT a.attnum, a.atttypid, a.attname,
			       COALESCE(a.attnum = ANY (i.indkey), false) AS is_pkey,
			       a.attgenerated != '' AS is_generated
			FROM pg_catalog.pg_attribute a
			LEFT JOIN pg_catalog.pg_index i ON i.indrelid = a.attrelid AND i.indisprimary
			WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
			ORDER BY a.attnum`, tableOID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a catalog.Attribute
			a.TableOID = tableOID
			if err := rows.Scan(&a.AttNum, &a.AttTypeOID, &a.AttName, &a.IsPKey, &a.IsGenerated); err != nil {
				return err
			}
			if err := f.store.AddAttribute(ctx, a); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// FetchIndexes loads every index belonging to tracked tables.
func (f *Fetcher) FetchIndexes(ctx context.Context, snapshotID string) error {
	return f.snapshotTx(ctx, snapshotID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT ci.oid, n.nspname || '.' || ci.relname, i.indrelid, i.indisprimary, i.indisunique,
			       COALESCE((SELECT array_to_string(array_agg(a.attname ORDER BY k.ord), ',')
			                 FROM unnest(i.indkey) WITH ORDINALITY AS k(attnum, ord)
			                 JOIN pg_catalog.pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = k.attnum), ''),
			       pg_catalog.pg_get_indexdef(ci.oid)
			FROM pg_catalog.pg_index i
			JOIN pg_catalog.pg_class ci ON ci.oid = i.indexrelid
			JOIN pg_catalog.pg_class ct ON ct.oid = i.indrelid
			JOIN pg_catalog.pg_namespace n ON n.oid = ci.relnamespace
			WHERE ct.relkind IN ('r', 'm')`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var idx catalog.Index
			if err := rows.Scan(&idx.OID, &idx.Qname, &idx.TableOID, &idx.IsPrimary, &idx.IsUnique, &idx.Columns, &idx.Definition); err != nil {
				return err
			}
			if err := f.store.AddIndex(ctx, idx); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// FetchConstraints loads every constraint on tracked tables.
func (f *Fetcher) FetchConstraints(ctx context.Context, snapshotID string) error {
	return f.snapshotTx(ctx, snapshotID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT con.oid, con.conname, con.conindid, con.condeferrable, con.condeferred,
			       pg_catalog.pg_get_constraintdef(con.oid)
			FROM pg_catalog.pg_constraint con
			JOIN pg_catalog.pg_class ct ON ct.oid = con.conrelid
			WHERE ct.relkind IN ('r', 'm')`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c catalog.Constraint
			var indexOID int64
			if err := rows.Scan(&c.OID, &c.Name, &indexOID, &c.IsDeferrable, &c.IsDeferred, &c.Definition); err != nil {
				return err
			}
			if indexOID != 0 {
				c.IndexOID.Int64, c.IndexOID.Valid = indexOID, true
			}
			if err := f.store.AddConstraint(ctx, c); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// FetchSequences loads every sequence, the oid of the table it is OWNED BY
// (if any), and its current (last_value, is_called) pair read via
// pg_sequence_last_value.
func (f *Fetcher) FetchSequences(ctx context.Context, snapshotID string) error {
	return f.snapshotTx(ctx, snapshotID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT c.oid, n.nspname || '.' || c.relname,
			       d.refobjid,
			       COALESCE(pg_catalog.pg_sequence_last_value(c.oid::regclass), 0),
			       pg_catalog.pg_sequence_last_value(c.oid::regclass) IS NOT NULL
			FROM pg_catalog.pg_class c
			JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
			LEFT JOIN pg_catalog.pg_depend d ON d.objid = c.oid AND d.deptype = 'a' AND d.refobjsubid > 0
			WHERE c.relkind = 'S'`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var seq catalog.Sequence
			var ownerTableOID *int64
			var lastValue *int64
			var isCalled bool
			if err := rows.Scan(&seq.OID, &seq.Qname, &ownerTableOID, &lastValue, &isCalled); err != nil {
				return err
			}
			if ownerTableOID != nil {
				seq.OwnerTableOID = sql.NullInt64{Int64: *ownerTableOID, Valid: true}
			}
			if lastValue != nil {
				seq.LastValue = *lastValue
			}
			seq.IsCalled = isCalled
			if err := f.store.AddSequence(ctx, seq); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// FetchDepends loads the pg_depend projection read by the filter engine's
// pg_depend pass.
func (f *Fetcher) FetchDepends(ctx context.Context, snapshotID string) error {
	return f.snapshotTx(ctx, snapshotID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT n.nspname, c.relname, d.refclassid, d.refobjid, d.classid, d.objid, d.deptype,
			       co.relkind::text, d.objid::regclass::text
			FROM pg_catalog.pg_depend d
			JOIN pg_catalog.pg_class c ON c.oid = d.objid
			JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
			LEFT JOIN pg_catalog.pg_class co ON co.oid = d.objid
			WHERE d.deptype IN ('n', 'a', 'i')`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var dep catalog.Depend
			if err := rows.Scan(&dep.Nspname, &dep.Relname, &dep.RefClassID, &dep.RefObjID, &dep.ClassID, &dep.ObjID, &dep.DepType, &dep.Type, &dep.Identity); err != nil {
				return err
			}
			if err := f.store.AddDepend(ctx, dep); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

func qualify(nspname, relname string) string {
	return fmt.Sprintf("%s.%s", nspname, relname)
}
