// Package indexworker builds indexes and attaches their backing
// constraints, enforcing the concurrent-safety barrier that an index
// build may run alongside peer index builds on other tables but never
// alongside a still-running data copy on its own table (enforced
// upstream by the scheduler's claim query).
package indexworker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/pgconn"
)

// Worker builds indexes claimed from the scheduler against the target.
type Worker struct {
	pid    int
	target *pgconn.DB
	store  *catalog.Store
}

// New returns a Worker that issues DDL against target and records
// progress in store.
func New(pid int, target *pgconn.DB, store *catalog.Store) *Worker {
	return &Worker{pid: pid, target: target, store: store}
}

// BuildIndex creates idx's definition, and if it backs a constraint,
// attaches the constraint afterward via ALTER TABLE ... ADD CONSTRAINT
// ... USING INDEX. EXCLUDE-backed indexes have no separate CREATE INDEX
// step: the constraint definition itself creates the supporting index.
// tableQname is the owning table's qualified name, resolved by the caller
// from the catalog (an Index record alone does not carry it).
func (w *Worker) BuildIndex(ctx context.Context, tableQname string, idx catalog.Index, constraint *catalog.Constraint) error {
	start := time.Now()

	if constraint == nil || !isExclusionConstraint(constraint.Definition) {
		if _, err := w.target.Exec(ctx, idx.Definition); err != nil {
			return fmt.Errorf("creating index %s: %w", idx.Qname, err)
		}
	}

	if constraint != nil {
		alter := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s %s`,
			tableQname, quoteIdent(constraint.Name), attachClause(idx, constraint))
		if _, err := w.target.Exec(ctx, alter); err != nil {
			return fmt.Errorf("attaching constraint %s: %w", constraint.Name, err)
		}
	}

	return w.store.FinishSummary(ctx,
		sql.NullInt64{},
		sql.NullInt32{},
		sql.NullInt64{Int64: idx.OID, Valid: true},
		time.Now().Unix(), time.Since(start).Milliseconds(), 0)
}

// attachClause renders the USING INDEX attachment for a PRIMARY
// KEY/UNIQUE-backed constraint. EXCLUDE constraints are attached via their
// own definition, which already names the index implicitly.
func attachClause(idx catalog.Index, constraint *catalog.Constraint) string {
	if isExclusionConstraint(constraint.Definition) {
		return constraint.Definition
	}
	kind := "UNIQUE"
	if idx.IsPrimary {
		kind = "PRIMARY KEY"
	}
	return fmt.Sprintf("%s USING INDEX %s", kind, quoteIdent(indexNameOnly(idx.Qname)))
}

func isExclusionConstraint(definition string) bool {
	return len(definition) >= 7 && definition[:7] == "EXCLUDE"
}

func indexNameOnly(qname string) string {
	for i := len(qname) - 1; i >= 0; i-- {
		if qname[i] == '.' {
			return qname[i+1:]
		}
	}
	return qname
}

func quoteIdent(s string) string { return `"` + s + `"` }
