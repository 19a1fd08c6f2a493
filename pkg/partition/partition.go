// Package partition decides whether a table must be split into parallel
// copy units and, if so, computes the bounds of each unit. The decision
// tree -- prefer a unique integer identity column, else fall back to a
// ctid block range -- is the same one the corpus' row-batch backfill
// primitive uses to choose a batching key; here it drives partition-bound
// computation instead of batch iteration.
package partition

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/pgconn"
)

// CtidPartKey is the sentinel Table.PartKey value recorded when no integer
// identity column was available and the partitioner fell back to
// tuple-identifier block ranges.
const CtidPartKey = "ctid"

// Planner decides and records partitions for one table.
type Planner struct {
	db    *pgconn.DB
	store *catalog.Store
}

// New returns a Planner backed by db (the source connection) and store
// (the source catalog, where partitions are recorded).
func New(db *pgconn.DB, store *catalog.Store) *Planner {
	return &Planner{db: db, store: store}
}

// Plan decides whether table needs splitting given splitThreshold bytes and
// splitMaxParts, and records its partitions, one catalog write per
// partition; the set is not written in a single transaction. A table that
// is not split is recorded as one part (PartNum 0, PartCount 1). It returns
// the number of partitions recorded (1 when the table was not split).
func (p *Planner) Plan(ctx context.Context, table catalog.Table, splitThreshold int64, splitMaxParts int) (int, error) {
	if table.Bytes < splitThreshold {
		whole := catalog.TablePart{TableOID: table.OID, PartNum: 0, PartCount: 1}
		if err := p.store.AddTablePart(ctx, whole); err != nil {
			return 0, err
		}
		return 1, nil
	}

	partKey, err := p.choosePartKey(ctx, table)
	if err != nil {
		return 0, err
	}

	partCount := int(math.Ceil(float64(table.Bytes) / float64(splitThreshold)))
	if partCount > splitMaxParts {
		partCount = splitMaxParts
	}
	if partCount < 1 {
		partCount = 1
	}

	var parts []catalog.TablePart
	if partKey == CtidPartKey {
		parts, err = p.planCtidParts(ctx, table, partCount)
	} else {
		parts, err = p.planIntegerParts(ctx, table, partKey, partCount)
	}
	if err != nil {
		return 0, err
	}

	table.PartKey = partKey
	if err := p.store.AddTable(ctx, table); err != nil {
		return 0, err
	}
	for _, part := range parts {
		if err := p.store.AddTablePart(ctx, part); err != nil {
			return 0, err
		}
	}
	return len(parts), nil
}

// choosePartKey prefers a unique integer column declared as the table's
// primary key, falling back to any unique not-null integer column, and
// finally to the ctid fallback when neither exists.
func (p *Planner) choosePartKey(ctx context.Context, table catalog.Table) (string, error) {
	row := p.db.QueryRow(ctx, `
		SELECT a.attname
		FROM pg_catalog.pg_index i
		JOIN pg_catalog.pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = i.indkey[0]
		JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
		WHERE i.indrelid = $1
		  AND i.indisunique
		  AND array_length(i.indkey, 1) = 1
		  AND a.attnotnull
		  AND t.typname IN ('int2', 'int4', 'int8')
		ORDER BY i.indisprimary DESC
		LIMIT 1`, table.OID)

	var col string
	if err := row.Scan(&col); err != nil {
		if err == pgx.ErrNoRows {
			return CtidPartKey, nil
		}
		return "", err
	}
	return col, nil
}

// planIntegerParts computes equal-width ranges over partKey from its
// observed min/max/row count, then delegates the bound arithmetic to
// integerPartBounds so that arithmetic can be exercised without a
// database connection.
func (p *Planner) planIntegerParts(ctx context.Context, table catalog.Table, partKey string, partCount int) ([]catalog.TablePart, error) {
	row := p.db.QueryRow(ctx, fmt.Sprintf(`SELECT min(%[1]s), max(%[1]s), count(*) FROM %[2]s`, quoteIdent(partKey), table.Qname))
	var min, max, rowCount int64
	if err := row.Scan(&min, &max, &rowCount); err != nil {
		return nil, err
	}
	return integerPartBounds(table.OID, min, max, rowCount, partCount), nil
}

// integerPartBounds splits [min, max] into partCount equal-width, half-open
// ranges [lo, hi), except the last partition whose upper bound is clamped
// to the observed max itself rather than max+1, matching the archive's own
// literal last-bound convention.
func integerPartBounds(tableOID, min, max, rowCount int64, partCount int) []catalog.TablePart {
	if partCount < 1 {
		partCount = 1
	}
	span := max - min + 1
	step := span / int64(partCount)
	if step < 1 {
		step = 1
	}

	parts := make([]catalog.TablePart, 0, partCount)
	for k := 0; k < partCount; k++ {
		lo := min + int64(k)*step
		hi := min + int64(k+1)*step
		if k == partCount-1 {
			hi = max
		}
		parts = append(parts, catalog.TablePart{
			TableOID:  tableOID,
			PartNum:   int32(k + 1),
			PartCount: int32(partCount),
			Min:       fmt.Sprintf("%d", lo),
			Max:       fmt.Sprintf("%d", hi),
			RowCount:  rowCount / int64(partCount),
		})
	}
	return parts
}

// planCtidParts splits the table's block range, estimated from relpages,
// into partCount contiguous block ranges via ctidPartBounds.
func (p *Planner) planCtidParts(ctx context.Context, table catalog.Table, partCount int) ([]catalog.TablePart, error) {
	return ctidPartBounds(table.OID, table.RelPages, partCount), nil
}

// ctidPartBounds splits [0, blocks) into partCount contiguous block ranges
// of the form (block_k,0) through (block_{k+1},0), the last block number's
// upper bound exclusive.
func ctidPartBounds(tableOID, blocks int64, partCount int) []catalog.TablePart {
	if blocks < int64(partCount) {
		blocks = int64(partCount)
	}
	step := blocks / int64(partCount)
	if step < 1 {
		step = 1
	}

	parts := make([]catalog.TablePart, 0, partCount)
	for k := 0; k < partCount; k++ {
		lo := int64(k) * step
		hi := int64(k+1) * step
		if k == partCount-1 {
			hi = blocks
		}
		parts = append(parts, catalog.TablePart{
			TableOID:  tableOID,
			PartNum:   int32(k + 1),
			PartCount: int32(partCount),
			Min:       fmt.Sprintf("(%d,0)", lo),
			Max:       fmt.Sprintf("(%d,0)", hi),
		})
	}
	return parts
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
