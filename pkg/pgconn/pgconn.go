// Package pgconn wraps a pgx connection pool with the retry discipline
// every Postgres-facing component needs: statements that hit lock_timeout
// on either side of the migration retry with exponential-with-cap backoff
// instead of failing the whole unit of work outright.
package pgconn

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgbulk/pgbulk/internal/engineerr"
	"github.com/pgbulk/pgbulk/internal/retry"
)

// lockNotAvailable is Postgres's SQLSTATE for a statement that hit
// lock_timeout.
const lockNotAvailable = "55P03"

// queryCanceled is the SQLSTATE delivered when a statement is cancelled
// (e.g. a worker is asked to stop mid-copy).
const queryCanceled = "57014"

// DB is a typed, retrying query surface over one pgx pool. Source and
// target each get their own DB so that a lock timeout on one side never
// implicates the other.
type DB struct {
	Pool   *pgxpool.Pool
	Policy retry.Policy
}

// Open connects a pool to dsn, grounded on the teacher's db.RDB wrapping
// pattern but built on pgx/v5's pool instead of database/sql+lib/pq.
func Open(ctx context.Context, dsn string, policy retry.Policy) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, engineerr.New(engineerr.KindConfiguration, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, engineerr.New(engineerr.KindSource, err)
	}
	return &DB{Pool: pool, Policy: policy}, nil
}

// Close shuts down the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// Exec runs a statement, retrying on lock_timeout.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := db.Policy.Do(ctx, isRetryable, func() error {
		var execErr error
		tag, execErr = db.Pool.Exec(ctx, sql, args...)
		return execErr
	})
	return tag, err
}

// Query runs a query, retrying on lock_timeout. The returned Rows must be
// closed by the caller.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := db.Policy.Do(ctx, isRetryable, func() error {
		var queryErr error
		rows, queryErr = db.Pool.Query(ctx, sql, args...)
		return queryErr
	})
	return rows, err
}

// QueryRow runs a single-row query. pgx defers the query's error to Scan,
// so this call never retries; a lock_timeout surfaces from Scan.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	var row pgx.Row
	_ = db.Policy.Do(ctx, isRetryable, func() error {
		row = db.Pool.QueryRow(ctx, sql, args...)
		return nil
	})
	return row
}

// WithRetryableTransaction runs f inside a transaction, retrying the whole
// transaction from the start on lock_timeout, matching the teacher's
// WithRetryableTransaction contract.
func (db *DB) WithRetryableTransaction(ctx context.Context, f func(context.Context, pgx.Tx) error) error {
	return db.Policy.Do(ctx, isRetryable, func() error {
		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return err
		}
		if err := f(ctx, tx); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
}

// AcquireConn pins a single connection out of the pool for operations that
// require connection affinity across several statements -- COPY streaming,
// session-level GUCs (disable system-catalog index scans), and exported
// snapshots.
func (db *DB) AcquireConn(ctx context.Context) (*pgxpool.Conn, error) {
	return db.Pool.Acquire(ctx)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == lockNotAvailable || pgErr.Code == queryCanceled
	}
	return false
}
