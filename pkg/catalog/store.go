// Package catalog implements the durable, on-disk relational cache of
// source/target schema objects, filtering decisions, worker process
// state, per-object summaries, timing and checksums described in §3-4.A of
// the engine specification. It is backed by SQLite (pure Go, via
// github.com/ncruces/go-sqlite3) and mediates all coordination between
// concurrent copy/index workers, surviving process restarts (--resume).
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/pgbulk/pgbulk/internal/engineerr"
	"github.com/pgbulk/pgbulk/internal/retry"
)

// Kind identifies one of the three catalog namespaces. Each kind has its
// own documented table shape (see schema.go) and lives in its own
// on-disk SQLite file.
type Kind string

const (
	KindSource Kind = "source"
	KindFilter Kind = "filter"
	KindTarget Kind = "target"
)

// Store is a durable, concurrently-accessible relational cache for one
// catalog file. All mutating operations, and reads that must observe a
// snapshot consistent with the most recent write, are serialised through
// the writer Gate.
type Store struct {
	db   *sql.DB
	path string
	kind Kind
	gate *Gate
}

// Open opens (creating if absent) the SQLite catalog file at path. On
// first creation it sets the journal mode to WAL, matching the contract
// that open is idempotent and only pays the pragma cost once.
func Open(ctx context.Context, path string, kind Kind) (*Store, error) {
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, engineerr.New(engineerr.KindInternal, fmt.Errorf("opening catalog %s: %w", path, err))
	}
	// A single connection serialises every statement issued through this
	// Store, including those from concurrent goroutines sharing it; the
	// writer Gate serialises cross-process access, so one connection
	// avoids SQLite's own connection-level locking surprises.
	db.SetMaxOpenConns(1)

	if isNew {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, engineerr.New(engineerr.KindInternal, fmt.Errorf("setting WAL mode on %s: %w", path, err))
		}
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, engineerr.New(engineerr.KindInternal, err)
	}

	s := &Store{db: db, path: path, kind: kind, gate: newGate(path)}

	if isNew {
		if err := s.CreateSchema(ctx, kind); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close releases the store's connection and writer gate.
func (s *Store) Close() error {
	s.gate.close()
	return s.db.Close()
}

// Path returns the on-disk path of this catalog file.
func (s *Store) Path() string { return s.path }

// Kind returns the namespace this store implements.
func (s *Store) Kind() Kind { return s.kind }

// Attach exposes other's backing file under alias within this store's
// connection, enabling cross-catalog queries. No caller in this
// repository uses it.
func (s *Store) Attach(ctx context.Context, other *Store, alias string) error {
	stmt := fmt.Sprintf("ATTACH DATABASE %s AS %s", quoteLiteral(other.path), quoteIdent(alias))
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Detach removes a previously attached alias.
func (s *Store) Detach(ctx context.Context, alias string) error {
	_, err := s.db.ExecContext(ctx, "DETACH DATABASE "+quoteIdent(alias))
	return err
}

// DropSchema drops every table/index belonging to kind's documented shape.
func (s *Store) DropSchema(ctx context.Context, kind Kind) error {
	stmts, ok := dropStatements[kind]
	if !ok {
		return engineerr.Bug("catalog: unknown schema kind %q", kind)
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateSchema (re)creates kind's documented shape. It is idempotent: all
// DDL uses CREATE TABLE IF NOT EXISTS.
func (s *Store) CreateSchema(ctx context.Context, kind Kind) error {
	stmts, ok := createStatements[kind]
	if !ok {
		return engineerr.Bug("catalog: unknown schema kind %q", kind)
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema %s: %w", kind, err)
			}
		}
		return nil
	})
}

// Tx is a scoped transaction handle returned by Begin/BeginImmediate. It
// pins a single connection for the lifetime of the transaction so that
// "BEGIN [IMMEDIATE]" and the statements that follow it are guaranteed to
// run on the same SQLite connection.
type Tx struct {
	conn      *sql.Conn
	s         *Store
	immediate bool
	done      bool
}

// ExecContext runs a statement within the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query within the transaction. The returned *sql.Rows
// must be closed by the caller before the transaction is committed or
// rolled back (finalised cursor contract, §4.A failure semantics).
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query within the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

// Begin starts a DEFERRED transaction: no locks are taken until the first
// statement executes.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	return s.begin(ctx, false)
}

// BeginImmediate starts an IMMEDIATE transaction, acquiring the writer
// gate and the SQLite reserved lock immediately. Used before a sequence of
// writes that must not interleave with a peer process (claim-a-unit,
// partition insertion, filter population).
func (s *Store) BeginImmediate(ctx context.Context) (*Tx, error) {
	return s.begin(ctx, true)
}

func (s *Store) begin(ctx context.Context, immediate bool) (*Tx, error) {
	if immediate {
		s.gate.lock()
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		if immediate {
			s.gate.unlock()
		}
		return nil, engineerr.New(engineerr.KindInternal, err)
	}

	opts := "DEFERRED"
	if immediate {
		opts = "IMMEDIATE"
	}
	err = retry.Catalog.Do(ctx, isBusy, func() error {
		_, execErr := conn.ExecContext(ctx, "BEGIN "+opts)
		return execErr
	})
	if err != nil {
		conn.Close()
		if immediate {
			s.gate.unlock()
		}
		return nil, translateBusy(err)
	}
	return &Tx{s: s, conn: conn, immediate: immediate}, nil
}

// Commit commits the transaction, releasing the writer gate if it was held
// and returning the pinned connection to the pool.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	_, err := t.conn.ExecContext(ctx, "COMMIT")
	t.conn.Close()
	if t.immediate {
		t.s.gate.unlock()
	}
	return err
}

// Rollback aborts the transaction, releasing the writer gate if it was
// held and returning the pinned connection to the pool.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	_, err := t.conn.ExecContext(ctx, "ROLLBACK")
	t.conn.Close()
	if t.immediate {
		t.s.gate.unlock()
	}
	return err
}

// withWrite runs fn inside a default (DEFERRED) database/sql transaction
// while holding the writer gate,
// retrying on SQLITE_BUSY per the catalog retry policy, and guarantees the
// gate is released and no prepared statement is left dangling regardless
// of outcome.
func (s *Store) withWrite(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.gate.lock()
	defer s.gate.unlock()

	return retry.Catalog.Do(ctx, isBusy, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// withRead runs fn against the store's connection without acquiring the
// writer gate, for queries that tolerate a slightly stale snapshot.
func (s *Store) withRead(ctx context.Context, fn func() error) error {
	return retry.Catalog.Do(ctx, isBusy, fn)
}

func translateBusy(err error) error {
	if errors.Is(err, retry.ErrBusy) {
		return engineerr.New(engineerr.KindBusy, err)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
