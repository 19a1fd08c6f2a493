package catalog

import "database/sql"

// Iterator is a forward-only cursor over catalog rows of type T. Callers
// must call Close when done, including on early return, so that no
// prepared statement or connection is left dangling (§4.A failure
// semantics: "the store never retains dangling prepared statements").
type Iterator[T any] struct {
	rows *sql.Rows
	scan func(*sql.Rows) (T, error)
	cur  T
	err  error
}

func newIterator[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) *Iterator[T] {
	return &Iterator[T]{rows: rows, scan: scan}
}

// Next advances the cursor, returning false at end of results or on error;
// callers must check Err after Next returns false.
func (it *Iterator[T]) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	it.cur, it.err = it.scan(it.rows)
	return it.err == nil
}

// Item returns the record most recently produced by Next.
func (it *Iterator[T]) Item() T { return it.cur }

// Err returns the first error encountered by Next or by the underlying
// rows iterator.
func (it *Iterator[T]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

// Close finalises the cursor. Safe to call multiple times.
func (it *Iterator[T]) Close() error {
	return it.rows.Close()
}

// Collect drains the iterator into a slice and closes it. Convenience for
// callers that don't need streaming (most CLI `list` commands).
func Collect[T any](it *Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for it.Next() {
		out = append(out, it.Item())
	}
	return out, it.Err()
}
