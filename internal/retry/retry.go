// Package retry provides a single reusable exponential-backoff policy used
// everywhere an operation may fail transiently: catalog store writes
// (SQLITE_BUSY) and Postgres statements hitting lock_timeout.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cloudflare/backoff"
)

// ErrBusy is returned when a retryable operation exhausts Policy.Total
// without succeeding.
var ErrBusy = errors.New("busy")

// Policy is an exponential-with-cap backoff schedule. The zero value is not
// usable; construct with New or one of the package-level presets.
type Policy struct {
	Base  time.Duration
	Cap   time.Duration
	Total time.Duration
}

// New returns a Policy with the given base delay, cap, and total budget.
func New(base, cap, total time.Duration) Policy {
	return Policy{Base: base, Cap: cap, Total: total}
}

// Catalog is the policy mandated by the catalog store contract: base 10ms,
// cap 350ms, total budget 5s.
var Catalog = New(10*time.Millisecond, 350*time.Millisecond, 5*time.Second)

// Retryable reports whether err should be retried under this policy. The
// caller supplies the predicate because "retryable" differs between the
// SQLite catalog (SQLITE_BUSY/SQLITE_LOCKED) and Postgres (lock_timeout).
type Retryable func(error) bool

// Do runs fn, retrying while isRetryable(err) is true, until the policy's
// total budget is exhausted or the context is cancelled. On exhaustion it
// returns ErrBusy wrapping the last observed error.
func (p Policy) Do(ctx context.Context, isRetryable Retryable, fn func() error) error {
	b := backoff.New(p.Cap, p.Base)
	deadline := time.Now().Add(p.Total)

	var lastErr error
	for {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if time.Now().After(deadline) {
			return errors.Join(ErrBusy, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}
