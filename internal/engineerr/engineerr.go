// Package engineerr defines the error taxonomy shared across pgbulk: a
// small set of kinds, each with a distinct process exit code, rather than a
// tangle of ad-hoc sentinel errors.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for exit-code translation and logging.
type Kind int

const (
	// KindConfiguration covers invalid DSNs, missing required options,
	// conflicting --cache/--drop-cache, and mismatched persisted setup.
	KindConfiguration Kind = iota
	// KindSource covers source connection, snapshot export, and
	// schema-fetch query failures.
	KindSource
	// KindTarget covers target connection, restore, and index/constraint
	// conflicts.
	KindTarget
	// KindBusy covers backing-store lock contention beyond the retry cap.
	KindBusy
	// KindInternal covers BUG-class invariant violations.
	KindInternal
	// KindPartial covers a work unit failure whose peers can continue.
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindSource:
		return "source"
	case KindTarget:
		return "target"
	case KindBusy:
		return "busy"
	case KindInternal:
		return "internal"
	case KindPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error with an optional qualified-name context
// (used for target index/constraint conflicts).
type Error struct {
	Kind  Kind
	Qname string
	Err   error
}

func (e *Error) Error() string {
	if e.Qname != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Qname, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under kind.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf is like New but formats a message instead of wrapping an error.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithQname attaches a qualified object name to the error for context
// (e.g. the owning table of a failed index build).
func WithQname(kind Kind, qname string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Qname: qname, Err: err}
}

// Bug wraps an invariant violation as a KindInternal error; callers are
// expected to log it with a "BUG:" prefix and exit fatally.
func Bug(format string, args ...any) error {
	return &Error{Kind: KindInternal, Err: fmt.Errorf(format, args...)}
}

// As extracts the Kind of err, defaulting to KindInternal when err does not
// carry one (an un-annotated error reaching the top level is itself a bug
// in error propagation, so treat it conservatively).
func As(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
