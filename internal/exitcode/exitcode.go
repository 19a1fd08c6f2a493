// Package exitcode translates engineerr.Kind values to process exit codes.
package exitcode

import "github.com/pgbulk/pgbulk/internal/engineerr"

const (
	OK            = 0
	Configuration = 1
	Source        = 2
	Target        = 3
	Busy          = 4
	Partial       = 5
	Internal      = 10
)

// For returns the exit code for err, or OK if err is nil.
func For(err error) int {
	if err == nil {
		return OK
	}
	switch engineerr.As(err) {
	case engineerr.KindConfiguration:
		return Configuration
	case engineerr.KindSource:
		return Source
	case engineerr.KindTarget:
		return Target
	case engineerr.KindBusy:
		return Busy
	case engineerr.KindPartial:
		return Partial
	default:
		return Internal
	}
}
