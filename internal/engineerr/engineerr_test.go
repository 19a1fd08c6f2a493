package engineerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgbulk/pgbulk/internal/engineerr"
)

func TestNewWrapsAndUnwraps(t *testing.T) {
	inner := errors.New("connection refused")
	err := engineerr.New(engineerr.KindSource, inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, engineerr.KindSource, engineerr.As(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "source")
}

func TestNewNilErrIsNil(t *testing.T) {
	assert.NoError(t, engineerr.New(engineerr.KindTarget, nil))
}

func TestWithQnameIncludesQnameInMessage(t *testing.T) {
	err := engineerr.WithQname(engineerr.KindTarget, "public.orders", errors.New("duplicate key"))
	assert.Contains(t, err.Error(), "public.orders")
	assert.Equal(t, engineerr.KindTarget, engineerr.As(err))
}

func TestBugIsInternal(t *testing.T) {
	err := engineerr.Bug("claimed part %d twice", 7)
	assert.Equal(t, engineerr.KindInternal, engineerr.As(err))
	assert.Contains(t, err.Error(), "claimed part 7 twice")
}

func TestAsDefaultsToInternalForUnannotatedError(t *testing.T) {
	assert.Equal(t, engineerr.KindInternal, engineerr.As(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	tests := map[engineerr.Kind]string{
		engineerr.KindConfiguration: "configuration",
		engineerr.KindSource:        "source",
		engineerr.KindTarget:        "target",
		engineerr.KindBusy:          "busy",
		engineerr.KindInternal:      "internal",
		engineerr.KindPartial:       "partial",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}
