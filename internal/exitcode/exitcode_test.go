package exitcode_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgbulk/pgbulk/internal/engineerr"
	"github.com/pgbulk/pgbulk/internal/exitcode"
)

func TestForNilIsOK(t *testing.T) {
	assert.Equal(t, exitcode.OK, exitcode.For(nil))
}

func TestForMapsEveryKind(t *testing.T) {
	tests := []struct {
		kind engineerr.Kind
		want int
	}{
		{engineerr.KindConfiguration, exitcode.Configuration},
		{engineerr.KindSource, exitcode.Source},
		{engineerr.KindTarget, exitcode.Target},
		{engineerr.KindBusy, exitcode.Busy},
		{engineerr.KindPartial, exitcode.Partial},
		{engineerr.KindInternal, exitcode.Internal},
	}
	for _, tt := range tests {
		err := engineerr.New(tt.kind, errors.New("boom"))
		assert.Equal(t, tt.want, exitcode.For(err))
	}
}

func TestForUnannotatedErrorIsInternal(t *testing.T) {
	assert.Equal(t, exitcode.Internal, exitcode.For(errors.New("plain")))
}
