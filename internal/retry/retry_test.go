package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/internal/retry"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	p := retry.New(time.Millisecond, 10*time.Millisecond, time.Second)
	calls := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	p := retry.New(time.Millisecond, 10*time.Millisecond, time.Second)
	wantErr := errors.New("fatal")
	calls := 0
	err := p.Do(context.Background(), func(error) bool { return false }, func() error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	p := retry.New(time.Millisecond, 5*time.Millisecond, time.Second)
	attempts := 0
	err := p.Do(context.Background(), func(error) bool { return true }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("try again")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsBudget(t *testing.T) {
	p := retry.New(time.Millisecond, 2*time.Millisecond, 20*time.Millisecond)
	wantErr := errors.New("always busy")
	err := p.Do(context.Background(), func(error) bool { return true }, func() error {
		return wantErr
	})
	assert.ErrorIs(t, err, retry.ErrBusy)
	assert.ErrorIs(t, err, wantErr)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := retry.New(5*time.Millisecond, 50*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(error) bool { return true }, func() error {
		return errors.New("retryable")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
