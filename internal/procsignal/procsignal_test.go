package procsignal_test

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/internal/procsignal"
)

func TestSIGTERMSignalsGraceful(t *testing.T) {
	w := procsignal.Watch()
	defer w.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case lvl := <-w.Levels():
		assert.Equal(t, procsignal.Graceful, lvl)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal level")
	}
}

func TestSIGQUITSignalsQuit(t *testing.T) {
	w := procsignal.Watch()
	defer w.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGQUIT))

	select {
	case lvl := <-w.Levels():
		assert.Equal(t, procsignal.Quit, lvl)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal level")
	}
}

func TestSecondSIGINTEscalatesToQuit(t *testing.T) {
	w := procsignal.Watch()
	defer w.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case lvl := <-w.Levels():
		assert.Equal(t, procsignal.Fast, lvl)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first SIGINT")
	}

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case lvl := <-w.Levels():
		assert.Equal(t, procsignal.Quit, lvl)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second SIGINT")
	}
}
