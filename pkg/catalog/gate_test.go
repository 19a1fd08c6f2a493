package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateIsReentrantWithinProcess(t *testing.T) {
	g := newGate(filepath.Join(t.TempDir(), "cat.db"))
	g.lock()
	g.lock()
	g.unlock()
	g.unlock()

	// A third unlock beyond the matching lock calls must be a no-op, not a
	// panic or a negative depth.
	assert.NotPanics(t, func() { g.unlock() })
}

func TestGateBlocksConcurrentLockers(t *testing.T) {
	g := newGate(filepath.Join(t.TempDir(), "cat.db"))
	g.lock()

	acquired := make(chan struct{})
	go func() {
		g.lock()
		close(acquired)
		g.unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second locker acquired the gate while the first held it")
	case <-time.After(30 * time.Millisecond):
	}

	g.unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second locker never acquired the gate after release")
	}
}

func TestGateCloseReleasesOutstandingLock(t *testing.T) {
	g := newGate(filepath.Join(t.TempDir(), "cat.db"))
	g.lock()
	g.close()
	assert.Equal(t, 0, g.depth)
}
