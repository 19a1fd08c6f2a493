package catalog

import (
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Gate is the reentrant, cross-process writer gate mandated by §4.A/§9: a
// named lock, not a reader-writer lock, serialising all mutating access to
// one catalog file across cooperating OS processes. Within a process,
// execution is single-threaded and synchronous (§5), so reentrancy only
// needs a simple nesting counter guarded by a mutex, not per-goroutine
// ownership tracking.
type Gate struct {
	mu    sync.Mutex
	fl    *flock.Flock
	depth int
}

func newGate(catalogPath string) *Gate {
	return &Gate{fl: flock.New(catalogPath + ".lock")}
}

// lock acquires the gate, blocking until it is free. Nested calls from the
// same process increment a depth counter instead of re-acquiring the file
// lock, which flock.Flock does not support natively.
func (g *Gate) lock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth == 0 {
		// Acquisition polls TryLock every 2ms with no timeout; callers that need the
		// bounded-retry contract go through retry.Catalog around the
		// statement that follows, not around gate acquisition itself,
		// since the gate is only ever held briefly (§5: "holders never
		// perform long-running database work under the gate").
		for {
			ok, err := g.fl.TryLock()
			if err == nil && ok {
				break
			}
			time.Sleep(2 * time.Millisecond)
		}
	}
	g.depth++
}

// unlock releases one level of nesting, releasing the underlying file lock
// once depth returns to zero.
func (g *Gate) unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth == 0 {
		return
	}
	g.depth--
	if g.depth == 0 {
		g.fl.Unlock()
	}
}

func (g *Gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth > 0 {
		g.fl.Unlock()
		g.depth = 0
	}
}
