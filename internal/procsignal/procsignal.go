// Package procsignal translates OS signals into the engine's three-level
// shutdown vocabulary (graceful-stop, fast-stop, quit), grounded on the
// corpus' os/signal-channel-plus-select daemon loop pattern.
package procsignal

import (
	"os"
	"os/signal"
	"syscall"
)

// Level is a shutdown severity. Workers check it at unit boundaries
// (graceful), at database-wait boundaries (fast), or drop everything
// immediately (quit).
type Level int

const (
	// None means no shutdown has been requested.
	None Level = iota
	// Graceful means finish the current unit, commit, and exit.
	Graceful
	// Fast means abandon in-flight database waits and exit as soon as it
	// is safe to release any held resource.
	Fast
	// Quit means exit immediately without further cleanup beyond closing
	// file handles.
	Quit
)

// Watcher tracks the highest shutdown level requested so far. SIGINT
// requests Fast on its first delivery and escalates to Quit on a second,
// matching the "first press asks nicely, second press means now"
// convention.
type Watcher struct {
	ch    chan os.Signal
	level chan Level
}

// Watch installs signal handlers and returns a Watcher whose Levels()
// channel emits every escalation. Stop() must be called to release the
// handlers.
func Watch() *Watcher {
	w := &Watcher{
		ch:    make(chan os.Signal, 4),
		level: make(chan Level, 4),
	}
	signal.Notify(w.ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		sawInterrupt := false
		for sig := range w.ch {
			switch sig {
			case syscall.SIGTERM:
				w.level <- Graceful
			case syscall.SIGQUIT:
				w.level <- Quit
			case syscall.SIGINT:
				if sawInterrupt {
					w.level <- Quit
					continue
				}
				sawInterrupt = true
				w.level <- Fast
			}
		}
	}()

	return w
}

// Levels returns the channel of escalating shutdown levels.
func (w *Watcher) Levels() <-chan Level { return w.level }

// Stop releases the signal handlers.
func (w *Watcher) Stop() {
	signal.Stop(w.ch)
	close(w.ch)
}
