package schedule

import (
	"os"
	"syscall"
)

// processAlive reports whether pid names a live OS process, grounded on
// the corpus' signal-0 liveness probe.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}
