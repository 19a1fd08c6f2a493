package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgbulk/pgbulk/internal/logging"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	log := logging.NewNoop()
	assert.NotPanics(t, func() {
		log.Info("hello", "key", "value")
		log.Warn("careful", "n", 1)
		log.Error("boom", "err", "disk full")
		log.Bug("claimed twice", "part", 3)
	})
}

func TestWithFieldsReturnsIndependentDerivedLogger(t *testing.T) {
	log := logging.NewNoop()
	worker := log.WithFields("pid", 7, "role", "copy")

	assert.NotPanics(t, func() {
		worker.Info("starting")
		log.Info("unrelated, should not carry worker fields")
	})

	// WithFields must not mutate the parent logger's own field set.
	secondWorker := log.WithFields("pid", 9)
	assert.NotPanics(t, func() {
		secondWorker.Info("starting")
	})
}
