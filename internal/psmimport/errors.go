package psmimport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrImportTimeout = errors.New("psmimport: import did not finish in time")
	ErrWorkerFailure = errors.New("psmimport: worker failure")
)

// WorkerError describes the failure of one worker on one match
type WorkerError struct {
	Worker int
	Key    string
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d, match %q: %v", e.Worker, e.Key, e.Err)
}

// Unwrap makes both ErrWorkerFailure and the cause visible to errors.Is
func (e *WorkerError) Unwrap() []error {
	return []error{ErrWorkerFailure, e.Err}
}

// ErrorSink receives worker failures. Report is called concurrently.
// Returning true escalates the failure: the import is cancelled and Run
// returns the error.
type ErrorSink interface {
	Report(err *WorkerError) bool
}

// Collector is an ErrorSink that keeps the reported failures and
// escalates once more than MaxErrors were reported. A negative MaxErrors
// never escalates.
type Collector struct {
	MaxErrors int
	Logger    *slog.Logger

	mu     sync.Mutex
	errors []*WorkerError
}

// Report implements ErrorSink
func (c *Collector) Report(err *WorkerError) bool {
	c.mu.Lock()
	c.errors = append(c.errors, err)
	n := len(c.errors)
	c.mu.Unlock()

	if c.Logger != nil {
		c.Logger.Warn("match skipped", "worker", err.Worker, "key", err.Key, "error", err.Err)
	}
	return c.MaxErrors >= 0 && n > c.MaxErrors
}

// Errors returns a copy of the reported failures in reporting order
func (c *Collector) Errors() []*WorkerError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*WorkerError(nil), c.errors...)
}
