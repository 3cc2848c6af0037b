// Package executor runs the work the bus defers: asynchronous deliveries,
// delayed publishes and the staged drain loop.
package executor

import (
	"errors"
	"time"
)

// ErrStopped is returned when work is posted to an executor that has been
// stopped.
var ErrStopped = errors.New("executor: stopped")

// Executor runs posted tasks on goroutines it owns. Tasks posted with Post run
// in FIFO order relative to each other when the executor has one worker; with
// more workers only the start order is FIFO.
type Executor interface {
	Post(task func()) error
	PostAfter(delay time.Duration, task func()) (Timer, error)
}

// Timer is a pending PostAfter task.
type Timer interface {
	// Stop cancels the task. It reports false when the task already fired or
	// was stopped before.
	Stop() bool
}

// PanicHandler receives values recovered from tasks.
type PanicHandler func(recovered any, stack []byte)
