package greenhouse

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrClosed is returned when work is handed to a scheduler that
	// has been closed.
	ErrClosed = errors.New("greenhouse: scheduler closed")
	// ErrRunning is returned when the dispatch loop is entered twice,
	// or when the poller is swapped while the loop runs.
	ErrRunning = errors.New("greenhouse: scheduler already running")
	// ErrBusy is returned by SetPoller while descriptor waits are
	// registered with the current poller.
	ErrBusy = errors.New("greenhouse: descriptors still registered")
	// ErrTimeout is returned by a descriptor wait that timed out.
	ErrTimeout = errors.New("greenhouse: timed out")

	ErrNotLocked            = errors.New("greenhouse: release of unlocked lock")
	ErrNotOwner             = errors.New("greenhouse: lock not held by task")
	ErrSemaphoreOverRelease = errors.New("greenhouse: bounded semaphore released too many times")
	ErrFull                 = errors.New("greenhouse: queue full")
	ErrEmpty                = errors.New("greenhouse: queue empty")
	ErrTaskDone             = errors.New("greenhouse: TaskDone called more times than Put")
	ErrNoLocal              = errors.New("greenhouse: no local value for task")
)

const errNotRunning = "greenhouse: task is not running"

// PanicError is a recovered panic. Task bodies, timeout callbacks,
// single-flight calls and offloaded work all report panics this way.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("greenhouse: panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
