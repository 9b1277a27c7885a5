package local

import (
	"errors"
	"fmt"
)

// Sentinel errors for the local runtime.
var (
	// ErrAlreadyStarted indicates a second call to Run.
	ErrAlreadyStarted = errors.New("runtime already started")

	// ErrNoStore indicates Evict on a runtime without a store.
	ErrNoStore = errors.New("no block store configured")

	// ErrTaskStarted indicates DestroyTaskInstance on a task that is ready or running.
	ErrTaskStarted = errors.New("task already started")

	// ErrNotAcquired indicates ReleaseBlock without a matching acquire.
	ErrNotAcquired = errors.New("block is not acquired")

	// ErrStalled is matched by *StallError.
	ErrStalled = errors.New("run stalled")
)

// StallError is returned by Run when no task is ready or running but some
// tasks are still waiting for dependencies that nothing can satisfy.
type StallError struct {
	// Waiting is the number of tasks that never ran.
	Waiting int
}

// Error implements the error interface.
func (e *StallError) Error() string {
	return fmt.Sprintf("run stalled with %d waiting tasks", e.Waiting)
}

// Unwrap returns ErrStalled for errors.Is support.
func (e *StallError) Unwrap() error {
	return ErrStalled
}
