package blockflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for pointer and block use.
var (
	// ErrInvalidHandle indicates a handle that does not name a live object.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrUninitializedPointer indicates a RelPtr holding the uninitialized sentinel.
	ErrUninitializedPointer = errors.New("uninitialized relative pointer")

	// ErrInvalidPointer indicates a based pointer holding the error handle.
	ErrInvalidPointer = errors.New("invalid based pointer")

	// ErrSelfReference indicates a relative pointer asked to target its own storage.
	ErrSelfReference = errors.New("relative pointer cannot target itself")

	// ErrAddressNotInBlock indicates an address outside every acquired block.
	ErrAddressNotInBlock = errors.New("address is not inside an acquired block")

	// ErrPointerType indicates a type that holds Go pointers and so cannot live in a block.
	ErrPointerType = errors.New("type contains Go pointers")

	// ErrArenaExhausted indicates an arena allocation beyond block capacity.
	ErrArenaExhausted = errors.New("arena exhausted")

	// ErrBlockHeld indicates a block that is acquired and cannot be moved.
	ErrBlockHeld = errors.New("block is held")

	// ErrRelocationDisabled indicates the pinned backend, which never moves blocks.
	ErrRelocationDisabled = errors.New("relocation disabled by backend")
)

// Sentinel errors for events.
var (
	// ErrAlreadySatisfied indicates a second satisfy on a sticky event.
	ErrAlreadySatisfied = errors.New("event already satisfied")

	// ErrPayloadMismatch indicates an idempotent event satisfied with a different payload.
	ErrPayloadMismatch = errors.New("idempotent event satisfied with different payload")

	// ErrNotLatch indicates an up/down operation on a non-latch event.
	ErrNotLatch = errors.New("event is not a latch")
)

// Sentinel errors for templates and tasks.
var (
	// ErrArity indicates a dependency count that does not fit the template.
	ErrArity = errors.New("dependency count does not match template")

	// ErrSlotType indicates a source whose payload type does not fit the slot.
	ErrSlotType = errors.New("source type does not match slot")

	// ErrParamSize indicates parameter words that do not match the template.
	ErrParamSize = errors.New("parameter size does not match template")

	// ErrSlotBound indicates a slot that already has a source.
	ErrSlotBound = errors.New("slot already bound")

	// ErrRuntimeStopped indicates an operation after Shutdown or Abort.
	ErrRuntimeStopped = errors.New("runtime stopped")
)

// ContractError reports a mismatch between a template's declared layout and
// what a caller bound to it.
type ContractError struct {
	// Template is the template name.
	Template string
	// Op is the operation that detected the mismatch ("create", "depend", "entry").
	Op string
	// Slot is the offending slot, or -1 when the whole call is at fault.
	Slot int
	// Err is ErrArity, ErrSlotType, ErrParamSize or ErrPointerType, possibly wrapped.
	Err error
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Slot < 0 {
		return fmt.Sprintf("template %s: %s: %v", e.Template, e.Op, e.Err)
	}
	return fmt.Sprintf("template %s: %s slot %d: %v", e.Template, e.Op, e.Slot, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ContractError) Unwrap() error {
	return e.Err
}

// ArenaExhaustedError is the panic value of an arena allocation that does
// not fit. Capacity is fixed at creation, so there is no fallback.
type ArenaExhaustedError struct {
	// Block is the arena's block handle.
	Block Handle
	// Requested is the aligned byte count asked for.
	Requested uintptr
	// Available is the remaining capacity at the time of the request.
	Available uintptr
}

// Error implements the error interface.
func (e *ArenaExhaustedError) Error() string {
	return fmt.Sprintf("arena %s: requested %d bytes, %d available", e.Block, e.Requested, e.Available)
}

// Unwrap returns ErrArenaExhausted for errors.Is support.
func (e *ArenaExhaustedError) Unwrap() error {
	return ErrArenaExhausted
}

// TaskError wraps an error returned by a task body.
type TaskError struct {
	// TaskID is the failed task instance.
	TaskID Handle
	// Template is the template name.
	Template string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.Template, e.TaskID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside a task body.
type PanicError struct {
	// TaskID is the task that panicked.
	TaskID Handle
	// Template is the template name.
	Template string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s (%s) panicked: %v", e.Template, e.TaskID, e.Value)
}

// Unwrap returns the panic value when it is an error, so fatal conditions
// such as *ArenaExhaustedError stay matchable with errors.Is/As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AbortError is returned by a runtime stopped with Abort.
type AbortError struct {
	// Code is the exit code passed to Abort.
	Code int
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	return fmt.Sprintf("runtime aborted with code %d", e.Code)
}
