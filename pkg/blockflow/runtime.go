package blockflow

import (
	"unsafe"
)

// Resolver translates between block handles and live addresses.
//
// AddressFor must reflect the block's current location after any
// relocation. HandleAndOffsetFor must succeed for any address inside a
// currently acquired block.
type Resolver interface {
	// AddressFor returns the current base address of block h.
	AddressFor(h Handle) (unsafe.Pointer, bool)

	// HandleAndOffsetFor finds the acquired block containing addr.
	HandleAndOffsetFor(addr unsafe.Pointer) (Handle, uintptr, bool)
}

// BlockFlags modify block creation. No flags are currently interpreted by
// the local runtime; the field exists for runtimes that place blocks.
type BlockFlags uint16

// EventFlags modify event creation.
type EventFlags uint16

// TaskFlags modify task creation.
type TaskFlags uint16

const (
	// TaskFlagOutputEvent asks the runtime to create an output event that is
	// satisfied with the task's return value when it completes.
	TaskFlagOutputEvent TaskFlags = 1 << iota
)

// Hint carries placement advice. Runtimes may ignore it.
type Hint struct {
	// Affinity names a block or task to co-locate with.
	Affinity Handle
}

// LatchSlot selects the counter operation of SatisfySlot.
type LatchSlot uint8

const (
	// LatchDown decrements a latch counter.
	LatchDown LatchSlot = iota
	// LatchUp increments a latch counter.
	LatchUp
)

// Dep is one entry of the dependency vector passed to an entry function.
type Dep struct {
	// Handle is the block delivered to the slot, or NullHandle.
	Handle Handle
	// Ptr is the block's base address, or nil.
	Ptr unsafe.Pointer
}

// EntryFunc is the fixed-shape entry point a runtime invokes for a task.
// The returned handle satisfies the task's output event, if any.
type EntryFunc func(ctx Context, paramv []uint64, depv []Dep) (Handle, error)

// Runtime is the execution engine that owns blocks, events and tasks.
//
// Implementations must be safe for concurrent use from task bodies.
type Runtime interface {
	Resolver

	// CreateBlock allocates a zeroed block of at least size bytes and returns
	// it acquired by the caller.
	CreateBlock(size uintptr, flags BlockFlags, hint *Hint) (Handle, unsafe.Pointer, error)

	// DestroyBlock frees a block and invalidates its handle.
	DestroyBlock(h Handle) error

	// AcquireBlock maps a block and returns its current base address.
	AcquireBlock(h Handle) (unsafe.Pointer, error)

	// ReleaseBlock ends an acquisition. Writes made before the release are
	// visible to every task that acquires the block afterwards.
	ReleaseBlock(h Handle) error

	// CreateEvent creates an event. initialCount is the latch up-count and
	// is ignored for other kinds.
	CreateEvent(kind EventKind, flags EventFlags, initialCount int64) (Handle, error)

	// DestroyEvent destroys an event; its pending dependents never fire.
	DestroyEvent(h Handle) error

	// Satisfy fires an event with an optional payload block.
	Satisfy(h Handle, payload Handle) error

	// SatisfySlot moves a latch counter up or down.
	SatisfySlot(h Handle, slot LatchSlot) error

	// CreateTemplate registers an entry function with its fixed layout.
	CreateTemplate(name string, fn EntryFunc, paramWords, depCount int) (Handle, error)

	// DestroyTemplate unregisters a template. Existing instances still run.
	DestroyTemplate(h Handle) error

	// CreateTaskInstance creates a task. depv holds one source per slot, or
	// is empty; UninitializedHandle entries are wired later with
	// AddDependence. The second result is the output event when
	// TaskFlagOutputEvent is set.
	CreateTaskInstance(tmpl Handle, paramv []uint64, depv []Handle, hint *Hint, flags TaskFlags) (Handle, Handle, error)

	// AddDependence feeds src into slot of dst, a task or an event.
	AddDependence(src, dst Handle, slot int, mode AccessMode) error

	// DestroyTaskInstance removes a task that has not started.
	DestroyTaskInstance(h Handle) error

	// Shutdown stops the runtime normally.
	Shutdown()

	// Abort stops the runtime with an exit code.
	Abort(code int)
}
