package blockflow

import (
	"reflect"
	"unsafe"
)

// ArenaHeaderSize is the size of the allocator header at the start of
// every arena block. The arena's root object starts right after it.
const ArenaHeaderSize = uintptr(unsafe.Sizeof(arenaHeader{}))

// arenaHeader lives in the block itself, so the cursor survives release,
// relocation and hand-off between tasks.
type arenaHeader struct {
	capacity uint64
	cursor   uint64
}

// ArenaState is a saved cursor position.
type ArenaState struct {
	cursor uint64
}

// ArenaHandle names an arena block whose root object is a T. It is
// pointer-free and may be stored in other blocks or task parameters.
type ArenaHandle[T any] struct {
	h Handle
}

// MakeArenaHandle types a raw block handle as an arena.
func MakeArenaHandle[T any](h Handle) ArenaHandle[T] {
	return ArenaHandle[T]{h: h}
}

// Handle returns the raw block handle.
func (a ArenaHandle[T]) Handle() Handle { return a.h }

// PayloadType returns T, or nil for Void.
func (a ArenaHandle[T]) PayloadType() reflect.Type { return payloadType[T]() }

// IsNull reports whether a names no block.
func (a ArenaHandle[T]) IsNull() bool { return a.h.IsNull() }

// Acquire maps the arena block.
func (a ArenaHandle[T]) Acquire(rt Runtime) (Arena[T], error) {
	base, err := rt.AcquireBlock(a.h)
	if err != nil {
		return Arena[T]{}, err
	}
	return Arena[T]{ArenaHandle: a, rt: rt, base: base}, nil
}

// Arena is an acquired block used as a bump allocator.
//
// The root object T sits at ArenaHeaderSize; further objects are placed
// with New and NewArray. Capacity is fixed at creation.
type Arena[T any] struct {
	ArenaHandle[T]
	rt   Runtime
	base unsafe.Pointer
}

// CreateArena allocates an arena with room for bytes of objects after the
// header. The root object is not allocated; call New[T] first when the
// arena has one.
func CreateArena[T any](rt Runtime, bytes uintptr, opts ...BlockOption) (Arena[T], error) {
	mustLayout[T]()
	cfg := newBlockConfig(opts)
	size := ArenaHeaderSize + bytes
	h, base, err := rt.CreateBlock(size, cfg.flags, cfg.hint)
	if err != nil {
		return Arena[T]{}, err
	}
	hdr := (*arenaHeader)(base)
	hdr.capacity = uint64(size)
	hdr.cursor = uint64(ArenaHeaderSize)
	return Arena[T]{ArenaHandle: ArenaHandle[T]{h: h}, rt: rt, base: base}, nil
}

func (a Arena[T]) header() *arenaHeader {
	return (*arenaHeader)(a.base)
}

// Data returns the root object.
func (a Arena[T]) Data() *T {
	if a.base == nil {
		return nil
	}
	return (*T)(unsafe.Add(a.base, ArenaHeaderSize))
}

// Base returns the block base address of this view.
func (a Arena[T]) Base() unsafe.Pointer { return a.base }

// Untyped drops the root type.
func (a Arena[T]) Untyped() Arena[Void] {
	return Arena[Void]{ArenaHandle: ArenaHandle[Void]{h: a.h}, rt: a.rt, base: a.base}
}

// Capacity returns the total block size, header included.
func (a Arena[T]) Capacity() uintptr { return uintptr(a.header().capacity) }

// Used returns the cursor position, header included.
func (a Arena[T]) Used() uintptr { return uintptr(a.header().cursor) }

// Remaining returns the bytes still available.
func (a Arena[T]) Remaining() uintptr {
	hdr := a.header()
	return uintptr(hdr.capacity - hdr.cursor)
}

// Alloc reserves size bytes aligned to align and returns their offset from
// the block base. It returns *ArenaExhaustedError, leaving the cursor
// untouched, when the request does not fit.
func (a Arena[T]) Alloc(size, align uintptr) (uintptr, error) {
	if align == 0 {
		align = 1
	}
	hdr := a.header()
	start := alignUp(uintptr(hdr.cursor), align)
	end := start + alignUp(size, align)
	if end > uintptr(hdr.capacity) || end < start {
		return 0, &ArenaExhaustedError{
			Block:     a.h,
			Requested: end - uintptr(hdr.cursor),
			Available: uintptr(hdr.capacity - hdr.cursor),
		}
	}
	hdr.cursor = uint64(end)
	zero(unsafe.Add(a.base, start), end-start)
	return start, nil
}

// State saves the cursor.
func (a Arena[T]) State() ArenaState {
	return ArenaState{cursor: a.header().cursor}
}

// Restore rolls the cursor back to a saved state, freeing everything
// allocated since. Moving the cursor forward is ignored.
func (a Arena[T]) Restore(s ArenaState) {
	hdr := a.header()
	if s.cursor >= uint64(ArenaHeaderSize) && s.cursor < hdr.cursor {
		hdr.cursor = s.cursor
	}
}

// Release ends the acquisition.
func (a Arena[T]) Release() error {
	if a.h.IsNull() {
		return nil
	}
	return a.rt.ReleaseBlock(a.h)
}

// Destroy frees the arena block.
func (a Arena[T]) Destroy() error {
	return a.rt.DestroyBlock(a.h)
}

// New places a zeroed U in the arena. Running out of capacity is fatal: it
// panics with *ArenaExhaustedError.
func New[U, T any](a Arena[T]) *U {
	mustLayout[U]()
	var v U
	off, err := a.Alloc(unsafe.Sizeof(v), unsafe.Alignof(v))
	if err != nil {
		panic(err)
	}
	return (*U)(unsafe.Add(a.base, off))
}

// NewArray places n zeroed values of U in the arena and returns them as a
// slice over block memory. It panics like New.
func NewArray[U, T any](a Arena[T], n int) []U {
	mustLayout[U]()
	if n <= 0 {
		return nil
	}
	var v U
	size := unsafe.Sizeof(v)
	if size > 0 && uintptr(n) > a.Remaining()/size {
		requested := ^uintptr(0)
		if uintptr(n) <= requested/size {
			requested = size * uintptr(n)
		}
		panic(&ArenaExhaustedError{Block: a.h, Requested: requested, Available: a.Remaining()})
	}
	off, err := a.Alloc(size*uintptr(n), unsafe.Alignof(v))
	if err != nil {
		panic(err)
	}
	return unsafe.Slice((*U)(unsafe.Add(a.base, off)), n)
}
