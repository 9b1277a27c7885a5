package blockflow

import (
	"fmt"
	"unsafe"
)

// BasedPtr is a pointer encoded as (block handle, offset within block).
//
// Dereferencing looks up the block's current base address, so a BasedPtr
// stays valid when its target block is relocated or restored at another
// address. BasedPtr is a plain value and may be copied freely, including
// into task parameters.
//
// The zero value is a null pointer.
type BasedPtr[T any] struct {
	target Handle
	off    int64
}

// MakeBasedPtr builds a pointer to offset off in block h.
func MakeBasedPtr[T any](h Handle, off uintptr) BasedPtr[T] {
	return BasedPtr[T]{target: h, off: int64(off)}
}

// Set points p at target, which must be inside an acquired block.
func (p *BasedPtr[T]) Set(r Resolver, target *T) error {
	h, off, err := encodeBased(r, unsafe.Pointer(p), unsafe.Pointer(target), false)
	if err != nil {
		return err
	}
	p.target, p.off = h, off
	return nil
}

// Get returns the target at its current address, or nil for a null
// pointer. It panics on an invalidated pointer or a dead block; use Resolve
// to get an error instead.
func (p *BasedPtr[T]) Get(r Resolver) *T {
	t, err := p.Resolve(r)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve is Get with an error result.
func (p *BasedPtr[T]) Resolve(r Resolver) (*T, error) {
	addr, err := resolveBased(r, unsafe.Pointer(p), p.target, p.off, false)
	return (*T)(addr), err
}

// At returns the i-th element of the array p points to.
func (p *BasedPtr[T]) At(r Resolver, i int) *T {
	return index(p.Get(r), i)
}

// Invalidate makes p hold ErrorHandle; dereferencing it then panics.
func (p *BasedPtr[T]) Invalidate() {
	p.target, p.off = ErrorHandle, 0
}

// IsNull reports whether p is null.
func (p BasedPtr[T]) IsNull() bool { return p.target.IsNull() }

// TargetHandle returns the block p points into.
func (p BasedPtr[T]) TargetHandle() Handle { return p.target }

// Offset returns the offset within the target block.
func (p BasedPtr[T]) Offset() int64 { return p.off }

// Equal reports whether p and o name the same block and offset.
func (p BasedPtr[T]) Equal(o BasedPtr[T]) bool {
	return p.target == o.target && p.off == o.off
}

// EmbeddedPtr is a BasedPtr meant to be stored inside block memory.
//
// When the pointer and its target share a block, it stores
// UninitializedHandle and an offset from its own storage, exactly like a
// RelPtr, and resolves without a registry lookup. Otherwise it behaves as a
// BasedPtr. Like RelPtr it must be used in place; SetFrom copies the logical
// target.
type EmbeddedPtr[T any] struct {
	_      noCopy
	target Handle
	off    int64
}

// Set points p at target. An intra-block target takes the self-relative
// encoding.
func (p *EmbeddedPtr[T]) Set(r Resolver, target *T) error {
	h, off, err := encodeBased(r, unsafe.Pointer(p), unsafe.Pointer(target), true)
	if err != nil {
		return err
	}
	p.target, p.off = h, off
	return nil
}

// Get returns the target, or nil for a null pointer. It panics on invalid use.
func (p *EmbeddedPtr[T]) Get(r Resolver) *T {
	t, err := p.Resolve(r)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve is Get with an error result.
func (p *EmbeddedPtr[T]) Resolve(r Resolver) (*T, error) {
	addr, err := resolveBased(r, unsafe.Pointer(p), p.target, p.off, true)
	return (*T)(addr), err
}

// At returns the i-th element of the array p points to.
func (p *EmbeddedPtr[T]) At(r Resolver, i int) *T {
	return index(p.Get(r), i)
}

// SetFrom points p at o's target. A self-relative source is re-encoded for
// p's storage; a cross-block source is copied as is.
func (p *EmbeddedPtr[T]) SetFrom(r Resolver, o *EmbeddedPtr[T]) error {
	if o.target.IsUninitialized() {
		return p.Set(r, o.Get(r))
	}
	p.target, p.off = o.target, o.off
	return nil
}

// Based converts p to the general (handle, offset) form.
func (p *EmbeddedPtr[T]) Based(r Resolver) (BasedPtr[T], error) {
	if !p.target.IsUninitialized() {
		return BasedPtr[T]{target: p.target, off: p.off}, nil
	}
	var b BasedPtr[T]
	t, err := p.Resolve(r)
	if err != nil {
		return b, err
	}
	err = b.Set(r, t)
	return b, err
}

// Invalidate makes p hold ErrorHandle.
func (p *EmbeddedPtr[T]) Invalidate() {
	p.target, p.off = ErrorHandle, 0
}

// IsNull reports whether p is null.
func (p *EmbeddedPtr[T]) IsNull() bool { return p.target.IsNull() }

// IsIntraBlock reports whether p uses the self-relative encoding.
func (p *EmbeddedPtr[T]) IsIntraBlock() bool { return p.target.IsUninitialized() }

// TargetHandle returns the stored handle. It is UninitializedHandle for
// intra-block pointers.
func (p *EmbeddedPtr[T]) TargetHandle() Handle { return p.target }

// Offset returns the stored offset.
func (p *EmbeddedPtr[T]) Offset() int64 { return p.off }

// encodeBased computes the stored form of a pointer at self targeting addr.
func encodeBased(r Resolver, self, addr unsafe.Pointer, embedded bool) (Handle, int64, error) {
	if addr == nil {
		return NullHandle, 0, nil
	}
	th, toff, ok := r.HandleAndOffsetFor(addr)
	if !ok {
		return ErrorHandle, 0, fmt.Errorf("%w: %p", ErrAddressNotInBlock, addr)
	}
	if embedded {
		if sh, _, ok := r.HandleAndOffsetFor(self); ok && sh == th {
			return UninitializedHandle, int64(uintptr(addr) - uintptr(self)), nil
		}
	}
	return th, int64(toff), nil
}

// resolveBased computes the live address of a stored pointer at self.
func resolveBased(r Resolver, self unsafe.Pointer, h Handle, off int64, embedded bool) (unsafe.Pointer, error) {
	switch {
	case h.IsNull():
		return nil, nil
	case h.IsError():
		return nil, ErrInvalidPointer
	case h.IsUninitialized():
		if !embedded {
			return nil, ErrInvalidPointer
		}
		return unsafe.Add(self, off), nil
	}
	base, ok := r.AddressFor(h)
	if !ok {
		return nil, fmt.Errorf("%w: block %s is not acquired", ErrInvalidHandle, h)
	}
	return unsafe.Add(base, off), nil
}

// index returns &base[i] for an array of T starting at base.
func index[T any](base *T, i int) *T {
	if base == nil {
		panic(ErrInvalidPointer)
	}
	var v T
	return (*T)(unsafe.Add(unsafe.Pointer(base), uintptr(i)*unsafe.Sizeof(v)))
}
