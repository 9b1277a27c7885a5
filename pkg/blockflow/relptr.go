package blockflow

import "unsafe"

// relUninit marks a RelPtr that was never set. An offset of 1 would point
// into the pointer's own storage, so no valid target encodes to it.
const relUninit = 1

// noCopy lets `go vet -copylocks` flag values that must stay in place.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// RelPtr is a pointer encoded as an offset from its own storage address.
//
// A RelPtr is only meaningful inside the block that also holds its target:
// when the block moves, pointer and target move together and the offset
// stays valid. Always use it in place through *RelPtr; copying the struct
// copies the raw offset, which then points somewhere else. Use SetFrom to
// copy the logical target.
//
// The zero value is a null pointer.
type RelPtr[T any] struct {
	_   noCopy
	off int64
}

// Set points p at target. A nil target makes p null.
// It panics with ErrSelfReference if target is p's own storage.
func (p *RelPtr[T]) Set(target *T) {
	if target == nil {
		p.off = 0
		return
	}
	off := int64(uintptr(unsafe.Pointer(target)) - uintptr(unsafe.Pointer(p)))
	if off == 0 {
		panic(ErrSelfReference)
	}
	p.off = off
}

// Get returns the target, or nil for a null pointer.
// It panics with ErrUninitializedPointer if p was invalidated.
func (p *RelPtr[T]) Get() *T {
	switch p.off {
	case 0:
		return nil
	case relUninit:
		panic(ErrUninitializedPointer)
	}
	return (*T)(unsafe.Add(unsafe.Pointer(p), p.off))
}

// At returns the i-th element of the array p points to.
func (p *RelPtr[T]) At(i int) *T {
	return index(p.Get(), i)
}

// SetFrom points p at o's target. The offset is derived again for p's own
// storage, so two pointers with the same target usually hold different
// offsets.
func (p *RelPtr[T]) SetFrom(o *RelPtr[T]) {
	p.Set(o.Get())
}

// SetFromBased points p at the target of a based pointer. The target must
// live in the same block as p.
func (p *RelPtr[T]) SetFromBased(r Resolver, o *BasedPtr[T]) {
	p.Set(o.Get(r))
}

// Invalidate marks p as uninitialized; dereferencing it then panics.
func (p *RelPtr[T]) Invalidate() {
	p.off = relUninit
}

// IsNull reports whether p is null.
func (p *RelPtr[T]) IsNull() bool {
	return p.off == 0
}

// Equal reports whether p and o resolve to the same target.
func (p *RelPtr[T]) Equal(o *RelPtr[T]) bool {
	return p.Get() == o.Get()
}

// Offset returns the raw encoded offset.
func (p *RelPtr[T]) Offset() int64 {
	return p.off
}
