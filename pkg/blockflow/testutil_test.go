package blockflow

import (
	"unsafe"
)

// place views offset off of a word-backed region as a T.
func place[T any](mem []uint64, off uintptr) *T {
	return (*T)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(mem)), off))
}

// fakeResolver is a minimal Resolver over word-backed regions that can be
// moved to new allocations.
type fakeResolver struct {
	blocks map[Handle][]uint64
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{blocks: make(map[Handle][]uint64)}
}

func (f *fakeResolver) add(words int) (Handle, []uint64) {
	h := NewHandle()
	mem := make([]uint64, words)
	f.blocks[h] = mem
	return h, mem
}

// move copies block h to a fresh allocation and clears the old one.
func (f *fakeResolver) move(h Handle) []uint64 {
	old := f.blocks[h]
	mem := make([]uint64, len(old))
	copy(mem, old)
	clear(old)
	f.blocks[h] = mem
	return mem
}

func (f *fakeResolver) AddressFor(h Handle) (unsafe.Pointer, bool) {
	mem, ok := f.blocks[h]
	if !ok {
		return nil, false
	}
	return unsafe.Pointer(unsafe.SliceData(mem)), true
}

func (f *fakeResolver) HandleAndOffsetFor(addr unsafe.Pointer) (Handle, uintptr, bool) {
	a := uintptr(addr)
	for h, mem := range f.blocks {
		base := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
		if a >= base && a < base+uintptr(len(mem))*8 {
			return h, a - base, true
		}
	}
	return NullHandle, 0, false
}
