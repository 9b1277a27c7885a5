// Package registry provides the concurrent lookup tables behind a runtime.
//
// Registry is a generic thread-safe map tuned for read-heavy use; the local
// runtime keeps block base addresses and task templates in registries so
// that pointer resolution never takes the scheduler lock.
//
//	addrs := registry.New[blockflow.Handle, unsafe.Pointer]()
//	addrs.Register(h, base)
//	base, ok := addrs.Get(h)
//
// IntervalIndex is the reverse direction: it maps address ranges back to
// the key that owns them, which is how an interior address is turned into
// a (block, offset) pair.
//
//	idx := registry.NewIntervalIndex[blockflow.Handle]()
//	idx.Insert(uintptr(base), size, h)
//	h, off, ok := idx.Lookup(uintptr(addr))
//
// All methods are safe for concurrent use. Range iterates over a snapshot,
// so it may be combined with Register and Delete.
package registry
