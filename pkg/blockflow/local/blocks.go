package local

import (
	"fmt"
	"unsafe"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
	"github.com/randalmurphal/blockflow/pkg/blockflow/observability"
	"github.com/randalmurphal/blockflow/pkg/blockflow/store"
)

// block is one runtime-owned memory region.
//
// mem is nil while the block is evicted. A block is mapped (visible to
// AddressFor) exactly while it is held: pinned by an explicit acquire or
// held by a task slot.
type block struct {
	h       blockflow.Handle
	mem     []uint64
	size    uintptr
	pins    int
	readers int
	writer  bool
	evicted bool
}

func (b *block) base() unsafe.Pointer {
	if len(b.mem) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b.mem))
}

func (b *block) held() bool {
	return b.pins > 0 || b.readers > 0 || b.writer
}

// canHold reports whether a task may take the block now.
func (b *block) canHold(exclusive bool) bool {
	if exclusive {
		return b.readers == 0 && !b.writer
	}
	return !b.writer
}

// bytes views the block contents.
func (b *block) bytes() []byte {
	return unsafe.Slice((*byte)(b.base()), len(b.mem)*8)
}

func words(size uintptr) int {
	n := int((size + 7) / 8)
	if n == 0 {
		n = 1
	}
	return n
}

// CreateBlock allocates a zeroed block, returned acquired by the caller.
func (r *Runtime) CreateBlock(size uintptr, _ blockflow.BlockFlags, _ *blockflow.Hint) (blockflow.Handle, unsafe.Pointer, error) {
	b := &block{
		h:    blockflow.NewHandle(),
		mem:  make([]uint64, words(size)),
		size: size,
		pins: 1,
	}

	r.mu.Lock()
	r.blocks[b.h] = b
	r.mapLocked(b)
	ctx := r.ctx
	r.mu.Unlock()

	r.cfg.metrics.RecordBlockCreated(ctx, int64(size))
	return b.h, b.base(), nil
}

// DestroyBlock frees a block. Tasks already holding it keep their view
// until they return.
func (r *Runtime) DestroyBlock(h blockflow.Handle) error {
	r.mu.Lock()
	b, ok := r.blocks[h]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: block %s", blockflow.ErrInvalidHandle, h)
	}
	delete(r.blocks, h)
	r.unmapLocked(b)
	evicted := b.evicted
	r.mu.Unlock()

	if evicted && r.cfg.store != nil {
		if err := r.cfg.store.Delete(r.runID, h.String()); err != nil {
			observability.LogBlockError(r.cfg.logger, h.String(), "delete", err)
		}
	}
	return nil
}

// AcquireBlock pins a block and returns its current base address.
func (r *Runtime) AcquireBlock(h blockflow.Handle) (unsafe.Pointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[h]
	if !ok {
		return nil, fmt.Errorf("%w: block %s", blockflow.ErrInvalidHandle, h)
	}
	if !b.held() {
		if err := r.prepareLocked(b); err != nil {
			return nil, err
		}
	}
	b.pins++
	r.mapLocked(b)
	return b.base(), nil
}

// ReleaseBlock drops one pin.
func (r *Runtime) ReleaseBlock(h blockflow.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[h]
	if !ok {
		return fmt.Errorf("%w: block %s", blockflow.ErrInvalidHandle, h)
	}
	if b.pins == 0 {
		return fmt.Errorf("%w: %s", ErrNotAcquired, h)
	}
	b.pins--
	if !b.held() {
		r.unmapLocked(b)
	}
	return nil
}

// holdLocked takes a task hold on b.
func (r *Runtime) holdLocked(b *block, exclusive bool) error {
	if !b.held() {
		if err := r.prepareLocked(b); err != nil {
			return err
		}
	}
	if exclusive {
		b.writer = true
	} else {
		b.readers++
	}
	r.mapLocked(b)
	return nil
}

func (r *Runtime) unholdLocked(b *block, exclusive bool) {
	if exclusive {
		b.writer = false
	} else if b.readers > 0 {
		b.readers--
	}
	if !b.held() {
		r.unmapLocked(b)
	}
}

// prepareLocked readies an unheld block for use: it restores an evicted
// block and applies relocate-on-acquire.
func (r *Runtime) prepareLocked(b *block) error {
	if b.evicted {
		return r.restoreLocked(b)
	}
	if r.cfg.relocateOnAcquire && r.cfg.backend != BackendPinned {
		r.moveLocked(b)
	}
	return nil
}

func (r *Runtime) mapLocked(b *block) {
	base := b.base()
	r.addrs.Register(b.h, base)
	r.index.Insert(uintptr(base), uintptr(len(b.mem)*8), b.h)
}

func (r *Runtime) unmapLocked(b *block) {
	r.addrs.Delete(b.h)
	r.index.Remove(b.h)
}

// moveLocked copies b to a fresh allocation.
func (r *Runtime) moveLocked(b *block) {
	mem := make([]uint64, len(b.mem))
	copy(mem, b.mem)
	clear(b.mem)
	b.mem = mem
	r.relocations.Add(1)
	r.cfg.metrics.RecordBlockRelocation(r.ctx, int64(b.size))
	r.spanEventLocked("block.relocated", b)
	observability.LogBlockRelocated(r.cfg.logger, b.h.String(), int(b.size))
}

// spanEventLocked marks a block movement on the run span.
func (r *Runtime) spanEventLocked(name string, b *block) {
	r.cfg.spans.AddSpanEvent(r.ctx, name,
		attribute.String("block.id", b.h.String()),
		attribute.Int64("block.size", int64(b.size)),
	)
}

// Relocate moves an unheld block to a new address. Handles and based
// pointers stay valid; raw addresses into the old copy do not.
func (r *Runtime) Relocate(h blockflow.Handle) error {
	if r.cfg.backend == BackendPinned {
		return blockflow.ErrRelocationDisabled
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[h]
	if !ok {
		return fmt.Errorf("%w: block %s", blockflow.ErrInvalidHandle, h)
	}
	if b.held() {
		return fmt.Errorf("%w: %s", blockflow.ErrBlockHeld, h)
	}
	if b.evicted {
		return nil
	}
	r.moveLocked(b)
	return nil
}

// Evict writes an unheld block to the store and frees its memory. The next
// acquire restores it at a new address.
func (r *Runtime) Evict(h blockflow.Handle) error {
	if r.cfg.backend == BackendPinned {
		return blockflow.ErrRelocationDisabled
	}
	if r.cfg.store == nil {
		return ErrNoStore
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[h]
	if !ok {
		return fmt.Errorf("%w: block %s", blockflow.ErrInvalidHandle, h)
	}
	if b.held() {
		return fmt.Errorf("%w: %s", blockflow.ErrBlockHeld, h)
	}
	if b.evicted {
		return nil
	}

	snap := store.NewSnapshot(r.runID, h.String(), uint64(b.size), b.bytes())
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("encode block %s: %w", h, err)
	}
	if err := r.cfg.store.Save(r.runID, h.String(), data); err != nil {
		observability.LogBlockError(r.cfg.logger, h.String(), "evict", err)
		return fmt.Errorf("evict block %s: %w", h, err)
	}

	b.mem = nil
	b.evicted = true
	r.evictions.Add(1)
	r.cfg.metrics.RecordBlockEviction(r.ctx, int64(b.size))
	r.spanEventLocked("block.evicted", b)
	observability.LogBlockEvicted(r.cfg.logger, h.String(), int(b.size))
	return nil
}

// restoreLocked loads an evicted block into a fresh allocation.
func (r *Runtime) restoreLocked(b *block) error {
	data, err := r.cfg.store.Load(r.runID, b.h.String())
	if err != nil {
		observability.LogBlockError(r.cfg.logger, b.h.String(), "restore", err)
		return fmt.Errorf("restore block %s: %w", b.h, err)
	}
	snap, err := store.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("decode block %s: %w", b.h, err)
	}
	if uintptr(snap.Size) != b.size {
		return fmt.Errorf("restore block %s: size %d, want %d", b.h, snap.Size, b.size)
	}

	mem := make([]uint64, words(b.size))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(mem))), len(mem)*8), snap.Data)
	b.mem = mem
	b.evicted = false
	r.spanEventLocked("block.restored", b)

	if err := r.cfg.store.Delete(r.runID, b.h.String()); err != nil {
		observability.LogBlockError(r.cfg.logger, b.h.String(), "delete", err)
	}
	return nil
}

// AddressFor returns the base address of an acquired block.
func (r *Runtime) AddressFor(h blockflow.Handle) (unsafe.Pointer, bool) {
	return r.addrs.Get(h)
}

// HandleAndOffsetFor finds the acquired block containing addr.
func (r *Runtime) HandleAndOffsetFor(addr unsafe.Pointer) (blockflow.Handle, uintptr, bool) {
	return r.index.Lookup(uintptr(addr))
}
