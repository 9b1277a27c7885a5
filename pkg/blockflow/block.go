package blockflow

import (
	"reflect"
	"unsafe"
)

// DatablockHandle names a block holding one T. It is pointer-free and may be
// stored in other blocks or task parameters.
type DatablockHandle[T any] struct {
	h Handle
}

// MakeDatablockHandle types a raw block handle.
func MakeDatablockHandle[T any](h Handle) DatablockHandle[T] {
	return DatablockHandle[T]{h: h}
}

// Handle returns the raw block handle.
func (d DatablockHandle[T]) Handle() Handle { return d.h }

// PayloadType returns T, or nil for Void.
func (d DatablockHandle[T]) PayloadType() reflect.Type { return payloadType[T]() }

// IsNull reports whether d names no block.
func (d DatablockHandle[T]) IsNull() bool { return d.h.IsNull() }

// Acquire maps the block and returns a view of it.
func (d DatablockHandle[T]) Acquire(rt Runtime) (Datablock[T], error) {
	base, err := rt.AcquireBlock(d.h)
	if err != nil {
		return Datablock[T]{}, err
	}
	return Datablock[T]{DatablockHandle: d, rt: rt, base: base}, nil
}

// Destroy frees the block.
func (d DatablockHandle[T]) Destroy(rt Runtime) error {
	return rt.DestroyBlock(d.h)
}

// Datablock is an acquired block holding one T.
type Datablock[T any] struct {
	DatablockHandle[T]
	rt   Runtime
	base unsafe.Pointer
}

// CreateDatablock allocates a zeroed block sized for one T. It panics if T
// holds Go pointers.
func CreateDatablock[T any](rt Runtime, opts ...BlockOption) (Datablock[T], error) {
	mustLayout[T]()
	var v T
	cfg := newBlockConfig(opts)
	h, base, err := rt.CreateBlock(unsafe.Sizeof(v), cfg.flags, cfg.hint)
	if err != nil {
		return Datablock[T]{}, err
	}
	return Datablock[T]{DatablockHandle: DatablockHandle[T]{h: h}, rt: rt, base: base}, nil
}

// Data returns the block contents, or nil for a null block.
func (d Datablock[T]) Data() *T {
	return (*T)(d.base)
}

// Base returns the base address the block had when this view was made.
func (d Datablock[T]) Base() unsafe.Pointer { return d.base }

// Release ends the acquisition. Data must not be used afterwards.
func (d Datablock[T]) Release() error {
	if d.h.IsNull() {
		return nil
	}
	return d.rt.ReleaseBlock(d.h)
}

// Destroy frees the block.
func (d Datablock[T]) Destroy() error {
	return d.rt.DestroyBlock(d.h)
}

// blockConfig holds block creation settings.
type blockConfig struct {
	flags BlockFlags
	hint  *Hint
}

// BlockOption configures block creation.
type BlockOption func(*blockConfig)

// WithBlockFlags sets creation flags.
func WithBlockFlags(f BlockFlags) BlockOption {
	return func(c *blockConfig) {
		c.flags = f
	}
}

// WithBlockHint sets a placement hint.
func WithBlockHint(h Hint) BlockOption {
	return func(c *blockConfig) {
		c.hint = &h
	}
}

func newBlockConfig(opts []BlockOption) blockConfig {
	var cfg blockConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
