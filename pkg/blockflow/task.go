package blockflow

import (
	"fmt"
	"reflect"
	"unsafe"
)

// AccessMode is the concurrency contract a task requests on a block.
//
// Modes only order tasks against each other. A block pinned by CreateBlock
// or AcquireBlock does not hold off an exclusive task, so release a block
// you created before handing it to an exclusive dependent.
type AccessMode uint8

const (
	// ModeDefault behaves as ModeReadWrite.
	ModeDefault AccessMode = iota
	// ModeExclusive excludes every other access to the block.
	ModeExclusive
	// ModeReadWrite excludes every other access to the block.
	ModeReadWrite
	// ModeConstant shares the block with other readers.
	ModeConstant
	// ModeReadOnly shares the block with other readers.
	ModeReadOnly
)

// String returns the mode name.
func (m AccessMode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeExclusive:
		return "exclusive"
	case ModeReadWrite:
		return "read-write"
	case ModeConstant:
		return "constant"
	case ModeReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}

// Shared reports whether the mode lets other readers in at the same time.
func (m AccessMode) Shared() bool {
	return m == ModeConstant || m == ModeReadOnly
}

// Source is anything that can feed a dependency slot: a block, an arena,
// an event or a raw handle.
type Source interface {
	Handle() Handle
	// PayloadType is the data type delivered, or nil when untyped.
	PayloadType() reflect.Type
}

// Slot declares the data type a dependency slot accepts.
type Slot struct {
	typ reflect.Type
}

// SlotOf declares a slot that accepts blocks, arenas or events of T.
func SlotOf[T any]() Slot {
	return Slot{typ: payloadType[T]()}
}

// AnySlot declares an untyped slot, used for control dependencies.
func AnySlot() Slot {
	return Slot{}
}

// Type returns the accepted type, or nil for an untyped slot.
func (s Slot) Type() reflect.Type { return s.typ }

// String describes the slot.
func (s Slot) String() string {
	if s.typ == nil {
		return "any"
	}
	return s.typ.String()
}

// slotAccepts reports whether src may feed a slot of type want. Untyped
// sources (raw handles, placeholders, Void blocks) fit anywhere.
func slotAccepts(want reflect.Type, src Source) bool {
	if want == nil || src == nil {
		return true
	}
	got := src.PayloadType()
	return got == nil || got == want
}

// TaskFunc is the body of a task. param is the task's by-value parameter
// and deps holds one resolved entry per declared slot. The returned handle
// satisfies the task's output event; return NullHandle when there is none.
type TaskFunc[P any] func(ctx Context, param P, deps Deps) (Handle, error)

// TaskTemplate binds a TaskFunc to a fixed layout: one pointer-free
// parameter P and a list of typed dependency slots.
type TaskTemplate[P any] struct {
	rt    Runtime
	h     Handle
	name  string
	slots []Slot
	words int
}

// NewTemplate registers fn with rt. P must be pointer-free; use NoParam
// when the task takes no parameter.
func NewTemplate[P any](rt Runtime, name string, fn TaskFunc[P], slots ...Slot) (*TaskTemplate[P], error) {
	if name == "" {
		panic("blockflow: template name cannot be empty")
	}
	if fn == nil {
		panic("blockflow: template function cannot be nil")
	}
	if err := CheckLayout(reflect.TypeFor[P]()); err != nil {
		return nil, &ContractError{Template: name, Op: "create", Slot: -1, Err: err}
	}

	var probe P
	size := unsafe.Sizeof(probe)
	words := int((size + 7) / 8)
	declared := append([]Slot(nil), slots...)

	entry := func(ctx Context, paramv []uint64, depv []Dep) (Handle, error) {
		if len(paramv) != words {
			return NullHandle, &ContractError{Template: name, Op: "entry", Slot: -1,
				Err: fmt.Errorf("%w: got %d words, want %d", ErrParamSize, len(paramv), words)}
		}
		if len(depv) != len(declared) {
			return NullHandle, &ContractError{Template: name, Op: "entry", Slot: -1,
				Err: fmt.Errorf("%w: got %d deps, want %d", ErrArity, len(depv), len(declared))}
		}
		var p P
		if size > 0 {
			copy(unsafe.Slice((*byte)(unsafe.Pointer(&p)), size),
				unsafe.Slice((*byte)(unsafe.Pointer(&paramv[0])), size))
		}
		return fn(ctx, p, Deps{rt: ctx, entries: depv, slots: declared})
	}

	h, err := rt.CreateTemplate(name, entry, words, len(declared))
	if err != nil {
		return nil, err
	}
	return &TaskTemplate[P]{rt: rt, h: h, name: name, slots: declared, words: words}, nil
}

// Handle returns the template handle.
func (t *TaskTemplate[P]) Handle() Handle { return t.h }

// Name returns the template name.
func (t *TaskTemplate[P]) Name() string { return t.name }

// Slots returns the declared dependency slots.
func (t *TaskTemplate[P]) Slots() []Slot { return append([]Slot(nil), t.slots...) }

// Destroy unregisters the template. Tasks already created still run.
func (t *TaskTemplate[P]) Destroy() error {
	return t.rt.DestroyTemplate(t.h)
}

// Builder returns a factory for task instances of t.
func (t *TaskTemplate[P]) Builder(opts ...TaskOption) TaskBuilder[P] {
	var cfg taskConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return TaskBuilder[P]{tmpl: t, cfg: cfg}
}

// taskConfig holds task creation settings.
type taskConfig struct {
	hint  *Hint
	flags TaskFlags
}

// TaskOption configures task creation.
type TaskOption func(*taskConfig)

// WithHint sets a placement hint for created tasks.
func WithHint(h Hint) TaskOption {
	return func(c *taskConfig) {
		c.hint = &h
	}
}

// WithTaskFlags adds creation flags.
func WithTaskFlags(f TaskFlags) TaskOption {
	return func(c *taskConfig) {
		c.flags |= f
	}
}

// TaskBuilder creates task instances of one template.
type TaskBuilder[P any] struct {
	tmpl *TaskTemplate[P]
	cfg  taskConfig
}

// CreateTask creates a task with every slot bound. Sources are attached in
// ModeDefault; use CreateTaskPartial and DependOn for other modes.
func (b TaskBuilder[P]) CreateTask(param P, deps ...Source) (Task, error) {
	if len(deps) != len(b.tmpl.slots) {
		return Task{}, b.arity("create", len(deps))
	}
	t, _, err := b.create(param, deps, b.cfg.flags)
	return t, err
}

// CreateTaskPartial creates a task with the first len(deps) slots bound and
// the rest padded with UnknownDependence. The task does not run until the
// remaining slots are wired with DependOn.
func (b TaskBuilder[P]) CreateTaskPartial(param P, deps ...Source) (Task, error) {
	if len(deps) >= len(b.tmpl.slots) {
		return Task{}, b.arity("create partial", len(deps))
	}
	t, _, err := b.create(param, deps, b.cfg.flags)
	return t, err
}

// CreateFuturePartial is CreateTaskPartial plus an output event, returned
// together so a continuation can be attached before the task can finish.
func (b TaskBuilder[P]) CreateFuturePartial(param P, deps ...Source) (DelayedFuture, error) {
	if len(deps) >= len(b.tmpl.slots) {
		return DelayedFuture{}, b.arity("create future", len(deps))
	}
	t, out, err := b.create(param, deps, b.cfg.flags|TaskFlagOutputEvent)
	if err != nil {
		return DelayedFuture{}, err
	}
	return DelayedFuture{Task: t, Event: Event[Void]{h: out}}, nil
}

func (b TaskBuilder[P]) arity(op string, got int) error {
	return &ContractError{Template: b.tmpl.name, Op: op, Slot: -1,
		Err: fmt.Errorf("%w: got %d sources for %d slots", ErrArity, got, len(b.tmpl.slots))}
}

func (b TaskBuilder[P]) create(param P, deps []Source, flags TaskFlags) (Task, Handle, error) {
	t := b.tmpl
	depv := make([]Handle, len(t.slots))
	for i := range depv {
		depv[i] = UninitializedHandle
	}
	for i, src := range deps {
		if !slotAccepts(t.slots[i].typ, src) {
			return Task{}, NullHandle, &ContractError{Template: t.name, Op: "create", Slot: i,
				Err: fmt.Errorf("%w: %v into %s", ErrSlotType, src.PayloadType(), t.slots[i])}
		}
		depv[i] = src.Handle()
	}

	h, out, err := t.rt.CreateTaskInstance(t.h, packParam(param, t.words), depv, b.cfg.hint, flags)
	if err != nil {
		return Task{}, NullHandle, err
	}
	return Task{rt: t.rt, h: h, name: t.name, slots: t.slots}, out, nil
}

// packParam copies p into the word vector of the entry contract.
func packParam[P any](p P, words int) []uint64 {
	if words == 0 {
		return nil
	}
	paramv := make([]uint64, words)
	size := unsafe.Sizeof(p)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&paramv[0])), size),
		unsafe.Slice((*byte)(unsafe.Pointer(&p)), size))
	return paramv
}

// Task is a created task instance.
type Task struct {
	rt    Runtime
	h     Handle
	name  string
	slots []Slot
}

// Handle returns the task handle.
func (t Task) Handle() Handle { return t.h }

// DependOn wires src into an unbound slot with the given access mode.
// The caller's own pin on src does not delay the task; see AccessMode.
func (t Task) DependOn(slot int, src Source, mode AccessMode) error {
	if slot < 0 || slot >= len(t.slots) {
		return &ContractError{Template: t.name, Op: "depend", Slot: slot,
			Err: fmt.Errorf("%w: slot out of range (%d slots)", ErrArity, len(t.slots))}
	}
	if !slotAccepts(t.slots[slot].typ, src) {
		return &ContractError{Template: t.name, Op: "depend", Slot: slot,
			Err: fmt.Errorf("%w: %v into %s", ErrSlotType, src.PayloadType(), t.slots[slot])}
	}
	return t.rt.AddDependence(src.Handle(), t.h, slot, mode)
}

// DependOnRange wires srcs into consecutive slots starting at first.
func (t Task) DependOnRange(first int, srcs []Source, mode AccessMode) error {
	for i, src := range srcs {
		if err := t.DependOn(first+i, src, mode); err != nil {
			return err
		}
	}
	return nil
}

// Destroy removes the task if it has not started.
func (t Task) Destroy() error {
	return t.rt.DestroyTaskInstance(t.h)
}

// DelayedFuture pairs a partially bound task with its output event.
type DelayedFuture struct {
	Task  Task
	Event Event[Void]
}

// Deps is the typed view of a task's dependency vector.
type Deps struct {
	rt      Runtime
	entries []Dep
	slots   []Slot
}

// Len returns the number of slots.
func (d Deps) Len() int { return len(d.entries) }

// At returns the raw entry of slot i.
func (d Deps) At(i int) Dep { return d.entries[i] }

// HandleAt returns the handle delivered to slot i.
func (d Deps) HandleAt(i int) Handle { return d.entries[i].Handle }

func (d Deps) check(i int, want reflect.Type) {
	if i < 0 || i >= len(d.entries) {
		panic(&ContractError{Template: "deps", Op: "access", Slot: i, Err: ErrArity})
	}
	declared := d.slots[i].typ
	if declared != nil && want != nil && declared != want {
		panic(&ContractError{Template: "deps", Op: "access", Slot: i,
			Err: fmt.Errorf("%w: slot is %s, accessed as %s", ErrSlotType, declared, want)})
	}
}

// DatablockAt returns slot i as an acquired block of T. Reading a slot as
// a type other than its declared one is a contract violation and panics.
func DatablockAt[T any](d Deps, i int) Datablock[T] {
	d.check(i, payloadType[T]())
	e := d.entries[i]
	return Datablock[T]{DatablockHandle: DatablockHandle[T]{h: e.Handle}, rt: d.rt, base: e.Ptr}
}

// ArenaAt returns slot i as an acquired arena whose root is a T.
func ArenaAt[T any](d Deps, i int) Arena[T] {
	d.check(i, payloadType[T]())
	e := d.entries[i]
	return Arena[T]{ArenaHandle: ArenaHandle[T]{h: e.Handle}, rt: d.rt, base: e.Ptr}
}

// EventPayloadAt returns the payload an event delivered to slot i. The
// second result is false when the event fired without a payload.
func EventPayloadAt[T any](d Deps, i int) (Datablock[T], bool) {
	db := DatablockAt[T](d, i)
	return db, !db.h.IsNull()
}
