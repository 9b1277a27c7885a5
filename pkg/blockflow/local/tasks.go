package local

import (
	"fmt"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
)

// template is a registered entry function.
type template struct {
	h          blockflow.Handle
	name       string
	fn         blockflow.EntryFunc
	paramWords int
	depCount   int
}

// slotState tracks one dependency slot of a waiting task.
type slotState struct {
	bound     bool
	satisfied bool
	data      blockflow.Handle
	mode      blockflow.AccessMode
}

// hold is a block acquisition taken for a task before it runs.
type hold struct {
	h         blockflow.Handle
	exclusive bool
}

// task is a task instance.
type task struct {
	h       blockflow.Handle
	tmpl    *template
	paramv  []uint64
	slots   []slotState
	pending int
	out     blockflow.Handle

	started bool
	holds   []hold
	depv    []blockflow.Dep
	err     error
}

// CreateTemplate registers an entry function.
func (r *Runtime) CreateTemplate(name string, fn blockflow.EntryFunc, paramWords, depCount int) (blockflow.Handle, error) {
	if fn == nil {
		return blockflow.NullHandle, fmt.Errorf("template %s: nil entry function", name)
	}
	if paramWords < 0 || depCount < 0 {
		return blockflow.NullHandle, fmt.Errorf("template %s: negative layout", name)
	}
	h := blockflow.NewHandle()
	r.templates.Register(h, &template{
		h:          h,
		name:       name,
		fn:         fn,
		paramWords: paramWords,
		depCount:   depCount,
	})
	return h, nil
}

// DestroyTemplate unregisters a template. Existing instances still run.
func (r *Runtime) DestroyTemplate(h blockflow.Handle) error {
	if !r.templates.Has(h) {
		return fmt.Errorf("%w: template %s", blockflow.ErrInvalidHandle, h)
	}
	r.templates.Delete(h)
	return nil
}

// CreateTaskInstance creates a task. Each depv entry other than
// UninitializedHandle is attached in ModeDefault.
func (r *Runtime) CreateTaskInstance(tmplH blockflow.Handle, paramv []uint64, depv []blockflow.Handle, _ *blockflow.Hint, flags blockflow.TaskFlags) (blockflow.Handle, blockflow.Handle, error) {
	tmpl, ok := r.templates.Get(tmplH)
	if !ok {
		return blockflow.NullHandle, blockflow.NullHandle, fmt.Errorf("%w: template %s", blockflow.ErrInvalidHandle, tmplH)
	}
	if len(paramv) != tmpl.paramWords {
		return blockflow.NullHandle, blockflow.NullHandle, &blockflow.ContractError{
			Template: tmpl.name, Op: "create", Slot: -1,
			Err: fmt.Errorf("%w: got %d words, want %d", blockflow.ErrParamSize, len(paramv), tmpl.paramWords),
		}
	}
	if len(depv) != 0 && len(depv) != tmpl.depCount {
		return blockflow.NullHandle, blockflow.NullHandle, &blockflow.ContractError{
			Template: tmpl.name, Op: "create", Slot: -1,
			Err: fmt.Errorf("%w: got %d deps, want %d", blockflow.ErrArity, len(depv), tmpl.depCount),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return blockflow.NullHandle, blockflow.NullHandle, blockflow.ErrRuntimeStopped
	}

	t := &task{
		h:       blockflow.NewHandle(),
		tmpl:    tmpl,
		paramv:  append([]uint64(nil), paramv...),
		slots:   make([]slotState, tmpl.depCount),
		pending: tmpl.depCount,
	}
	if flags&blockflow.TaskFlagOutputEvent != 0 {
		t.out = r.newEventLocked(blockflow.EventOnce, 0)
	}
	r.tasks[t.h] = t

	for i, src := range depv {
		if src.IsUninitialized() {
			continue
		}
		if err := r.attachLocked(src, t, i, blockflow.ModeDefault); err != nil {
			delete(r.tasks, t.h)
			if t.out.IsValid() {
				delete(r.events, t.out)
			}
			return blockflow.NullHandle, blockflow.NullHandle, err
		}
	}

	if t.pending == 0 {
		r.tryStartLocked(t)
	}
	return t.h, t.out, nil
}

// AddDependence feeds src into slot of dst, a task or an event.
func (r *Runtime) AddDependence(src, dst blockflow.Handle, slot int, mode blockflow.AccessMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[dst]; ok {
		if err := r.attachLocked(src, t, slot, mode); err != nil {
			return err
		}
		if t.pending == 0 && !t.started {
			r.tryStartLocked(t)
		}
		return nil
	}
	if e, ok := r.events[dst]; ok {
		return r.attachEventLocked(src, e, slot)
	}
	return fmt.Errorf("%w: dependence target %s", blockflow.ErrInvalidHandle, dst)
}

// attachLocked binds src to a task slot, satisfying it now when possible.
func (r *Runtime) attachLocked(src blockflow.Handle, t *task, slot int, mode blockflow.AccessMode) error {
	if slot < 0 || slot >= len(t.slots) {
		return &blockflow.ContractError{Template: t.tmpl.name, Op: "depend", Slot: slot,
			Err: fmt.Errorf("%w: slot out of range (%d slots)", blockflow.ErrArity, len(t.slots))}
	}
	s := &t.slots[slot]
	if s.bound || t.started {
		return &blockflow.ContractError{Template: t.tmpl.name, Op: "depend", Slot: slot, Err: blockflow.ErrSlotBound}
	}

	switch {
	case src.IsNull():
		s.bound, s.mode = true, mode
		r.satisfySlotLocked(t, slot, blockflow.NullHandle)
	case r.blocks[src] != nil:
		s.bound, s.mode = true, mode
		r.satisfySlotLocked(t, slot, src)
	case r.events[src] != nil:
		e := r.events[src]
		s.bound, s.mode = true, mode
		if e.satisfied && e.retains() {
			r.satisfySlotLocked(t, slot, e.payload)
		} else {
			e.waiters = append(e.waiters, waiter{dst: t.h, slot: slot})
		}
	default:
		return fmt.Errorf("%w: dependence source %s", blockflow.ErrInvalidHandle, src)
	}
	return nil
}

// satisfySlotLocked records data for a slot. The task is not started here;
// callers decide when to try.
func (r *Runtime) satisfySlotLocked(t *task, slot int, data blockflow.Handle) {
	s := &t.slots[slot]
	if s.satisfied {
		return
	}
	s.satisfied = true
	s.data = data
	t.pending--
}

// DestroyTaskInstance removes a task that is still waiting for dependencies.
func (r *Runtime) DestroyTaskInstance(h blockflow.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[h]
	if !ok {
		return fmt.Errorf("%w: task %s", blockflow.ErrInvalidHandle, h)
	}
	if t.started {
		return ErrTaskStarted
	}
	delete(r.tasks, h)
	if t.out.IsValid() {
		delete(r.events, t.out)
	}
	return nil
}

// tryStartLocked takes every block hold t needs, all or nothing. On
// success t moves to the ready queue; otherwise it waits in blocked until a
// release.
func (r *Runtime) tryStartLocked(t *task) {
	t.started = true

	want := make(map[blockflow.Handle]bool, len(t.slots))
	var order []blockflow.Handle
	for _, s := range t.slots {
		if !s.data.IsValid() {
			continue
		}
		if _, seen := want[s.data]; !seen {
			order = append(order, s.data)
		}
		want[s.data] = want[s.data] || !s.mode.Shared()
	}

	for _, h := range order {
		b, ok := r.blocks[h]
		if !ok {
			t.err = fmt.Errorf("%w: block %s was destroyed before the task ran", blockflow.ErrInvalidHandle, h)
			r.readyLocked(t)
			return
		}
		if !b.canHold(want[h]) {
			r.blocked = append(r.blocked, t)
			return
		}
	}

	holds := make([]hold, 0, len(order))
	for _, h := range order {
		if err := r.holdLocked(r.blocks[h], want[h]); err != nil {
			t.holds = holds
			r.releaseHoldsLocked(t)
			t.err = err
			r.readyLocked(t)
			return
		}
		holds = append(holds, hold{h: h, exclusive: want[h]})
	}
	t.holds = holds

	t.depv = make([]blockflow.Dep, len(t.slots))
	for i, s := range t.slots {
		t.depv[i].Handle = s.data
		if b, ok := r.blocks[s.data]; ok && s.data.IsValid() {
			t.depv[i].Ptr = b.base()
		}
	}
	r.readyLocked(t)
}

func (r *Runtime) readyLocked(t *task) {
	r.ready = append(r.ready, t)
	r.cond.Signal()
}

// rescanLocked retries blocked tasks in arrival order.
func (r *Runtime) rescanLocked() {
	if len(r.blocked) == 0 {
		return
	}
	blocked := r.blocked
	r.blocked = nil
	for _, t := range blocked {
		if _, alive := r.tasks[t.h]; alive {
			r.tryStartLocked(t)
		}
	}
}

// releaseHoldsLocked drops every block hold of t.
func (r *Runtime) releaseHoldsLocked(t *task) {
	for _, hd := range t.holds {
		if b, ok := r.blocks[hd.h]; ok {
			r.unholdLocked(b, hd.exclusive)
		}
	}
	t.holds = nil
}
