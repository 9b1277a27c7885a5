package local

import (
	"fmt"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
	"github.com/randalmurphal/blockflow/pkg/blockflow/observability"
)

// waiter is a dependent of an unsatisfied event: a task slot or another
// event.
type waiter struct {
	dst  blockflow.Handle
	slot int
}

type event struct {
	h         blockflow.Handle
	kind      blockflow.EventKind
	satisfied bool
	payload   blockflow.Handle
	counter   int64
	waiters   []waiter
}

// retains reports whether the event stays alive after firing, so late
// dependents still receive its payload.
func (e *event) retains() bool {
	return e.kind == blockflow.EventSticky || e.kind == blockflow.EventIdempotent
}

func (r *Runtime) newEventLocked(kind blockflow.EventKind, count int64) blockflow.Handle {
	e := &event{h: blockflow.NewHandle(), kind: kind, counter: count}
	r.events[e.h] = e
	return e.h
}

// CreateEvent creates an event. initialCount is the latch counter.
func (r *Runtime) CreateEvent(kind blockflow.EventKind, _ blockflow.EventFlags, initialCount int64) (blockflow.Handle, error) {
	switch kind {
	case blockflow.EventOnce, blockflow.EventIdempotent, blockflow.EventSticky, blockflow.EventLatch:
	default:
		return blockflow.NullHandle, fmt.Errorf("unknown event kind %d", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newEventLocked(kind, initialCount), nil
}

// DestroyEvent destroys an event. Its pending dependents never fire.
func (r *Runtime) DestroyEvent(h blockflow.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[h]; !ok {
		return fmt.Errorf("%w: event %s", blockflow.ErrInvalidHandle, h)
	}
	delete(r.events, h)
	return nil
}

// Satisfy fires an event. On a latch it counts as a down.
func (r *Runtime) Satisfy(h, payload blockflow.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.satisfyLocked(h, payload)
}

// SatisfySlot moves a latch counter.
func (r *Runtime) SatisfySlot(h blockflow.Handle, slot blockflow.LatchSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[h]
	if !ok {
		return fmt.Errorf("%w: event %s", blockflow.ErrInvalidHandle, h)
	}
	if e.kind != blockflow.EventLatch {
		return blockflow.ErrNotLatch
	}
	r.countLocked(e, slot, blockflow.NullHandle)
	return nil
}

func (r *Runtime) satisfyLocked(h, payload blockflow.Handle) error {
	e, ok := r.events[h]
	if !ok {
		return fmt.Errorf("%w: event %s", blockflow.ErrInvalidHandle, h)
	}
	if payload.IsValid() && r.blocks[payload] == nil {
		return fmt.Errorf("%w: payload block %s", blockflow.ErrInvalidHandle, payload)
	}

	switch e.kind {
	case blockflow.EventLatch:
		r.countLocked(e, blockflow.LatchDown, payload)
		return nil
	case blockflow.EventIdempotent:
		if e.satisfied {
			if e.payload != payload {
				return blockflow.ErrPayloadMismatch
			}
			return nil
		}
	case blockflow.EventSticky:
		if e.satisfied {
			return blockflow.ErrAlreadySatisfied
		}
	}
	r.fireLocked(e, payload)
	return nil
}

// countLocked applies one latch operation and fires at zero.
func (r *Runtime) countLocked(e *event, slot blockflow.LatchSlot, payload blockflow.Handle) {
	if slot == blockflow.LatchUp {
		e.counter++
	} else {
		e.counter--
	}
	if e.counter == 0 {
		r.fireLocked(e, payload)
	}
}

// fireLocked satisfies e and delivers payload to every waiter. Once and
// latch events are destroyed by firing.
func (r *Runtime) fireLocked(e *event, payload blockflow.Handle) {
	e.satisfied = true
	e.payload = payload
	waiters := e.waiters
	e.waiters = nil
	if !e.retains() {
		delete(r.events, e.h)
	}

	r.cfg.metrics.RecordEventSatisfied(r.ctx, e.kind.String())
	observability.LogEventSatisfied(r.cfg.logger, e.h.String(), e.kind.String(), len(waiters))

	for _, w := range waiters {
		r.deliverLocked(w, payload)
	}
}

// deliverLocked hands payload to one waiter. Waiters destroyed since they
// registered are skipped.
func (r *Runtime) deliverLocked(w waiter, payload blockflow.Handle) {
	if t, ok := r.tasks[w.dst]; ok {
		r.satisfySlotLocked(t, w.slot, payload)
		if t.pending == 0 && !t.started {
			r.tryStartLocked(t)
		}
		return
	}
	if e, ok := r.events[w.dst]; ok {
		var err error
		if e.kind == blockflow.EventLatch {
			r.countLocked(e, blockflow.LatchSlot(w.slot), payload)
		} else {
			err = r.satisfyLocked(e.h, payload)
		}
		if err != nil {
			r.cfg.logger.Warn("event dependence not delivered",
				"event", e.h.String(), "error", err.Error())
		}
	}
}

// attachEventLocked makes dst fire when src fires.
func (r *Runtime) attachEventLocked(src blockflow.Handle, dst *event, slot int) error {
	maxSlot := 0
	if dst.kind == blockflow.EventLatch {
		maxSlot = int(blockflow.LatchUp)
	}
	if slot < 0 || slot > maxSlot {
		return &blockflow.ContractError{Template: "event", Op: "depend", Slot: slot, Err: blockflow.ErrArity}
	}

	w := waiter{dst: dst.h, slot: slot}
	switch {
	case src.IsNull():
		r.deliverLocked(w, blockflow.NullHandle)
	case r.blocks[src] != nil:
		r.deliverLocked(w, src)
	case r.events[src] != nil:
		e := r.events[src]
		if e.satisfied && e.retains() {
			r.deliverLocked(w, e.payload)
		} else {
			e.waiters = append(e.waiters, w)
		}
	default:
		return fmt.Errorf("%w: dependence source %s", blockflow.ErrInvalidHandle, src)
	}
	return nil
}
