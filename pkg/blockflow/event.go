package blockflow

import (
	"reflect"
)

// EventKind selects an event's satisfaction rules.
type EventKind uint8

const (
	// EventOnce fires once and is destroyed when it fires.
	EventOnce EventKind = iota
	// EventIdempotent fires once and ignores repeats with the same payload.
	EventIdempotent
	// EventSticky fires once and keeps its payload for late dependents.
	EventSticky
	// EventLatch fires once when its counter reaches zero.
	EventLatch
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventOnce:
		return "once"
	case EventIdempotent:
		return "idempotent"
	case EventSticky:
		return "sticky"
	case EventLatch:
		return "latch"
	default:
		return "unknown"
	}
}

// Event names an event whose payload, if any, is a block holding a T.
// It is pointer-free and may be stored in blocks or task parameters.
type Event[T any] struct {
	h Handle
}

// MakeEvent types a raw event handle.
func MakeEvent[T any](h Handle) Event[T] {
	return Event[T]{h: h}
}

// CreateOnceEvent creates an event that fires once and then disappears.
func CreateOnceEvent[T any](rt Runtime) (Event[T], error) {
	return createEvent[T](rt, EventOnce, 0)
}

// CreateIdempotentEvent creates an event that tolerates repeated satisfaction.
func CreateIdempotentEvent[T any](rt Runtime) (Event[T], error) {
	return createEvent[T](rt, EventIdempotent, 0)
}

// CreateStickyEvent creates an event that keeps its payload after firing.
func CreateStickyEvent[T any](rt Runtime) (Event[T], error) {
	return createEvent[T](rt, EventSticky, 0)
}

func createEvent[T any](rt Runtime, kind EventKind, count int64) (Event[T], error) {
	h, err := rt.CreateEvent(kind, 0, count)
	if err != nil {
		return Event[T]{}, err
	}
	return Event[T]{h: h}, nil
}

// Handle returns the raw event handle.
func (e Event[T]) Handle() Handle { return e.h }

// PayloadType returns T, or nil for Void.
func (e Event[T]) PayloadType() reflect.Type { return payloadType[T]() }

// IsNull reports whether e names no event.
func (e Event[T]) IsNull() bool { return e.h.IsNull() }

// Satisfy fires the event without a payload.
func (e Event[T]) Satisfy(rt Runtime) error {
	return rt.Satisfy(e.h, NullHandle)
}

// SatisfyWith fires the event carrying a block.
func (e Event[T]) SatisfyWith(rt Runtime, data DatablockHandle[T]) error {
	return rt.Satisfy(e.h, data.Handle())
}

// DependOn makes e fire when src fires, with src's payload.
func (e Event[T]) DependOn(rt Runtime, src Source) error {
	if !slotAccepts(payloadType[T](), src) {
		return &ContractError{Template: "event", Op: "depend", Slot: 0, Err: ErrSlotType}
	}
	return rt.AddDependence(src.Handle(), e.h, 0, ModeDefault)
}

// Destroy destroys the event.
func (e Event[T]) Destroy(rt Runtime) error {
	return rt.DestroyEvent(e.h)
}

// LatchEvent is a counting event: it fires when Up and Down calls bring its
// counter to zero. Satisfy counts as a Down.
type LatchEvent[T any] struct {
	Event[T]
}

// CreateLatchEvent creates a latch whose counter starts at upCount, so it
// needs upCount more downs than ups before it fires.
func CreateLatchEvent[T any](rt Runtime, upCount int64) (LatchEvent[T], error) {
	e, err := createEvent[T](rt, EventLatch, upCount)
	return LatchEvent[T]{Event: e}, err
}

// Up increments the counter.
func (l LatchEvent[T]) Up(rt Runtime) error {
	return rt.SatisfySlot(l.h, LatchUp)
}

// Down decrements the counter.
func (l LatchEvent[T]) Down(rt Runtime) error {
	return rt.SatisfySlot(l.h, LatchDown)
}
