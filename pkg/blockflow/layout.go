package blockflow

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// Void is the element type of untyped blocks, events and slots.
type Void struct{}

// NoParam is the parameter type of templates that take no parameter.
type NoParam = Void

var layoutCache sync.Map // reflect.Type -> error

// CheckLayout reports whether values of t can be placed in block memory.
// Block memory is invisible to the garbage collector and may be copied to a
// new address, so it can only hold pointer-free types.
func CheckLayout(t reflect.Type) error {
	if v, ok := layoutCache.Load(t); ok {
		if v == nil {
			return nil
		}
		return v.(error)
	}
	var err error
	if hasPointers(t) {
		err = fmt.Errorf("%w: %s", ErrPointerType, t)
	}
	layoutCache.Store(t, err)
	return err
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// mustLayout panics when T cannot live in block memory.
func mustLayout[T any]() {
	if err := CheckLayout(reflect.TypeFor[T]()); err != nil {
		panic(err)
	}
}

// payloadType returns the type carried by typed handles. Void means untyped.
func payloadType[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t == reflect.TypeFor[Void]() {
		return nil
	}
	return t
}

// alignUp rounds n up to a multiple of align, which must be a power of two.
func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// zero clears size bytes at p.
func zero(p unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	clear(unsafe.Slice((*byte)(p), size))
}
