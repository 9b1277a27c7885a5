package blockflow

import (
	"bytes"
	"reflect"

	"github.com/google/uuid"
)

// Handle names a block, event, task or task template.
//
// A Handle is a fixed-size, pointer-free token, so it can be stored inside
// block memory and survives relocation unchanged. The zero value is
// NullHandle.
type Handle uuid.UUID

// Distinguished handle values.
var (
	// NullHandle denotes "no object".
	NullHandle Handle

	// ErrorHandle denotes an invalid or never-initialized reference.
	ErrorHandle = Handle{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}

	// UninitializedHandle is a reserved placeholder. Task slots that will be
	// wired later hold it, and EmbeddedPtr uses it to mark an offset relative
	// to the pointer's own storage.
	UninitializedHandle = Handle{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
	}
)

// UnknownDependence pads task slots that are wired after creation.
var UnknownDependence Source = UninitializedHandle

// NewHandle returns a fresh random handle. Random (version 4) handles never
// collide with the reserved values because of their version bits.
func NewHandle() Handle {
	return Handle(uuid.New())
}

// ParseHandle parses the canonical string form produced by String.
func ParseHandle(s string) (Handle, error) {
	switch s {
	case "null":
		return NullHandle, nil
	case "error":
		return ErrorHandle, nil
	case "uninitialized":
		return UninitializedHandle, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return ErrorHandle, err
	}
	return Handle(id), nil
}

// IsNull reports whether h is NullHandle.
func (h Handle) IsNull() bool { return h == NullHandle }

// IsError reports whether h is ErrorHandle.
func (h Handle) IsError() bool { return h == ErrorHandle }

// IsUninitialized reports whether h is the placeholder marker.
func (h Handle) IsUninitialized() bool { return h == UninitializedHandle }

// IsValid reports whether h may name a live object.
func (h Handle) IsValid() bool {
	return !h.IsNull() && !h.IsError() && !h.IsUninitialized()
}

// Compare orders handles bytewise. It returns -1, 0 or +1.
func (h Handle) Compare(o Handle) int {
	return bytes.Compare(h[:], o[:])
}

// String returns the canonical UUID form, or a name for reserved values.
func (h Handle) String() string {
	switch h {
	case NullHandle:
		return "null"
	case ErrorHandle:
		return "error"
	case UninitializedHandle:
		return "uninitialized"
	}
	return uuid.UUID(h).String()
}

// Handle returns h, so a raw handle can be used as an untyped Source.
func (h Handle) Handle() Handle { return h }

// PayloadType returns nil: a raw handle carries no payload type.
func (h Handle) PayloadType() reflect.Type { return nil }
