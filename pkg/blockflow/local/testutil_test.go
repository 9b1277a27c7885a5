package local

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
)

// Value is a one-word block payload.
type Value struct {
	N int64
}

// Link points from one block into another.
type Link struct {
	Target blockflow.BasedPtr[Value]
}

// Other is a payload type that never matches a Value slot.
type Other struct {
	X, Y int32
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRuntime(opts ...Option) *Runtime {
	base := []Option{WithLogger(quietLogger()), WithWorkers(4)}
	return New(append(base, opts...)...)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// noop is a task body that does nothing.
func noop(blockflow.Context, blockflow.NoParam, blockflow.Deps) (blockflow.Handle, error) {
	return blockflow.NullHandle, nil
}

// readValue acquires h outside any run and returns its contents.
func readValue(t *testing.T, rt *Runtime, h blockflow.Handle) int64 {
	t.Helper()
	db, err := blockflow.MakeDatablockHandle[Value](h).Acquire(rt)
	if err != nil {
		t.Fatalf("acquire %s: %v", h, err)
	}
	defer func() { _ = db.Release() }()
	return db.Data().N
}
