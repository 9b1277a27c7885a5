// Package benchmarks measures pointer resolution, block movement and task
// scheduling costs.
package benchmarks

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
	"github.com/randalmurphal/blockflow/pkg/blockflow/local"
)

// Node is a linked-list element stored in an arena.
type Node struct {
	Value int64
	Next  blockflow.RelPtr[Node]
}

// Ref points at a Node in another block.
type Ref struct {
	Target blockflow.BasedPtr[Node]
}

func newRuntime(opts ...local.Option) *local.Runtime {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return local.New(append([]local.Option{local.WithLogger(logger)}, opts...)...)
}

// buildList allocates an arena holding an n-element list.
func buildList(b *testing.B, rt blockflow.Runtime, n int) blockflow.Arena[Node] {
	b.Helper()
	arena, err := blockflow.CreateArena[Node](rt, uintptr(n)*16)
	if err != nil {
		b.Fatal(err)
	}
	prev := blockflow.New[Node](arena)
	for i := 1; i < n; i++ {
		node := blockflow.New[Node](arena)
		node.Value = int64(i)
		prev.Next.Set(node)
		prev = node
	}
	return arena
}

func mustRun(b *testing.B, rt *local.Runtime, main local.MainFunc) {
	b.Helper()
	if err := rt.Run(context.Background(), main); err != nil {
		b.Fatal(err)
	}
}
