/*
Package blockflow provides location-independent pointers and a
dependency-driven task model for memory that moves.

# Overview

Programs built on blockflow keep their data in blocks: contiguous,
pointer-free regions owned by a Runtime. A block can be released and
acquired again at a different address, or evicted to a store and restored
elsewhere. Pointers stored in blocks therefore never hold raw addresses:

  - RelPtr stores an offset from its own storage and is valid while pointer
    and target share a block.
  - BasedPtr stores (block handle, offset) and resolves the block's current
    base address through a Resolver on every dereference.
  - EmbeddedPtr is a BasedPtr that falls back to the RelPtr encoding when
    pointer and target share a block.

Work is expressed as tasks. A TaskTemplate binds a function to one
by-value parameter and a fixed list of typed dependency slots. Each slot is
fed by a block or an event; the runtime runs the task once every slot is
satisfied, acquiring blocks under the requested AccessMode.

# Basic Usage

	type Node struct {
	    Value int64
	    Next  blockflow.RelPtr[Node]
	}

	sum := func(ctx blockflow.Context, _ blockflow.NoParam, deps blockflow.Deps) (blockflow.Handle, error) {
	    list := blockflow.ArenaAt[Node](deps, 0)
	    total := int64(0)
	    for n := list.Data(); n != nil; n = n.Next.Get() {
	        total += n.Value
	    }
	    ctx.Logger().Info("sum", "total", total)
	    ctx.Shutdown()
	    return blockflow.NullHandle, nil
	}

	rt := local.New()
	err := rt.Run(context.Background(), func(ctx blockflow.Context) error {
	    arena, err := blockflow.CreateArena[Node](ctx, 1024)
	    if err != nil {
	        return err
	    }
	    head := blockflow.New[Node](arena)
	    head.Value = 1
	    next := blockflow.New[Node](arena)
	    next.Value = 2
	    head.Next.Set(next)

	    tmpl, err := blockflow.NewTemplate(ctx, "sum", sum, blockflow.SlotOf[Node]())
	    if err != nil {
	        return err
	    }
	    _, err = tmpl.Builder().CreateTask(blockflow.NoParam{}, arena)
	    return err
	})

# Events

Events gate tasks without carrying data, or carry one block as payload:
once events fire a single time, sticky events keep their payload for late
dependents, idempotent events ignore repeated identical satisfaction, and
latch events fire when Up/Down calls bring a counter to zero.

# Partial Binding

CreateTaskPartial binds the first K slots and pads the rest with
UnknownDependence. The task is wired later with Task.DependOn, which is also
how a task asks for ModeExclusive access to a shared block. Pair it with an
output event through CreateFuturePartial to attach continuations before the
task can complete.
*/
package blockflow
