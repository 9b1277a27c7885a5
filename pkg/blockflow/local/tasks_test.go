package local

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
)

// TestCreateTaskPartial_WaitsForAllSlots tests that a partial task does not
// run until every slot is wired.
func TestCreateTaskPartial_WaitsForAllSlots(t *testing.T) {
	t.Run("left unwired", func(t *testing.T) {
		rt := newTestRuntime()
		var ran atomic.Bool
		fn := func(blockflow.Context, blockflow.NoParam, blockflow.Deps) (blockflow.Handle, error) {
			ran.Store(true)
			return blockflow.NullHandle, nil
		}

		err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
			tmpl, err := blockflow.NewTemplate(ctx, "partial", fn,
				blockflow.AnySlot(), blockflow.AnySlot(), blockflow.AnySlot())
			if err != nil {
				return err
			}
			task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{}, blockflow.NullHandle)
			if err != nil {
				return err
			}
			return task.DependOn(1, blockflow.NullHandle, blockflow.ModeDefault)
		})

		var stall *StallError
		require.ErrorAs(t, err, &stall)
		assert.Equal(t, 1, stall.Waiting)
		assert.False(t, ran.Load())
	})

	t.Run("fully wired", func(t *testing.T) {
		rt := newTestRuntime()
		var ran atomic.Bool
		fn := func(_ blockflow.Context, _ blockflow.NoParam, deps blockflow.Deps) (blockflow.Handle, error) {
			ran.Store(true)
			assert.Equal(t, 3, deps.Len())
			return blockflow.NullHandle, nil
		}

		err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
			tmpl, err := blockflow.NewTemplate(ctx, "partial", fn,
				blockflow.AnySlot(), blockflow.AnySlot(), blockflow.SlotOf[Value]())
			if err != nil {
				return err
			}
			ev, err := blockflow.CreateOnceEvent[Value](ctx)
			if err != nil {
				return err
			}
			task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{}, blockflow.NullHandle)
			if err != nil {
				return err
			}
			if err := task.DependOnRange(1, []blockflow.Source{blockflow.NullHandle, ev}, blockflow.ModeDefault); err != nil {
				return err
			}
			assert.False(t, ran.Load())
			return ev.Satisfy(ctx)
		})

		require.NoError(t, err)
		assert.True(t, ran.Load())
	})
}

func TestCreateTask_Arity(t *testing.T) {
	rt := newTestRuntime()
	tmpl, err := blockflow.NewTemplate(rt, "pair", noop, blockflow.SlotOf[Value](), blockflow.SlotOf[Value]())
	require.NoError(t, err)

	tests := []struct {
		name   string
		create func() error
	}{
		{
			name: "too few for full",
			create: func() error {
				_, err := tmpl.Builder().CreateTask(blockflow.NoParam{}, blockflow.NullHandle)
				return err
			},
		},
		{
			name: "too many for full",
			create: func() error {
				_, err := tmpl.Builder().CreateTask(blockflow.NoParam{},
					blockflow.NullHandle, blockflow.NullHandle, blockflow.NullHandle)
				return err
			},
		},
		{
			name: "all slots for partial",
			create: func() error {
				_, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{}, blockflow.NullHandle, blockflow.NullHandle)
				return err
			},
		},
		{
			name: "all slots for future",
			create: func() error {
				_, err := tmpl.Builder().CreateFuturePartial(blockflow.NoParam{}, blockflow.NullHandle, blockflow.NullHandle)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create()
			var ce *blockflow.ContractError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "pair", ce.Template)
			assert.ErrorIs(t, err, blockflow.ErrArity)
		})
	}

	assert.Equal(t, 0, rt.Stats().TasksWaiting, "rejected tasks are never submitted")
}

func TestCreateTask_TypeMismatch(t *testing.T) {
	rt := newTestRuntime()
	tmpl, err := blockflow.NewTemplate(rt, "typed", noop, blockflow.SlotOf[Value](), blockflow.AnySlot())
	require.NoError(t, err)

	other, err := blockflow.CreateDatablock[Other](rt)
	require.NoError(t, err)

	_, err = tmpl.Builder().CreateTask(blockflow.NoParam{}, other, blockflow.NullHandle)
	var ce *blockflow.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.Slot)
	assert.ErrorIs(t, err, blockflow.ErrSlotType)

	// Untyped slots take anything.
	task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{}, blockflow.NullHandle)
	require.NoError(t, err)
	assert.NoError(t, task.DependOn(1, other, blockflow.ModeDefault))

	err = task.DependOn(5, other, blockflow.ModeDefault)
	assert.ErrorIs(t, err, blockflow.ErrArity)
}

func TestDependOn_SlotAlreadyBound(t *testing.T) {
	rt := newTestRuntime()
	tmpl, err := blockflow.NewTemplate(rt, "bound", noop, blockflow.AnySlot(), blockflow.AnySlot())
	require.NoError(t, err)
	ev, err := blockflow.CreateOnceEvent[blockflow.Void](rt)
	require.NoError(t, err)

	task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{}, ev)
	require.NoError(t, err)

	assert.ErrorIs(t, task.DependOn(0, blockflow.NullHandle, blockflow.ModeDefault), blockflow.ErrSlotBound)
}

func TestDependOn_DestroyedBlock(t *testing.T) {
	rt := newTestRuntime()
	tmpl, err := blockflow.NewTemplate(rt, "gone", noop, blockflow.SlotOf[Value]())
	require.NoError(t, err)
	db, err := blockflow.CreateDatablock[Value](rt)
	require.NoError(t, err)
	require.NoError(t, db.Destroy())

	task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{})
	require.NoError(t, err)

	assert.ErrorIs(t, task.DependOn(0, db, blockflow.ModeDefault), blockflow.ErrInvalidHandle)
}

// TestDeps_WrongTypeAccess tests that reading a slot as another type fails the task.
func TestDeps_WrongTypeAccess(t *testing.T) {
	rt := newTestRuntime()

	misread := func(_ blockflow.Context, _ blockflow.NoParam, deps blockflow.Deps) (blockflow.Handle, error) {
		_ = blockflow.DatablockAt[Other](deps, 0)
		return blockflow.NullHandle, nil
	}

	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		tmpl, err := blockflow.NewTemplate(ctx, "misread", misread, blockflow.SlotOf[Value]())
		if err != nil {
			return err
		}
		db, err := blockflow.CreateDatablock[Value](ctx)
		if err != nil {
			return err
		}
		_, err = tmpl.Builder().CreateTask(blockflow.NoParam{}, db)
		return err
	})

	var pe *blockflow.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "misread", pe.Template)
	assert.ErrorIs(t, err, blockflow.ErrSlotType)
}

// TestDestroyTaskInstance tests removing a task that is still waiting.
func TestDestroyTaskInstance(t *testing.T) {
	rt := newTestRuntime()
	var destroyErr, againErr error

	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		tmpl, err := blockflow.NewTemplate(ctx, "doomed", noop, blockflow.AnySlot())
		if err != nil {
			return err
		}
		task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{})
		if err != nil {
			return err
		}
		destroyErr = task.Destroy()
		againErr = task.Destroy()
		return nil
	})

	require.NoError(t, err, "a destroyed task does not stall the run")
	assert.NoError(t, destroyErr)
	assert.ErrorIs(t, againErr, blockflow.ErrInvalidHandle)
}

// linkParam carries a based pointer into a block as a task parameter.
type linkParam struct {
	Target blockflow.BasedPtr[Value]
	Add    int64
}

// TestTaskParam_BasedPtr tests a parameter that points into a dependency block.
func TestTaskParam_BasedPtr(t *testing.T) {
	rt := newTestRuntime(WithRelocateOnAcquire(true))

	add := func(ctx blockflow.Context, p linkParam, _ blockflow.Deps) (blockflow.Handle, error) {
		v, err := p.Target.Resolve(ctx)
		if err != nil {
			return blockflow.NullHandle, err
		}
		v.N += p.Add
		return blockflow.NullHandle, nil
	}

	var target blockflow.Handle
	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		tmpl, err := blockflow.NewTemplate(ctx, "add", add, blockflow.SlotOf[Value]())
		if err != nil {
			return err
		}
		db, err := blockflow.CreateDatablock[Value](ctx)
		if err != nil {
			return err
		}
		target = db.Handle()
		db.Data().N = 40

		var p linkParam
		if err := p.Target.Set(ctx, db.Data()); err != nil {
			return err
		}
		p.Add = 2
		_, err = tmpl.Builder().CreateTask(p, db)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), readValue(t, rt, target))
}

// TestFutureChain tests that a task's returned block reaches a consumer
// through the future's output event.
func TestFutureChain(t *testing.T) {
	rt := newTestRuntime()
	var got atomic.Int64

	produce := func(ctx blockflow.Context, n int64, _ blockflow.Deps) (blockflow.Handle, error) {
		db, err := blockflow.CreateDatablock[Value](ctx)
		if err != nil {
			return blockflow.NullHandle, err
		}
		db.Data().N = n
		return db.Handle(), nil
	}
	consume := func(_ blockflow.Context, _ blockflow.NoParam, deps blockflow.Deps) (blockflow.Handle, error) {
		got.Store(blockflow.DatablockAt[Value](deps, 0).Data().N)
		return blockflow.NullHandle, nil
	}

	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		prodT, err := blockflow.NewTemplate(ctx, "produce", produce, blockflow.AnySlot())
		if err != nil {
			return err
		}
		consT, err := blockflow.NewTemplate(ctx, "consume", consume, blockflow.SlotOf[Value]())
		if err != nil {
			return err
		}

		fut, err := prodT.Builder().CreateFuturePartial(7)
		if err != nil {
			return err
		}
		if _, err := consT.Builder().CreateTask(blockflow.NoParam{}, fut.Event); err != nil {
			return err
		}
		return fut.Task.DependOn(0, blockflow.NullHandle, blockflow.ModeDefault)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Load())
}

// TestExclusiveAccess_Serializes tests that exclusive holders of one block
// never overlap.
func TestExclusiveAccess_Serializes(t *testing.T) {
	const tasks = 50
	rt := newTestRuntime(WithWorkers(8))
	var active, overlaps atomic.Int32

	inc := func(_ blockflow.Context, _ blockflow.NoParam, deps blockflow.Deps) (blockflow.Handle, error) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		v := blockflow.DatablockAt[Value](deps, 0).Data()
		n := v.N
		time.Sleep(100 * time.Microsecond)
		v.N = n + 1
		active.Add(-1)
		return blockflow.NullHandle, nil
	}

	var counter blockflow.Handle
	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		tmpl, err := blockflow.NewTemplate(ctx, "inc", inc, blockflow.SlotOf[Value]())
		if err != nil {
			return err
		}
		db, err := blockflow.CreateDatablock[Value](ctx)
		if err != nil {
			return err
		}
		counter = db.Handle()
		for i := 0; i < tasks; i++ {
			task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{})
			if err != nil {
				return err
			}
			if err := task.DependOn(0, db, blockflow.ModeExclusive); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(0), overlaps.Load())
	assert.Equal(t, int64(tasks), readValue(t, rt, counter))
}

// TestExclusiveAccess_IgnoresPins tests that a block still pinned by its
// creator does not hold off an exclusive task.
func TestExclusiveAccess_IgnoresPins(t *testing.T) {
	rt := newTestRuntime()
	var seen atomic.Int64

	set := func(_ blockflow.Context, _ blockflow.NoParam, deps blockflow.Deps) (blockflow.Handle, error) {
		v := blockflow.DatablockAt[Value](deps, 0).Data()
		seen.Store(v.N)
		v.N = 8
		return blockflow.NullHandle, nil
	}

	var h blockflow.Handle
	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		tmpl, err := blockflow.NewTemplate(ctx, "set", set, blockflow.SlotOf[Value]())
		if err != nil {
			return err
		}
		db, err := blockflow.CreateDatablock[Value](ctx)
		if err != nil {
			return err
		}
		h = db.Handle()
		db.Data().N = 7
		task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{})
		if err != nil {
			return err
		}
		return task.DependOn(0, db, blockflow.ModeExclusive)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), seen.Load())
	assert.Equal(t, int64(8), readValue(t, rt, h))
}

// TestSharedAccess_Overlaps tests that read-only holders run together.
func TestSharedAccess_Overlaps(t *testing.T) {
	rt := newTestRuntime(WithWorkers(4))
	var inside, sawBoth atomic.Int32

	read := func(_ blockflow.Context, _ blockflow.NoParam, _ blockflow.Deps) (blockflow.Handle, error) {
		inside.Add(1)
		deadline := time.Now().Add(5 * time.Second)
		for inside.Load() < 2 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if inside.Load() >= 2 {
			sawBoth.Add(1)
		}
		return blockflow.NullHandle, nil
	}

	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		tmpl, err := blockflow.NewTemplate(ctx, "read", read, blockflow.SlotOf[Value]())
		if err != nil {
			return err
		}
		db, err := blockflow.CreateDatablock[Value](ctx)
		if err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{})
			if err != nil {
				return err
			}
			if err := task.DependOn(0, db, blockflow.ModeReadOnly); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), sawBoth.Load())
}

// TestAccessMode_SameBlockTwice tests that one task may name a block in two
// slots with different modes.
func TestAccessMode_SameBlockTwice(t *testing.T) {
	rt := newTestRuntime()
	var same atomic.Bool

	both := func(_ blockflow.Context, _ blockflow.NoParam, deps blockflow.Deps) (blockflow.Handle, error) {
		same.Store(deps.At(0).Ptr != nil && deps.At(0).Ptr == deps.At(1).Ptr)
		return blockflow.NullHandle, nil
	}

	err := rt.Run(testCtx(t), func(ctx blockflow.Context) error {
		tmpl, err := blockflow.NewTemplate(ctx, "both", both, blockflow.SlotOf[Value](), blockflow.SlotOf[Value]())
		if err != nil {
			return err
		}
		db, err := blockflow.CreateDatablock[Value](ctx)
		if err != nil {
			return err
		}
		task, err := tmpl.Builder().CreateTaskPartial(blockflow.NoParam{})
		if err != nil {
			return err
		}
		if err := task.DependOn(0, db, blockflow.ModeReadOnly); err != nil {
			return err
		}
		return task.DependOn(1, db, blockflow.ModeExclusive)
	})

	require.NoError(t, err)
	assert.True(t, same.Load())
}

func TestAccessMode_Shared(t *testing.T) {
	tests := []struct {
		mode   blockflow.AccessMode
		shared bool
		name   string
	}{
		{blockflow.ModeDefault, false, "default"},
		{blockflow.ModeExclusive, false, "exclusive"},
		{blockflow.ModeReadWrite, false, "read-write"},
		{blockflow.ModeConstant, true, "constant"},
		{blockflow.ModeReadOnly, true, "read-only"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shared, tt.mode.Shared())
			assert.Equal(t, tt.name, tt.mode.String())
		})
	}
}
