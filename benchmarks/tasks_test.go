package benchmarks

import (
	"testing"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
	"github.com/randalmurphal/blockflow/pkg/blockflow/local"
)

type counter struct {
	N int64
}

// benchmarkChain runs n tasks, each spawned by the one before it and
// incrementing the same block.
func benchmarkChain(b *testing.B, n int, opts ...local.Option) {
	b.Helper()
	for i := 0; i < b.N; i++ {
		rt := newRuntime(opts...)
		var step *blockflow.TaskTemplate[int64]
		body := func(ctx blockflow.Context, left int64, deps blockflow.Deps) (blockflow.Handle, error) {
			c := blockflow.DatablockAt[counter](deps, 0)
			c.Data().N++
			if left == 0 {
				return blockflow.NullHandle, nil
			}
			_, err := step.Builder().CreateTask(left-1, c)
			return blockflow.NullHandle, err
		}
		mustRun(b, rt, func(ctx blockflow.Context) error {
			var err error
			if step, err = blockflow.NewTemplate(rt, "step", body, blockflow.SlotOf[counter]()); err != nil {
				return err
			}
			c, err := blockflow.CreateDatablock[counter](ctx)
			if err != nil {
				return err
			}
			_, err = step.Builder().CreateTask(int64(n-1), c)
			return err
		})
	}
}

// BenchmarkRun_Chain_100 runs 100 dependent tasks.
func BenchmarkRun_Chain_100(b *testing.B) { benchmarkChain(b, 100) }

// BenchmarkRun_Chain_1000 runs 1000 dependent tasks.
func BenchmarkRun_Chain_1000(b *testing.B) { benchmarkChain(b, 1000) }

// BenchmarkRun_Chain_Relocating runs 100 dependent tasks, moving the block
// before every task.
func BenchmarkRun_Chain_Relocating(b *testing.B) {
	benchmarkChain(b, 100, local.WithRelocateOnAcquire(true))
}

// benchmarkFanIn runs n independent tasks joined by a latch.
func benchmarkFanIn(b *testing.B, n, workers int) {
	b.Helper()
	for i := 0; i < b.N; i++ {
		rt := newRuntime(local.WithWorkers(workers))
		mustRun(b, rt, func(ctx blockflow.Context) error {
			done, err := blockflow.CreateLatchEvent[blockflow.Void](ctx, int64(n))
			if err != nil {
				return err
			}
			leaf, err := blockflow.NewTemplate(ctx, "leaf",
				func(ctx blockflow.Context, _ blockflow.NoParam, _ blockflow.Deps) (blockflow.Handle, error) {
					return blockflow.NullHandle, done.Down(ctx)
				})
			if err != nil {
				return err
			}
			join, err := blockflow.NewTemplate(ctx, "join",
				func(ctx blockflow.Context, _ blockflow.NoParam, _ blockflow.Deps) (blockflow.Handle, error) {
					ctx.Shutdown()
					return blockflow.NullHandle, nil
				}, blockflow.AnySlot())
			if err != nil {
				return err
			}
			if _, err := join.Builder().CreateTask(blockflow.NoParam{}, done); err != nil {
				return err
			}
			for j := 0; j < n; j++ {
				if _, err := leaf.Builder().CreateTask(blockflow.NoParam{}); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// BenchmarkRun_FanIn_1000 runs 1000 tasks on one worker.
func BenchmarkRun_FanIn_1000(b *testing.B) { benchmarkFanIn(b, 1000, 1) }

// BenchmarkRun_FanIn_1000_Parallel runs 1000 tasks on eight workers.
func BenchmarkRun_FanIn_1000_Parallel(b *testing.B) { benchmarkFanIn(b, 1000, 8) }
