package local

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/blockflow/pkg/blockflow"
	"github.com/randalmurphal/blockflow/pkg/blockflow/config"
	"github.com/randalmurphal/blockflow/pkg/blockflow/observability"
	"github.com/randalmurphal/blockflow/pkg/blockflow/registry"
	"github.com/randalmurphal/blockflow/pkg/blockflow/store"
)

// MainFunc is the body of the first task of a run.
type MainFunc func(ctx blockflow.Context) error

// Runtime is an in-process blockflow runtime.
//
// Blocks are Go-allocated word arrays. Pointer resolution goes through
// lock-free registries; everything else is serialized by one mutex.
type Runtime struct {
	cfg   runConfig
	runID string

	// Mapped (acquired) blocks, read without mu.
	addrs *registry.Registry[blockflow.Handle, unsafe.Pointer]
	index *registry.IntervalIndex[blockflow.Handle]

	templates *registry.Registry[blockflow.Handle, *template]

	mu      sync.Mutex
	cond    *sync.Cond
	blocks  map[blockflow.Handle]*block
	events  map[blockflow.Handle]*event
	tasks   map[blockflow.Handle]*task
	ready   []*task
	blocked []*task
	running int
	started bool
	stopped bool
	closed  bool
	stopErr error
	errs    []error
	ctx     context.Context

	executed    atomic.Int64
	relocations atomic.Int64
	evictions   atomic.Int64
}

var _ blockflow.Runtime = (*Runtime)(nil)

// New creates a runtime.
func New(opts ...Option) *Runtime {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	runID := cfg.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &Runtime{
		cfg:       cfg,
		runID:     runID,
		addrs:     registry.New[blockflow.Handle, unsafe.Pointer](),
		index:     registry.NewIntervalIndex[blockflow.Handle](),
		templates: registry.New[blockflow.Handle, *template](),
		blocks:    make(map[blockflow.Handle]*block),
		events:    make(map[blockflow.Handle]*event),
		tasks:     make(map[blockflow.Handle]*task),
		ctx:       context.Background(),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// FromConfig builds a runtime from a loaded configuration. The store named
// by cfg.Store is opened here and closed by Close. opts are applied after
// the configuration and override it.
func FromConfig(cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	st, err := store.Open(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	base := []Option{
		WithWorkers(cfg.Workers),
		WithBackend(Backend(cfg.Backend)),
		WithRelocateOnAcquire(cfg.RelocateOnAcquire),
		WithAbortOnError(cfg.AbortOnError),
		WithMetrics(cfg.Metrics),
		WithTracing(cfg.Tracing),
		func(c *runConfig) {
			c.store = st
			c.ownsStore = true
		},
	}
	return New(append(base, opts...)...), nil
}

// RunID returns the run identifier.
func (r *Runtime) RunID() string { return r.runID }

// Close ends the runtime. It unregisters every template, deletes the
// run's snapshots from the store and closes the store if the runtime
// opened it. Blocks still evicted cannot be restored afterwards. Close
// must not be called while Run is in progress.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.templates.Range(func(h blockflow.Handle, _ *template) bool {
		r.templates.Delete(h)
		return true
	})
	if r.cfg.store == nil {
		return nil
	}

	var errs []error
	infos, err := r.cfg.store.List(r.runID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list snapshots: %w", err))
	} else if len(infos) > 0 {
		r.cfg.logger.Debug("dropping block snapshots",
			"run_id", r.runID,
			"count", len(infos),
		)
	}
	if err := r.cfg.store.DeleteRun(r.runID); err != nil {
		errs = append(errs, fmt.Errorf("delete snapshots: %w", err))
	}
	if r.cfg.ownsStore {
		if err := r.cfg.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// MappedBlocks returns the blocks currently visible to pointer resolution,
// in no particular order.
func (r *Runtime) MappedBlocks() []blockflow.Handle {
	return r.addrs.Keys()
}

// Stats is a snapshot of runtime counters.
type Stats struct {
	TasksExecuted int64
	TasksWaiting  int
	Blocks        int
	MappedBlocks  int
	Events        int
	Templates     int
	Relocations   int64
	Evictions     int64
}

// Stats returns current counters.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		TasksExecuted: r.executed.Load(),
		TasksWaiting:  len(r.tasks),
		Blocks:        len(r.blocks),
		MappedBlocks:  r.addrs.Len(),
		Events:        len(r.events),
		Templates:     r.templates.Len(),
		Relocations:   r.relocations.Load(),
		Evictions:     r.evictions.Load(),
	}
}

// Run executes main as the first task and then every task it spawns.
//
// Run returns when a task calls Shutdown or Abort, when ctx is done, when a
// task fails and abort-on-error is set, or when no task is ready or
// running. In the last case it returns *StallError if tasks are still
// waiting. Errors of failed tasks are joined into the result.
func (r *Runtime) Run(ctx context.Context, main MainFunc) (runErr error) {
	if main == nil {
		panic("blockflow: main function cannot be nil")
	}

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	start := time.Now()
	logger := r.cfg.logger
	observability.LogRunStart(logger, r.runID, r.cfg.workers)

	ctx, span := r.cfg.spans.StartRunSpan(ctx, r.runID)
	defer func() {
		r.cfg.spans.EndSpanWithError(span, runErr)
	}()

	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.stopLocked(context.Cause(ctx))
	})
	defer stop()

	entry := func(tctx blockflow.Context, _ []uint64, _ []blockflow.Dep) (blockflow.Handle, error) {
		return blockflow.NullHandle, main(tctx)
	}
	tmpl, err := r.CreateTemplate("main", entry, 0, 0)
	if err != nil {
		return err
	}
	if _, _, err := r.CreateTaskInstance(tmpl, nil, nil, nil, 0); err != nil {
		return err
	}
	_ = r.DestroyTemplate(tmpl)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.workers; i++ {
		g.Go(func() error {
			return r.work(gctx)
		})
	}
	werr := g.Wait()

	r.mu.Lock()
	runErr = errors.Join(append([]error{r.stopErr, werr}, r.errs...)...)
	r.mu.Unlock()

	duration := time.Since(start)
	r.cfg.metrics.RecordRun(ctx, runErr == nil, duration)
	durationMs := float64(duration.Milliseconds())
	if runErr != nil {
		observability.LogRunError(logger, r.runID, runErr, durationMs)
	} else {
		observability.LogRunComplete(logger, r.runID, durationMs, r.executed.Load())
	}
	return runErr
}

// Shutdown stops the run normally. Running tasks finish; nothing new starts.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(nil)
}

// Abort stops the run; Run returns *blockflow.AbortError with code.
func (r *Runtime) Abort(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(&blockflow.AbortError{Code: code})
}

// stopLocked records the first stop reason and wakes every worker.
func (r *Runtime) stopLocked(err error) {
	if r.stopped {
		return
	}
	r.stopped = true
	r.stopErr = err
	r.cond.Broadcast()
}

// work is one worker goroutine. Each worker owns its task stack.
func (r *Runtime) work(ctx context.Context) error {
	var stack blockflow.TaskStack
	for {
		t := r.next()
		if t == nil {
			return nil
		}
		r.execute(ctx, &stack, t)
	}
}

// next blocks until a task is ready or the run stops.
func (r *Runtime) next() *task {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.stopped {
			return nil
		}
		if len(r.ready) > 0 {
			t := r.ready[0]
			r.ready[0] = nil
			r.ready = r.ready[1:]
			r.running++
			return t
		}
		r.cond.Wait()
	}
}

// execute runs one task body and completes it.
func (r *Runtime) execute(ctx context.Context, stack *blockflow.TaskStack, t *task) {
	name := t.tmpl.name
	start := time.Now()

	tctx, span := r.cfg.spans.StartTaskSpan(ctx, name, t.h.String())
	bctx := stack.Push(tctx, r, blockflow.TaskInfo{
		RunID:    r.runID,
		TaskID:   t.h,
		Template: name,
	}, r.cfg.logger)
	logger := bctx.Logger()
	observability.LogTaskStart(logger, name)

	var out blockflow.Handle
	err := t.err
	if err == nil {
		out, err = r.invoke(bctx, t)
	}
	if perr := stack.Pop(); perr != nil && err == nil {
		err = perr
	}

	duration := time.Since(start)
	r.cfg.spans.EndSpanWithError(span, err)
	r.cfg.metrics.RecordTaskExecution(ctx, name, duration, err)
	if err != nil {
		var pe *blockflow.PanicError
		if !errors.As(err, &pe) {
			err = &blockflow.TaskError{TaskID: t.h, Template: name, Err: err}
		}
		observability.LogTaskError(logger, name, err)
	} else {
		observability.LogTaskComplete(logger, name, float64(duration.Microseconds())/1000)
	}

	r.finish(t, out, err)
}

// invoke calls the entry function with panic recovery.
func (r *Runtime) invoke(ctx blockflow.Context, t *task) (out blockflow.Handle, err error) {
	defer func() {
		if v := recover(); v != nil {
			out = blockflow.NullHandle
			err = &blockflow.PanicError{
				TaskID:   t.h,
				Template: t.tmpl.name,
				Value:    v,
				Stack:    string(debug.Stack()),
			}
		}
	}()
	return t.tmpl.fn(ctx, t.paramv, t.depv)
}

// finish releases the task's holds, fires its output event and schedules
// whatever became runnable.
func (r *Runtime) finish(t *task, out blockflow.Handle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseHoldsLocked(t)
	delete(r.tasks, t.h)
	r.running--
	r.executed.Add(1)

	if err != nil {
		r.errs = append(r.errs, err)
		if r.cfg.abortOnError {
			r.stopLocked(nil)
		}
	} else if t.out.IsValid() {
		if serr := r.satisfyLocked(t.out, out); serr != nil {
			observability.LogTaskError(r.cfg.logger, t.tmpl.name, fmt.Errorf("output event: %w", serr))
		}
	}

	r.rescanLocked()

	if !r.stopped && r.running == 0 && len(r.ready) == 0 {
		if n := len(r.tasks); n > 0 {
			r.stopLocked(&StallError{Waiting: n})
		} else {
			r.stopLocked(nil)
		}
	}
	r.cond.Broadcast()
}
