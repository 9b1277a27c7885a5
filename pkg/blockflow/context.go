package blockflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"unsafe"
)

// Context is passed to every task body.
//
// It extends context.Context with the runtime itself, so a Context can be
// handed to anything that takes a Runtime or Resolver. Blocks created or
// acquired through a Context are released automatically when the task
// returns.
type Context interface {
	context.Context
	Runtime

	// Logger returns a logger enriched with run_id, task_id and template.
	// Never returns nil.
	Logger() *slog.Logger

	// RunID returns the identifier of the runtime run.
	RunID() string

	// TaskID returns the running task.
	TaskID() Handle

	// Template returns the running task's template name.
	Template() string

	// Depth returns the nesting depth on the current worker, starting at 1.
	Depth() int

	// Parent returns the task context this one was pushed over, or nil.
	Parent() Context

	// Arena returns the task's implicit allocator, which may be a null arena.
	Arena() Arena[Void]

	// SetArena changes the task's implicit allocator.
	SetArena(a Arena[Void])
}

// TaskInfo identifies a task invocation.
type TaskInfo struct {
	RunID    string
	TaskID   Handle
	Template string
}

// taskContext is the internal implementation of Context.
type taskContext struct {
	context.Context
	Runtime

	logger *slog.Logger
	info   TaskInfo
	parent *taskContext
	depth  int
	arena  Arena[Void]

	mu   sync.Mutex
	pins map[Handle]int
}

// Logger returns the enriched logger.
func (c *taskContext) Logger() *slog.Logger { return c.logger }

// RunID returns the run identifier.
func (c *taskContext) RunID() string { return c.info.RunID }

// TaskID returns the task handle.
func (c *taskContext) TaskID() Handle { return c.info.TaskID }

// Template returns the template name.
func (c *taskContext) Template() string { return c.info.Template }

// Depth returns the nesting depth.
func (c *taskContext) Depth() int { return c.depth }

// Parent returns the enclosing context.
func (c *taskContext) Parent() Context {
	if c.parent == nil {
		return nil
	}
	return c.parent
}

// Arena returns the implicit allocator.
func (c *taskContext) Arena() Arena[Void] { return c.arena }

// SetArena changes the implicit allocator.
func (c *taskContext) SetArena(a Arena[Void]) { c.arena = a }

// CreateBlock creates a block and records the acquisition.
func (c *taskContext) CreateBlock(size uintptr, flags BlockFlags, hint *Hint) (Handle, unsafe.Pointer, error) {
	h, base, err := c.Runtime.CreateBlock(size, flags, hint)
	if err == nil {
		c.pin(h)
	}
	return h, base, err
}

// AcquireBlock acquires a block and records the acquisition.
func (c *taskContext) AcquireBlock(h Handle) (unsafe.Pointer, error) {
	base, err := c.Runtime.AcquireBlock(h)
	if err == nil {
		c.pin(h)
	}
	return base, err
}

// ReleaseBlock releases a block this task acquired. Blocks delivered
// through dependency slots are released by the runtime when the task
// returns, so releasing them here is a no-op.
func (c *taskContext) ReleaseBlock(h Handle) error {
	if !c.unpin(h) {
		return nil
	}
	return c.Runtime.ReleaseBlock(h)
}

// DestroyBlock destroys a block and forgets any acquisition of it.
func (c *taskContext) DestroyBlock(h Handle) error {
	c.mu.Lock()
	delete(c.pins, h)
	c.mu.Unlock()
	return c.Runtime.DestroyBlock(h)
}

func (c *taskContext) pin(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins == nil {
		c.pins = make(map[Handle]int)
	}
	c.pins[h]++
}

func (c *taskContext) unpin(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.pins[h]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(c.pins, h)
	} else {
		c.pins[h] = n - 1
	}
	return true
}

// releaseAll releases every acquisition still recorded.
func (c *taskContext) releaseAll() error {
	c.mu.Lock()
	pins := c.pins
	c.pins = nil
	c.mu.Unlock()

	var errs []error
	for h, n := range pins {
		for ; n > 0; n-- {
			if err := c.Runtime.ReleaseBlock(h); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// TaskStack is the per-worker stack of task contexts. A runtime pushes a
// context when it enters a task and pops it when the task returns, on every
// exit path.
type TaskStack struct {
	top *taskContext
}

// Push enters a task and returns its context.
func (s *TaskStack) Push(ctx context.Context, rt Runtime, info TaskInfo, logger *slog.Logger) Context {
	if logger == nil {
		logger = slog.Default()
	}
	tc := &taskContext{
		Context: ctx,
		Runtime: rt,
		logger: logger.With(
			slog.String("run_id", info.RunID),
			slog.String("task_id", info.TaskID.String()),
			slog.String("template", info.Template),
		),
		info:   info,
		parent: s.top,
		depth:  1,
	}
	if s.top != nil {
		tc.depth = s.top.depth + 1
	}
	s.top = tc
	return tc
}

// Pop leaves the current task, releasing blocks it still holds.
func (s *TaskStack) Pop() error {
	tc := s.top
	if tc == nil {
		return nil
	}
	s.top = tc.parent
	return tc.releaseAll()
}

// Depth returns the number of pushed contexts.
func (s *TaskStack) Depth() int {
	if s.top == nil {
		return 0
	}
	return s.top.depth
}
