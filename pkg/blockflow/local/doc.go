// Package local is an in-process implementation of blockflow.Runtime.
//
// Blocks are ordinary Go allocations tracked by handle. A block is mapped,
// meaning AddressFor and HandleAndOffsetFor can see it, only while someone
// holds it: an explicit acquire or a running task's dependency slot. An
// unheld block may be moved with Relocate, or written to a store.Store with
// Evict and restored on its next acquire, so code that keeps raw addresses
// across a release breaks loudly under WithRelocateOnAcquire.
//
// Tasks run on a fixed pool of workers. A task becomes ready once every
// slot is satisfied and all of its blocks can be held under the requested
// access modes; the holds are taken together or not at all.
//
//	rt := local.New(local.WithWorkers(8))
//	err := rt.Run(ctx, func(ctx blockflow.Context) error {
//	    // create blocks, templates and tasks
//	    return nil
//	})
package local
