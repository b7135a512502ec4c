// Package stageexec provides the bounded-concurrency dispatcher each
// pipeline stage runs its work on (§4.1). A stage executor enforces a
// concurrency ceiling independent of any other stage's, so a burst of
// decode work never starves the network stage and vice versa.
package stageexec

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"imagepipe/internal/imagepipe"
)

// Work is a synchronous unit of stage work: disk-cache lookup, decode and
// processing are all plain functions that run to completion once started.
type Work func(ctx context.Context) (any, error)

// AsyncWork is a unit of work that manages its own completion on a
// separate callback, such as a DataLoading.Load call. The Cancellable it
// returns is forwarded by Executor, so cancelling the handle ScheduleAsync
// returned also aborts a load that has already started; before work
// starts, cancelling aborts the wait for a concurrency slot instead.
type AsyncWork func(ctx context.Context, completion func(any, error)) imagepipe.Cancellable

// Executor runs Work and AsyncWork items with at most maxConcurrency
// running at any moment, using a weighted semaphore for admission.
type Executor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewExecutor returns an Executor admitting at most maxConcurrency
// concurrent units of work. Values less than 1 are treated as 1.
func NewExecutor(maxConcurrency int64) *Executor {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Executor{sem: semaphore.NewWeighted(maxConcurrency)}
}

// Schedule runs work once a concurrency slot is free, invoking completion
// exactly once with its result. The returned Cancellable aborts the wait
// for a slot (completion then fires with ErrCancelled), or cancels the
// context passed to work if it has already started (completion then
// receives whatever work returns).
func (e *Executor) Schedule(work Work, completion func(any, error)) imagepipe.Cancellable {
	ctx, cancel := context.WithCancel(context.Background())
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			completion(nil, imagepipe.ErrCancelled)
			return
		}
		defer e.sem.Release(1)

		select {
		case <-ctx.Done():
			completion(nil, imagepipe.ErrCancelled)
			return
		default:
		}

		result, err := work(ctx)
		completion(result, err)
	}()
	return imagepipe.CancelFunc(cancel)
}

// ScheduleAsync reserves a concurrency slot for the lifetime of an
// asynchronous unit of work — held from the moment work starts until its
// own completion callback fires, released exactly once regardless of
// outcome. Cancelling before a slot is granted aborts the wait; cancelling
// after forwards to the Cancellable work returned.
func (e *Executor) ScheduleAsync(work AsyncWork, completion func(any, error)) imagepipe.Cancellable {
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var inner imagepipe.Cancellable
	var cancelled bool

	cancelFn := func() {
		cancel()
		mu.Lock()
		c := inner
		cancelled = true
		mu.Unlock()
		if c != nil {
			c.Cancel()
		}
	}

	e.wg.Add(1)
	go func() {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			completion(nil, imagepipe.ErrCancelled)
			e.wg.Done()
			return
		}

		var once sync.Once
		release := func() { once.Do(func() { e.sem.Release(1) }) }
		var doneOnce sync.Once

		c := work(ctx, func(result any, err error) {
			release()
			completion(result, err)
			doneOnce.Do(e.wg.Done)
		})

		mu.Lock()
		wasCancelled := cancelled
		if !wasCancelled {
			inner = c
		}
		mu.Unlock()
		if wasCancelled && c != nil {
			c.Cancel()
		}
	}()
	return imagepipe.CancelFunc(cancelFn)
}

// Wait blocks until every Work/AsyncWork item scheduled on e has invoked
// its completion. Intended for graceful shutdown in tests and the demo CLI.
func (e *Executor) Wait() { e.wg.Wait() }
