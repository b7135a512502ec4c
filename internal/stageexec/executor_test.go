package stageexec

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imagepipe/internal/imagepipe"
)

func TestExecutor_Schedule_RunsAndCompletes(t *testing.T) {
	e := NewExecutor(2)
	var got any
	var gotErr error
	done := make(chan struct{})

	e.Schedule(func(ctx context.Context) (any, error) {
		return 42, nil
	}, func(result any, err error) {
		got, gotErr = result, err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
	require.NoError(t, gotErr)
	require.Equal(t, 42, got)
}

func TestExecutor_Schedule_EnforcesConcurrencyCeiling(t *testing.T) {
	e := NewExecutor(2)
	const total = 6
	var running int32
	var maxObserved int32
	var wg sync.WaitGroup
	wg.Add(total)

	for i := 0; i < total; i++ {
		e.Schedule(func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				cur := atomic.LoadInt32(&maxObserved)
				if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		}, func(any, error) { wg.Done() })
	}

	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

func TestExecutor_Schedule_CancelBeforeSlot(t *testing.T) {
	e := NewExecutor(1)
	block := make(chan struct{})
	started := make(chan struct{})
	e.Schedule(func(ctx context.Context) (any, error) {
		close(started)
		<-block
		return nil, nil
	}, func(any, error) {})
	<-started

	done := make(chan error)
	c := e.Schedule(func(ctx context.Context) (any, error) {
		return nil, nil
	}, func(result any, err error) { done <- err })
	c.Cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, imagepipe.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("completion never fired for queued, cancelled work")
	}
	close(block)
}

func TestExecutor_ScheduleAsync_ReleasesSlotOnCompletion(t *testing.T) {
	e := NewExecutor(1)

	firstDone := make(chan struct{})
	e.ScheduleAsync(func(ctx context.Context, completion func(any, error)) imagepipe.Cancellable {
		go completion("first", nil)
		return imagepipe.NoopCancellable
	}, func(any, error) { close(firstDone) })

	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("first async unit never completed")
	}

	secondDone := make(chan any, 1)
	e.ScheduleAsync(func(ctx context.Context, completion func(any, error)) imagepipe.Cancellable {
		completion("second", nil)
		return imagepipe.NoopCancellable
	}, func(result any, err error) { secondDone <- result })

	select {
	case result := <-secondDone:
		require.Equal(t, "second", result)
	case <-time.After(time.Second):
		t.Fatal("second async unit never ran; slot was not released")
	}
}

func TestExecutor_ScheduleAsync_CancelForwardsToInnerCancellable(t *testing.T) {
	e := NewExecutor(2)
	var cancelled int32
	inner := imagepipe.CancelFunc(func() { atomic.StoreInt32(&cancelled, 1) })

	ready := make(chan struct{})
	c := e.ScheduleAsync(func(ctx context.Context, completion func(any, error)) imagepipe.Cancellable {
		close(ready)
		return inner
	}, func(any, error) {})

	<-ready
	require.Eventually(t, func() bool {
		c.Cancel()
		return atomic.LoadInt32(&cancelled) == 1
	}, time.Second, time.Millisecond)
}
