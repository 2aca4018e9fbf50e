package workpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoundedRunsSubmittedTasks(t *testing.T) {
	p := NewBounded(2)
	defer p.Close()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(ctx context.Context) {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	require.Equal(t, int32(10), n.Load())
}

func TestBoundedCallerRunsWhenWorkersBusy(t *testing.T) {
	p := NewBounded(1)
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started

	ran := make(chan struct{})
	done := make(chan struct{})
	go func() {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			close(ran)
		}))
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("caller-runs task did not execute")
	}
	close(block)
	<-done
}

func TestBoundedSubmitAfterCloseErrs(t *testing.T) {
	p := NewBounded(1)
	require.NoError(t, p.Close())
	err := p.Submit(func(ctx context.Context) {})
	require.ErrorIs(t, err, ErrClosed)
}

func TestBoundedCloseCancelsInFlightContext(t *testing.T) {
	p := NewBounded(1)
	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	go p.Close()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight task context was not cancelled on Close")
	}
}

func TestUnboundedRunsConcurrently(t *testing.T) {
	p := NewUnbounded()
	defer p.Close()

	const n = 50
	var running atomic.Int32
	var maxRunning atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(ctx context.Context) {
			defer wg.Done()
			cur := running.Add(1)
			for {
				m := maxRunning.Load()
				if cur <= m || maxRunning.CompareAndSwap(m, cur) {
					break
				}
			}
			<-release
			running.Add(-1)
		}))
	}

	require.Eventually(t, func() bool {
		return running.Load() == n
	}, time.Second, time.Millisecond, "all unbounded tasks should run concurrently")

	close(release)
	wg.Wait()
	require.Equal(t, int32(n), maxRunning.Load())
}

func TestUnboundedSubmitAfterCloseErrs(t *testing.T) {
	p := NewUnbounded()
	require.NoError(t, p.Close())
	err := p.Submit(func(ctx context.Context) {})
	require.ErrorIs(t, err, ErrClosed)
}

func TestUnboundedCloseWaitsForInFlight(t *testing.T) {
	p := NewUnbounded()
	var done atomic.Bool
	require.NoError(t, p.Submit(func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		done.Store(true)
	}))
	require.NoError(t, p.Close())
	require.True(t, done.Load())
}
