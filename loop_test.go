package corert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProcess is the minimal Process test double: it owns its own
// next-tick/immediate slices (no locking — tests only ever populate them
// from the goroutine that also calls Loop.Run) and a configurable fatal
// handler.
type fakeProcess struct {
	nextTicks  []func() error
	immediates []func() error
	fatal      func(error) bool
	exiting    bool
}

func newFakeProcess() *fakeProcess { return &fakeProcess{} }

func (p *fakeProcess) IsTickTaskPending() bool      { return len(p.nextTicks) > 0 }
func (p *fakeProcess) IsImmediateTaskPending() bool { return len(p.immediates) > 0 }

func (p *fakeProcess) ProcessTickTasks() error {
	for len(p.nextTicks) > 0 {
		fn := p.nextTicks[0]
		p.nextTicks = p.nextTicks[1:]
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProcess) ProcessImmediateTasks() error {
	for len(p.immediates) > 0 {
		fn := p.immediates[0]
		p.immediates = p.immediates[1:]
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProcess) SubmitTick(fn ScriptFunction, this ScriptValue, args []ScriptValue, domain Domain) error {
	callable, ok := fn.(func() error)
	if !ok {
		return &InternalInvariantError{Message: "fakeProcess: fn is not a func() error"}
	}
	return runWithDomain(domain, callable)
}

func (p *fakeProcess) Domain() Domain { return nil }

func (p *fakeProcess) HandleFatal(err error) bool {
	if p.fatal == nil {
		return false
	}
	return p.fatal(err)
}

func (p *fakeProcess) EmitEvent(name string, args ...any) error { return nil }
func (p *fakeProcess) Exiting() bool                            { return p.exiting }
func (p *fakeProcess) SetExiting(v bool)                         { p.exiting = v }

// fakeInterpreter is the minimal Interpreter test double.
type fakeInterpreter struct{}

func (fakeInterpreter) MakeError(cause error) ScriptValue { return cause }

func (fakeInterpreter) Classify(recovered any) (*ExitRequested, error) {
	switch v := recovered.(type) {
	case nil:
		return nil, nil
	case *ExitRequested:
		return v, nil
	case error:
		return nil, v
	default:
		return nil, errors.New("fakeInterpreter: unrecognized panic value")
	}
}

// fakeRegistry is a ModuleRegistry test double with nothing registered.
type fakeRegistry struct{}

func (fakeRegistry) MainScript() (ScriptValue, error)          { return nil, nil }
func (fakeRegistry) Module(string) (ScriptValue, bool)         { return nil, false }
func (fakeRegistry) InternalModule(string) (ScriptValue, bool) { return nil, false }
func (fakeRegistry) NativeModule(string) (ScriptValue, bool)   { return nil, false }

func newTestContext(t *testing.T, proc *fakeProcess, opts ...Option) *Context {
	t.Helper()
	ctx, err := NewContext(proc, fakeInterpreter{}, fakeRegistry{}, opts...)
	require.NoError(t, err)
	return ctx
}

// TestLoopPhaseOrder covers spec §4.1's phase ordering: next-ticks run
// before generic ticks, generic ticks before immediates, and immediates
// before the following poll/timer dispatch.
func TestLoopPhaseOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	proc := newFakeProcess()
	proc.nextTicks = append(proc.nextTicks, func() error { record("next-tick"); return nil })
	proc.immediates = append(proc.immediates, func() error { record("immediate"); return nil })

	ctx := newTestContext(t, proc)
	ctx.Pin()

	_, err := ctx.ExecuteScriptTask(func() error { record("generic-tick"); return nil }, nil)
	require.NoError(t, err)

	_, err = ctx.CreateTimedTask(func() error {
		record("timer")
		ctx.Unpin()
		return nil
	}, 1, false, 0, nil)
	require.NoError(t, err)

	loop := NewLoop(ctx)
	status, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, status.Err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"next-tick", "generic-tick", "immediate", "timer"}, order)
}

// TestLoopRepeatingTimerCancelledAfterTwoFires covers spec §4.3/§8's
// repeat-from-fire-time policy: a repeating timer that cancels itself on
// its second firing is invoked exactly twice.
func TestLoopRepeatingTimerCancelledAfterTwoFires(t *testing.T) {
	proc := newFakeProcess()
	ctx := newTestContext(t, proc)
	ctx.Pin()

	var mu sync.Mutex
	count := 0
	var activity *Activity

	a, err := ctx.CreateTimer(1, true, 1, func(ScriptValue) error {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		if n >= 2 {
			activity.Cancel()
			ctx.Unpin()
		}
		return nil
	}, nil)
	require.NoError(t, err)
	activity = a

	loop := NewLoop(ctx)
	status, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, status.Err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, count)
}

// TestLoopGenericTickFatalShortCircuitsDrain covers spec §4.7/S5: a
// consumed fatal error stops draining the TickQueue for the remainder of
// that iteration (rather than continuing through every queued Activity),
// so an error storm cannot starve timers and I/O. With three erroring
// Activities queued, all three still eventually run — across separate
// iterations — and all three are offered to the fatal handler.
func TestLoopGenericTickFatalShortCircuitsDrain(t *testing.T) {
	proc := newFakeProcess()
	proc.fatal = func(error) bool { return true }
	ctx := newTestContext(t, proc, WithMetrics(true))

	const n = 3
	var mu sync.Mutex
	ran := 0
	for i := 0; i < n; i++ {
		_, err := ctx.ExecuteScriptTask(func() error {
			mu.Lock()
			ran++
			mu.Unlock()
			return errors.New("boom")
		}, nil)
		require.NoError(t, err)
	}

	loop := NewLoop(ctx)
	status, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, status.Err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, n, ran)

	snap := ctx.Metrics().Snapshot()
	require.Equal(t, int64(n), snap.FatalsConsumed)
	// The short-circuit forces at least one extra iteration per queued
	// error beyond the first.
	require.GreaterOrEqual(t, snap.Iterations, int64(n))
}

// TestLoopUnconsumedFatalTerminates covers spec §4.7: a fatal error the
// handler rejects becomes the loop's terminal status.
func TestLoopUnconsumedFatalTerminates(t *testing.T) {
	proc := newFakeProcess()
	proc.fatal = func(error) bool { return false }
	ctx := newTestContext(t, proc)

	_, err := ctx.ExecuteScriptTask(func() error { return errors.New("boom") }, nil)
	require.NoError(t, err)

	loop := NewLoop(ctx)
	status, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Error(t, status.Err)
}

// TestLoopExitReplacesStatus covers spec §8's exit-replaces-status
// invariant: a deliberate *ExitRequested panic ends the loop with that
// status code rather than reaching the normal termination predicate.
func TestLoopExitReplacesStatus(t *testing.T) {
	proc := newFakeProcess()
	ctx := newTestContext(t, proc)
	ctx.Pin()

	_, err := ctx.ExecuteScriptTask(func() error {
		panic(&ExitRequested{Code: 7})
	}, nil)
	require.NoError(t, err)

	loop := NewLoop(ctx)
	status, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, status.Err)
	require.Equal(t, 7, status.Code)
}

// TestLoopCrossGoroutineWakeup covers spec §4.2/§5: an Activity enqueued
// from a goroutine other than the loop goroutine wakes a currently-polling
// loop promptly rather than waiting for some other timeout.
func TestLoopCrossGoroutineWakeup(t *testing.T) {
	proc := newFakeProcess()
	ctx := newTestContext(t, proc)
	ctx.Pin()

	done := make(chan struct{})
	go func() {
		_, err := ctx.ExecuteScriptTask(func() error {
			close(done)
			ctx.Unpin()
			return nil
		}, nil)
		require.NoError(t, err)
	}()

	loop := NewLoop(ctx)
	status, err := loop.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, status.Err)

	select {
	case <-done:
	default:
		t.Fatal("cross-goroutine Activity never ran")
	}
}
