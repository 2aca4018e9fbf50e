package corert

import (
	"context"
	"time"
)

// defaultDelayMs is corert's DEFAULT_DELAY: the poll bound used when the
// TimerHeap is empty and nothing else demands an immediate re-check. The
// original uses Integer.MAX_VALUE milliseconds (spec §9 open question);
// since Go's selector.Poll already accepts a genuine "block until woken"
// sentinel (a negative timeout), corert uses that instead of reproducing
// the finite-but-huge bound — the wakeup contract is unaffected either way.
const defaultDelayMs = -1

// Loop is the driver described by spec §4.1: it orders the phases and
// selects a blocking timeout. Exactly one goroutine at a time may be
// inside Run for a given Loop.
type Loop struct {
	ctx *Context
}

// NewLoop wraps ctx in a Loop driver.
func NewLoop(ctx *Context) *Loop {
	return &Loop{ctx: ctx}
}

// Run executes the loop until the termination predicate holds, a fatal
// error is raised, the submission future is cancelled, or ctx.Done()
// fires. It returns a [Status] describing how the loop ended, alongside
// a non-nil error only for conditions outside the script's own control
// (reentrancy, double-Run).
func (l *Loop) Run(runCtx context.Context) (Status, error) {
	if !l.ctx.state.TryTransition(StateAwake, StateRunning) {
		if l.ctx.state.IsTerminal() {
			return Status{}, ErrContextTerminated
		}
		return Status{}, ErrAlreadyRunning
	}

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			l.ctx.Cancel()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	status := l.runIterations()
	l.ctx.state.Store(StateTerminating)
	status = l.shutdown(status)

	l.ctx.state.Store(StateTerminated)
	select {
	case l.ctx.exitCh <- status:
	default:
	}
	return status, nil
}

// pendingWork implements the termination predicate of spec §4.1/§8
// invariant 4: the loop continues while the TickQueue is non-empty, the
// PinCounter is above zero, or the process object has a pending next-tick
// or immediate task.
func (l *Loop) pendingWork() bool {
	c := l.ctx
	return !c.ticks.Empty() || c.pins.Load() > 0 ||
		c.process.IsTickTaskPending() || c.process.IsImmediateTaskPending()
}

func (l *Loop) runIterations() Status {
	c := l.ctx

	for l.pendingWork() {
		c.metrics.recordIteration()

		if c.future.isCancelled() {
			return Status{Cancelled: true}
		}

		// 2. Next-ticks.
		if exit, fatal := l.runGuarded("next-tick", c.process.ProcessTickTasks); exit != nil {
			return Status{Code: exit.Code}
		} else if fatal != nil {
			return Status{Err: fatal}
		}

		// 3. Generic ticks: drain fully unless a consumed fatal error asks
		// us to yield to the remaining phases this iteration.
		if exit, fatal := l.drainTicks(); exit != nil {
			return Status{Code: exit.Code}
		} else if fatal != nil {
			return Status{Err: fatal}
		}

		// 4. Immediates.
		if exit, fatal := l.runGuarded("immediate", c.process.ProcessImmediateTasks); exit != nil {
			return Status{Code: exit.Code}
		} else if fatal != nil {
			return Status{Err: fatal}
		}

		// 5. Poll-timeout computation.
		now := c.refreshNow()
		timeoutMs := l.calculateTimeout(now)

		// 6. Select. Transition to Sleeping only for a genuinely blocking
		// wait, so State() reports something meaningful to an observer;
		// a zero timeout never actually sleeps.
		if timeoutMs != 0 {
			c.state.TryTransition(StateRunning, StateSleeping)
		}
		n, err := c.sel.Poll(timeoutMs)
		c.state.TryTransition(StateSleeping, StateRunning)
		if err != nil {
			return Status{Err: &IOError{Cause: err, Fatal: true}}
		}
		// 7. I/O dispatch already happened inline inside Poll, via each
		// registered IOCallback; n is recorded for diagnostics only.
		c.metrics.recordIO(n)

		// 8. Timer dispatch.
		if exit, fatal := l.dispatchTimers(); exit != nil {
			return Status{Code: exit.Code}
		} else if fatal != nil {
			return Status{Err: fatal}
		}
	}

	return Status{}
}

// calculateTimeout implements spec §4.1 step 5.
func (l *Loop) calculateTimeout(now time.Time) int {
	c := l.ctx
	if !c.ticks.Empty() || c.process.IsTickTaskPending() || c.process.IsImmediateTaskPending() || c.pins.Load() == 0 {
		return 0
	}
	top := c.timers.Peek()
	if top == nil {
		return defaultDelayMs
	}
	remaining := top.timeout - now.UnixMilli()
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining)
}

// drainTicks implements spec §4.1 step 3: poll the TickQueue until empty,
// executing each Activity; stop early (without draining further) the
// first time a generic tick's error is consumed by the fatal handler, so
// an error storm cannot starve timers and I/O (spec §4.7, S5).
func (l *Loop) drainTicks() (*ExitRequested, error) {
	c := l.ctx
	for {
		a, ok := c.ticks.Pop()
		if !ok {
			return nil, nil
		}
		if a.Cancelled() {
			continue
		}
		c.metrics.recordGenericTick()
		exit, fatal, consumed := l.runActivity(a)
		if exit != nil {
			return exit, nil
		}
		if fatal != nil {
			return nil, fatal
		}
		if consumed {
			return nil, nil
		}
	}
}

// dispatchTimers implements spec §4.1 step 8 / §4.3's repeat-from-fire-time
// policy.
func (l *Loop) dispatchTimers() (*ExitRequested, error) {
	c := l.ctx
	now := c.Now().UnixMilli()
	for {
		top := c.timers.Peek()
		if top == nil || top.timeout > now {
			return nil, nil
		}
		a := c.timers.Pop()
		if a.Cancelled() {
			continue
		}
		c.metrics.recordTimer()
		exit, fatal, _ := l.runActivity(a)
		if exit != nil {
			return exit, nil
		}
		if fatal != nil {
			return nil, fatal
		}
		if a.repeating && !a.Cancelled() {
			a.timeout = c.Now().UnixMilli() + a.interval
			c.timers.Push(a)
		}
	}
}

// runActivity dispatches a single Activity according to its Kind (spec
// §3's tagged-variant dispatch), applying the domain guard (§4.6) to Task
// and RunnableTask variants only — Callback Activities delegate domain
// handling to the Process object's own tick submitter.
func (l *Loop) runActivity(a *Activity) (exit *ExitRequested, fatal error, consumed bool) {
	if a.Cancelled() {
		return nil, nil, false
	}
	c := l.ctx

	switch a.kind {
	case KindCallback:
		return l.runGuardedConsumed("tick", func() error {
			return c.process.SubmitTick(a.callback.Function, a.callback.This, a.callback.Args, a.domain)
		})

	case KindTask:
		return l.runGuardedConsumed("tick", func() error {
			return runWithDomain(a.domain, func() error {
				return a.task.Run(c.Scope())
			})
		})

	case KindRunnable:
		return l.runGuardedConsumed("tick", func() error {
			return runWithDomain(a.domain, a.runnable.Run)
		})

	default:
		return nil, &InternalInvariantError{Message: "unreachable activity kind"}, false
	}
}

// runGuarded executes fn inside the script timing window and classifies
// any resulting error per spec §4.7, without the "was this consumed"
// bookkeeping runGuardedConsumed needs for the tick-draining short-circuit.
func (l *Loop) runGuarded(phase string, fn func() error) (exit *ExitRequested, fatal error) {
	exit, fatal, _ = l.runGuardedConsumed(phase, fn)
	return exit, fatal
}

// runGuardedConsumed is the script-exception boundary (spec §4.7): it runs
// fn under the timing window, recovers a panic if the interpreter binding
// lets one escape, classifies the result, and — for an ordinary script
// error — offers it to the fatal handler. consumed reports whether the
// fatal handler accepted the error (true) and the caller should treat it
// as non-terminal.
func (l *Loop) runGuardedConsumed(phase string, fn func() error) (exit *ExitRequested, fatal error, consumed bool) {
	c := l.ctx
	c.timing.start(c.Now())

	defer func() {
		if r := recover(); r != nil {
			c.timing.end()
			exit, fatal, consumed = l.classify(phase, r)
		}
	}()

	err := fn()
	c.timing.end()
	if err == nil {
		return nil, nil, false
	}
	return l.classify(phase, err)
}

// classify implements the three-way split of spec §4.7: a deliberate exit
// sentinel always propagates; any other error is normalized and offered to
// the fatal handler.
func (l *Loop) classify(phase string, recovered any) (exit *ExitRequested, fatal error, consumed bool) {
	c := l.ctx

	if ex, ok := recovered.(*ExitRequested); ok {
		return ex, nil, false
	}

	ex, scriptErr := c.interpreter.Classify(recovered)
	if ex != nil {
		return ex, nil, false
	}
	if scriptErr == nil {
		return nil, nil, false
	}

	se := &ScriptError{Cause: scriptErr, Phase: phase}
	if c.process.HandleFatal(se) {
		c.metrics.recordFatalConsumed()
		return nil, nil, true
	}
	return nil, se, false
}

// shutdown runs the sequence of spec §4.11, swallowing (but logging)
// every error along the way so shutdown always completes. It returns the
// final Status, whose Code is replaced when an "exit" listener calls
// process.exit() re-entrantly (returned or panicked *ExitRequested).
func (l *Loop) shutdown(status Status) Status {
	c := l.ctx

	if status.Err == nil && !status.Cancelled && !c.process.Exiting() {
		c.process.SetExiting(true)
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					ex, ok := r.(*ExitRequested)
					if !ok {
						panic(r)
					}
					err = ex
				}
			}()
			return c.process.EmitEvent("exit", status.Code)
		}()
		if err != nil {
			if ex, ok := err.(*ExitRequested); ok {
				status.Code = ex.Code
			} else if c.logger.IsEnabled(LevelWarn) {
				c.logger.Log(LogEntry{Level: LevelWarn, Category: "shutdown", Message: "exit event handler failed", Err: err})
			}
		}
	}

	if c.cleanup != nil {
		if err := c.cleanup(); err != nil && c.logger.IsEnabled(LevelWarn) {
			c.logger.Log(LogEntry{Level: LevelWarn, Category: "shutdown", Message: "filesystem cleanup failed", Err: err})
		}
	}

	for _, err := range c.handles.CloseAll() {
		if c.logger.IsEnabled(LevelDebug) {
			c.logger.Log(LogEntry{Level: LevelDebug, Category: "shutdown", Message: "closing leaked handle failed", Err: err})
		}
	}

	if c.sandbox != nil {
		for _, stream := range []Closeable{c.sandbox.Stdout, c.sandbox.Stderr} {
			if stream == nil {
				continue
			}
			if err := stream.Close(); err != nil && c.logger.IsEnabled(LevelDebug) {
				c.logger.Log(LogEntry{Level: LevelDebug, Category: "shutdown", Message: "closing stdio stream failed", Err: err})
			}
		}
	}

	_ = c.asyncPool.Close()
	_ = c.unboundedPool.Close()
	if err := c.sel.Close(); err != nil && c.logger.IsEnabled(LevelWarn) {
		c.logger.Log(LogEntry{Level: LevelWarn, Category: "shutdown", Message: "closing selector failed", Err: err})
	}
	return status
}

// State reports the Loop's current lifecycle state.
func (l *Loop) State() LoopState { return l.ctx.state.Load() }
