// Copyright 2026 The corert Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsrt

import (
	"sync"

	"github.com/dop251/goja"

	"github.com/corert-dev/corert"
)

// timerEntry tracks the Pin a live setTimeout/setInterval holds on the
// loop, so clearTimeout/clearInterval (or a one-shot timer simply firing)
// Unpin exactly once regardless of which happens first.
type timerEntry struct {
	activity *corert.Activity

	mu       sync.Mutex
	unpinned bool
}

func (e *timerEntry) unpinOnce(ctx *corert.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.unpinned {
		e.unpinned = true
		ctx.Unpin()
	}
}

// timerRegistry maps the numeric ids returned to script code back to the
// Activity a setTimeout/setInterval call created, mirroring the teacher's
// SetTimeout/ClearTimeout id bookkeeping.
type timerRegistry struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*timerEntry
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{entries: make(map[int64]*timerEntry)}
}

func (t *timerRegistry) add(a *corert.Activity) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.entries[id] = &timerEntry{activity: a}
	return id
}

func (t *timerRegistry) take(id int64) *timerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[id]
	delete(t.entries, id)
	return e
}

// immediateEntry is a setImmediate registration; cancelled entries are
// skipped by ProcessImmediateTasks rather than spliced out of the slice,
// so clearImmediate never has to touch Runtime's queue under lock
// contention with an in-progress drain.
type immediateEntry struct {
	fn        func() error
	cancelled bool
}

// Bind installs the timer, microtask, process, and domain globals into the
// runtime's VM. Attach must be called first.
func (r *Runtime) Bind() error {
	if r.ctx == nil {
		return &corert.InternalInvariantError{Message: "jsrt: Bind called before Attach"}
	}
	vm := r.vm
	_ = vm.Set("setTimeout", r.setTimeout)
	_ = vm.Set("clearTimeout", r.clearTimer)
	_ = vm.Set("setInterval", r.setInterval)
	_ = vm.Set("clearInterval", r.clearTimer)
	_ = vm.Set("setImmediate", r.setImmediate)
	_ = vm.Set("clearImmediate", r.clearImmediate)
	_ = vm.Set("queueMicrotask", r.queueMicrotask)
	_ = vm.Set("createDomain", r.createDomain)
	if err := r.bindConsole(); err != nil {
		return err
	}
	return r.bindProcess()
}

func extraArgs(call goja.FunctionCall, from int) []goja.Value {
	if len(call.Arguments) <= from {
		return nil
	}
	return call.Arguments[from:]
}

func (r *Runtime) setTimeout(call goja.FunctionCall) goja.Value {
	callable, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout requires a function as its first argument"))
	}
	delayMs := call.Argument(1).ToInteger()
	if delayMs < 0 {
		delayMs = 0
	}
	extra := extraArgs(call, 2)

	r.ctx.Pin()
	var id int64
	run := func(corert.ScriptValue) error {
		defer func() {
			if e := r.timers.take(id); e != nil {
				e.unpinOnce(r.ctx)
			}
		}()
		_, err := callable(goja.Undefined(), extra...)
		return err
	}
	a, err := r.ctx.CreateTimer(delayMs, false, 0, run, r.Domain())
	if err != nil {
		r.ctx.Unpin()
		panic(r.vm.NewGoError(err))
	}
	id = r.timers.add(a)
	return r.vm.ToValue(id)
}

func (r *Runtime) setInterval(call goja.FunctionCall) goja.Value {
	callable, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setInterval requires a function as its first argument"))
	}
	delayMs := call.Argument(1).ToInteger()
	if delayMs < 0 {
		delayMs = 0
	}
	extra := extraArgs(call, 2)

	r.ctx.Pin()
	run := func(corert.ScriptValue) error {
		_, err := callable(goja.Undefined(), extra...)
		return err
	}
	a, err := r.ctx.CreateTimer(delayMs, true, delayMs, run, r.Domain())
	if err != nil {
		r.ctx.Unpin()
		panic(r.vm.NewGoError(err))
	}
	id := r.timers.add(a)
	return r.vm.ToValue(id)
}

// clearTimer serves both clearTimeout and clearInterval, matching the
// teacher's adapter: node makes no functional distinction between the two
// once it has an id.
func (r *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if e := r.timers.take(id); e != nil {
		e.activity.Cancel()
		e.unpinOnce(r.ctx)
	}
	return goja.Undefined()
}

func (r *Runtime) setImmediate(call goja.FunctionCall) goja.Value {
	callable, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setImmediate requires a function as its first argument"))
	}
	extra := extraArgs(call, 1)
	entry := &immediateEntry{}
	entry.fn = func() error {
		if entry.cancelled {
			return nil
		}
		_, err := callable(goja.Undefined(), extra...)
		return err
	}
	id := r.addImmediate(entry)
	r.pushImmediate(entry.fn)
	return r.vm.ToValue(id)
}

func (r *Runtime) clearImmediate(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if entry := r.takeImmediate(id); entry != nil {
		entry.cancelled = true
	}
	return goja.Undefined()
}

func (r *Runtime) queueMicrotask(call goja.FunctionCall) goja.Value {
	callable, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("queueMicrotask requires a function"))
	}
	// queueMicrotask is scheduled alongside process.nextTick rather than
	// as a distinct fifth queue: both run ahead of timers/I/O and neither
	// corert nor this binding distinguishes their relative priority.
	r.pushNextTick(func() error {
		_, err := callable(goja.Undefined())
		return err
	})
	return goja.Undefined()
}

func (r *Runtime) bindProcess() error {
	process := r.vm.NewObject()
	_ = process.Set("nextTick", r.processNextTick)
	_ = process.Set("exit", r.processExit)
	_ = process.Set("on", r.processOn)
	_ = process.Set("setUncaughtExceptionCaptureCallback", r.setUncaughtExceptionCaptureCallback)
	return r.vm.Set("process", process)
}

func (r *Runtime) processNextTick(call goja.FunctionCall) goja.Value {
	callable, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("process.nextTick requires a function as its first argument"))
	}
	extra := extraArgs(call, 1)
	r.pushNextTick(func() error {
		_, err := callable(goja.Undefined(), extra...)
		return err
	})
	return goja.Undefined()
}

// processExit panics with *corert.ExitRequested, which propagates up
// through loop.go's recover()-based classify() as a deliberate exit (spec
// §4.7/§4.11) rather than a script error.
func (r *Runtime) processExit(call goja.FunctionCall) goja.Value {
	code := int(call.Argument(0).ToInteger())
	panic(&corert.ExitRequested{Code: code})
}

func (r *Runtime) processOn(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).String()
	if callable, ok := goja.AssertFunction(call.Argument(1)); ok {
		r.On(event, callable)
	}
	return goja.Undefined()
}

func (r *Runtime) setUncaughtExceptionCaptureCallback(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsNull(arg) || goja.IsUndefined(arg) {
		r.SetFatalHandler(nil)
		return goja.Undefined()
	}
	callable, ok := goja.AssertFunction(arg)
	if !ok {
		panic(r.vm.NewTypeError("setUncaughtExceptionCaptureCallback requires a function or null"))
	}
	r.SetFatalHandler(callable)
	return goja.Undefined()
}

func (r *Runtime) addImmediate(e *immediateEntry) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.immSeq++
	id := r.immSeq
	if r.immByID == nil {
		r.immByID = make(map[int64]*immediateEntry)
	}
	r.immByID[id] = e
	return id
}

func (r *Runtime) takeImmediate(id int64) *immediateEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.immByID[id]
	delete(r.immByID, id)
	return e
}
