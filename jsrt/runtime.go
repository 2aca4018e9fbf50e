// Copyright 2026 The corert Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsrt

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/corert-dev/corert"
)

// Runtime binds a *goja.Runtime into a corert.Context, implementing both
// [corert.Process] (the next-tick/immediate microtask queues, the domain
// stack, the fatal handler, the "exit" emitter) and [corert.Interpreter]
// (error normalization and exit-request classification).
//
// All of Runtime's methods that touch vm are only ever called from the
// loop goroutine, mirroring goja's own single-threaded contract; the
// exceptions are NextTick/Immediate/SubmitTick callers reached indirectly
// through corert.Context's thread-safe producer API, which themselves only
// ever run on the loop goroutine too (see corert's Process doc comment).
type Runtime struct {
	vm  *goja.Runtime
	ctx *corert.Context

	mu         sync.Mutex
	nextTicks  []func() error
	immediates []func() error
	immSeq     int64
	immByID    map[int64]*immediateEntry

	domainMu    sync.Mutex
	domainStack []corert.Domain

	fatalHandler goja.Callable

	listenersMu sync.Mutex
	listeners   map[string][]goja.Callable

	exiting bool

	timers *timerRegistry
}

// New constructs a Runtime around a freshly created goja.Runtime. Bind
// must be called before running any script code that uses timers,
// process.nextTick, setImmediate, or domains.
func New() *Runtime {
	return &Runtime{
		vm:        goja.New(),
		listeners: make(map[string][]goja.Callable),
		timers:    newTimerRegistry(),
	}
}

// VM returns the underlying goja runtime, for host code that needs to
// compile and run script sources directly.
func (r *Runtime) VM() *goja.Runtime { return r.vm }

// Attach records the Context this Runtime schedules work against. It must
// be called once, before Bind, since the timer bindings close over ctx.
func (r *Runtime) Attach(ctx *corert.Context) { r.ctx = ctx }

// --- corert.Process ---

// IsTickTaskPending reports whether process.nextTick has pending work.
func (r *Runtime) IsTickTaskPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nextTicks) > 0
}

// IsImmediateTaskPending reports whether setImmediate has pending work.
func (r *Runtime) IsImmediateTaskPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.immediates) > 0
}

// ProcessTickTasks drains process.nextTick's queue to empty, including
// ticks enqueued by ticks that ran earlier in the same call — a nextTick
// callback that itself calls process.nextTick is observed by this same
// drain, matching Node's starve-immediates-before-ticks ordering.
func (r *Runtime) ProcessTickTasks() error {
	for {
		fn := r.popNextTick()
		if fn == nil {
			return nil
		}
		if err := fn(); err != nil {
			return err
		}
	}
}

// ProcessImmediateTasks drains the setImmediate queue the same way.
func (r *Runtime) ProcessImmediateTasks() error {
	for {
		fn := r.popImmediate()
		if fn == nil {
			return nil
		}
		if err := fn(); err != nil {
			return err
		}
	}
}

func (r *Runtime) popNextTick() func() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.nextTicks) == 0 {
		return nil
	}
	fn := r.nextTicks[0]
	r.nextTicks = r.nextTicks[1:]
	return fn
}

func (r *Runtime) popImmediate() func() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.immediates) == 0 {
		return nil
	}
	fn := r.immediates[0]
	r.immediates = r.immediates[1:]
	return fn
}

func (r *Runtime) pushNextTick(fn func() error) {
	r.mu.Lock()
	r.nextTicks = append(r.nextTicks, fn)
	r.mu.Unlock()
}

func (r *Runtime) pushImmediate(fn func() error) {
	r.mu.Lock()
	r.immediates = append(r.immediates, fn)
	r.mu.Unlock()
}

// SubmitTick runs fn under the domain guard, exercising the interpreter's
// own error path rather than corert's generic Task/RunnableTask guard —
// Callback Activities delegate here specifically so that a goja.Exception
// surfaces through Classify the same way any other script error does.
func (r *Runtime) SubmitTick(fn corert.ScriptFunction, this corert.ScriptValue, args []corert.ScriptValue, domain corert.Domain) error {
	callable, ok := fn.(goja.Callable)
	if !ok {
		return &corert.InternalInvariantError{Message: "jsrt: SubmitTick given a non-callable ScriptFunction"}
	}
	thisVal := r.toGojaValue(this)
	gojaArgs := make([]goja.Value, len(args))
	for i, a := range args {
		gojaArgs[i] = r.toGojaValue(a)
	}

	return runUnderDomain(domain, func() error {
		_, err := callable(thisVal, gojaArgs...)
		return err
	})
}

// Domain returns the domain at the top of the stack, or nil.
func (r *Runtime) Domain() corert.Domain {
	r.domainMu.Lock()
	defer r.domainMu.Unlock()
	if len(r.domainStack) == 0 {
		return nil
	}
	return r.domainStack[len(r.domainStack)-1]
}

func (r *Runtime) pushDomain(d corert.Domain) {
	r.domainMu.Lock()
	r.domainStack = append(r.domainStack, d)
	r.domainMu.Unlock()
}

func (r *Runtime) popDomain() {
	r.domainMu.Lock()
	if n := len(r.domainStack); n > 0 {
		r.domainStack = r.domainStack[:n-1]
	}
	r.domainMu.Unlock()
}

// HandleFatal first offers err to the active domain's "error" listener, if
// any — since the guard that dispatched this Activity skipped Exit on
// error (see corert's Domain doc comment), the domain is still on top of
// the stack here; HandleFatal pops it once it is done, since that skipped
// Exit is otherwise the frame's only remaining cleanup opportunity. If no
// domain claims the error, it falls back to the registered
// uncaughtException handler (see SetFatalHandler). A nil handler, or a
// handler that itself throws, leaves err unconsumed so the loop terminates.
func (r *Runtime) HandleFatal(err error) bool {
	if d, ok := r.Domain().(*Domain); ok && d != nil {
		defer r.popDomain()
		if h := d.ErrorHandler(); h != nil {
			ret, callErr := h(goja.Undefined(), r.vm.ToValue(err.Error()))
			if callErr == nil {
				return ret.ToBoolean()
			}
		}
	}
	if r.fatalHandler == nil {
		return false
	}
	ret, callErr := r.fatalHandler(goja.Undefined(), r.vm.ToValue(err.Error()))
	if callErr != nil {
		return false
	}
	return ret.ToBoolean()
}

// SetFatalHandler installs the script-level callback offered every
// otherwise-uncaught error (process.setUncaughtExceptionCaptureCallback in
// Node's terms). Passing nil uninstalls it.
func (r *Runtime) SetFatalHandler(fn goja.Callable) { r.fatalHandler = fn }

// On registers a listener for a named process-level event ("exit",
// "uncaughtException", ...), mirroring Node's process.on.
func (r *Runtime) On(event string, fn goja.Callable) {
	r.listenersMu.Lock()
	r.listeners[event] = append(r.listeners[event], fn)
	r.listenersMu.Unlock()
}

// EmitEvent calls every listener registered for name, in registration
// order, converting args with ToValue. A listener calling process.exit()
// re-entrantly panics with *corert.ExitRequested, which propagates out of
// EmitEvent unrecovered — the caller (loop.shutdown) is expected to let a
// concrete *corert.ExitRequested supersede the status code already chosen.
func (r *Runtime) EmitEvent(name string, args ...any) error {
	r.listenersMu.Lock()
	fns := append([]goja.Callable(nil), r.listeners[name]...)
	r.listenersMu.Unlock()

	gojaArgs := make([]goja.Value, len(args))
	for i, a := range args {
		gojaArgs[i] = r.vm.ToValue(a)
	}
	for _, fn := range fns {
		if _, err := fn(goja.Undefined(), gojaArgs...); err != nil {
			return err
		}
	}
	return nil
}

// Exiting reports whether process.exit() has already started terminating
// the loop.
func (r *Runtime) Exiting() bool { return r.exiting }

// SetExiting latches the exiting flag.
func (r *Runtime) SetExiting(v bool) { r.exiting = v }

// --- corert.Interpreter ---

// MakeError normalizes cause into a JS-visible Error value.
func (r *Runtime) MakeError(cause error) corert.ScriptValue {
	return r.vm.NewGoError(cause)
}

// Classify inspects a recovered panic value or returned error. A
// *corert.ExitRequested raised by the process.exit() binding (see
// timers.go's bindProcess) always propagates as a deliberate exit; a
// *goja.Exception (a JS-level `throw`) is flattened to its string
// representation, since corert's fatal-handler path only needs a
// presentable error, not the original script value.
func (r *Runtime) Classify(recovered any) (*corert.ExitRequested, error) {
	switch v := recovered.(type) {
	case nil:
		return nil, nil
	case *corert.ExitRequested:
		return v, nil
	case *goja.Exception:
		return nil, fmt.Errorf("jsrt: uncaught exception: %s", v.Error())
	case error:
		return nil, v
	default:
		return nil, fmt.Errorf("jsrt: uncaught panic: %v", v)
	}
}

func (r *Runtime) toGojaValue(v corert.ScriptValue) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	if gv, ok := v.(goja.Value); ok {
		return gv
	}
	return r.vm.ToValue(v)
}

// runUnderDomain mirrors corert's unexported runWithDomain guard: Enter
// before the callback, Exit only on a normal return. SubmitTick needs its
// own copy since corert.runWithDomain is package-private and Callback
// Activities are specified to go through the interpreter's own tick
// submitter rather than the loop's generic Task/RunnableTask guard.
func runUnderDomain(d corert.Domain, fn func() error) (err error) {
	active := d
	if active != nil && active.IsDisposed() {
		active = nil
	}
	if active != nil {
		if err := active.Enter(); err != nil {
			return err
		}
	}
	normal := false
	defer func() {
		if normal && active != nil {
			if exitErr := active.Exit(); exitErr != nil && err == nil {
				err = exitErr
			}
		}
	}()
	err = fn()
	if err == nil {
		normal = true
	}
	return err
}
