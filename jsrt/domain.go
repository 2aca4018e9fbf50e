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

// Domain implements [corert.Domain] by pushing/popping itself on the
// Runtime's active-domain stack, in place of the original's reflective
// lookup of "enter"/"exit"/"_disposed" properties on a Scriptable — see
// corert's Domain doc comment. An "error" listener registered via
// createDomain()'s .on("error", fn) takes precedence over the global
// process.setUncaughtExceptionCaptureCallback handler, matching Node's
// domain-before-uncaughtException precedence.
type Domain struct {
	mu           sync.Mutex
	disposed     bool
	errorHandler goja.Callable
	rt           *Runtime
}

// IsDisposed reports whether Dispose has been called.
func (d *Domain) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// Enter pushes d onto the owning Runtime's domain stack.
func (d *Domain) Enter() error {
	d.rt.pushDomain(d)
	return nil
}

// Exit pops the owning Runtime's domain stack. It is only invoked by
// corert's guard on a normal return (see corert.Domain's doc comment) —
// on error or panic the frame is instead cleaned up by Runtime.HandleFatal.
func (d *Domain) Exit() error {
	d.rt.popDomain()
	return nil
}

// Dispose latches the disposed flag; a disposed domain is treated as "no
// domain" for any Activity still referencing it.
func (d *Domain) Dispose() {
	d.mu.Lock()
	d.disposed = true
	d.mu.Unlock()
}

// ErrorHandler returns the registered "error" listener, or nil.
func (d *Domain) ErrorHandler() goja.Callable {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errorHandler
}

func (d *Domain) setErrorHandler(fn goja.Callable) {
	d.mu.Lock()
	d.errorHandler = fn
	d.mu.Unlock()
}

// createDomain is a deliberately simplified stand-in for Node's `domain`
// module (out of scope for a require()-based module system here): it
// returns a JS object with run/enter/exit/dispose/on("error", fn), any of
// which can be passed as the Activity domain argument to corert's
// EnqueueTask/CreateTimer family via the object's internal *Domain.
func (r *Runtime) createDomain(call goja.FunctionCall) goja.Value {
	d := &Domain{rt: r}
	obj := r.vm.NewObject()

	_ = obj.Set("run", func(inner goja.FunctionCall) goja.Value {
		callable, ok := goja.AssertFunction(inner.Argument(0))
		if !ok {
			panic(r.vm.NewTypeError("domain.run requires a function"))
		}
		if err := d.Enter(); err != nil {
			panic(r.vm.NewGoError(err))
		}
		ret, err := callable(goja.Undefined())
		if err != nil {
			// Mirror corert's guard: Exit is skipped on error, so the
			// domain (and its error listener) stays active for whatever
			// catches this panic further up the call stack.
			panic(err)
		}
		if err := d.Exit(); err != nil {
			panic(r.vm.NewGoError(err))
		}
		return ret
	})
	_ = obj.Set("enter", func(goja.FunctionCall) goja.Value {
		_ = d.Enter()
		return goja.Undefined()
	})
	_ = obj.Set("exit", func(goja.FunctionCall) goja.Value {
		_ = d.Exit()
		return goja.Undefined()
	})
	_ = obj.Set("dispose", func(goja.FunctionCall) goja.Value {
		d.Dispose()
		return goja.Undefined()
	})
	_ = obj.Set("on", func(inner goja.FunctionCall) goja.Value {
		event := inner.Argument(0).String()
		if callable, ok := goja.AssertFunction(inner.Argument(1)); ok && event == "error" {
			d.setErrorHandler(callable)
		}
		return obj
	})
	_ = obj.Set("_corertDomain", d)

	return obj
}

var _ corert.Domain = (*Domain)(nil)
