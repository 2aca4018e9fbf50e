// Copyright 2026 The corert Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package jsrt binds a [github.com/dop251/goja] runtime to corert's
// [corert.Process] and [corert.Interpreter] collaborator interfaces,
// grounded on the goja-eventloop adapter's approach of installing
// setTimeout/setInterval/queueMicrotask as native Go functions that forward
// into the host-owned scheduler rather than reimplementing timer semantics
// in JavaScript.
//
// Unlike goja-eventloop, jsrt does not hand-roll a Promise polyfill: goja
// itself provides a native Promise builtin (see goja.Runtime.NewPromise),
// so script code gets Promise/then/catch/finally/Promise.all and friends
// for free, driven transparently by goja's own job queue whenever the
// runtime is pumped from the corert loop goroutine.
package jsrt
