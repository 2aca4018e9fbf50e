// Copyright 2026 The corert Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package corert implements the core event loop and scheduling runtime of an
// embeddable, Node.js-style JavaScript execution environment.
//
// The package is interpreter-agnostic: it drives a single-threaded
// cooperative loop, coordinates four ordered queue classes (next-ticks,
// generic ticks, immediates, and timers/I/O), manages timers with repetition
// and cancellation, integrates a non-blocking selector, and controls loop
// liveness via pin-counting. A concrete scripting engine is bound in through
// the [Process] and [Interpreter] collaborator interfaces — see the sibling
// jsrt package for a binding to Goja.
//
// # Phase Ordering
//
// Each loop iteration runs, in order: a cancellation check, next-ticks,
// generic ticks (drained to empty, short-circuiting after the first consumed
// error to avoid starving timers and I/O), immediates, a poll-timeout
// computation, a selector poll, I/O dispatch, and timer dispatch. See
// [Loop.Run].
//
// # Concurrency
//
// Exactly one goroutine — the loop goroutine — owns the TimerHeap, the
// script scope, and all other single-threaded state for a given [Context].
// Any other goroutine may enqueue work via [Context.EnqueueCallback],
// [Context.EnqueueTask], [Context.ExecuteScriptTask], [Context.CreateTimer],
// or [Context.CreateTimedTask]; these, together with [Context.Pin],
// [Context.Unpin] and [Context.Cancel], are safe to call from any goroutine.
package corert
