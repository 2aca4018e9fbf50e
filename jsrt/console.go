// Copyright 2026 The corert Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package jsrt

import (
	"fmt"
	"os"

	"github.com/dop251/goja"

	"github.com/corert-dev/corert"
)

// bindConsole installs a minimal console global (log/info/warn/error),
// since goja itself provides no console builtin — unlike Promise, which
// it does. Output is routed through the attached Context's structured
// Logger as well as stdio, so script-level diagnostics show up alongside
// the loop's own "timer"/"selector"/"shutdown" log entries.
func (r *Runtime) bindConsole() error {
	console := r.vm.NewObject()
	_ = console.Set("log", r.consoleMethod(corert.LevelInfo, os.Stdout))
	_ = console.Set("info", r.consoleMethod(corert.LevelInfo, os.Stdout))
	_ = console.Set("warn", r.consoleMethod(corert.LevelWarn, os.Stderr))
	_ = console.Set("error", r.consoleMethod(corert.LevelError, os.Stderr))
	return r.vm.Set("console", console)
}

func (r *Runtime) consoleMethod(level corert.LogLevel, w *os.File) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.String()
		}
		line := fmt.Sprintln(args...)
		fmt.Fprint(w, line)

		if logger := r.ctx.Logger(); logger != nil && logger.IsEnabled(level) {
			logger.Log(corert.LogEntry{Level: level, Category: "console", Message: line})
		}
		return goja.Undefined()
	}
}
