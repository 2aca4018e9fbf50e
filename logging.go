package corert

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// LogLevel mirrors the syslog-derived severities corert's loop uses for its
// own structured diagnostics (timer fired, selector woke, handle leaked on
// shutdown), kept deliberately narrower than logiface.Level since the loop
// only ever needs four of them.
type LogLevel int8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l LogLevel) logifaceLevel() logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// LogEntry is one structured diagnostic emission from the loop or context.
// Category identifies the subsystem ("timer", "selector", "shutdown",
// "domain", "ipc") so a downstream sink can filter or route without
// parsing Message.
type LogEntry struct {
	Level    LogLevel
	Category string
	Message  string
	Err      error
	Fields   map[string]any
}

// Logger is the narrow structured-logging collaborator corert depends on.
// It deliberately exposes nothing of logiface's generic Event machinery —
// only the two calls the loop actually needs — so swapping backends never
// touches loop.go.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// logifaceLogger adapts a *logiface.Logger[*logifaceslog.Event] (i.e. the
// slog-backed logger built by NewDefaultLogger) to the Logger interface.
type logifaceLogger struct {
	l *logiface.Logger[*logifaceslog.Event]
}

// NewDefaultLogger builds the default Logger, writing structured JSON lines
// to w via slog and logiface-slog's Writer/EventFactory, at minimum level.
func NewDefaultLogger(w *os.File, level LogLevel) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{})
	opt := logifaceslog.NewLogger(handler)
	l := logiface.New[*logifaceslog.Event](opt, logiface.WithLevel[*logifaceslog.Event](level.logifaceLevel()))
	return &logifaceLogger{l: l}
}

// NoopLogger discards every entry; IsEnabled always reports false so
// callers can skip building Fields maps on the hot path.
type NoopLogger struct{}

func (NoopLogger) Log(LogEntry)            {}
func (NoopLogger) IsEnabled(LogLevel) bool { return false }

func (a *logifaceLogger) IsEnabled(level LogLevel) bool {
	b := a.l.Build(level.logifaceLevel())
	if b == nil {
		return false
	}
	b.Release()
	return true
}

func (a *logifaceLogger) Log(entry LogEntry) {
	b := a.l.Build(entry.Level.logifaceLevel())
	if b == nil {
		return
	}
	b = b.Str("category", entry.Category)
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	for k, v := range entry.Fields {
		b = b.Any(k, v)
	}
	b.Log(entry.Message)
}

