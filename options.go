package corert

import "time"

// contextOptions holds the configuration assembled by [Option] values
// before a [Context] is constructed, adapted from the teacher's
// loopOptions/LoopOption pattern.
type contextOptions struct {
	logger         Logger
	asyncWorkers   int
	asyncQueueMax  int
	timingLimit    time.Duration
	pathTranslator PathTranslator
	sandbox        *Sandbox
	metricsEnabled bool
}

// Option configures a [Context] at construction time via [NewContext].
type Option interface {
	applyContext(*contextOptions)
}

type optionFunc func(*contextOptions)

func (f optionFunc) applyContext(o *contextOptions) { f(o) }

// WithLogger sets the structured logger used for the context's own
// diagnostics (timer fired, selector woke, handle leaked on shutdown).
// Defaults to [NoopLogger] if never set.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *contextOptions) { o.logger = l })
}

// WithAsyncWorkers sets the fixed worker count of the bounded async pool
// (spec §4.9). Defaults to 4 if unset or non-positive.
func WithAsyncWorkers(n int) Option {
	return optionFunc(func(o *contextOptions) { o.asyncWorkers = n })
}

// WithAsyncQueue sets the bounded async pool's backing queue size — the
// poolMax+queueMax capacity of spec §4.9/S4, beyond which Submit falls
// back to running inline on the caller's goroutine. Defaults to 0 (no
// queue; every Submit either finds an idle worker or runs inline).
func WithAsyncQueue(queueMax int) Option {
	return optionFunc(func(o *contextOptions) { o.asyncQueueMax = queueMax })
}

// WithScriptTimingLimit sets the per-Activity watchdog deadline window
// (spec §4.8). Zero (the default) disables the timing window entirely —
// timingWindow.start becomes a no-op.
func WithScriptTimingLimit(d time.Duration) Option {
	return optionFunc(func(o *contextOptions) { o.timingLimit = d })
}

// WithPathTranslator overrides the default root-and-mounts [PathTranslator].
func WithPathTranslator(t PathTranslator) Option {
	return optionFunc(func(o *contextOptions) { o.pathTranslator = t })
}

// WithSandbox supplies the optional Sandbox collaborator (spec §6):
// filesystem root, working directory, mounts, an async pool override,
// and a network policy predicate.
func WithSandbox(s *Sandbox) Option {
	return optionFunc(func(o *contextOptions) { o.sandbox = s })
}

// WithMetrics enables lightweight runtime counters (spec §9 ambient
// concern), retrievable via Context.Metrics.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *contextOptions) { o.metricsEnabled = enabled })
}

func resolveOptions(opts []Option) *contextOptions {
	cfg := &contextOptions{logger: NoopLogger{}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyContext(cfg)
	}
	return cfg
}
