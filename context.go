package corert

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/corert-dev/corert/selector"
	"github.com/corert-dev/corert/workpool"
)

// ModuleRegistry is the "Module registry" external collaborator of spec
// §6: it returns the bootstrap main script and maps module names to their
// host-side factories, split into three namespaces the way the original
// distinguishes public, internal, and native modules.
type ModuleRegistry interface {
	// MainScript returns the bootstrap script to run once the Context is
	// initialized.
	MainScript() (ScriptValue, error)
	// Module resolves a public (require()-visible) module by name.
	Module(name string) (ScriptValue, bool)
	// InternalModule resolves an internal (process-binding-only) module.
	InternalModule(name string) (ScriptValue, bool)
	// NativeModule resolves a native (host-language-implemented) module.
	NativeModule(name string) (ScriptValue, bool)
}

// Sandbox is the optional collaborator of spec §6 that narrows a
// Context's view of the host filesystem and network, grounded on the
// original's Sandbox interface (getAsyncThreadPool, getMounts, root,
// working directory, stdio override, network policy).
type Sandbox struct {
	Root           string
	WorkingDir     string
	Mounts         map[string]string
	AsyncPool      *workpool.Bounded // non-nil overrides the Context's own pool
	Stdout, Stderr Closeable
	AllowNetwork   func(host string, port int) bool
}

// Status is the terminal outcome of Loop.Run, returned once the
// termination predicate is satisfied or a fatal error/cancellation/exit
// ends the loop early.
type Status struct {
	// Code is the process exit code; zero on a normal, non-exit return.
	Code int
	// Cancelled reports whether the submission future was cancelled.
	Cancelled bool
	// Err is set when the loop terminated due to an unconsumed fatal
	// error (a ScriptError the fatal handler rejected, a fatal IOError, or
	// an InternalInvariantError).
	Err error
}

// submissionFuture is the minimal stand-in for the public script-
// submission façade (out of scope per spec §1 — the façade itself lives
// outside this module) that the loop still needs to poll for
// cancellation at the top of every iteration.
type submissionFuture struct {
	cancelled atomic.Bool
}

// Cancel marks the Context's submission as cancelled. Safe from any
// goroutine.
func (f *submissionFuture) Cancel() { f.cancelled.Store(true) }

func (f *submissionFuture) isCancelled() bool { return f.cancelled.Load() }

// Context is the per-script runtime singleton described by spec §3's
// "Runtime context": it owns the TickQueue, TimerHeap, PinCounter,
// OpenHandles, selector, pools, and path translator, and exposes the
// producer API (§6) other goroutines and modules call into. Exactly one
// goroutine — whichever calls [Loop.Run] — ever touches the TimerHeap or
// any other single-writer state; everything else is safe from any
// goroutine.
type Context struct { //nolint:govet
	process     Process
	interpreter Interpreter
	registry    ModuleRegistry
	sandbox     *Sandbox

	sel           selector.Selector
	ticks         *TickQueue
	timers        *TimerHeap
	pins          *PinCounter
	handles       *OpenHandles
	asyncPool     *workpool.Bounded
	unboundedPool *workpool.Unbounded
	pathTranslate PathTranslator
	logger        Logger
	metrics       *Metrics
	timing        *timingWindow

	future *submissionFuture

	state *runState

	timerSeq atomic.Uint64

	nowMu sync.RWMutex
	now   time.Time

	errnoMu sync.RWMutex
	errno   string

	initOnce sync.Once
	initCh   chan struct{}

	exitCh   chan Status
	exitOnce sync.Once

	scope   atomic.Value // ScriptValue
	cleanup func() error
}

// NewContext constructs a Context around the given Process, Interpreter,
// and ModuleRegistry collaborators. The returned Context owns a freshly
// opened platform [selector.Selector] and worker pools, released only by
// [Loop.Run]'s shutdown sequence: Context has no Close method, so a
// Context whose loop never runs keeps the selector's file descriptor open.
func NewContext(process Process, interpreter Interpreter, registry ModuleRegistry, opts ...Option) (*Context, error) {
	cfg := resolveOptions(opts)

	sel, err := selector.New()
	if err != nil {
		return nil, err
	}

	asyncPool := cfg.sandbox.asyncPoolOrNil()
	if asyncPool == nil {
		workers := cfg.asyncWorkers
		if workers <= 0 {
			workers = 4
		}
		asyncPool = workpool.NewBoundedQueue(workers, cfg.asyncQueueMax)
	}

	pathTranslate := cfg.pathTranslator
	if pathTranslate == nil {
		root, mounts := "/", map[string]string(nil)
		if cfg.sandbox != nil {
			root = cfg.sandbox.Root
			mounts = cfg.sandbox.Mounts
		}
		pathTranslate = NewPathTranslator(root, mounts)
	}

	ctx := &Context{
		process:       process,
		interpreter:   interpreter,
		registry:      registry,
		sandbox:       cfg.sandbox,
		sel:           sel,
		ticks:         NewTickQueue(),
		timers:        NewTimerHeap(),
		pins:          &PinCounter{},
		handles:       NewOpenHandles(),
		asyncPool:     asyncPool,
		unboundedPool: workpool.NewUnbounded(),
		pathTranslate: pathTranslate,
		logger:        cfg.logger,
		metrics:       newMetrics(cfg.metricsEnabled),
		timing:        newTimingWindow(cfg.timingLimit),
		future:        &submissionFuture{},
		state:         newRunState(),
		initCh:        make(chan struct{}),
		exitCh:        make(chan Status, 1),
	}
	ctx.now = time.Now()
	return ctx, nil
}

func (s *Sandbox) asyncPoolOrNil() *workpool.Bounded {
	if s == nil {
		return nil
	}
	return s.AsyncPool
}

// Now returns the loop's current timestamp, refreshed once per iteration
// (spec §4.1 step 5) rather than on every call — this is deliberately
// coarse, matching the original's single `now = System.currentTimeMillis()`
// per mainLoop pass.
func (c *Context) Now() time.Time {
	c.nowMu.RLock()
	defer c.nowMu.RUnlock()
	return c.now
}

func (c *Context) refreshNow() time.Time {
	t := time.Now()
	c.nowMu.Lock()
	c.now = t
	c.nowMu.Unlock()
	return t
}

// ReleaseInit signals that the script scope and globals are ready; any
// goroutine blocked in AwaitInit unblocks. Safe to call more than once —
// only the first call has effect, mirroring the original's one-shot
// CountDownLatch.
func (c *Context) ReleaseInit() {
	c.initOnce.Do(func() { close(c.initCh) })
}

// AwaitInit blocks until ReleaseInit has been called. Producer goroutines
// that need the runtime ready before sending their first message should
// call this before their first enqueue.
func (c *Context) AwaitInit() {
	<-c.initCh
}

// --- Producer API (spec §6) ---

func (c *Context) wake() {
	if err := c.sel.Wake(); err != nil && c.logger.IsEnabled(LevelWarn) {
		c.logger.Log(LogEntry{Level: LevelWarn, Category: "selector", Message: "wake failed", Err: err})
	}
}

// EnqueueCallback pushes a Callback Activity, to be invoked through the
// Process object's tick submitter. Safe from any goroutine.
func (c *Context) EnqueueCallback(fn ScriptFunction, this ScriptValue, args []ScriptValue, domain Domain) (*Activity, error) {
	if !c.state.CanAcceptWork() {
		return nil, ErrContextTerminated
	}
	a := &Activity{id: nextActivitySequence(), kind: KindCallback, domain: domain,
		callback: CallbackPayload{Function: fn, This: this, Args: args}}
	c.ticks.Push(a)
	c.wake()
	return a, nil
}

// EnqueueTask pushes a Task Activity: an opaque host-language callable
// given the script scope, run under the domain guard.
func (c *Context) EnqueueTask(run func(ScriptValue) error, domain Domain) (*Activity, error) {
	if !c.state.CanAcceptWork() {
		return nil, ErrContextTerminated
	}
	a := &Activity{id: nextActivitySequence(), kind: KindTask, domain: domain, task: TaskPayload{Run: run}}
	c.ticks.Push(a)
	c.wake()
	return a, nil
}

// ExecuteScriptTask pushes a RunnableTask Activity: a pure host-language
// callable that never touches the script scope.
func (c *Context) ExecuteScriptTask(run func() error, domain Domain) (*Activity, error) {
	if !c.state.CanAcceptWork() {
		return nil, ErrContextTerminated
	}
	a := &Activity{id: nextActivitySequence(), kind: KindRunnable, domain: domain, runnable: RunnablePayload{Run: run}}
	c.ticks.Push(a)
	c.wake()
	return a, nil
}

// CreateTimer schedules a Task Activity to fire delayMs from now, per
// spec §4.3/§6's createTimer(delayMs, repeating, intervalMs, task, scope).
// Thread-safe: insertion is always marshalled through the TickQueue as an
// insertion Activity, including when called from inside a tick/timer
// dispatch on the loop goroutine (see insertTimer).
func (c *Context) CreateTimer(delayMs int64, repeating bool, intervalMs int64, run func(ScriptValue) error, domain Domain) (*Activity, error) {
	if !c.state.CanAcceptWork() {
		return nil, ErrContextTerminated
	}
	a := &Activity{
		id:        nextActivitySequence(),
		timeout:   c.Now().UnixMilli() + delayMs,
		interval:  intervalMs,
		repeating: repeating,
		kind:      KindTask,
		domain:    domain,
		task:      TaskPayload{Run: run},
	}
	c.insertTimer(a)
	return a, nil
}

// CreateTimedTask schedules a RunnableTask Activity, spec §6's
// createTimedTask(runnable, delay, unit, repeating, domain). delay is
// expressed in the same units as CreateTimer (milliseconds); callers
// converting from another unit should do so before calling.
func (c *Context) CreateTimedTask(run func() error, delayMs int64, repeating bool, intervalMs int64, domain Domain) (*Activity, error) {
	if !c.state.CanAcceptWork() {
		return nil, ErrContextTerminated
	}
	a := &Activity{
		id:        nextActivitySequence(),
		timeout:   c.Now().UnixMilli() + delayMs,
		interval:  intervalMs,
		repeating: repeating,
		kind:      KindRunnable,
		domain:    domain,
		runnable:  RunnablePayload{Run: run},
	}
	c.insertTimer(a)
	return a, nil
}

// insertTimer marshals every timer insertion through the TickQueue, so the
// TimerHeap itself is never touched from a producer thread (spec §4.3). Since Context
// cannot distinguish "the loop goroutine" from any other goroutine without
// extra bookkeeping, and TickQueue.Push/selector.Wake are cheap and always
// safe, every insertion funnels through the queue uniformly; Loop drains
// and re-files these as ordinary timer insertions during its tick phase.
func (c *Context) insertTimer(a *Activity) {
	insertion := &Activity{
		id:   nextActivitySequence(),
		kind: KindRunnable,
		runnable: RunnablePayload{Run: func() error {
			c.timers.Push(a)
			return nil
		}},
	}
	c.ticks.Push(insertion)
	c.wake()
}

// Pin increments the liveness counter.
func (c *Context) Pin() { c.pins.Pin() }

// Unpin decrements the liveness counter and wakes the selector if it
// transitioned to zero, so termination is re-evaluated promptly.
func (c *Context) Unpin() {
	hitZero, wentNegative := c.pins.Unpin()
	if wentNegative && c.logger.IsEnabled(LevelWarn) {
		c.logger.Log(LogEntry{Level: LevelWarn, Category: "pin", Message: "pin count went negative"})
	}
	if hitZero {
		c.wake()
	}
}

// RegisterCloseable registers a leaked-resource handle to be closed during
// shutdown if the module never closes it itself.
func (c *Context) RegisterCloseable(cl Closeable) { c.handles.Register(cl) }

// UnregisterCloseable removes a handle once a module has closed it through
// its own orderly path.
func (c *Context) UnregisterCloseable(cl Closeable) { c.handles.Unregister(cl) }

// SetErrno sets the script-visible errno value.
func (c *Context) SetErrno(v string) {
	c.errnoMu.Lock()
	c.errno = v
	c.errnoMu.Unlock()
}

// ClearErrno clears the script-visible errno value.
func (c *Context) ClearErrno() { c.SetErrno("") }

// Errno returns the current script-visible errno value.
func (c *Context) Errno() string {
	c.errnoMu.RLock()
	defer c.errnoMu.RUnlock()
	return c.errno
}

// Require resolves a public module by name.
func (c *Context) Require(name string) (ScriptValue, bool) { return c.registry.Module(name) }

// RequireInternal resolves an internal module by name.
func (c *Context) RequireInternal(name string) (ScriptValue, bool) {
	return c.registry.InternalModule(name)
}

// TranslatePath maps a script-visible virtual path to a physical path.
func (c *Context) TranslatePath(virtual string) (string, error) {
	return c.pathTranslate.Translate(virtual)
}

// ReverseTranslatePath maps a physical path back to its virtual form.
func (c *Context) ReverseTranslatePath(physical string) (string, error) {
	return c.pathTranslate.ReverseTranslate(physical)
}

// Selector returns the Context's I/O multiplexer.
func (c *Context) Selector() selector.Selector { return c.sel }

// AsyncPool returns the bounded, caller-runs worker pool (spec §4.9).
func (c *Context) AsyncPool() *workpool.Bounded { return c.asyncPool }

// UnboundedPool returns the cached, thread-per-task worker pool.
func (c *Context) UnboundedPool() *workpool.Unbounded { return c.unboundedPool }

// Metrics returns the Context's runtime counters.
func (c *Context) Metrics() *Metrics { return c.metrics }

// Cancel marks the Context's submission future as cancelled; the loop
// observes this at the top of its next iteration (spec §4.1 step 1). It
// also wakes the selector so a currently-blocked loop notices promptly.
func (c *Context) Cancel() {
	c.future.Cancel()
	c.wake()
}

// Logger returns the Context's structured logger.
func (c *Context) Logger() Logger { return c.logger }

// SetScope records the script global scope handle, constructed by the
// interpreter binding once globals are installed. Task Activities receive
// this value when dispatched (spec §3's Runtime context "script global
// scope" field).
func (c *Context) SetScope(scope ScriptValue) { c.scope.Store(scopeBox{scope}) }

// Scope returns the script global scope handle, or nil if SetScope has
// not yet been called.
func (c *Context) Scope() ScriptValue {
	v := c.scope.Load()
	if v == nil {
		return nil
	}
	return v.(scopeBox).v
}

// scopeBox lets a nil ScriptValue round-trip through atomic.Value, which
// otherwise rejects storing a nil interface after a non-nil one.
type scopeBox struct{ v ScriptValue }

// SetCleanupHook registers the filesystem (or other module-owned) cleanup
// callback invoked once during the shutdown sequence, before open handles
// are drained (spec §4.11), grounded on the original's
// AbstractFilesystem.cleanup() call inside closeCloseables.
func (c *Context) SetCleanupHook(fn func() error) { c.cleanup = fn }

// Handles exposes the OpenHandles registry directly, for the shutdown
// sequence in loop.go.
func (c *Context) Handles() *OpenHandles { return c.handles }

// Wait blocks until the loop has produced its terminal [Status]. Calling
// it before [Loop.Run] has started, or more than once, is safe: the
// channel is buffered by one and never closed, so a second Wait call
// after the first has already drained it blocks forever — callers that
// need the Status more than once should store the first result.
func (c *Context) Wait() Status { return <-c.exitCh }
