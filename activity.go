package corert

import "sync/atomic"

// ActivityKind tags which payload variant an [Activity] carries. Dispatch on
// an Activity switches on Kind rather than using a virtual call, per the
// tagged-variant design note: a common header plus an exhaustive switch
// replaces the source's Activity/Callback/Task/RunnableTask class hierarchy.
type ActivityKind uint8

const (
	// KindCallback wraps a script function, receiver, and arguments to be
	// invoked through the Process object's tick submitter, so that the
	// interpreter's error path and domain stack are exercised.
	KindCallback ActivityKind = iota
	// KindTask wraps an opaque host-language callable given the script
	// scope.
	KindTask
	// KindRunnable wraps a pure host-language callable that does not touch
	// the script scope.
	KindRunnable
)

// CallbackPayload is the Callback Activity variant: a script function, its
// receiver, and arguments, submitted through [Process.SubmitTick] so that
// the interpreter's own error handling and domain stack apply.
type CallbackPayload struct {
	Function ScriptFunction
	This     ScriptValue
	Args     []ScriptValue
}

// TaskPayload is the Task Activity variant: a host-language callable given
// the script scope, run under the domain guard (see [Domain]).
type TaskPayload struct {
	Run func(scope ScriptValue) error
}

// RunnablePayload is the RunnableTask Activity variant: a pure host-language
// callable that never touches the script scope. Its Get/IsDone surface was
// deliberately not carried over from the original's Future-shaped
// RunnableTask (spec §9 open question) — Activity.Cancelled is the only
// completion signal a caller gets.
type RunnablePayload struct {
	Run func() error
}

// Activity is the universal unit of deferred work: a cancellable,
// optionally repeating, deadline-bearing payload executed on the loop
// goroutine.
//
// Invariants (spec §3): an Activity lives in at most one of {TickQueue,
// TimerHeap} at a time; a non-repeating Activity is consumed on execution; a
// repeating Activity is re-inserted after execution with
// timeout = now + interval unless cancelled; cancellation is a monotonic
// latch, never cleared.
type Activity struct { //nolint:govet
	// id is a monotonically assigned sequence number, used as the
	// TimerHeap's equal-deadline tiebreak. The TickQueue does not read it;
	// its order is push order.
	id uint64

	// timeout is the absolute deadline in epoch milliseconds, or zero for
	// an immediate tick (a TickQueue entry rather than a TimerHeap entry).
	timeout int64

	// interval is the repeat interval in milliseconds; zero if non-repeating.
	interval int64

	repeating bool
	cancelled atomic.Bool

	// domain is attached at enqueue time; nil means no domain handling.
	domain Domain

	kind     ActivityKind
	callback CallbackPayload
	task     TaskPayload
	runnable RunnablePayload

	// heapIndex is maintained by the TimerHeap's container/heap
	// implementation; it is meaningless while the Activity sits in the
	// TickQueue.
	heapIndex int
}

// ID returns the Activity's monotonically assigned sequence number.
func (a *Activity) ID() uint64 { return a.id }

// Cancel latches the cancellation flag. It is safe to call from any
// goroutine and at any time: an Activity already dequeued from the
// TickQueue is still executed by the loop but skipped (the payload is not
// invoked and, for a timer, repetition does not occur).
func (a *Activity) Cancel() { a.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (a *Activity) Cancelled() bool { return a.cancelled.Load() }

// Domain returns the domain attached to this Activity, or nil.
func (a *Activity) Domain() Domain { return a.domain }

var activitySequence atomic.Uint64

// nextActivitySequence returns the next globally unique, monotonically
// increasing sequence id, used to break TimerHeap ties.
func nextActivitySequence() uint64 {
	return activitySequence.Add(1)
}
