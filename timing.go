package corert

import (
	"sync/atomic"
	"time"
)

// timingWindow is the per-Activity watchdog deadline slot described by
// spec §4.8, grounded on the original's ScriptRunner.startTiming /
// endTiming pair. corert itself never inspects the deadline — an
// out-of-band watchdog goroutine (not part of this package; see
// SPEC_FULL.md's ambient-stack notes) would poll Deadline and inject an
// interruption. The slot is a single atomic word so a watchdog on another
// goroutine can read it without synchronizing with the loop goroutine.
type timingWindow struct {
	limit    time.Duration
	deadline atomic.Int64 // unix nanos; 0 means "not currently timing"
}

func newTimingWindow(limit time.Duration) *timingWindow {
	return &timingWindow{limit: limit}
}

// start records deadline = now + limit. A zero limit disables the window
// entirely (start becomes a no-op), matching "no environment-level time
// limit configured" in spec §4.8.
func (t *timingWindow) start(now time.Time) {
	if t.limit <= 0 {
		return
	}
	t.deadline.Store(now.Add(t.limit).UnixNano())
}

// end clears the deadline slot. It is safe to call unconditionally on
// every exit path from a timed script invocation, including from a defer,
// so that the window is guaranteed to be released even if the invocation
// panics.
func (t *timingWindow) end() {
	t.deadline.Store(0)
}

// Deadline reports the current watchdog deadline, or the zero Time if no
// script invocation is currently within a timing window.
func (t *timingWindow) Deadline() time.Time {
	ns := t.deadline.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
