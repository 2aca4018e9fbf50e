package corert

import "sync/atomic"

// PinCounter is a shared, wait-free non-negative integer. Each increment
// (Pin) marks one external reason to keep the loop alive regardless of
// queue contents (e.g. a listening socket); Unpin decrements and, on
// transition to zero, asks the caller to wake the selector so termination
// can be re-evaluated promptly (spec §4.5).
type PinCounter struct {
	n atomic.Int64
}

// Pin increments the counter.
func (p *PinCounter) Pin() { p.n.Add(1) }

// Unpin decrements the counter and reports whether the decrement
// transitioned the count to exactly zero (the caller should wake the
// selector in that case). A negative resulting count is a programming
// error — reported via wentNegative so the caller can log it — but is not
// itself fatal, matching the original's "log but don't fail" policy.
func (p *PinCounter) Unpin() (hitZero bool, wentNegative bool) {
	v := p.n.Add(-1)
	return v == 0, v < 0
}

// Load returns the current count.
func (p *PinCounter) Load() int64 { return p.n.Load() }
