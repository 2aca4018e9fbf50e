package corert

import "container/heap"

// timerHeap is a min-heap of live timer Activities ordered by
// (timeout, id) — timeout ascending, with the insertion sequence id as a
// tiebreak to guarantee FIFO firing among equal deadlines (spec §3, §8
// invariant 2). It is owned exclusively by the loop goroutine; all
// cross-thread timer insertions are marshalled through the TickQueue (spec
// §4.3) rather than touching this heap directly.
//
// Entries are never mutated in place: a repeating timer is popped,
// executed, and — if still live — re-inserted with a freshly computed
// deadline, per the "never mutate in place" design note.
type timerHeap struct {
	items []*Activity
}

// TimerHeap is the public handle returned to callers that need to know the
// next deadline (e.g. for diagnostics); mutation only ever happens from
// inside Loop.
type TimerHeap struct {
	h timerHeap
}

// NewTimerHeap creates an empty TimerHeap.
func NewTimerHeap() *TimerHeap {
	return &TimerHeap{}
}

// Len returns the number of live (possibly cancelled) entries.
func (t *TimerHeap) Len() int { return t.h.Len() }

// Peek returns the earliest-deadline entry without removing it, or nil if
// empty.
func (t *TimerHeap) Peek() *Activity {
	if len(t.h.items) == 0 {
		return nil
	}
	return t.h.items[0]
}

// Push inserts an Activity, assigning heap position bookkeeping. The
// caller must have already set timeout/id.
func (t *TimerHeap) Push(a *Activity) { heap.Push(&t.h, a) }

// Pop removes and returns the earliest-deadline entry.
func (t *TimerHeap) Pop() *Activity { return heap.Pop(&t.h).(*Activity) }

func (h timerHeap) Len() int { return len(h.items) }

func (h timerHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.timeout != b.timeout {
		return a.timeout < b.timeout
	}
	return a.id < b.id
}

func (h timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIndex = i
	h.items[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	a := x.(*Activity)
	a.heapIndex = len(h.items)
	h.items = append(h.items, a)
}

func (h *timerHeap) Pop() any {
	old := h.items
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	a.heapIndex = -1
	return a
}
