package corert

import "sync"

// chunkSize is the number of Activities per node in the queue's chunked
// linked list; this amortizes allocation the way the teacher's
// ChunkedIngress does, without the lock-free bookkeeping that structure
// needs to be safe for concurrent Pop — here Pop only ever happens on the
// loop goroutine, so one mutex shared by Push and Pop is sufficient.
const chunkSize = 128

type tickChunk struct {
	items   [chunkSize]*Activity
	next    *tickChunk
	readPos int
	pos     int
}

// TickQueue is the multi-producer / single-consumer FIFO of ready-to-run
// Activities described in spec §4.2. Observable order is enqueue order; it
// is never re-sorted. Push is safe from any goroutine; Pop must only be
// called from the loop goroutine.
type TickQueue struct {
	mu     sync.Mutex
	head   *tickChunk
	tail   *tickChunk
	length int
}

// NewTickQueue creates an empty TickQueue.
func NewTickQueue() *TickQueue {
	return &TickQueue{}
}

// Push enqueues an Activity. The caller is responsible for waking the
// selector afterward (spec §4.2, §5): TickQueue itself does not know about
// the selector, keeping the two concerns independently testable.
func (q *TickQueue) Push(a *Activity) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tail == nil {
		q.tail = &tickChunk{}
		q.head = q.tail
	}
	if q.tail.pos == chunkSize {
		next := &tickChunk{}
		q.tail.next = next
		q.tail = next
	}
	q.tail.items[q.tail.pos] = a
	q.tail.pos++
	q.length++
}

// Pop removes and returns the oldest Activity, or (nil, false) if empty.
// Must only be called from the loop goroutine.
func (q *TickQueue) Pop() (*Activity, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == nil || q.head.readPos >= q.head.pos {
		if q.head != nil && q.head == q.tail {
			// Reset an exhausted single chunk for reuse instead of
			// discarding it, matching the teacher's ChunkedIngress.
			q.head.pos = 0
			q.head.readPos = 0
		}
		return nil, false
	}

	a := q.head.items[q.head.readPos]
	q.head.items[q.head.readPos] = nil
	q.head.readPos++
	q.length--

	if q.head.readPos >= q.head.pos && q.head != q.tail {
		q.head = q.head.next
	}
	return a, true
}

// Len returns the current queue length. Safe from any goroutine; may be
// stale by the time the caller acts on it if other producers are active
// concurrently.
func (q *TickQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// Empty reports whether the queue currently has no entries.
func (q *TickQueue) Empty() bool { return q.Len() == 0 }
