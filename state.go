package corert

import "sync/atomic"

// LoopState is the lifecycle state of a [Loop], adapted from the teacher's
// FastState machine and narrowed to the transitions spec §4.1/§4.11 needs.
//
//	StateAwake (0) -> StateRunning (3)       [Run]
//	StateRunning (3) -> StateSleeping (2)    [selector poll, CAS]
//	StateSleeping (2) -> StateRunning (3)    [poll wake, CAS]
//	StateRunning/StateSleeping -> StateTerminating (4) [Shutdown]
//	StateTerminating (4) -> StateTerminated (1)
//
// Values are not sequential; StateTerminated and StateSleeping keep the
// numbering the original assigns them, which is otherwise arbitrary but
// kept since nothing depends on it being tidy.
type LoopState uint64

const (
	StateAwake       LoopState = 0
	StateTerminated  LoopState = 1
	StateSleeping    LoopState = 2
	StateRunning     LoopState = 3
	StateTerminating LoopState = 4
)

func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// runState is a lock-free state machine guarding Loop.Run reentrancy and
// the shutdown handshake. Unlike the teacher's FastState it carries no
// cache-line padding — corert's loop is single-goroutine-driven, so this
// word is never a contention point the way a multi-producer counter would
// be.
type runState struct {
	v atomic.Uint64
}

func newRunState() *runState {
	s := &runState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *runState) Load() LoopState { return LoopState(s.v.Load()) }

func (s *runState) Store(state LoopState) { s.v.Store(uint64(state)) }

func (s *runState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *runState) IsTerminal() bool { return s.Load() == StateTerminated }

// CanAcceptWork reports whether producers may still enqueue Activities.
// Once shutdown begins (StateTerminating) new work is rejected with
// [ErrContextTerminated].
func (s *runState) CanAcceptWork() bool {
	switch s.Load() {
	case StateAwake, StateRunning, StateSleeping:
		return true
	default:
		return false
	}
}
