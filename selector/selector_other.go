//go:build !linux && !darwin

package selector

import (
	"sync"
	"time"
)

// portableSelector is a lowest-common-denominator Selector for platforms
// without a native epoll/kqueue binding in this tree (e.g. Windows, where
// the teacher instead drives an IOCP via PostQueuedCompletionStatus — not
// reproduced here since corert has no Windows-specific I/O source to
// multiplex against). It tracks registrations but never itself discovers
// readiness; a host on such a platform is expected to be timer/tick-only,
// relying on Wake for cross-thread notification.
type portableSelector struct {
	mu   sync.Mutex
	fds  map[int]struct {
		events IOEvents
		cb     IOCallback
	}
	wake   chan struct{}
	closed bool
}

func newPlatformSelector() (Selector, error) {
	return &portableSelector{
		fds: make(map[int]struct {
			events IOEvents
			cb     IOCallback
		}),
		wake: make(chan struct{}, 1),
	}, nil
}

func (s *portableSelector) Register(fd int, events IOEvents, cb IOCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if _, ok := s.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	s.fds[fd] = struct {
		events IOEvents
		cb     IOCallback
	}{events, cb}
	return nil
}

func (s *portableSelector) Unregister(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(s.fds, fd)
	return nil
}

func (s *portableSelector) Modify(fd int, events IOEvents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	entry, ok := s.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	entry.events = events
	s.fds[fd] = entry
	return nil
}

// Poll blocks until timeoutMs elapses or Wake is called; it never reports
// descriptor readiness on its own.
func (s *portableSelector) Poll(timeoutMs int) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.mu.Unlock()

	if timeoutMs < 0 {
		<-s.wake
		return 0, nil
	}
	select {
	case <-s.wake:
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
	}
	return 0, nil
}

func (s *portableSelector) Wake() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *portableSelector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
