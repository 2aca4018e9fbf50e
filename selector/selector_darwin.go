//go:build darwin

package selector

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const maxFDLimit = 100000000

const wakeIdent = 1

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// kqueueSelector implements Selector over kqueue, using a dedicated
// EVFILT_USER event for Wake instead of the teacher's self-pipe —
// idiomatic on Darwin and avoids a second file descriptor pair.
type kqueueSelector struct {
	kq       int
	eventBuf [256]unix.Kevent_t

	fdMu sync.RWMutex
	fds  []fdInfo

	closed atomic.Bool
}

func newPlatformSelector() (Selector, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	s := &kqueueSelector{kq: kq, fds: make([]fdInfo, 1024)}

	_, err = unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	return s, nil
}

func (s *kqueueSelector) Register(fd int, events IOEvents, cb IOCallback) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return ErrFDOutOfRange
	}

	s.fdMu.Lock()
	if fd >= len(s.fds) {
		newSize := fd*2 + 1
		if newSize > maxFDLimit {
			newSize = maxFDLimit + 1
		}
		grown := make([]fdInfo, newSize)
		copy(grown, s.fds)
		s.fds = grown
	}
	if s.fds[fd].active {
		s.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	s.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	kevs := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	var err error
	if len(kevs) > 0 {
		_, err = unix.Kevent(s.kq, kevs, nil, nil)
	}
	if err != nil {
		s.fds[fd] = fdInfo{}
	}
	s.fdMu.Unlock()
	return err
}

func (s *kqueueSelector) Unregister(fd int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	s.fdMu.Lock()
	if fd >= len(s.fds) || !s.fds[fd].active {
		s.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	events := s.fds[fd].events
	kevs := eventsToKevents(fd, events, unix.EV_DELETE)
	if len(kevs) > 0 {
		_, _ = unix.Kevent(s.kq, kevs, nil, nil)
	}
	s.fds[fd] = fdInfo{}
	s.fdMu.Unlock()
	return nil
}

func (s *kqueueSelector) Modify(fd int, events IOEvents) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	s.fdMu.Lock()
	if fd >= len(s.fds) || !s.fds[fd].active {
		s.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	old := s.fds[fd].events
	s.fds[fd].events = events
	s.fdMu.Unlock()

	if del := old &^ events; del != 0 {
		if kevs := eventsToKevents(fd, del, unix.EV_DELETE); len(kevs) > 0 {
			_, _ = unix.Kevent(s.kq, kevs, nil, nil)
		}
	}
	if add := events &^ old; add != 0 {
		if kevs := eventsToKevents(fd, add, unix.EV_ADD|unix.EV_ENABLE); len(kevs) > 0 {
			if _, err := unix.Kevent(s.kq, kevs, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *kqueueSelector) Poll(timeoutMs int) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1000000,
		}
	}
	n, err := unix.Kevent(s.kq, nil, s.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		kev := &s.eventBuf[i]
		if kev.Filter == unix.EVFILT_USER {
			continue
		}
		fd := int(kev.Ident)
		s.fdMu.RLock()
		var info fdInfo
		if fd >= 0 && fd < len(s.fds) {
			info = s.fds[fd]
		}
		s.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(keventToEvents(kev))
			dispatched++
		}
	}
	return dispatched, nil
}

// Wake triggers the EVFILT_USER event; kqueue coalesces repeated triggers
// of the same ident before they are consumed, giving the idempotent
// semantics Wake promises without any extra bookkeeping.
func (s *kqueueSelector) Wake() error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := unix.Kevent(s.kq, []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return err
}

func (s *kqueueSelector) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return unix.Close(s.kq)
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevs []unix.Kevent_t
	if events&EventRead != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevs
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
