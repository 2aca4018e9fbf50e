//go:build linux

package selector

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDLimit bounds the dynamic growth of the registration slice, matching
// the teacher's FastPoller sizing.
const maxFDLimit = 100000000

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// epollSelector implements Selector over epoll, with an eventfd used for
// Wake, grounded on the teacher's poller_linux.go + wakeup_linux.go pair.
type epollSelector struct {
	epfd     int
	wakeFD   int
	eventBuf [256]unix.EpollEvent

	fdMu sync.RWMutex
	fds  []fdInfo

	waking atomic.Bool
	closed atomic.Bool
}

func newPlatformSelector() (Selector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	s := &epollSelector{epfd: epfd, wakeFD: wakeFD, fds: make([]fdInfo, 1024)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFD)
		return nil, err
	}
	return s, nil
}

func (s *epollSelector) Register(fd int, events IOEvents, cb IOCallback) error {
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
	s.fdMu.Unlock()

	err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
	if err != nil {
		s.fdMu.Lock()
		s.fds[fd] = fdInfo{}
		s.fdMu.Unlock()
		return err
	}
	return nil
}

func (s *epollSelector) Unregister(fd int) error {
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
	s.fds[fd] = fdInfo{}
	s.fdMu.Unlock()
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (s *epollSelector) Modify(fd int, events IOEvents) error {
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
	s.fds[fd].events = events
	s.fdMu.Unlock()
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	})
}

func (s *epollSelector) Poll(timeoutMs int) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n, err := unix.EpollWait(s.epfd, s.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		fd := int(s.eventBuf[i].Fd)
		if fd == s.wakeFD {
			s.drainWake()
			continue
		}
		s.fdMu.RLock()
		var info fdInfo
		if fd >= 0 && fd < len(s.fds) {
			info = s.fds[fd]
		}
		s.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(epollToEvents(s.eventBuf[i].Events))
			dispatched++
		}
	}
	return dispatched, nil
}

func (s *epollSelector) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(s.wakeFD, buf[:])
		if err != nil {
			break
		}
	}
	s.waking.Store(false)
}

// Wake is idempotent: concurrent callers racing to set waking only one of
// them actually writes to the eventfd, but every Poll still observes
// readiness since the eventfd counter accumulates until drained.
func (s *epollSelector) Wake() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.waking.CompareAndSwap(false, true) {
		return nil
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(s.wakeFD, buf[:])
	return err
}

func (s *epollSelector) Close() error {
	s.closed.Store(true)
	_ = unix.Close(s.wakeFD)
	return unix.Close(s.epfd)
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
