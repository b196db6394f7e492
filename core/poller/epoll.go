//go:build linux
// +build linux

package poller

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const (
	EventRead       Events = unix.EPOLLIN
	EventWrite      Events = unix.EPOLLOUT
	EventPeerClosed Events = unix.EPOLLRDHUP
	EventHangup     Events = unix.EPOLLHUP
	EventError      Events = unix.EPOLLERR
	EventEdge       Events = unix.EPOLLET
	EventOneShot    Events = unix.EPOLLONESHOT
)

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
	out    []Event
	closed atomic.Bool
}

// NewPoller creates a new Poller able to report up to maxEvents
// notifications per Wait.
func NewPoller(maxEvents int) (*EpollPoller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &EpollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, maxEvents),
		out:    make([]Event, 0, maxEvents),
	}

	if err := p.Add(wakefd, EventRead); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int, events Events) error {
	ev := unix.EpollEvent{Events: uint32(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify changes the interest set of a registered descriptor
func (p *EpollPoller) Modify(fd int, events Events) error {
	ev := unix.EpollEvent{Events: uint32(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove removes a file descriptor from the watch list
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events. The returned slice is reused by the next
// call and must only be read by the goroutine that called Wait.
func (p *EpollPoller) Wait(timeout int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	p.out = p.out[:0]
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		p.out = append(p.out, Event{Fd: fd, Events: Events(p.events[i].Events)})
	}

	return p.out, nil
}

// Wake interrupts a blocked Wait
func (p *EpollPoller) Wake() error {
	if p.closed.Load() {
		return nil
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake-up is already pending
		return nil
	}
	return err
}

func (p *EpollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
