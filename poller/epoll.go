//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// epollPoller is an epoll-based Pollset. Level-triggered (no EPOLLET) is
// used throughout, matching the original engine's preference for
// reliability over the extra bookkeeping edge-triggering demands.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
	// userdata is keyed by fd since EpollEvent exposes its 64 bits of
	// opaque data only as the int32 Fd and Pad fields, and we want plain
	// int userdata for connection-slot ids.
	userdata map[int]int
}

// NewPoller creates a new Linux epoll-backed Pollset.
func NewPoller() (Pollset, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, 1024),
		userdata: make(map[int]int, 1024),
	}, nil
}

func toEpollEvents(events Event) uint32 {
	var e uint32
	if events&Readable != 0 {
		e |= unix.EPOLLIN
	}
	if events&Writable != 0 {
		e |= unix.EPOLLOUT
	}
	// Always watch for peer shutdown so callers see Hangup promptly.
	e |= unix.EPOLLRDHUP
	return e
}

func fromEpollEvents(e uint32) Event {
	var ev Event
	if e&unix.EPOLLIN != 0 {
		ev |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		ev |= Writable
	}
	if e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		ev |= Hangup
	}
	if e&unix.EPOLLERR != 0 {
		ev |= Err
	}
	return ev
}

func (p *epollPoller) Add(fd int, userdata int, events Event) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.userdata[fd] = userdata
	return nil
}

func (p *epollPoller) Modify(fd int, events Event) error {
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	delete(p.userdata, fd)
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(timeoutMS int) ([]Readiness, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Readiness, 0, n)
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		ud, ok := p.userdata[fd]
		if !ok {
			continue
		}
		revents := fromEpollEvents(p.events[i].Events)
		if revents == 0 {
			revents = Invalid
		}
		out = append(out, Readiness{Userdata: ud, Revents: revents})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
