//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package poller

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller is a kqueue-based Pollset for BSD-family kernels.
type kqueuePoller struct {
	kqfd     int
	events   []unix.Kevent_t
	userdata map[int]int
}

// NewPoller creates a new kqueue-backed Pollset.
func NewPoller() (Pollset, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kqfd:     kqfd,
		events:   make([]unix.Kevent_t, 1024),
		userdata: make(map[int]int, 1024),
	}, nil
}

func (p *kqueuePoller) changeEvents(fd int, events Event, flags uint16) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if events&Readable != 0 || flags&unix.EV_DELETE != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags,
		})
	}
	if events&Writable != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags,
		})
	}
	return changes
}

func (p *kqueuePoller) Add(fd int, userdata int, events Event) error {
	changes := p.changeEvents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if _, err := unix.Kevent(p.kqfd, changes, nil, nil); err != nil {
		return err
	}
	p.userdata[fd] = userdata
	return nil
}

func (p *kqueuePoller) Modify(fd int, events Event) error {
	// Delete both filters then re-add only the requested ones, since
	// kqueue tracks read/write interest as independent filter
	// registrations rather than a single combined mask.
	_, _ = unix.Kevent(p.kqfd, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	changes := p.changeEvents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Remove(fd int) error {
	delete(p.userdata, fd)
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	return err
}

func (p *kqueuePoller) Wait(timeoutMS int) ([]Readiness, error) {
	var ts *unix.Timespec
	if timeoutMS >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMS / 1000),
			Nsec: int64((timeoutMS % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	byFd := make(map[int]Event, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Ident)
		ud, ok := p.userdata[fd]
		if !ok {
			continue
		}
		var ev Event
		switch p.events[i].Filter {
		case unix.EVFILT_READ:
			ev = Readable
		case unix.EVFILT_WRITE:
			ev = Writable
		}
		if p.events[i].Flags&unix.EV_EOF != 0 {
			ev |= Hangup
		}
		if p.events[i].Flags&unix.EV_ERROR != 0 {
			ev |= Err
		}
		if existing, seen := byFd[fd]; seen {
			byFd[fd] = existing | ev
		} else {
			byFd[fd] = ev
			order = append(order, fd)
		}
		_ = ud
	}

	out := make([]Readiness, 0, len(order))
	for _, fd := range order {
		out = append(out, Readiness{Userdata: p.userdata[fd], Revents: byFd[fd]})
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
