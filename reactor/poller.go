// Copyright 2023 Kami
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	initEventListSize = 16
	maxEventListSize  = 4096 // spec.md §9: growth doubles but never shrinks; cap it.
)

// Poller wraps epoll: register/modify/remove interest in fd events, and
// block for up to a timeout returning the channels with pending events.
//
// Every method must be called from the owning EventLoop's thread; Poller
// itself performs no locking.
type Poller struct {
	epollFD int
	channels map[int]*Channel
	events   []unix.EpollEvent
}

// NewPoller opens the epoll instance backing one EventLoop.
func NewPoller() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Poller{
		epollFD:  fd,
		channels: make(map[int]*Channel),
		events:   make([]unix.EpollEvent, initEventListSize),
	}, nil
}

// Close releases the epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.epollFD)
}

// HasChannel reports whether c is currently tracked by this poller.
func (p *Poller) HasChannel(c *Channel) bool {
	existing, ok := p.channels[c.FD()]
	return ok && existing == c
}

// UpdateChannel registers, modifies, or deregisters c depending on its
// current membership state and interest set (spec.md §4.1).
func (p *Poller) UpdateChannel(c *Channel) error {
	switch c.Index() {
	case indexNew, indexDeleted:
		p.channels[c.FD()] = c
		c.SetIndex(indexAdded)
		return p.ctl(unix.EPOLL_CTL_ADD, c)
	default: // indexAdded
		if c.IsNoneEvent() {
			if err := p.ctl(unix.EPOLL_CTL_DEL, c); err != nil {
				return err
			}
			c.SetIndex(indexDeleted)
			return nil
		}
		return p.ctl(unix.EPOLL_CTL_MOD, c)
	}
}

// RemoveChannel deregisters c entirely.
func (p *Poller) RemoveChannel(c *Channel) error {
	delete(p.channels, c.FD())
	if c.Index() == indexAdded {
		if err := p.ctl(unix.EPOLL_CTL_DEL, c); err != nil {
			c.SetIndex(indexNew)
			return err
		}
	}
	c.SetIndex(indexNew)
	return nil
}

func (p *Poller) ctl(op int, c *Channel) error {
	var ev unix.EpollEvent
	ev.Events = uint32(c.Events())
	ev.Fd = int32(c.FD())
	err := unix.EpollCtl(p.epollFD, op, c.FD(), &ev)
	if err != nil {
		switch op {
		case unix.EPOLL_CTL_DEL:
			// DEL errors are ignored: they are neither returned nor logged.
			return nil
		default:
			return fmt.Errorf("reactor: epoll_ctl(%d, fd=%d): %w", op, c.FD(), err)
		}
	}
	return nil
}

// Poll blocks for up to timeoutMs and appends every ready Channel to out,
// returning the timestamp at which poll returned. If the internal event
// buffer was fully consumed, it's doubled (up to maxEventListSize) before
// the next call.
func (p *Poller) Poll(timeoutMs int, out *[]*Channel) (Timestamp, error) {
	n, err := unix.EpollWait(p.epollFD, p.events, timeoutMs)
	now := Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil // benign zero-event wakeup (spec.md §7)
		}
		return now, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		c, ok := p.channels[fd]
		if !ok {
			continue
		}
		c.SetRevents(int32(p.events[i].Events))
		*out = append(*out, c)
	}
	if n == len(p.events) && len(p.events) < maxEventListSize {
		newSize := len(p.events) * 2
		if newSize > maxEventListSize {
			newSize = maxEventListSize
		}
		p.events = make([]unix.EpollEvent, newSize)
	}
	return now, nil
}
