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
	"golang.org/x/sys/unix"
)

// event bitmasks, matching epoll's.
const (
	noneEvent  = 0
	readEvent  = unix.EPOLLIN | unix.EPOLLPRI
	writeEvent = unix.EPOLLOUT
)

// pollerIndex records a Channel's membership state inside the Poller.
type pollerIndex int

const (
	indexNew pollerIndex = iota
	indexAdded
	indexDeleted
)

// ReadEventFunc is invoked on readability with the poll-return timestamp.
type ReadEventFunc func(receiveTime Timestamp)

// EventFunc is invoked for write/close/error events.
type EventFunc func()

// Channel pairs one borrowed fd with its interest set and event callbacks.
// A Channel is exclusively owned and mutated by its owning EventLoop's
// thread; every mutating method funnels through update(), which hands off
// to the loop.
type Channel struct {
	loop   *EventLoop
	fd     int
	events int32
	revents int32
	index  pollerIndex

	readCallback  ReadEventFunc
	writeCallback EventFunc
	closeCallback EventFunc
	errorCallback EventFunc

	tied  bool
	alive func() bool // liveness probe standing in for weak_ptr::lock
}

// NewChannel creates a Channel for fd, owned by loop.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: indexNew}
}

// FD returns the borrowed descriptor.
func (c *Channel) FD() int { return c.fd }

// Events returns the current interest set.
func (c *Channel) Events() int32 { return c.events }

// SetRevents records the last-observed event set; called only by the Poller.
func (c *Channel) SetRevents(revents int32) { c.revents = revents }

// Index returns the Poller membership state.
func (c *Channel) Index() pollerIndex { return c.index }

// SetIndex sets the Poller membership state; called only by the Poller.
func (c *Channel) SetIndex(idx pollerIndex) { c.index = idx }

// OwnerLoop returns the loop this Channel is bound to.
func (c *Channel) OwnerLoop() *EventLoop { return c.loop }

func (c *Channel) SetReadCallback(fn ReadEventFunc) { c.readCallback = fn }
func (c *Channel) SetWriteCallback(fn EventFunc)    { c.writeCallback = fn }
func (c *Channel) SetCloseCallback(fn EventFunc)    { c.closeCallback = fn }
func (c *Channel) SetErrorCallback(fn EventFunc)    { c.errorCallback = fn }

// Tie binds a liveness probe: dispatch only proceeds while alive() is true.
// This is the Go analogue of tying a Channel to a std::weak_ptr: Go has no
// weak pointers, so the higher-level owner hands us a closure reporting its
// own liveness instead of a promotable weak reference.
func (c *Channel) Tie(alive func() bool) {
	c.alive = alive
	c.tied = true
}

func (c *Channel) EnableReading() {
	c.events |= readEvent
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= readEvent
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= writeEvent
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= writeEvent
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = noneEvent
	c.update()
}

func (c *Channel) IsNoneEvent() bool  { return c.events == noneEvent }
func (c *Channel) IsWriting() bool    { return c.events&writeEvent != 0 }
func (c *Channel) IsReading() bool    { return c.events&readEvent != 0 }

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// Remove detaches the Channel from its owning loop's Poller. Must run on the
// owning loop's thread.
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// HandleEvent dispatches the last-observed event set to the right callback,
// in close > error > read > write priority order (spec.md §4.2).
func (c *Channel) HandleEvent(receiveTime Timestamp) {
	if c.tied {
		if c.alive == nil || !c.alive() {
			return
		}
	}
	c.handleEventWithGuard(receiveTime)
}

// handleEventWithGuard applies the fixed priority order from spec.md §4.2:
// close > error > read > write. Only the highest-priority matching case
// dispatches per call.
func (c *Channel) handleEventWithGuard(receiveTime Timestamp) {
	switch {
	case c.revents&unix.EPOLLHUP != 0 && c.revents&unix.EPOLLIN == 0:
		if c.closeCallback != nil {
			c.closeCallback()
		}
	case c.revents&unix.EPOLLERR != 0:
		if c.errorCallback != nil {
			c.errorCallback()
		}
	case c.revents&(unix.EPOLLIN|unix.EPOLLPRI) != 0:
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	case c.revents&unix.EPOLLOUT != 0:
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
