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
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// pollTimeoutMs is the Poller's blocking timeout, per spec.md §4.3.
const pollTimeoutMs = 10_000

// Functor is a task queued onto an EventLoop from another thread, or run
// inline when already on the loop's thread.
type Functor func()

// EventLoop owns one Poller and one wakeup descriptor, and runs the reactor
// loop on a single goroutine that is pinned to one OS thread for its entire
// lifetime via runtime.LockOSThread. Thread affinity is then enforced the
// same way muduo's CurrentThread::Tid() does it: by comparing the calling
// goroutine's OS thread id (gettid) against the id recorded when Run
// started — a goroutine locked to an OS thread can never share that thread
// with any other goroutine, so the comparison is race-free.
type EventLoop struct {
	poller *Poller

	ownerTID int // gettid() of the goroutine running Run; 0 until started

	looping                atomic.Bool
	quit                   atomic.Bool
	callingPendingFunctors atomic.Bool

	wakeupFD      int
	wakeupChannel *Channel

	mu              sync.Mutex
	pendingFunctors []Functor

	activeChannels []*Channel

	logger Logger
}

// NewEventLoop constructs an EventLoop. It must be started by calling Run
// from the goroutine that will own it, and that goroutine must not exit
// until Run returns.
func NewEventLoop(logger Logger) (*EventLoop, error) {
	poller, err := NewPoller()
	if err != nil {
		return nil, err
	}
	wakeupFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = poller.Close()
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	if logger == nil {
		logger = NopLogger{}
	}
	loop := &EventLoop{
		poller:   poller,
		wakeupFD: wakeupFD,
		logger:   logger,
	}
	loop.wakeupChannel = NewChannel(loop, wakeupFD)
	return loop, nil
}

// assertInLoopGoroutine is the thread-affinity assertion called by every
// method that mutates per-loop state (spec.md §9).
func (l *EventLoop) assertInLoopGoroutine() {
	if !l.IsInLoopGoroutine() {
		l.logger.Fatalf("reactor: EventLoop used from a non-owning thread (owner tid=%d)", l.ownerTID)
	}
}

// IsInLoopGoroutine reports whether the caller is running on this loop's
// owning OS thread.
func (l *EventLoop) IsInLoopGoroutine() bool {
	return l.ownerTID != 0 && unix.Gettid() == l.ownerTID
}

// IsLooping reports whether Run is currently executing the poll loop.
func (l *EventLoop) IsLooping() bool { return l.looping.Load() }

// PendingFunctorCount returns the number of functors currently queued,
// waiting for the next iteration's doPendingFunctors drain.
func (l *EventLoop) PendingFunctorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingFunctors)
}

// Run locks the calling goroutine to its current OS thread, binds this loop
// to it, and runs the reactor loop until Quit is observed. Run must be
// called exactly once, and never concurrently with another EventLoop's Run
// on the same goroutine (spec.md: "at most one EventLoop per OS thread").
func (l *EventLoop) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.ownerTID = unix.Gettid()
	l.wakeupChannel.SetReadCallback(l.handleWakeupRead)
	l.wakeupChannel.EnableReading()

	l.looping.Store(true)
	l.quit.Store(false)
	l.logger.Infof("EventLoop %p start looping", l)

	for !l.quit.Load() {
		l.activeChannels = l.activeChannels[:0]
		_, err := l.poller.Poll(pollTimeoutMs, &l.activeChannels)
		if err != nil {
			l.logger.Errorf("reactor: poll: %v", err)
			continue
		}
		for _, c := range l.activeChannels {
			c.HandleEvent(Now())
		}
		l.doPendingFunctors()
	}

	l.logger.Infof("EventLoop %p stop looping", l)
	l.looping.Store(false)
}

// Quit requests the loop to stop at its next iteration. Safe from any
// goroutine; wakes the loop promptly if called from elsewhere.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsInLoopGoroutine() {
		l.wakeup()
	}
}

// RunInLoop runs fn on this loop's thread: inline if already there,
// otherwise queued and the loop woken.
func (l *EventLoop) RunInLoop(fn Functor) {
	if l.IsInLoopGoroutine() {
		fn()
		return
	}
	l.QueueInLoop(fn)
}

// QueueInLoop appends fn to the pending-functor queue and wakes the loop if
// the caller isn't the owner, or if the owner is itself mid-drain (so a
// functor that re-enqueues further work still gets a prompt re-wake —
// spec.md §4.3/§9).
func (l *EventLoop) QueueInLoop(fn Functor) {
	l.mu.Lock()
	l.pendingFunctors = append(l.pendingFunctors, fn)
	l.mu.Unlock()

	if !l.IsInLoopGoroutine() || l.callingPendingFunctors.Load() {
		l.wakeup()
	}
}

// doPendingFunctors swaps the pending slice under lock, bounding the
// critical section to just the swap, then runs each functor without holding
// the lock — this is what makes it safe for a functor to call QueueInLoop
// again without deadlocking.
func (l *EventLoop) doPendingFunctors() {
	l.callingPendingFunctors.Store(true)
	defer l.callingPendingFunctors.Store(false)

	l.mu.Lock()
	functors := l.pendingFunctors
	l.pendingFunctors = nil
	l.mu.Unlock()

	for _, fn := range functors {
		fn()
	}
}

func (l *EventLoop) wakeup() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(l.wakeupFD, buf[:]); err != nil {
		l.logger.Errorf("reactor: EventLoop.wakeup: %v", err)
	}
}

func (l *EventLoop) handleWakeupRead(_ Timestamp) {
	var buf [8]byte
	if _, err := unix.Read(l.wakeupFD, buf[:]); err != nil {
		l.logger.Errorf("reactor: EventLoop.handleWakeupRead: %v", err)
	}
}

func (l *EventLoop) updateChannel(c *Channel) {
	l.assertInLoopGoroutine()
	if err := l.poller.UpdateChannel(c); err != nil {
		l.logger.Fatalf("reactor: UpdateChannel: %v", err)
	}
}

func (l *EventLoop) removeChannel(c *Channel) {
	l.assertInLoopGoroutine()
	if err := l.poller.RemoveChannel(c); err != nil {
		l.logger.Errorf("reactor: RemoveChannel: %v", err)
	}
}

// HasChannel reports whether c is registered with this loop's poller.
func (l *EventLoop) HasChannel(c *Channel) bool {
	l.assertInLoopGoroutine()
	return l.poller.HasChannel(c)
}

// Close releases the wakeup descriptor and the poller. Call after Run
// returns.
func (l *EventLoop) Close() error {
	l.wakeupChannel.DisableAll()
	l.wakeupChannel.Remove()
	_ = unix.Close(l.wakeupFD)
	return l.poller.Close()
}
