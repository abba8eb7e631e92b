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

// NewConnectionFunc receives an accepted connection's fd and peer address.
type NewConnectionFunc func(connFD int, peerAddr InetAddress)

// Acceptor wraps the listening socket's Channel. It lives on the base loop
// and fires newConnectionCallback for every accepted connection.
type Acceptor struct {
	loop       *EventLoop
	logger     Logger
	socket     *Socket
	channel    *Channel
	listening  bool

	// idleFD is a reserved, otherwise-unused descriptor. When accept4 fails
	// with EMFILE, it is closed, freeing one fd slot so the pending
	// connection can be accepted and then immediately dropped, which stops
	// epoll from busy-looping on a listening socket stuck at readable
	// (spec.md §9: "production implementations should reserve an idle fd").
	idleFD int

	newConnectionCallback NewConnectionFunc
}

// NewAcceptor builds the listening socket, binds it, and wires its Channel's
// read callback, without starting to listen.
func NewAcceptor(loop *EventLoop, listenAddr InetAddress, reusePort bool, logger Logger) (*Acceptor, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	sock, err := NewNonblockingSocket()
	if err != nil {
		logger.Fatalf("reactor: Acceptor: %v", err)
		return nil, err
	}
	if err := sock.SetReuseAddr(true); err != nil {
		logger.Fatalf("reactor: Acceptor SetReuseAddr: %v", err)
	}
	if err := sock.SetReusePort(reusePort); err != nil {
		logger.Fatalf("reactor: Acceptor SetReusePort: %v", err)
	}
	if err := sock.Bind(listenAddr); err != nil {
		logger.Fatalf("reactor: Acceptor Bind: %v", err)
		return nil, err
	}

	idleFD, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		idleFD = -1
	}

	a := &Acceptor{
		loop:    loop,
		logger:  logger,
		socket:  sock,
		channel: NewChannel(loop, sock.FD()),
		idleFD:  idleFD,
	}
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// SetNewConnectionCallback installs the callback fired for each accept.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionFunc) {
	a.newConnectionCallback = cb
}

// Listening reports whether Listen has been called.
func (a *Acceptor) Listening() bool { return a.listening }

// Listen marks the socket passive and begins monitoring it for readability.
// Must run on the base loop.
func (a *Acceptor) Listen() {
	a.listening = true
	if err := a.socket.Listen(); err != nil {
		a.logger.Fatalf("reactor: Acceptor.Listen: %v", err)
		return
	}
	a.channel.EnableReading()
}

// Close detaches the Channel and releases the reserved idle fd.
func (a *Acceptor) Close() {
	a.channel.DisableAll()
	a.channel.Remove()
	if a.idleFD >= 0 {
		_ = unix.Close(a.idleFD)
	}
	_ = a.socket.Close()
}

func (a *Acceptor) handleRead(_ Timestamp) {
	connFD, peerAddr, err := a.socket.Accept()
	if err == nil {
		if a.newConnectionCallback != nil {
			a.newConnectionCallback(connFD, peerAddr)
		} else {
			_ = unix.Close(connFD)
		}
		return
	}

	a.logger.Errorf("reactor: Acceptor accept: %v", err)
	if err == unix.EMFILE && a.idleFD >= 0 {
		_ = unix.Close(a.idleFD)
		a.idleFD = -1
		fd, _, acceptErr := a.socket.Accept()
		if acceptErr == nil {
			_ = unix.Close(fd)
		}
		a.idleFD, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	}
}
