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

// Socket exclusively owns one file descriptor and closes it on Close.
type Socket struct {
	fd int
}

// NewNonblockingSocket creates a non-blocking, close-on-exec TCP/IPv4 socket.
func NewNonblockingSocket() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("reactor: socket create: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// NewSocket wraps an already-open fd (used for accepted connections).
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// FD returns the underlying descriptor.
func (s *Socket) FD() int {
	return s.fd
}

// Close closes the descriptor. Safe to call once.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// Bind binds the socket to a local address. Fatal by contract (§7): callers
// should treat a non-nil error as unrecoverable setup failure.
func (s *Socket) Bind(addr InetAddress) error {
	sa, err := addr.sockaddr()
	if err != nil {
		return err
	}
	if err := unix.Bind(s.fd, sa); err != nil {
		return fmt.Errorf("reactor: bind %s: %w", addr.ToIPPort(), err)
	}
	return nil
}

// Listen marks the socket as a passive listening socket.
func (s *Socket) Listen() error {
	if err := unix.Listen(s.fd, 1024); err != nil {
		return fmt.Errorf("reactor: listen: %w", err)
	}
	return nil
}

// Accept accepts one pending connection, non-blocking, close-on-exec.
func (s *Socket) Accept() (connFD int, peer InetAddress, err error) {
	nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, InetAddress{}, err
	}
	return nfd, inetAddressFromSockaddr(sa), nil
}

// ShutdownWrite half-closes the write side of the connection.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// SetReuseAddr sets/clears SO_REUSEADDR.
func (s *Socket) SetReuseAddr(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

// SetReusePort sets/clears SO_REUSEPORT.
func (s *Socket) SetReusePort(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

// SetKeepAlive sets/clears SO_KEEPALIVE.
func (s *Socket) SetKeepAlive(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

// SetTCPNoDelay sets/clears TCP_NODELAY.
func (s *Socket) SetTCPNoDelay(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
