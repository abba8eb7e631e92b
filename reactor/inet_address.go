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
	"net"

	"golang.org/x/sys/unix"
)

// InetAddress is an IPv4 endpoint.
type InetAddress struct {
	Host string
	Port uint16
}

// NewInetAddress builds a loopback-or-wildcard address for the given port.
func NewInetAddress(port uint16, loopbackOnly bool) InetAddress {
	host := "0.0.0.0"
	if loopbackOnly {
		host = "127.0.0.1"
	}
	return InetAddress{Host: host, Port: port}
}

// NewInetAddressFromHostPort builds an address from an explicit host:port pair.
func NewInetAddressFromHostPort(host string, port uint16) InetAddress {
	return InetAddress{Host: host, Port: port}
}

// ToIPPort renders "host:port".
func (a InetAddress) ToIPPort() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// sockaddr converts the address into the raw kernel representation used by bind/connect.
func (a InetAddress) sockaddr() (*unix.SockaddrInet4, error) {
	ip := net.ParseIP(a.Host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip4", a.Host)
		if err != nil {
			return nil, fmt.Errorf("reactor: resolve %q: %w", a.Host, err)
		}
		ip = resolved.IP
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("reactor: %q is not an IPv4 address", a.Host)
	}
	sa := &unix.SockaddrInet4{Port: int(a.Port)}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

// inetAddressFromSockaddr recovers an InetAddress from a kernel sockaddr, as
// returned by accept4/getsockname.
func inetAddressFromSockaddr(sa unix.Sockaddr) InetAddress {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(v.Addr[:])
		return InetAddress{Host: ip.String(), Port: uint16(v.Port)}
	default:
		return InetAddress{}
	}
}
