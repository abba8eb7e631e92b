//go:build linux
// +build linux

package reactor

import "testing"

func TestInetAddressToIPPort(t *testing.T) {
	addr := NewInetAddressFromHostPort("127.0.0.1", 9000)
	if got, want := addr.ToIPPort(), "127.0.0.1:9000"; got != want {
		t.Errorf("ToIPPort() = %q, want %q", got, want)
	}
}

func TestNewInetAddressLoopback(t *testing.T) {
	addr := NewInetAddress(8080, true)
	if addr.Host != "127.0.0.1" {
		t.Errorf("loopbackOnly address host = %q, want 127.0.0.1", addr.Host)
	}

	wildcard := NewInetAddress(8080, false)
	if wildcard.Host != "0.0.0.0" {
		t.Errorf("wildcard address host = %q, want 0.0.0.0", wildcard.Host)
	}
}

func TestInetAddressSockaddrRoundTrip(t *testing.T) {
	addr := NewInetAddressFromHostPort("10.0.0.1", 1234)
	sa, err := addr.sockaddr()
	if err != nil {
		t.Fatalf("sockaddr() error: %v", err)
	}
	back := inetAddressFromSockaddr(sa)
	if back.Host != addr.Host || back.Port != addr.Port {
		t.Errorf("round trip = %+v, want %+v", back, addr)
	}
}

func TestInetAddressSockaddrRejectsNonIPv4Host(t *testing.T) {
	addr := NewInetAddressFromHostPort("not-a-host.invalid", 80)
	if _, err := addr.sockaddr(); err == nil {
		t.Errorf("expected error resolving unresolvable host")
	}
}
