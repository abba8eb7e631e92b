//go:build linux
// +build linux

package reactor

import (
	"io"
	"net"
	"testing"
	"time"
)

// TestTcpServerEcho drives a real loopback connection through Acceptor,
// TcpServer and TcpConnection: whatever bytes a client writes, the message
// callback sends straight back.
func TestTcpServerEcho(t *testing.T) {
	loop, err := NewEventLoop(nil)
	if err != nil {
		t.Fatalf("NewEventLoop() error = %v", err)
	}

	addr := NewInetAddressFromHostPort("127.0.0.1", 18723)
	server, err := NewTcpServer(loop, addr, "echo-test", NoReusePort, nil)
	if err != nil {
		t.Fatalf("NewTcpServer() error = %v", err)
	}
	server.SetThreadNum(0)
	server.SetMessageCallback(func(conn *TcpConnection, input *Buffer, _ Timestamp) {
		conn.Send([]byte(input.RetrieveAllAsString()))
	})

	go loop.Run()
	defer func() {
		loop.Quit()
		time.Sleep(50 * time.Millisecond)
		loop.Close()
	}()

	loop.RunInLoop(server.Start)
	time.Sleep(100 * time.Millisecond) // let Listen land before dialing

	conn, err := net.DialTimeout("tcp", addr.ToIPPort(), time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	want := "hello reactor\n"
	if _, err := conn.Write([]byte(want)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if string(buf) != want {
		t.Fatalf("echoed = %q, want %q", string(buf), want)
	}
}
