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
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// connState is a TcpConnection's position in its state machine (spec.md §4.7).
type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

// highWaterMarkDefault is the default output-buffer watermark, 64 MiB.
const highWaterMarkDefault = 64 * 1024 * 1024

// TcpConnection is a per-connection state machine: exactly one Socket, one
// Channel, and bidirectional Buffers, bound to the EventLoop that accepted
// it. Every method that touches its Channel, Socket, or buffers must run on
// that owning loop.
type TcpConnection struct {
	loop *EventLoop

	name       string
	state      atomic.Int32
	reading    bool

	socket  *Socket
	channel *Channel

	localAddr InetAddress
	peerAddr  InetAddress

	connectionCallback    ConnectionFunc
	messageCallback       MessageFunc
	writeCompleteCallback WriteCompleteFunc
	highWaterMarkCallback HighWaterMarkFunc
	highWaterMark         int
	closeCallback         closeFunc

	inputBuffer  *Buffer
	outputBuffer *Buffer

	logger Logger

	closed atomic.Bool // backs the Channel tie's liveness probe
}

// NewTcpConnection constructs a connection wrapping connFD, owned by loop.
func NewTcpConnection(loop *EventLoop, name string, connFD int, localAddr, peerAddr InetAddress, logger Logger) *TcpConnection {
	if logger == nil {
		logger = NopLogger{}
	}
	c := &TcpConnection{
		loop:          loop,
		name:          name,
		socket:        NewSocket(connFD),
		channel:       NewChannel(loop, connFD),
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		highWaterMark: highWaterMarkDefault,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		logger:        logger,
		reading:       true,
	}
	c.state.Store(int32(stateConnecting))

	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)

	logger.Infof("TcpConnection ctor[%s] at fd=%d", name, connFD)
	_ = c.socket.SetKeepAlive(true)
	return c
}

// Name returns the connection's registry key.
func (c *TcpConnection) Name() string { return c.name }

// Loop returns the owning EventLoop.
func (c *TcpConnection) Loop() *EventLoop { return c.loop }

// LocalAddr returns this end's address.
func (c *TcpConnection) LocalAddr() InetAddress { return c.localAddr }

// PeerAddr returns the remote end's address.
func (c *TcpConnection) PeerAddr() InetAddress { return c.peerAddr }

// IsConnected reports whether the connection is in the Connected state.
func (c *TcpConnection) IsConnected() bool {
	return connState(c.state.Load()) == stateConnected
}

func (c *TcpConnection) SetConnectionCallback(cb ConnectionFunc)       { c.connectionCallback = cb }
func (c *TcpConnection) SetMessageCallback(cb MessageFunc)             { c.messageCallback = cb }
func (c *TcpConnection) SetWriteCompleteCallback(cb WriteCompleteFunc) { c.writeCompleteCallback = cb }

// SetHighWaterMarkCallback installs the back-pressure callback and its
// threshold.
func (c *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkFunc, highWaterMark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = highWaterMark
}

func (c *TcpConnection) setCloseCallback(cb closeFunc) { c.closeCallback = cb }

// ConnectEstablished ties the Channel to this connection's liveness, enables
// reading, and fires the user connection callback. Must run on the owning
// loop.
func (c *TcpConnection) ConnectEstablished() {
	c.loop.assertInLoopGoroutine()
	c.state.Store(int32(stateConnected))
	c.channel.Tie(func() bool { return !c.closed.Load() })
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// ConnectDestroyed is the terminal teardown: if still Connected, transitions
// to Disconnected and fires the connection callback one last time (idempotent
// with handleClose's own transition), then removes the Channel from the
// Poller. Must run on the owning loop.
func (c *TcpConnection) ConnectDestroyed() {
	c.loop.assertInLoopGoroutine()
	if connState(c.state.Load()) == stateConnected {
		c.state.Store(int32(stateDisconnected))
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.closed.Store(true)
	c.channel.Remove()
	_ = c.socket.Close()
}

func (c *TcpConnection) handleRead(receiveTime Timestamp) {
	n, err := c.inputBuffer.ReadFd(c.channel.FD())
	switch {
	case err == nil && n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0:
		c.handleClose()
	default:
		c.logger.Errorf("TcpConnection handleRead[%s]: %v", c.name, err)
		c.handleError()
	}
}

func (c *TcpConnection) handleWrite() {
	if !c.channel.IsWriting() {
		c.logger.Errorf("TcpConnection fd=%d is down, no more writing", c.channel.FD())
		return
	}
	n, err := c.outputBuffer.WriteFd(c.channel.FD())
	if err != nil {
		c.logger.Errorf("TcpConnection handleWrite[%s]: %v", c.name, err)
		return
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			cb := c.writeCompleteCallback
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if connState(c.state.Load()) == stateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

// handleClose transitions to Disconnected, disables all channel events, and
// invokes the user connection callback followed by the server's internal
// close callback.
func (c *TcpConnection) handleClose() {
	c.logger.Infof("TcpConnection handleClose fd=%d state=%d", c.channel.FD(), c.state.Load())
	c.state.Store(int32(stateDisconnected))
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *TcpConnection) handleError() {
	errno, err := unix.GetsockoptInt(c.channel.FD(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		c.logger.Errorf("TcpConnection handleError name:%s - getsockopt: %v", c.name, err)
		return
	}
	c.logger.Errorf("TcpConnection handleError name:%s - SO_ERROR:%d", c.name, errno)
}

// Send queues bytes for delivery, dispatching to the owning loop if called
// from elsewhere.
func (c *TcpConnection) Send(data []byte) {
	if connState(c.state.Load()) != stateConnected {
		return
	}
	if c.loop.IsInLoopGoroutine() {
		c.sendInLoop(data)
		return
	}
	buf := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(buf) })
}

func (c *TcpConnection) sendInLoop(data []byte) {
	if connState(c.state.Load()) == stateDisconnected {
		c.logger.Errorf("disconnected, give up writing!")
		return
	}

	var wrote int
	faultError := false

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.channel.FD(), data)
		if n >= 0 {
			wrote = n
			if wrote == len(data) && c.writeCompleteCallback != nil {
				cb := c.writeCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
		} else {
			wrote = 0
			if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
				c.logger.Errorf("TcpConnection sendInLoop[%s]: %v", c.name, err)
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faultError = true
				}
			}
		}
	}

	remaining := data[wrote:]
	if !faultError && len(remaining) > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		if oldLen < c.highWaterMark && oldLen+len(remaining) >= c.highWaterMark && c.highWaterMarkCallback != nil {
			cb := c.highWaterMarkCallback
			projected := oldLen + len(remaining)
			c.loop.QueueInLoop(func() { cb(c, projected) })
		}
		c.outputBuffer.Append(remaining)
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// Shutdown half-closes the connection once pending output has drained.
func (c *TcpConnection) Shutdown() {
	if connState(c.state.Load()) == stateConnected {
		c.state.Store(int32(stateDisconnecting))
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *TcpConnection) shutdownInLoop() {
	if !c.channel.IsWriting() {
		_ = c.socket.ShutdownWrite()
	}
}
