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

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// TcpServer composes an Acceptor (on the base loop), an
// EventLoopThreadPool, and a connection registry keyed by connection name.
// Every mutation of the registry happens on the base loop, so it needs no
// lock.
type TcpServer struct {
	loop *EventLoop

	ipPort string
	name   string
	logger Logger

	acceptor   *Acceptor
	threadPool *EventLoopThreadPool

	connectionCallback    ConnectionFunc
	messageCallback       MessageFunc
	writeCompleteCallback WriteCompleteFunc
	threadInitCallback    ThreadInitFunc

	started   atomic.Int32
	nextConnID int

	connections map[string]*TcpConnection
}

// NewTcpServer constructs a server bound to loop as its base loop, which
// must already be running or about to Run.
func NewTcpServer(loop *EventLoop, listenAddr InetAddress, name string, option ListenOption, logger Logger) (*TcpServer, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	acceptor, err := NewAcceptor(loop, listenAddr, option == ReusePort, logger)
	if err != nil {
		return nil, err
	}
	s := &TcpServer{
		loop:        loop,
		ipPort:      listenAddr.ToIPPort(),
		name:        name,
		logger:      logger,
		acceptor:    acceptor,
		threadPool:  NewEventLoopThreadPool(loop, name, logger),
		nextConnID:  1,
		connections: make(map[string]*TcpConnection),
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

func (s *TcpServer) SetThreadInitCallback(cb ThreadInitFunc)           { s.threadInitCallback = cb }
func (s *TcpServer) SetConnectionCallback(cb ConnectionFunc)           { s.connectionCallback = cb }
func (s *TcpServer) SetMessageCallback(cb MessageFunc)                 { s.messageCallback = cb }
func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteFunc)     { s.writeCompleteCallback = cb }

// SetThreadNum sets the sub-reactor count; 0 means single-reactor (the base
// loop itself serves every connection).
func (s *TcpServer) SetThreadNum(n int) { s.threadPool.SetThreadNum(n) }

// Loops returns every loop serving this server: the sub-reactor pool's
// loops, or just the base loop when no sub-reactors were configured.
func (s *TcpServer) Loops() []*EventLoop { return s.threadPool.GetAllLoops() }

// Start is idempotent: only the first call spawns the loop pool and
// schedules the acceptor's Listen.
func (s *TcpServer) Start() {
	if s.started.Add(1) != 1 {
		return
	}
	s.threadPool.Start(s.threadInitCallback)
	s.loop.RunInLoop(s.acceptor.Listen)
}

// Stop tears down every live connection and the acceptor, then stops every
// sub-reactor thread. Must be called after Start, from outside the loop.
// The registry walk runs on the base loop via RunInLoop: s.connections is
// otherwise only ever touched from there (removeConnectionInLoop), and
// reading it from the caller's goroutine while a connection closes
// concurrently would be a data race.
func (s *TcpServer) Stop() {
	s.loop.RunInLoop(func() {
		for _, conn := range s.connections {
			c := conn
			c.Loop().RunInLoop(c.ConnectDestroyed)
		}
	})
	s.loop.RunInLoop(s.acceptor.Close)
	s.threadPool.Stop()
}

func (s *TcpServer) newConnection(sockFD int, peerAddr InetAddress) {
	ioLoop := s.threadPool.GetNextLoop()
	connName := fmt.Sprintf("%s-%s#%d", s.name, s.ipPort, s.nextConnID)
	s.nextConnID++

	s.logger.Infof("TcpServer newConnection [%s] - new connection [%s] from %s", s.name, connName, peerAddr.ToIPPort())

	localAddr := localAddrOf(sockFD, s.logger)

	conn := NewTcpConnection(ioLoop, connName, sockFD, localAddr, peerAddr, s.logger)
	s.connections[connName] = conn

	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.setCloseCallback(s.removeConnection)

	ioLoop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection runs on conn's owning sub-loop (invoked from its close
// path); it hops to the base loop to mutate the registry.
func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *TcpServer) removeConnectionInLoop(conn *TcpConnection) {
	s.logger.Infof("TcpServer removeConnectionInLoop [%s] - connection %s", s.name, conn.Name())
	delete(s.connections, conn.Name())
	ioLoop := conn.Loop()
	ioLoop.QueueInLoop(conn.ConnectDestroyed)
}

func localAddrOf(sockFD int, logger Logger) InetAddress {
	sa, err := unix.Getsockname(sockFD)
	if err != nil {
		logger.Errorf("reactor: getsockname: %v", err)
		return InetAddress{}
	}
	return inetAddressFromSockaddr(sa)
}
