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

import "fmt"

// EventLoopThreadPool fans a TcpServer's accepted connections out across a
// fixed number of sub-reactor EventLoopThreads, round-robin. With zero
// threads configured, every connection stays on the base loop.
type EventLoopThreadPool struct {
	baseLoop *EventLoop
	name     string
	logger   Logger

	started    bool
	numThreads int
	next       int

	threads []*EventLoopThread
	loops   []*EventLoop
}

// NewEventLoopThreadPool constructs a pool bound to baseLoop. Call
// SetThreadNum then Start before GetNextLoop is used.
func NewEventLoopThreadPool(baseLoop *EventLoop, name string, logger Logger) *EventLoopThreadPool {
	if logger == nil {
		logger = NopLogger{}
	}
	return &EventLoopThreadPool{baseLoop: baseLoop, name: name, logger: logger}
}

// SetThreadNum sets the number of sub-reactor threads to spawn on Start.
func (p *EventLoopThreadPool) SetThreadNum(n int) {
	p.numThreads = n
}

// Start spawns numThreads EventLoopThreads, running cb once on each loop
// (including the base loop, when numThreads is zero).
func (p *EventLoopThreadPool) Start(cb ThreadInitFunc) {
	p.started = true
	for i := 0; i < p.numThreads; i++ {
		name := fmt.Sprintf("%s%d", p.name, i)
		t := NewEventLoopThread(cb, name)
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, t.StartLoop(p.logger))
	}
	if p.numThreads == 0 && cb != nil {
		cb(p.baseLoop)
	}
}

// GetNextLoop returns the next sub-reactor loop, round-robin, or the base
// loop when no sub-reactors were configured.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	loop := p.baseLoop
	if len(p.loops) > 0 {
		loop = p.loops[p.next]
		p.next = (p.next + 1) % len(p.loops)
	}
	return loop
}

// GetAllLoops returns every sub-reactor loop, or just the base loop if none
// were configured.
func (p *EventLoopThreadPool) GetAllLoops() []*EventLoop {
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return p.loops
}

// Started reports whether Start has been called.
func (p *EventLoopThreadPool) Started() bool { return p.started }

// Name returns the pool's base name.
func (p *EventLoopThreadPool) Name() string { return p.name }

// Stop quits and joins every sub-reactor thread.
func (p *EventLoopThreadPool) Stop() {
	for i, t := range p.threads {
		t.Stop(p.loops[i])
	}
}
