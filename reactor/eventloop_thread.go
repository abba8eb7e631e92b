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

// ThreadInitFunc runs once on a freshly started EventLoopThread's loop,
// before the loop starts serving events.
type ThreadInitFunc func(loop *EventLoop)

// EventLoopThread owns exactly one goroutine running exactly one EventLoop:
// one loop per (OS) thread. The loop pointer that would need a condition
// variable in a native-threaded implementation is instead published over a
// one-slot buffered channel, whose receive blocks StartLoop until the spawned goroutine has
// constructed and published its loop — the same hand-off muduo performs with
// a mutex-guarded condition variable.
type EventLoopThread struct {
	name     string
	callback ThreadInitFunc

	loopCh chan *EventLoop
	done   chan struct{}
}

// NewEventLoopThread constructs a thread that has not yet started.
func NewEventLoopThread(cb ThreadInitFunc, name string) *EventLoopThread {
	return &EventLoopThread{
		name:     name,
		callback: cb,
		loopCh:   make(chan *EventLoop, 1),
		done:     make(chan struct{}),
	}
}

// StartLoop spawns the goroutine, blocks until its EventLoop has been
// constructed and its init callback run, and returns the loop.
func (t *EventLoopThread) StartLoop(logger Logger) *EventLoop {
	go t.threadFunc(logger)
	return <-t.loopCh
}

func (t *EventLoopThread) threadFunc(logger Logger) {
	loop, err := NewEventLoop(logger)
	if err != nil {
		if logger == nil {
			logger = NopLogger{}
		}
		logger.Fatalf("reactor: EventLoopThread %q: %v", t.name, err)
		return
	}

	if t.callback != nil {
		t.callback(loop)
	}

	t.loopCh <- loop

	loop.Run()

	_ = loop.Close()
	close(t.done)
}

// Stop requests the loop to quit and waits for its goroutine to exit.
func (t *EventLoopThread) Stop(loop *EventLoop) {
	loop.Quit()
	<-t.done
}
