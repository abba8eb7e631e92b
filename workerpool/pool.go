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

package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Mode selects a Pool's worker-count policy.
type Mode int

const (
	// Fixed keeps exactly the initial worker count for the pool's lifetime.
	Fixed Mode = iota
	// Cached grows workers under load, up to MaxWorkers, and reaps workers
	// idle past IdleTimeout back down to the initial count.
	Cached
)

const (
	defaultTaskQueueMaxSize = 1024
	defaultMaxWorkers       = 300
	defaultIdleTimeout      = 60 * time.Second
	submitWaitTimeout       = 1 * time.Second
)

// ErrSubmitFailed is returned (via the resolved Future) when a submission
// is rejected: the pool isn't running, or the task queue stayed full past
// submitWaitTimeout.
var ErrSubmitFailed = errors.New("workerpool: submit failed")

type taskItem struct {
	task   Task
	future *Future
}

// Logger is the narrow logging surface Pool depends on.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}

// Pool is a bounded task queue served by a set of goroutine workers. The
// task queue is a buffered channel: a blocking send models the "wait on
// not-full" condition variable, and a blocking receive models "wait on
// not-empty" — Go's channels are a not-full/not-empty condition variable
// pair already, so the pool needs no separate mutex for that hand-off.
type Pool struct {
	mode Mode
	logger Logger

	taskQueueMaxSize int
	maxWorkers       int
	initWorkers      int

	tasks chan taskItem

	mu             sync.Mutex
	currentWorkers int32
	idleWorkers    int32
	nextWorkerID   int64

	running atomic.Bool
	workersWG sync.WaitGroup
	quit      chan struct{}
}

// NewPool constructs a Pool in the given mode. Start must be called before
// Submit.
func NewPool(mode Mode, logger Logger) *Pool {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Pool{
		mode:             mode,
		logger:           logger,
		taskQueueMaxSize: defaultTaskQueueMaxSize,
		maxWorkers:       defaultMaxWorkers,
	}
}

// SetTaskQueueMaxSize sets the task queue capacity. Must be called before Start.
func (p *Pool) SetTaskQueueMaxSize(n int) { p.taskQueueMaxSize = n }

// SetMaxWorkers sets the worker-count ceiling (Cached mode only). Must be
// called before Start.
func (p *Pool) SetMaxWorkers(n int) { p.maxWorkers = n }

// Start launches initWorkers workers (capped at MaxWorkers) and opens the
// pool for submissions.
func (p *Pool) Start(initWorkers int) {
	if initWorkers > p.maxWorkers {
		initWorkers = p.maxWorkers
	}
	p.initWorkers = initWorkers
	p.tasks = make(chan taskItem, p.taskQueueMaxSize)
	p.quit = make(chan struct{})
	p.running.Store(true)

	for i := 0; i < initWorkers; i++ {
		p.spawnWorker()
	}
}

// CurrentWorkers returns the live worker count.
func (p *Pool) CurrentWorkers() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentWorkers
}

// IdleWorkers returns the count of workers currently blocked waiting for a task.
func (p *Pool) IdleWorkers() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idleWorkers
}

// Submit enqueues task, returning a Future for its
// result. If the pool isn't running, or the queue stays full past
// submitWaitTimeout, the Future resolves immediately with ErrSubmitFailed.
func (p *Pool) Submit(task Task) *Future {
	if !p.running.Load() {
		p.logger.Errorf("workerpool: pool is not running, submit task fail")
		return newFailedFuture(ErrSubmitFailed)
	}

	item := taskItem{task: task, future: newFuture()}

	select {
	case p.tasks <- item:
	case <-time.After(submitWaitTimeout):
		p.logger.Errorf("workerpool: task queue is full, submit task fail")
		return newFailedFuture(ErrSubmitFailed)
	}

	if p.mode == Cached {
		p.maybeGrow()
	}
	return item.future
}

func (p *Pool) maybeGrow() {
	p.mu.Lock()
	queued := len(p.tasks)
	shouldGrow := int32(queued) > p.idleWorkers && p.currentWorkers < int32(p.maxWorkers)
	if shouldGrow {
		p.currentWorkers++
		p.idleWorkers++
	}
	p.mu.Unlock()

	if shouldGrow {
		p.spawnWorkerLocked()
	}
}

func (p *Pool) spawnWorker() {
	p.mu.Lock()
	p.currentWorkers++
	p.idleWorkers++
	p.mu.Unlock()
	p.spawnWorkerLocked()
}

// spawnWorkerLocked starts a worker goroutine; the current/idle counters
// must already have been incremented by the caller.
func (p *Pool) spawnWorkerLocked() {
	p.mu.Lock()
	id := p.nextWorkerID
	p.nextWorkerID++
	p.mu.Unlock()

	p.workersWG.Add(1)
	go p.runWorker(id)
}

// Stop signals every worker to exit once its current task (if any)
// finishes, and blocks until they have all returned.
func (p *Pool) Stop() {
	p.running.Store(false)
	close(p.quit)
	p.workersWG.Wait()
}

// Mode returns the pool's worker-count policy.
func (p *Pool) Mode() Mode { return p.mode }

// QueueLen returns the number of tasks currently queued.
func (p *Pool) QueueLen() int { return len(p.tasks) }

// QueueCap returns the task queue's capacity.
func (p *Pool) QueueCap() int { return p.taskQueueMaxSize }

func (m Mode) String() string {
	if m == Cached {
		return "cached"
	}
	return "fixed"
}

func (p *Pool) String() string {
	return fmt.Sprintf("workerpool(mode=%v, workers=%d/%d, queued=%d/%d)",
		p.mode, p.CurrentWorkers(), p.maxWorkers, len(p.tasks), p.taskQueueMaxSize)
}
