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

// Package dbpool implements a bounded pool of pre-established database
// connections, replenished by a producer goroutine and trimmed by an
// idle-reaper goroutine — the same producer/consumer discipline the
// reactor package's pending-functor queue uses, applied to whole
// connections instead of closures.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// ErrTimeout is returned by Get when no connection becomes available
// before the configured connection timeout elapses.
var ErrTimeout = errors.New("dbpool: lease timed out")

// Logger is the narrow logging surface ConnectionPool depends on.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}

// Lease is a smart handle over a pooled Connection. Release returns it to
// the pool; a Lease must be Released exactly once.
type Lease struct {
	conn *Connection
	pool *ConnectionPool
}

// Conn returns the leased Connection.
func (l *Lease) Conn() *Connection { return l.conn }

// Release returns the connection to the idle queue, refreshing its alive
// timestamp — this is the disposer half of the lease (spec.md §4.10).
func (l *Lease) Release() {
	l.pool.release(l.conn)
}

// ConnectionPool owns a FIFO of idle connections ordered oldest-first,
// replenished by a producer goroutine and trimmed by a reaper goroutine.
type ConnectionPool struct {
	cfg    Config
	logger Logger

	mu      sync.Mutex
	idle    []*Connection // FIFO: idle[0] is oldest
	current int
	notify  chan struct{} // closed and replaced on every push; broadcasts "queue changed"

	closing chan struct{}
	wg      sync.WaitGroup
}

// Open builds the pool, dials InitSize connections synchronously, then
// starts its producer and reaper goroutines.
func Open(cfg Config, logger Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	p := &ConnectionPool{
		cfg:     cfg,
		logger:  logger,
		notify:  make(chan struct{}),
		closing: make(chan struct{}),
	}

	for i := 0; i < cfg.InitSize; i++ {
		conn, err := dial(cfg)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("dbpool: initial connection %d: %w", i, err)
		}
		p.idle = append(p.idle, conn)
		p.current++
	}

	p.wg.Add(2)
	go p.produceLoop()
	go p.reapLoop()
	return p, nil
}

// broadcast wakes every Get/producer waiter blocked on the current notify
// channel, the same effect as condition_variable::notify_all.
func (p *ConnectionPool) broadcast() {
	close(p.notify)
	p.notify = make(chan struct{})
}

// Current returns current = |idle| + |leased| (spec.md §8 invariant).
func (p *ConnectionPool) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Idle returns the number of connections currently sitting in the queue.
func (p *ConnectionPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Get blocks up to cfg.ConnectionTimeout waiting for an idle connection.
// On timeout it returns ErrTimeout (the Go analogue of the original's
// null lease).
func (p *ConnectionPool) Get() (*Lease, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectionTimeout)
	defer cancel()

	for {
		p.mu.Lock()
		if len(p.idle) > 0 {
			conn := p.idle[0]
			p.idle = p.idle[1:]
			p.broadcast() // wakes the producer, which waits for the queue to go empty
			p.mu.Unlock()
			return &Lease{conn: conn, pool: p}, nil
		}
		wait := p.notify
		p.mu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			p.logger.Errorf("dbpool: get connection timed out")
			return nil, ErrTimeout
		}
	}
}

func (p *ConnectionPool) release(conn *Connection) {
	conn.RefreshAliveTime()
	p.mu.Lock()
	p.idle = append(p.idle, conn)
	p.broadcast()
	p.mu.Unlock()
}

// produceLoop waits until the idle queue is empty, then — if under
// MaxSize — dials one more connection and pushes it (spec.md §4.10).
func (p *ConnectionPool) produceLoop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.idle) != 0 {
			wait := p.notify
			p.mu.Unlock()
			select {
			case <-wait:
			case <-p.closing:
				return
			}
			p.mu.Lock()
		}
		belowMax := p.current < p.cfg.MaxSize
		p.mu.Unlock()

		if !belowMax {
			select {
			case <-p.closing:
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		conn, err := dial(p.cfg)
		if err != nil {
			p.logger.Errorf("dbpool: produce connection: %v", err)
			select {
			case <-p.closing:
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		p.mu.Lock()
		p.idle = append(p.idle, conn)
		p.current++
		p.broadcast()
		p.mu.Unlock()
	}
}

// reapLoop sleeps MaxIdleTime, then trims connections idle past
// MaxIdleTime from the front of the (oldest-first) queue, down to
// InitSize (spec.md §4.10).
func (p *ConnectionPool) reapLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.MaxIdleTime)
	defer ticker.Stop()

	for {
		select {
		case <-p.closing:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		for p.current > p.cfg.InitSize && len(p.idle) > 0 {
			head := p.idle[0]
			if head.IdleTime() > p.cfg.MaxIdleTime {
				p.idle = p.idle[1:]
				p.current--
				_ = head.close()
			} else {
				break
			}
		}
		p.mu.Unlock()
	}
}

// Close stops the producer and reaper goroutines and closes every idle
// connection. Leased connections must be released before Close returns
// cleanly; any still outstanding are not forcibly closed.
func (p *ConnectionPool) Close() error {
	close(p.closing)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for _, c := range p.idle {
		err = multierr.Append(err, c.close())
	}
	p.idle = nil
	return err
}
