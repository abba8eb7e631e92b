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

import "time"

// runWorker is the body of one worker goroutine. Fixed-mode workers block
// indefinitely on the task channel; Cached-mode workers additionally poll
// a 1-second idle timer and retire once idle past IdleTimeout, so long as
// doing so wouldn't drop the pool below its initial worker count.
func (p *Pool) runWorker(id int64) {
	defer p.workersWG.Done()

	lastRun := time.Now()
	idleTimeout := defaultIdleTimeout

	for {
		if p.mode != Cached {
			select {
			case <-p.quit:
				p.retire(id)
				return
			case item, ok := <-p.tasks:
				if !ok {
					p.retire(id)
					return
				}
				p.runTask(item)
				lastRun = time.Now()
			}
			continue
		}

		select {
		case <-p.quit:
			p.retire(id)
			return
		case item, ok := <-p.tasks:
			if !ok {
				p.retire(id)
				return
			}
			p.runTask(item)
			lastRun = time.Now()
		case <-time.After(1 * time.Second):
			if time.Since(lastRun) >= idleTimeout && p.aboveInitialWorkers() {
				p.retire(id)
				return
			}
		}
	}
}

func (p *Pool) runTask(item taskItem) {
	p.mu.Lock()
	p.idleWorkers--
	p.mu.Unlock()

	result, err := item.task()
	item.future.complete(result, err)

	p.mu.Lock()
	p.idleWorkers++
	p.mu.Unlock()
}

func (p *Pool) aboveInitialWorkers() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentWorkers > int32(p.initWorkers)
}

func (p *Pool) retire(id int64) {
	p.mu.Lock()
	p.currentWorkers--
	p.idleWorkers--
	p.mu.Unlock()
}
