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

import "context"

// Task is an arbitrary unit of work submitted to a Pool. The pool predates
// generics (module floor go1.17), so the result is carried as interface{},
// the same type erasure std::packaged_task<R()> performs in the original.
type Task func() (interface{}, error)

// Future is a one-shot handle to a Task's eventual result. A Future
// returned for a submission that was rejected (pool not running, or the
// task queue stayed full past the 1-second submit deadline) resolves
// immediately to (nil, ErrSubmitFailed), mirroring the original's
// default-constructed std::future.
type Future struct {
	done   chan struct{}
	result interface{}
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func newFailedFuture(err error) *Future {
	f := newFuture()
	f.err = err
	close(f.done)
	return f
}

func (f *Future) complete(result interface{}, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Get blocks until the task completes or ctx is done.
func (f *Future) Get(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks unconditionally until the task completes.
func (f *Future) Wait() (interface{}, error) {
	<-f.done
	return f.result, f.err
}
