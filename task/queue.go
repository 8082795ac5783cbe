/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package task provides the single-consumer work queue that owns all
// connection and pairing state.
package task

import (
	"fmt"
	"sync"

	"github.com/rigado/blesec"
)

// A single action that runs in the queue loop. ch is nil for fire-and-forget
// posts.
type action struct {
	fn func() error
	ch chan error
}

// ErrInactive is returned for work submitted to a queue that is not running.
var ErrInactive = fmt.Errorf("inactive task queue")

// Queue runs jobs serially on one goroutine, in submission order.
//
// Post and Enqueue are bounded by the depth given to Start. Push is not: it
// is for stack callbacks and timer expiry, which must never be lost.
type Queue struct {
	pending []action
	depth   int
	wakeCh  chan struct{}
	stopCh  chan struct{}
	active  bool
	name    string
	mtx     sync.Mutex
	wg      sync.WaitGroup
}

func NewQueue(name string) *Queue {
	return &Queue{
		name: name,
	}
}

// add appends act and wakes the loop. Must be called with mtx held.
func (q *Queue) add(act action, bounded bool) error {
	if !q.active {
		return ErrInactive
	}
	if bounded && len(q.pending) >= q.depth {
		return blesec.ErrQueueFull
	}

	q.pending = append(q.pending, act)
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// Post enqueues fn without waiting for it to run and without blocking the
// caller: a saturated queue returns blesec.ErrQueueFull. Safe from any
// goroutine, including the queue's own.
func (q *Queue) Post(fn func()) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.add(action{fn: func() error { fn(); return nil }}, true)
}

// Push enqueues fn regardless of depth. It never blocks and only fails once
// the queue has stopped.
func (q *Queue) Push(fn func()) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.add(action{fn: func() error { fn(); return nil }}, false)
}

// Enqueue pushes fn onto the queue. When the job completes, its result is
// sent over the returned channel.
func (q *Queue) Enqueue(fn func() error) chan error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	act := action{
		fn: fn,
		ch: make(chan error, 1),
	}

	if err := q.add(act, true); err != nil {
		act.ch <- err
		close(act.ch)
	}

	return act.ch
}

// Run enqueues fn and waits for it to complete. Calling Run from a job
// deadlocks; jobs use Post.
func (q *Queue) Run(fn func() error) error {
	return <-q.Enqueue(fn)
}

// next pops the oldest pending action. ok is false when there is none or the
// queue has stopped.
func (q *Queue) next() (action, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if !q.active || len(q.pending) == 0 {
		return action{}, false
	}
	act := q.pending[0]
	q.pending[0] = action{}
	q.pending = q.pending[1:]
	return act, true
}

// Start starts the queue loop. A queue must be started before jobs can be
// submitted.
func (q *Queue) Start(depth int) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.active {
		return fmt.Errorf("task queue started twice \"%s\"", q.name)
	}
	if depth <= 0 {
		depth = 1
	}
	q.active = true
	q.depth = depth
	q.pending = nil

	wakeCh := make(chan struct{}, 1)
	q.wakeCh = wakeCh

	stopCh := make(chan struct{})
	q.stopCh = stopCh

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		for {
			select {
			case <-wakeCh:
				for {
					act, ok := q.next()
					if !ok {
						break
					}
					err := act.fn()
					if act.ch != nil {
						act.ch <- err
						close(act.ch)
					}
				}

			case <-stopCh:
				return
			}
		}
	}()

	return nil
}

// Stop stops the queue and waits for the loop to return. Queued jobs that
// have not run fail with cause. Calling Stop from a job deadlocks; use
// StopNoWait there.
func (q *Queue) Stop(cause error) error {
	if err := q.StopNoWait(cause); err != nil {
		return err
	}

	q.wg.Wait()
	return nil
}

// StopNoWait initiates the stop without waiting for the loop to exit.
func (q *Queue) StopNoWait(cause error) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if !q.active {
		return fmt.Errorf("task queue stopped twice \"%s\"", q.name)
	}

	close(q.stopCh)

	// Fail unprocessed actions.
	for _, next := range q.pending {
		if next.ch != nil {
			next.ch <- cause
			close(next.ch)
		}
	}
	q.pending = nil

	q.active = false

	return nil
}

func (q *Queue) Active() bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.active
}

func (q *Queue) Name() string {
	return q.name
}
