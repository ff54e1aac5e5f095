// Copyright 2026 The Basalt Authors.
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

package kernel

import (
	"basalt.dev/basalt/pkg/sync"
)

// A scheduler owns the run queue and decides which task runs next. The
// contract is narrow so that an alternate policy (priority, deadline) can
// replace roundRobin without touching Task or CPU code.
//
// Implementations must be safe for concurrent use; their internal lock is
// ordered after Task.mu.
type scheduler interface {
	// enqueue makes t schedulable. Called for newly created tasks and for
	// tasks leaving a blocked state.
	//
	// Preconditions: t.state is TaskRunnable. t is not already queued.
	enqueue(t *Task)

	// yield requeues t and picks the task to run in its place. It returns
	// nil if t should simply keep running.
	//
	// Preconditions: t.state is TaskRunnable.
	yield(t *Task) *Task

	// dequeue pops the next task to run, or returns nil if none is
	// runnable.
	dequeue() *Task

	// waitRunnable blocks until a task is runnable and pops it, or returns
	// false once the scheduler has stopped. Called by idle CPUs.
	waitRunnable() (*Task, bool)

	// stop makes all idle CPUs return from waitRunnable.
	stop()
}

// roundRobin is the shipped scheduler: a single FIFO run queue shared by
// all CPUs. A task is on the queue iff its state is TaskRunnable.
type roundRobin struct {
	mu sync.Mutex

	// cond is signaled when runq becomes nonempty or the scheduler stops.
	// Idle CPUs wait on it.
	cond *sync.Cond

	// runq is the FIFO of runnable tasks.
	runq []*Task

	// stopped is set by stop; waitRunnable returns false once set.
	stopped bool
}

var _ scheduler = (*roundRobin)(nil)

func newRoundRobin() *roundRobin {
	s := &roundRobin{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enqueue implements scheduler.enqueue.
func (s *roundRobin) enqueue(t *Task) {
	s.mu.Lock()
	s.runq = append(s.runq, t)
	s.cond.Signal()
	s.mu.Unlock()
}

// yield implements scheduler.yield: the caller goes to the tail and the
// head runs next. Appending before popping makes yielding with an empty
// queue a no-op rather than a switch to nothing.
func (s *roundRobin) yield(t *Task) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runq = append(s.runq, t)
	next := s.dequeueLocked()
	if next == t {
		return nil
	}
	// t itself is still queued; let an idle CPU pick it up.
	s.cond.Signal()
	return next
}

// dequeue implements scheduler.dequeue.
func (s *roundRobin) dequeue() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dequeueLocked()
}

// dequeueLocked pops the head of the run queue, or returns nil.
//
// Preconditions: s.mu must be locked.
func (s *roundRobin) dequeueLocked() *Task {
	if len(s.runq) == 0 {
		return nil
	}
	t := s.runq[0]
	s.runq = s.runq[1:]
	return t
}

// waitRunnable implements scheduler.waitRunnable.
func (s *roundRobin) waitRunnable() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.runq) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return nil, false
	}
	return s.dequeueLocked(), true
}

// stop implements scheduler.stop.
func (s *roundRobin) stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
