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
	"basalt.dev/basalt/pkg/ilist"
	"basalt.dev/basalt/pkg/sync"
)

// WaitQueue is a FIFO queue of blocked tasks. Tasks are woken in the order
// they went to sleep.
//
// The zero value is an empty, usable queue.
type WaitQueue struct {
	// lk protects list and the queued flag of every task on it. It is
	// dropped before any woken task is actually resumed, so a wakeup racing
	// with the sleeper's park is resolved by the sleeper's pending-wakeup
	// token rather than by holding the queue lock across the switch.
	lk sync.SpinLock

	// list links tasks through their embedded list entries, oldest in
	// front.
	list ilist.List
}

// Sleep enqueues cur at the tail of the queue and blocks it until a wakeup.
// On errors.ErrInterrupted the task has been removed from the queue before
// Sleep returns; the caller re-checks its condition and decides whether to
// sleep again.
//
// Preconditions: cur is the calling task.
func (q *WaitQueue) Sleep(cur *Task, interruptible bool) error {
	q.lk.Lock(cur)
	q.enqueueLocked(cur)
	q.lk.Unlock()

	err := cur.Sleep(interruptible)
	if err != nil {
		q.dequeueSelf(cur)
	}
	return err
}

// SleepUntil blocks cur until cond holds. cond is evaluated with the queue
// lock held, and WakeUpOne/WakeUpAll take the same lock, so a waker that
// establishes the condition and then wakes the queue cannot slip between
// the check and the enqueue. cond must not block; it may take locks ordered
// after the queue's lock.
//
// On errors.ErrInterrupted the task has left the queue and cond may or may
// not hold.
//
// Preconditions: cur is the calling task.
func (q *WaitQueue) SleepUntil(cur *Task, interruptible bool, cond func() bool) error {
	for {
		q.lk.Lock(cur)
		if cond() {
			q.lk.Unlock()
			return nil
		}
		q.enqueueLocked(cur)
		q.lk.Unlock()
		if err := cur.Sleep(interruptible); err != nil {
			q.dequeueSelf(cur)
			return err
		}
	}
}

// dequeueSelf removes cur from the queue after an interrupted sleep. A
// wakeup may have dequeued the task first, in which case there is nothing
// to undo.
func (q *WaitQueue) dequeueSelf(cur *Task) {
	q.lk.Lock(cur)
	if cur.queued {
		q.list.Remove(cur)
		cur.queued = false
	}
	q.lk.Unlock()
}

// WakeUpOne wakes the task at the front of the queue. It returns whether a
// task was woken. cur is the calling task, or nil when waking from outside
// the kernel.
func (q *WaitQueue) WakeUpOne(cur *Task) bool {
	q.lk.Lock(cur)
	t := q.dequeueLocked()
	q.lk.Unlock()
	if t == nil {
		return false
	}
	t.WakeUp()
	return true
}

// WakeUpAll wakes every task on the queue, in FIFO order. It returns the
// number of tasks woken. cur is the calling task, or nil when waking from
// outside the kernel.
func (q *WaitQueue) WakeUpAll(cur *Task) int {
	var woken []*Task
	q.lk.Lock(cur)
	for t := q.dequeueLocked(); t != nil; t = q.dequeueLocked() {
		woken = append(woken, t)
	}
	q.lk.Unlock()
	for _, t := range woken {
		t.WakeUp()
	}
	return len(woken)
}

// Empty returns whether the queue has no sleeping tasks. cur is the calling
// task, or nil from outside the kernel.
func (q *WaitQueue) Empty(cur *Task) bool {
	q.lk.Lock(cur)
	defer q.lk.Unlock()
	return q.list.Empty()
}

// enqueueLocked appends t to the queue.
//
// Preconditions: q.lk must be locked. t must not be on any queue.
func (q *WaitQueue) enqueueLocked(t *Task) {
	if t.queued {
		panic("WaitQueue: task is already on a wait queue")
	}
	t.queued = true
	q.list.PushBack(t)
}

// dequeueLocked pops the oldest task, or returns nil.
//
// Preconditions: q.lk must be locked.
func (q *WaitQueue) dequeueLocked() *Task {
	e := q.list.Front()
	if e == nil {
		return nil
	}
	t := e.(*Task)
	q.list.Remove(t)
	t.queued = false
	return t
}
