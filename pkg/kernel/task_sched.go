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
	"fmt"

	"basalt.dev/basalt/pkg/errors"
)

// Yield gives up the CPU to the next runnable task and requeues the caller
// at the tail of the run queue. If no other task is runnable the caller
// simply keeps running. Yield is permitted with preemption disabled; the
// interrupt mask is re-applied when the task is dispatched again.
//
// Preconditions: t is the calling task.
func (t *Task) Yield() {
	t.mu.Lock()
	t.state = TaskRunnable
	next := t.k.sched.yield(t)
	if next == nil {
		// Nothing else was runnable; keep running.
		t.state = TaskRunning
		t.mu.Unlock()
		return
	}
	c := t.dropCPULocked()
	t.mu.Unlock()
	c.dispatch(next)
	t.park()
}

// Sleep blocks the calling task until a wakeup arrives. If a wakeup was
// already delivered while the task was Running, Sleep consumes it and
// returns without blocking.
//
// If interruptible is true and an interrupt is or becomes pending, Sleep
// consumes it and returns errors.ErrInterrupted; the caller must re-check
// its wait condition. Uninterruptible sleeps never fail.
//
// Preconditions: t is the calling task. Preemption must be enabled.
func (t *Task) Sleep(interruptible bool) error {
	t.assertCanBlock()

	t.mu.Lock()
	if interruptible && t.interrupted {
		t.interrupted = false
		t.mu.Unlock()
		return errors.ErrInterrupted
	}
	if t.wakePending {
		t.wakePending = false
		t.mu.Unlock()
		return nil
	}
	if interruptible {
		t.state = TaskInterruptible
	} else {
		t.state = TaskUninterruptible
	}
	c := t.dropCPULocked()
	t.mu.Unlock()

	c.reschedule()
	t.park()

	t.mu.Lock()
	defer t.mu.Unlock()
	if interruptible && t.interrupted {
		t.interrupted = false
		return errors.ErrInterrupted
	}
	return nil
}

// WakeUp transitions a blocked task to TaskRunnable and enqueues it. Waking
// a Running task leaves a pending wakeup for its next Sleep, so a wakeup
// racing with the sleeper's park is never lost. Waking a task that is
// already Runnable or Stopped is a no-op.
//
// WakeUp may be called from any task or from outside the kernel. It returns
// whether the wakeup had an effect.
func (t *Task) WakeUp() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wakeUpLocked()
}

// Preconditions: t.mu must be locked.
func (t *Task) wakeUpLocked() bool {
	switch t.state {
	case TaskStopped, TaskRunnable:
		return false
	case TaskRunning:
		t.wakePending = true
		return true
	default:
		if !t.state.blocked() {
			panic(fmt.Sprintf("%v: waking from unexpected state %v", t, t.state))
		}
		t.state = TaskRunnable
		t.k.sched.enqueue(t)
		return true
	}
}

// Interrupt delivers an interrupt to the task. An interruptible sleeper is
// woken and its in-progress Sleep returns errors.ErrInterrupted; a Running
// task observes the interrupt at its next interruptible Sleep. Tasks that
// are Runnable, Stopped, or in uninterruptible sleep are unaffected.
func (t *Task) Interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case TaskInterruptible:
		t.interrupted = true
		t.wakeUpLocked()
	case TaskRunning:
		// The mark alone is enough: the next interruptible Sleep checks it
		// before blocking. A wake token here would outlive the interrupt
		// and falsely complete a later uninterruptible sleep.
		t.interrupted = true
	}
}
