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
	"runtime"

	"basalt.dev/basalt/pkg/errors"
)

// exit finalizes the calling task: it records the exit status, moves the
// task to TaskStopped, and gives up the CPU for good.
//
// Preconditions: t is the calling task. Preemption must be enabled.
func (t *Task) exit(status uint64) {
	if n := t.preemptCount.Load(); n != 0 {
		panic(fmt.Sprintf("%v: exiting with preemption disabled (depth %d)", t, n))
	}
	t.mu.Lock()
	if t.state == TaskStopped {
		panic(fmt.Sprintf("%v: exiting twice", t))
	}
	t.exitStatus = status
	t.state = TaskStopped
	c := t.dropCPULocked()
	t.mu.Unlock()
	t.k.log.Debugf("%v: exited with status %d", t, status)
	close(t.exited)
	c.reschedule()
}

// Exit terminates the calling task immediately with the given status. It
// does not return; the task's goroutine unwinds, running deferred calls.
//
// Preconditions: t is the calling task.
func (t *Task) Exit(status uint64) {
	t.exit(status)
	runtime.Goexit()
}

// ExitStatus returns the task's exit status, or errors.ErrWouldBlock if the
// task has not stopped yet.
func (t *Task) ExitStatus() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskStopped {
		return 0, errors.ErrWouldBlock
	}
	return t.exitStatus, nil
}

// Join waits for t to stop and returns its exit status. The first Join also
// reaps the task, removing it from the task table and dropping the table's
// reference; a later Join still returns the status but reports
// errors.ErrAlreadyTerminated.
//
// cur is the calling task, or nil when joining from outside the kernel
// (boot or test code). A task joins by repeatedly yielding, so a
// single-CPU kernel still makes progress; an outside caller blocks on the
// task's exit notification instead.
func (t *Task) Join(cur *Task) (uint64, error) {
	if cur != nil {
		cur.assertCanBlock()
		for !t.Stopped() {
			cur.Yield()
		}
	} else {
		<-t.exited
	}
	t.mu.Lock()
	status := t.exitStatus
	t.mu.Unlock()
	if t.reaped.Swap(true) {
		return status, errors.ErrAlreadyTerminated
	}
	t.k.tasks.remove(t)
	return status, nil
}
