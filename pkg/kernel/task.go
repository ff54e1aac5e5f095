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

	"basalt.dev/basalt/pkg/arch"
	"basalt.dev/basalt/pkg/atomicbitops"
	"basalt.dev/basalt/pkg/ilist"
	"basalt.dev/basalt/pkg/pgalloc"
	"basalt.dev/basalt/pkg/refs"
	"basalt.dev/basalt/pkg/sync"
)

// A Task is a kernel thread of execution. Each task is backed by its own
// goroutine; the goroutine runs only while the task holds a CPU, received
// over the task's resume channel at dispatch.
//
// Tasks are reference-counted. References are held by the task table, by the
// creator's handle, and by the task's own goroutine; the backing kernel
// stack and trap frame are released when the last reference is dropped.
type Task struct {
	refs.AtomicRefCount

	// Entry links the task into at most one WaitQueue. It is protected by
	// the owning queue's lock.
	ilist.Entry

	// queued is true while the task is on a wait queue. It is protected by
	// the owning queue's lock.
	queued bool

	// id is the task's thread ID. It is immutable.
	id ThreadID

	// tgid is the thread group (process) ID: the ID of the group leader,
	// equal to id for the first task of a process. It is immutable.
	tgid ThreadID

	// parent is the thread group ID of the creating process, or 0 for tasks
	// with no parent. Stored as a plain ID, never as a reference, and
	// resolved through the task table on use. It is immutable.
	parent ThreadID

	// name is the task's friendly name. It is immutable.
	name string

	// k is the owning kernel. It is immutable.
	k *Kernel

	// mu protects the fields below it in this struct.
	mu sync.Mutex

	// state is the task's lifecycle state.
	state TaskState

	// wakePending is true if a wakeup arrived while the task was Running.
	// The next call to Sleep consumes it and returns immediately instead of
	// blocking, which closes the race between publishing the task on a wait
	// queue and actually parking.
	wakePending bool

	// interrupted is true if an interrupt was delivered and not yet
	// consumed by an interruptible sleep.
	interrupted bool

	// cpu is the CPU the task is running on, or nil while the task is not
	// running.
	cpu *CPU

	// exitStatus is the task's return value. It is meaningful only once
	// state is TaskStopped.
	exitStatus uint64

	// exited is closed when the task reaches TaskStopped.
	exited chan struct{}

	// resume carries the CPU token that grants the task execution. The
	// channel is buffered with capacity 1; scheduling discipline guarantees
	// at most one outstanding token per task.
	resume chan *CPU

	// preemptCount is the preemption-disable nesting depth. Nonzero means
	// the task may not block.
	preemptCount atomicbitops.Int32

	// savedIntr is the CPU interrupt-enable state captured when
	// preemptCount went 0 -> 1. It is accessed only by the task itself.
	savedIntr bool

	// needResched is set by a timer tick to request that the task yield at
	// its next preemption point.
	needResched atomicbitops.Bool

	// reaped is set once the task has been removed from the task table.
	reaped atomicbitops.Bool

	// ctx is the task's saved execution context. For a task that has never
	// run it names the trampoline, so the first dispatch lands there and
	// lowers into a trap-frame restore.
	ctx arch.Context

	// tf is the task's trap frame. It is written at creation and read by
	// the trampoline.
	tf arch.TrapFrame

	// kstack and tfFrame are the physical-frame grants backing the task's
	// kernel stack and trap frame. Both are released exactly once, by the
	// refcount destructor.
	kstack  *pgalloc.FrameTracker
	tfFrame *pgalloc.FrameTracker
}

// ID returns the task's thread ID.
func (t *Task) ID() ThreadID {
	return t.id
}

// ThreadGroup returns the task's thread group (process) ID.
func (t *Task) ThreadGroup() ThreadID {
	return t.tgid
}

// Parent returns the thread group ID of the task's parent, or 0 if the task
// has none.
func (t *Task) Parent() ThreadID {
	return t.parent
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.name
}

// Kernel returns the kernel that owns the task.
func (t *Task) Kernel() *Kernel {
	return t.k
}

func (t *Task) String() string {
	return fmt.Sprintf("%s(%d)", t.name, t.id)
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stopped returns whether the task has terminated.
func (t *Task) Stopped() bool {
	return t.State() == TaskStopped
}

// CPU returns the CPU the task is running on, or nil if the task is not
// running.
func (t *Task) CPU() *CPU {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cpu
}

// DecRef drops a reference on the task. The last reference releases the
// task's kernel stack and trap frame.
func (t *Task) DecRef() {
	t.DecRefWithDestructor(t.destroy)
}

func (t *Task) destroy() {
	t.k.log.Debugf("%v: releasing task resources", t)
	t.kstack.Release()
	t.tfFrame.Release()
}

// DisablePreemption increments the task's preemption-disable depth. On the
// 0 -> 1 transition the running CPU's interrupt-enable flag is saved and
// cleared. Interrupts stay masked wherever the task runs — dispatch
// re-applies the mask — until the matching final EnablePreemption. While
// the depth is nonzero the task must not block.
func (t *Task) DisablePreemption() {
	if t.preemptCount.Add(1) == 1 {
		if c := t.CPU(); c != nil {
			t.savedIntr = c.intrEnabled.Swap(false)
		}
	}
}

// EnablePreemption decrements the task's preemption-disable depth, restoring
// the saved interrupt-enable state on the 1 -> 0 transition.
func (t *Task) EnablePreemption() {
	n := t.preemptCount.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("%v: preemption enabled more times than disabled", t))
	}
	if n == 0 && t.savedIntr {
		if c := t.CPU(); c != nil {
			c.intrEnabled.Store(true)
		}
	}
}

// PreemptPoint yields the CPU if a timer tick requested rescheduling and
// preemption is currently enabled. Long-running tasks call this from their
// work loops.
func (t *Task) PreemptPoint() {
	if t.preemptCount.Load() != 0 {
		return
	}
	if t.needResched.Swap(false) {
		t.Yield()
	}
}

// assertCanBlock panics if the task is not allowed to block.
func (t *Task) assertCanBlock() {
	if n := t.preemptCount.Load(); n != 0 {
		panic(fmt.Sprintf("%v: blocking with preemption disabled (depth %d)", t, n))
	}
}

// park suspends the calling goroutine until the task is dispatched, then
// records the CPU it received.
func (t *Task) park() {
	c := <-t.resume
	t.mu.Lock()
	t.cpu = c
	t.mu.Unlock()
}

// dropCPU detaches the task from its CPU in preparation for handing the
// token to another task. Returns the CPU.
//
// Preconditions: t.mu must be locked. The task must be running.
func (t *Task) dropCPULocked() *CPU {
	c := t.cpu
	if c == nil {
		panic(fmt.Sprintf("%v: switching out a task that holds no CPU", t))
	}
	t.cpu = nil
	return c
}
