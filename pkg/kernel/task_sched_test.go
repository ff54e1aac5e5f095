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
	stdsync "sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"basalt.dev/basalt/pkg/arch"
	"basalt.dev/basalt/pkg/atomicbitops"
	"basalt.dev/basalt/pkg/errors"
)

// trace records scheduling events from task entry functions.
type trace struct {
	mu     stdsync.Mutex
	events []string
}

func (tr *trace) add(ev string) {
	tr.mu.Lock()
	tr.events = append(tr.events, ev)
	tr.mu.Unlock()
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

// TestRoundRobinOrder verifies that on a single CPU, yielding tasks run in
// creation order, one quantum each, round after round.
func TestRoundRobinOrder(t *testing.T) {
	const rounds = 3
	k, err := New(Config{CPUs: 1, ISA: arch.RISCV64})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var tr trace
	names := []string{"a", "b", "c"}
	tasks := make([]*Task, 0, len(names))
	for _, name := range names {
		task, err := k.CreateTask(TaskConfig{
			Name: name,
			Entry: func(t *Task, arg any) uint64 {
				for i := 0; i < rounds; i++ {
					tr.add(t.Name())
					t.Yield()
				}
				return 0
			},
		})
		if err != nil {
			t.Fatalf("CreateTask(%q) failed: %v", name, err)
		}
		tasks = append(tasks, task)
	}

	// Tasks were queued before the CPU came up, so the first dispatch order
	// is the creation order.
	k.Start()
	defer k.Shutdown()
	for _, task := range tasks {
		mustJoin(t, task)
		task.DecRef()
	}

	want := []string{"a", "b", "c", "a", "b", "c", "a", "b", "c"}
	if diff := cmp.Diff(want, tr.get()); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

// TestYieldAloneKeepsRunning verifies that yielding with an empty run queue
// is a no-op rather than a deadlock.
func TestYieldAloneKeepsRunning(t *testing.T) {
	k := newTestKernel(t, 1)
	task, err := k.CreateTask(TaskConfig{
		Entry: func(t *Task, arg any) uint64 {
			for i := 0; i < 100; i++ {
				t.Yield()
			}
			return 1
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer task.DecRef()
	if got := mustJoin(t, task); got != 1 {
		t.Errorf("Join = %d, want 1", got)
	}
}

// TestWakeBeforeSleep verifies that a wakeup delivered to a Running task is
// consumed by its next Sleep instead of being lost.
func TestWakeBeforeSleep(t *testing.T) {
	k := newTestKernel(t, 1)
	task, err := k.CreateTask(TaskConfig{
		Entry: func(t *Task, arg any) uint64 {
			if !t.WakeUp() {
				return 1 // wake on Running must leave a pending wakeup
			}
			if err := t.Sleep(false); err != nil {
				return 2
			}
			return 0 // Sleep returned without blocking
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer task.DecRef()
	if got := mustJoin(t, task); got != 0 {
		t.Errorf("Join = %d, want 0", got)
	}
}

// TestWakeUpStopped verifies that waking a terminated task has no effect.
func TestWakeUpStopped(t *testing.T) {
	k := newTestKernel(t, 1)
	task, err := k.CreateTask(TaskConfig{
		Entry: func(t *Task, arg any) uint64 { return 0 },
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer task.DecRef()
	mustJoin(t, task)
	if task.WakeUp() {
		t.Errorf("WakeUp on a Stopped task reported an effect")
	}
	if task.State() != TaskStopped {
		t.Errorf("state = %v after waking a Stopped task, want Stopped", task.State())
	}
}

// TestInterruptSleepingTask verifies that Interrupt ends an interruptible
// sleep with ErrInterrupted and that uninterruptible sleeps are immune.
func TestInterruptSleepingTask(t *testing.T) {
	k := newTestKernel(t, 1)
	var q WaitQueue
	interrupted := atomicbitops.FromBool(false)
	task, err := k.CreateTask(TaskConfig{
		Entry: func(t *Task, arg any) uint64 {
			if err := q.Sleep(t, true); err != nil {
				interrupted.Store(true)
			}
			// Sleep again, uninterruptibly; only a wakeup may end this.
			q.Sleep(t, false)
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer task.DecRef()

	waitFor(t, "task to sleep interruptibly", func() bool {
		return task.State() == TaskInterruptible
	})
	if err := k.Interrupt(task.ID()); err != nil {
		t.Fatalf("Interrupt failed: %v", err)
	}

	waitFor(t, "task to sleep uninterruptibly", func() bool {
		return task.State() == TaskUninterruptible
	})
	// An interrupt must not end an uninterruptible sleep.
	k.Interrupt(task.ID())
	if task.State() != TaskUninterruptible {
		t.Errorf("interrupt ended an uninterruptible sleep")
	}
	q.WakeUpOne(nil)

	mustJoin(t, task)
	if !interrupted.Load() {
		t.Errorf("interruptible sleep did not return ErrInterrupted")
	}
	if !q.Empty(nil) {
		t.Errorf("wait queue not empty after the sleeper was woken")
	}
}

// countingScheduler wraps the shipped policy, counting enqueues. It stands
// in for an alternate scheduling policy.
type countingScheduler struct {
	*roundRobin
	enqueues atomicbitops.Int32
}

func (s *countingScheduler) enqueue(t *Task) {
	s.enqueues.Add(1)
	s.roundRobin.enqueue(t)
}

// TestSchedulerIsSwappable verifies that the kernel drives its scheduler
// only through the scheduler contract, so another policy can be slotted in.
func TestSchedulerIsSwappable(t *testing.T) {
	k, err := New(Config{CPUs: 1, ISA: arch.RISCV64})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cs := &countingScheduler{roundRobin: newRoundRobin()}
	k.sched = cs
	k.Start()
	defer k.Shutdown()

	const n = 3
	for i := 0; i < n; i++ {
		task, err := k.CreateTask(TaskConfig{
			Entry: func(t *Task, arg any) uint64 { return 0 },
		})
		if err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		mustJoin(t, task)
		task.DecRef()
	}
	if got := cs.enqueues.Load(); got != n {
		t.Errorf("scheduler saw %d enqueues, want %d", got, n)
	}
}

// TestInterruptedTaskStillBlocksUninterruptibly verifies that an interrupt
// delivered to a Running task is fully consumed by its next interruptible
// sleep: a later uninterruptible sleep must block until a real wakeup
// instead of completing on leftover interrupt state.
func TestInterruptedTaskStillBlocksUninterruptibly(t *testing.T) {
	k := newTestKernel(t, 1)
	var q WaitQueue
	task, err := k.CreateTask(TaskConfig{
		Name: "sleeper",
		Entry: func(t *Task, arg any) uint64 {
			t.Interrupt() // delivered while Running
			if err := q.Sleep(t, true); err != errors.ErrInterrupted {
				return 1
			}
			if err := q.Sleep(t, false); err != nil {
				return 2
			}
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer task.DecRef()

	waitFor(t, "task to sleep uninterruptibly", func() bool {
		if task.Stopped() {
			t.Fatalf("uninterruptible sleep completed with no wakeup")
		}
		return task.State() == TaskUninterruptible
	})
	q.WakeUpOne(nil)
	if got := mustJoin(t, task); got != 0 {
		t.Errorf("Join = %d, want 0", got)
	}
}

// TestPreemptTick verifies that a timer tick forces the running task to
// yield at its next preemption point, letting another task run.
func TestPreemptTick(t *testing.T) {
	k := newTestKernel(t, 1)
	var done atomicbitops.Bool

	spinner, err := k.CreateTask(TaskConfig{
		Name: "spinner",
		Entry: func(t *Task, arg any) uint64 {
			for !done.Load() {
				t.PreemptPoint()
			}
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer spinner.DecRef()

	other, err := k.CreateTask(TaskConfig{
		Name: "other",
		Entry: func(t *Task, arg any) uint64 {
			done.Store(true)
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer other.DecRef()

	// Without a tick the spinner never yields; keep ticking until the other
	// task has run.
	waitFor(t, "tick to preempt the spinner", func() bool {
		k.Tick(0)
		return done.Load()
	})
	mustJoin(t, spinner)
	mustJoin(t, other)
}

// TestPreemptionMaskFollowsTask verifies that a task yielding with
// preemption disabled does not leave the CPU masked for the next task, and
// is itself still masked when it resumes.
func TestPreemptionMaskFollowsTask(t *testing.T) {
	k := newTestKernel(t, 1)
	c := k.cpus[0]

	var otherRan, otherMasked atomicbitops.Bool
	yielder, err := k.CreateTask(TaskConfig{
		Name: "yielder",
		Entry: func(t *Task, arg any) uint64 {
			t.DisablePreemption()
			for !otherRan.Load() {
				t.Yield()
			}
			stillMasked := !c.intrEnabled.Load()
			t.EnablePreemption()
			if !stillMasked {
				return 1 // mask did not follow the task across the yield
			}
			if !c.intrEnabled.Load() {
				return 2 // the final EnablePreemption must unmask
			}
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer yielder.DecRef()

	other, err := k.CreateTask(TaskConfig{
		Name: "other",
		Entry: func(t *Task, arg any) uint64 {
			otherMasked.Store(!c.intrEnabled.Load())
			otherRan.Store(true)
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer other.DecRef()

	if got := mustJoin(t, yielder); got != 0 {
		t.Errorf("Join = %d, want 0", got)
	}
	mustJoin(t, other)
	if otherMasked.Load() {
		t.Errorf("interrupt mask leaked to the next task on the CPU")
	}
}

// TestPreemptionDisabledMasksTick verifies that a task holding a spinlock
// is not marked for rescheduling: the tick is masked while the CPU has
// interrupts disabled.
func TestPreemptionDisabledMasksTick(t *testing.T) {
	k := newTestKernel(t, 1)
	task, err := k.CreateTask(TaskConfig{
		Entry: func(t *Task, arg any) uint64 {
			c := t.CPU()
			t.DisablePreemption()
			if c.intrEnabled.Load() {
				return 1 // interrupts must be masked
			}
			t.Kernel().Tick(c.ID())
			if t.needResched.Load() {
				return 2 // the masked tick must not mark the task
			}
			t.EnablePreemption()
			if !c.intrEnabled.Load() {
				return 3 // interrupts must be restored
			}
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer task.DecRef()
	if got := mustJoin(t, task); got != 0 {
		t.Errorf("Join = %d, want 0", got)
	}
}
