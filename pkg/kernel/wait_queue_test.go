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
	"testing"

	"github.com/google/go-cmp/cmp"

	"basalt.dev/basalt/pkg/sync"
)

// sleepers creates n tasks named "0".."n-1" that sleep on q, record their
// name in tr when woken, and exit. It returns once all of them are asleep.
func sleepers(t *testing.T, k *Kernel, q *WaitQueue, tr *trace, n int) []*Task {
	t.Helper()
	tasks := make([]*Task, 0, n)
	for i := 0; i < n; i++ {
		// Tasks run in creation order on a single CPU, so the queue order
		// matches the name order.
		task, err := k.CreateTask(TaskConfig{
			Name: string(rune('0' + i)),
			Entry: func(t *Task, arg any) uint64 {
				if err := q.Sleep(t, false); err != nil {
					return 1
				}
				tr.add(t.Name())
				return 0
			},
		})
		if err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		task := task
		waitFor(t, "task to block", func() bool {
			return task.State() == TaskUninterruptible
		})
	}
	return tasks
}

// TestWaitQueueFIFO verifies that tasks are woken in the order they went to
// sleep.
func TestWaitQueueFIFO(t *testing.T) {
	k := newTestKernel(t, 1)
	var (
		q  WaitQueue
		tr trace
	)
	tasks := sleepers(t, k, &q, &tr, 3)

	for i := range tasks {
		if !q.WakeUpOne(nil) {
			t.Fatalf("WakeUpOne found no sleeper (wakeup %d)", i)
		}
	}
	if q.WakeUpOne(nil) {
		t.Errorf("WakeUpOne on an empty queue woke something")
	}
	for _, task := range tasks {
		mustJoin(t, task)
		task.DecRef()
	}

	want := []string{"0", "1", "2"}
	if diff := cmp.Diff(want, tr.get()); diff != "" {
		t.Errorf("wakeup order mismatch (-want +got):\n%s", diff)
	}
}

// TestWaitQueueWakeAll verifies that a mass wakeup empties the queue and
// wakes everyone in FIFO order.
func TestWaitQueueWakeAll(t *testing.T) {
	k := newTestKernel(t, 1)
	var (
		q  WaitQueue
		tr trace
	)
	tasks := sleepers(t, k, &q, &tr, 5)

	if got := q.WakeUpAll(nil); got != 5 {
		t.Errorf("WakeUpAll woke %d tasks, want 5", got)
	}
	if !q.Empty(nil) {
		t.Errorf("queue not empty after WakeUpAll")
	}
	for _, task := range tasks {
		mustJoin(t, task)
		task.DecRef()
	}

	want := []string{"0", "1", "2", "3", "4"}
	if diff := cmp.Diff(want, tr.get()); diff != "" {
		t.Errorf("wakeup order mismatch (-want +got):\n%s", diff)
	}
}

// TestWaitQueueSleepUntil runs a producer/consumer handshake through
// SleepUntil, which must not lose a wakeup even when the producer runs
// before the consumer enqueues itself.
func TestWaitQueueSleepUntil(t *testing.T) {
	const items = 200
	k := newTestKernel(t, 2)
	var (
		q     WaitQueue
		lk    sync.SpinLock
		ready int
	)

	consumer, err := k.CreateTask(TaskConfig{
		Name: "consumer",
		Entry: func(t *Task, arg any) uint64 {
			var sum uint64
			for i := 0; i < items; i++ {
				var v int
				q.SleepUntil(t, false, func() bool {
					lk.Lock(t)
					defer lk.Unlock()
					if ready == 0 {
						return false
					}
					v = ready
					ready = 0
					return true
				})
				sum += uint64(v)
			}
			return sum
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer consumer.DecRef()

	producer, err := k.CreateTask(TaskConfig{
		Name: "producer",
		Entry: func(t *Task, arg any) uint64 {
			for i := 1; i <= items; i++ {
				for {
					lk.Lock(t)
					if ready == 0 {
						ready = 1
						lk.Unlock()
						break
					}
					lk.Unlock()
					t.Yield()
				}
				q.WakeUpOne(t)
			}
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer producer.DecRef()

	mustJoin(t, producer)
	if got := mustJoin(t, consumer); got != items {
		t.Errorf("consumer summed %d, want %d", got, items)
	}
}

// TestWaitQueueInterruptedSleeperLeavesQueue verifies that a sleeper whose
// wait is interrupted removes itself, so later wakeups go to the remaining
// sleepers.
func TestWaitQueueInterruptedSleeperLeavesQueue(t *testing.T) {
	k := newTestKernel(t, 1)
	var (
		q  WaitQueue
		tr trace
	)

	first, err := k.CreateTask(TaskConfig{
		Name: "first",
		Entry: func(t *Task, arg any) uint64 {
			if err := q.Sleep(t, true); err != nil {
				return 1 // interrupted, off the queue
			}
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer first.DecRef()
	waitFor(t, "first sleeper to block", func() bool {
		return first.State() == TaskInterruptible
	})

	second, err := k.CreateTask(TaskConfig{
		Name: "second",
		Entry: func(t *Task, arg any) uint64 {
			if err := q.Sleep(t, false); err != nil {
				return 1
			}
			tr.add(t.Name())
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer second.DecRef()
	waitFor(t, "second sleeper to block", func() bool {
		return second.State() == TaskUninterruptible
	})

	first.Interrupt()
	if got := mustJoin(t, first); got != 1 {
		t.Fatalf("first sleeper exited with %d, want 1 (interrupted)", got)
	}

	// The interrupted task removed itself; the single wakeup must reach the
	// second sleeper.
	if !q.WakeUpOne(nil) {
		t.Fatalf("WakeUpOne found no sleeper")
	}
	mustJoin(t, second)
	if diff := cmp.Diff([]string{"second"}, tr.get()); diff != "" {
		t.Errorf("wakeup order mismatch (-want +got):\n%s", diff)
	}
	if !q.Empty(nil) {
		t.Errorf("queue not empty at the end")
	}
}
