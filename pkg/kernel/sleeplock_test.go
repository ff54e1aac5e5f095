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
)

// TestSleepLockExcludes verifies mutual exclusion under contention: every
// increment of the shared counter happens inside the critical section, and
// no waiter is lost.
func TestSleepLockExcludes(t *testing.T) {
	const (
		workers    = 4
		iterations = 250
	)
	k := newTestKernel(t, 2)
	var (
		l     SleepLock
		count int
	)
	tasks := make([]*Task, 0, workers)
	for i := 0; i < workers; i++ {
		task, err := k.CreateTask(TaskConfig{
			Entry: func(t *Task, arg any) uint64 {
				for j := 0; j < iterations; j++ {
					l.Lock(t)
					count++
					l.Unlock(t)
					t.Yield()
				}
				return 0
			},
		})
		if err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		mustJoin(t, task)
		task.DecRef()
	}
	if count != workers*iterations {
		t.Errorf("count = %d, want %d", count, workers*iterations)
	}
	if l.IsLocked(nil) {
		t.Errorf("lock still held after all workers exited")
	}
}

// TestSleepLockBlocksWaiter verifies that a contended Lock puts the waiter
// to sleep and that Unlock hands the lock over.
func TestSleepLockBlocksWaiter(t *testing.T) {
	k := newTestKernel(t, 2)
	var l SleepLock
	release := make(chan struct{})

	holder, err := k.CreateTask(TaskConfig{
		Name: "holder",
		Entry: func(t *Task, arg any) uint64 {
			l.Lock(t)
			<-release
			l.Unlock(t)
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer holder.DecRef()
	waitFor(t, "holder to take the lock", func() bool {
		return l.IsLocked(nil)
	})

	waiter, err := k.CreateTask(TaskConfig{
		Name: "waiter",
		Entry: func(t *Task, arg any) uint64 {
			l.Lock(t)
			l.Unlock(t)
			return 0
		},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	defer waiter.DecRef()

	waitFor(t, "waiter to block on the lock", func() bool {
		return waiter.State() == TaskUninterruptible
	})
	close(release)
	mustJoin(t, holder)
	mustJoin(t, waiter)
}

// TestSleepLockTryLock verifies the non-blocking acquisition path.
func TestSleepLockTryLock(t *testing.T) {
	k := newTestKernel(t, 1)
	var l SleepLock
	task, err := k.CreateTask(TaskConfig{
		Entry: func(t *Task, arg any) uint64 {
			if !l.TryLock(t) {
				return 1
			}
			if l.TryLock(t) {
				return 2 // must fail while held
			}
			l.Unlock(t)
			if !l.TryLock(t) {
				return 3
			}
			l.Unlock(t)
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
