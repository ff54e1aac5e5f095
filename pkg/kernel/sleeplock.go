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

// SleepLock is a mutex whose waiters sleep instead of spinning. It is the
// right lock for long critical sections; the short internal state update is
// guarded by a spinlock.
//
// SleepLock.lk is ordered before the wait queue's lock.
//
// The zero value is an unlocked, usable lock.
type SleepLock struct {
	// lk guards locked and bridges to the waiter queue.
	lk sync.SpinLock

	// locked is the lock state. It is protected by lk.
	locked bool

	// waiters holds tasks blocked on the lock.
	waiters WaitQueue
}

// Lock acquires the lock, sleeping until it is available.
//
// The calling task joins the waiter queue before releasing the internal
// spinlock, so an unlock racing with the enqueue cannot miss the waiter.
// Sleeping is uninterruptible; acquisition is re-checked on every wakeup,
// so a waiter that loses the race to a fresh acquirer just sleeps again.
//
// Preconditions: cur is the calling task. Preemption must be enabled.
func (l *SleepLock) Lock(cur *Task) {
	cur.assertCanBlock()
	for {
		l.lk.Lock(cur)
		if !l.locked {
			l.locked = true
			l.lk.Unlock()
			return
		}
		l.waiters.lk.Lock(cur)
		l.waiters.enqueueLocked(cur)
		l.waiters.lk.Unlock()
		l.lk.Unlock()
		cur.Sleep(false)
	}
}

// TryLock acquires the lock if it is free, without blocking. It returns
// whether the lock was acquired.
func (l *SleepLock) TryLock(cur *Task) bool {
	l.lk.Lock(cur)
	defer l.lk.Unlock()
	if l.locked {
		return false
	}
	l.locked = true
	return true
}

// Unlock releases the lock and wakes the oldest waiter, if any.
//
// Preconditions: the lock must be held.
func (l *SleepLock) Unlock(cur *Task) {
	l.lk.Lock(cur)
	if !l.locked {
		panic("SleepLock: unlock of unlocked lock")
	}
	l.locked = false
	l.lk.Unlock()
	l.waiters.WakeUpOne(cur)
}

// IsLocked returns whether the lock is currently held. cur is the calling
// task, or nil from outside the kernel.
func (l *SleepLock) IsLocked(cur *Task) bool {
	l.lk.Lock(cur)
	defer l.lk.Unlock()
	return l.locked
}
