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

// Package sync provides the kernel's low-level synchronization primitives,
// along with aliases of standard library types.
package sync

import (
	"runtime"

	"basalt.dev/basalt/pkg/atomicbitops"
)

// Preemptible is implemented by execution contexts whose involuntary
// preemption can be suppressed for the duration of a critical section.
// Acquiring a SpinLock disables preemption of the caller; releasing it
// restores the prior state, including the saved interrupt-enable flag.
type Preemptible interface {
	// DisablePreemption disables involuntary preemption of the caller.
	// Calls nest; each must be paired with EnablePreemption.
	DisablePreemption()

	// EnablePreemption re-enables involuntary preemption once all nested
	// DisablePreemption calls have been undone.
	EnablePreemption()
}

// maxSpins is the number of tight acquisition attempts made before the
// spinner yields the underlying processor and retries.
const maxSpins = 128

// SpinLock is busy-wait mutual exclusion for short critical sections. It is
// the only lock that may be taken from interrupt context.
//
// Lock disables preemption of the caller (when one is supplied) before
// spinning on the acquisition flag, so the holder cannot be descheduled
// mid-critical-section; Unlock restores the prior state. Blocking operations
// must never be invoked while a SpinLock is held.
//
// The zero value for SpinLock is an unlocked lock ready for use.
type SpinLock struct {
	locked atomicbitops.Bool

	// holder is the context whose preemption is suppressed while the lock
	// is held. holder is written only by the lock holder.
	holder Preemptible
}

// Lock acquires l, busy-waiting until it is available. p is the calling
// execution context, or nil when called from boot or interrupt context
// where there is nothing to preempt.
func (l *SpinLock) Lock(p Preemptible) {
	if p != nil {
		p.DisablePreemption()
	}
	for spins := 0; !l.locked.CompareAndSwap(false, true); spins++ {
		if spins >= maxSpins {
			// Let the holder make progress.
			runtime.Gosched()
			spins = 0
		}
	}
	l.holder = p
}

// TryLock attempts to acquire l without spinning. It returns true on
// success; on failure the caller's preemption state is left untouched.
func (l *SpinLock) TryLock(p Preemptible) bool {
	if p != nil {
		p.DisablePreemption()
	}
	if !l.locked.CompareAndSwap(false, true) {
		if p != nil {
			p.EnablePreemption()
		}
		return false
	}
	l.holder = p
	return true
}

// Unlock releases l and restores the holder's preemption state. Unlocking
// an unlocked SpinLock is a fatal error.
func (l *SpinLock) Unlock() {
	p := l.holder
	l.holder = nil
	if !l.locked.Swap(false) {
		panic("SpinLock: unlock of unlocked lock")
	}
	if p != nil {
		p.EnablePreemption()
	}
}

// IsLocked returns whether l is currently held. The result is inherently
// racy and is intended for assertions and tests only.
func (l *SpinLock) IsLocked() bool {
	return l.locked.Load()
}
