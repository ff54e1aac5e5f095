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

// Package atomicbitops provides value types wrapping atomic memory
// operations, so that fields requiring atomic access are impossible to
// touch with plain loads and stores.
package atomicbitops

import "sync/atomic"

// Uint32 is an atomic uint32.
type Uint32 struct {
	value uint32
}

// FromUint32 returns a Uint32 initialized to value val.
//
//go:nosplit
func FromUint32(val uint32) Uint32 {
	return Uint32{value: val}
}

// Load is analogous to atomic.LoadUint32.
//
//go:nosplit
func (u *Uint32) Load() uint32 {
	return atomic.LoadUint32(&u.value)
}

// Store is analogous to atomic.StoreUint32.
//
//go:nosplit
func (u *Uint32) Store(val uint32) {
	atomic.StoreUint32(&u.value, val)
}

// Add is analogous to atomic.AddUint32.
//
//go:nosplit
func (u *Uint32) Add(val uint32) uint32 {
	return atomic.AddUint32(&u.value, val)
}

// Swap is analogous to atomic.SwapUint32.
//
//go:nosplit
func (u *Uint32) Swap(val uint32) uint32 {
	return atomic.SwapUint32(&u.value, val)
}

// CompareAndSwap is analogous to atomic.CompareAndSwapUint32.
//
//go:nosplit
func (u *Uint32) CompareAndSwap(oldVal, newVal uint32) bool {
	return atomic.CompareAndSwapUint32(&u.value, oldVal, newVal)
}

// Int32 is an atomic int32.
type Int32 struct {
	value int32
}

// FromInt32 returns an Int32 initialized to value val.
//
//go:nosplit
func FromInt32(val int32) Int32 {
	return Int32{value: val}
}

// Load is analogous to atomic.LoadInt32.
//
//go:nosplit
func (i *Int32) Load() int32 {
	return atomic.LoadInt32(&i.value)
}

// Store is analogous to atomic.StoreInt32.
//
//go:nosplit
func (i *Int32) Store(val int32) {
	atomic.StoreInt32(&i.value, val)
}

// Add is analogous to atomic.AddInt32.
//
//go:nosplit
func (i *Int32) Add(val int32) int32 {
	return atomic.AddInt32(&i.value, val)
}

// Int64 is an atomic int64.
type Int64 struct {
	value int64
}

// Load is analogous to atomic.LoadInt64.
//
//go:nosplit
func (i *Int64) Load() int64 {
	return atomic.LoadInt64(&i.value)
}

// Store is analogous to atomic.StoreInt64.
//
//go:nosplit
func (i *Int64) Store(val int64) {
	atomic.StoreInt64(&i.value, val)
}

// Add is analogous to atomic.AddInt64.
//
//go:nosplit
func (i *Int64) Add(val int64) int64 {
	return atomic.AddInt64(&i.value, val)
}

// Bool is an atomic Boolean.
//
// It is implemented by a Uint32, with value 0 indicating false, and 1
// indicating true.
type Bool struct {
	Uint32
}

// FromBool returns a Bool initialized to value val.
//
//go:nosplit
func FromBool(val bool) Bool {
	var u uint32
	if val {
		u = 1
	}
	return Bool{
		Uint32{value: u},
	}
}

// Load is analogous to atomic.LoadBool, if such a thing existed.
//
//go:nosplit
func (b *Bool) Load() bool {
	return atomic.LoadUint32(&b.value) == 1
}

// Store is analogous to atomic.StoreBool, if such a thing existed.
//
//go:nosplit
func (b *Bool) Store(val bool) {
	var u uint32
	if val {
		u = 1
	}
	atomic.StoreUint32(&b.value, u)
}

// Swap is analogous to atomic.SwapBool, if such a thing existed.
//
//go:nosplit
func (b *Bool) Swap(val bool) bool {
	var u uint32
	if val {
		u = 1
	}
	return atomic.SwapUint32(&b.value, u) == 1
}

// CompareAndSwap is analogous to atomic.CompareAndSwapBool, if such a thing
// existed.
//
//go:nosplit
func (b *Bool) CompareAndSwap(oldVal, newVal bool) bool {
	var old, new uint32
	if oldVal {
		old = 1
	}
	if newVal {
		new = 1
	}
	return atomic.CompareAndSwapUint32(&b.value, old, new)
}
