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

// Package arch models the architecture-specific execution state of the
// supported targets. Register files are plain data selected by kernel
// configuration rather than build tags, so every target is exercised on any
// host.
//
// Two kinds of saved state exist. A Context is the minimal register pair
// saved at a cooperative switch point; it is only meaningful while its task
// is not running. A TrapFrame is the full register snapshot captured at a
// privilege-level entry; resuming from it can land anywhere, including the
// first instruction of a newly created task.
package arch

import (
	"fmt"
	"reflect"
)

// ISA identifies a supported instruction set architecture.
type ISA int

const (
	// RISCV64 is the riscv64gc target.
	RISCV64 ISA = iota

	// LoongArch64 is the loongarch64 target.
	LoongArch64
)

func (isa ISA) String() string {
	switch isa {
	case RISCV64:
		return "riscv64"
	case LoongArch64:
		return "loongarch64"
	default:
		return fmt.Sprintf("unknown ISA (%d)", int(isa))
	}
}

// Entry is the simulated program-counter target of a trap-frame resume: the
// function the saved pc refers to, applied to the saved argument register.
// The returned value is the task's return value.
type Entry func(arg any) uint64

// Context is the minimal saved register set used for cooperative
// kernel-to-kernel switches: a return address and a stack pointer. It is
// valid only while the owning task is switched out.
type Context struct {
	// RA is the saved return address.
	RA uint64

	// SP is the saved kernel stack pointer.
	SP uint64
}

// Set records the resume point.
func (c *Context) Set(ra, sp uint64) {
	c.RA = ra
	c.SP = sp
}

// TrapFrame is the accessor contract over an architecture-specific register
// snapshot. The task core manipulates trap frames exclusively through this
// interface; field layout is owned by the per-ISA implementations.
type TrapFrame interface {
	// ISA returns the architecture this frame belongs to.
	ISA() ISA

	// SetEntry points the saved pc at fn with the argument register set to
	// arg.
	SetEntry(fn Entry, arg any)

	// Entry returns the saved pc target and argument register.
	Entry() (Entry, any)

	// PC returns the numeric value of the saved program counter.
	PC() uint64

	// SetStackPointer sets the saved stack pointer register.
	SetStackPointer(sp uint64)

	// StackPointer returns the saved stack pointer register.
	StackPointer() uint64

	// SetSupervisor marks the frame so that resuming it stays in
	// supervisor (kernel) privilege with interrupts enabled on return.
	SetSupervisor()

	// Supervisor returns whether the frame resumes in supervisor
	// privilege.
	Supervisor() bool
}

// NewTrapFrame returns a zeroed trap frame for the given ISA.
func NewTrapFrame(isa ISA) TrapFrame {
	switch isa {
	case RISCV64:
		return &trapFrameRV64{}
	case LoongArch64:
		return &trapFrameLA64{}
	default:
		panic(fmt.Sprintf("NewTrapFrame: %v", isa))
	}
}

// Restore is the low-level resume-from-trap-frame routine: it loads the
// saved register state and transfers control to the saved program counter.
// It returns only when the resumed code itself returns, carrying the task's
// return value.
func Restore(tf TrapFrame) uint64 {
	fn, arg := tf.Entry()
	if fn == nil {
		panic("Restore: trap frame has no saved pc")
	}
	if !tf.Supervisor() {
		panic("Restore: resuming user privilege is not supported")
	}
	return fn(arg)
}

// codePointer returns the entry address of fn, used to populate the saved
// pc with a real code address.
func codePointer(fn Entry) uint64 {
	if fn == nil {
		return 0
	}
	return uint64(reflect.ValueOf(fn).Pointer())
}
