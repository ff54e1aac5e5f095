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

package arch

import (
	"testing"
)

var isas = []ISA{RISCV64, LoongArch64}

func TestTrapFrameRoundTrip(t *testing.T) {
	for _, isa := range isas {
		t.Run(isa.String(), func(t *testing.T) {
			tf := NewTrapFrame(isa)
			if tf.ISA() != isa {
				t.Errorf("ISA() = %v, want %v", tf.ISA(), isa)
			}

			const sp = 0x8020_4000
			tf.SetStackPointer(sp)
			if got := tf.StackPointer(); got != sp {
				t.Errorf("StackPointer() = %#x, want %#x", got, sp)
			}

			fn := Entry(func(arg any) uint64 {
				return uint64(arg.(int))
			})
			tf.SetEntry(fn, 42)
			if tf.PC() == 0 {
				t.Errorf("PC() = 0 after SetEntry")
			}
			gotFn, gotArg := tf.Entry()
			if gotFn == nil {
				t.Fatalf("Entry() returned nil pc target")
			}
			if gotArg != 42 {
				t.Errorf("Entry() arg = %v, want 42", gotArg)
			}
		})
	}
}

func TestSupervisorBits(t *testing.T) {
	for _, isa := range isas {
		t.Run(isa.String(), func(t *testing.T) {
			tf := NewTrapFrame(isa)
			tf.SetSupervisor()
			if !tf.Supervisor() {
				t.Errorf("Supervisor() = false after SetSupervisor")
			}
		})
	}
}

func TestRiscv64SupervisorSetsSPIE(t *testing.T) {
	tf := NewTrapFrame(RISCV64).(*trapFrameRV64)
	tf.SetSupervisor()
	if tf.Sstatus&SstatusSPIE == 0 {
		t.Errorf("Sstatus = %#x, SPIE not set", tf.Sstatus)
	}
	if tf.Sstatus&SstatusSPP == 0 {
		t.Errorf("Sstatus = %#x, SPP not set", tf.Sstatus)
	}
}

func TestLoong64SupervisorSetsPIE(t *testing.T) {
	tf := NewTrapFrame(LoongArch64).(*trapFrameLA64)
	tf.Prmd = PrmdPPLVMask // starts at the lowest privilege
	tf.SetSupervisor()
	if tf.Prmd&PrmdPPLVMask != 0 {
		t.Errorf("Prmd = %#x, PPLV not cleared to kernel level", tf.Prmd)
	}
	if tf.Prmd&PrmdPIE == 0 {
		t.Errorf("Prmd = %#x, PIE not set", tf.Prmd)
	}
}

func TestRestore(t *testing.T) {
	for _, isa := range isas {
		t.Run(isa.String(), func(t *testing.T) {
			tf := NewTrapFrame(isa)
			tf.SetSupervisor()
			tf.SetEntry(func(arg any) uint64 {
				return arg.(uint64) + 1
			}, uint64(41))
			if got := Restore(tf); got != 42 {
				t.Errorf("Restore() = %d, want 42", got)
			}
		})
	}
}

func TestRestoreRequiresEntry(t *testing.T) {
	tf := NewTrapFrame(RISCV64)
	tf.SetSupervisor()
	defer func() {
		if recover() == nil {
			t.Errorf("Restore of an empty frame did not panic")
		}
	}()
	Restore(tf)
}
