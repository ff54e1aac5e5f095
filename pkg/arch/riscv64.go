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

// sstatus bits relevant to trap return.
const (
	// SstatusSIE is the supervisor interrupt-enable bit.
	SstatusSIE = 1 << 1

	// SstatusSPIE is the prior interrupt-enable bit, restored into SIE by
	// sret.
	SstatusSPIE = 1 << 5

	// SstatusSPP is the prior privilege bit; set means the trap came from
	// (and sret returns to) supervisor mode.
	SstatusSPP = 1 << 8
)

// trapFrameRV64 is the register snapshot pushed on trap entry on riscv64.
// X[0] is hardwired zero and kept for layout fidelity; the stack pointer is
// X[2] (sp) and the first argument register is X[10] (a0).
type trapFrameRV64 struct {
	X       [32]uint64
	Sepc    uint64
	Sstatus uint64

	// entry and arg carry the values behind Sepc and X[10] in this model.
	entry Entry
	arg   any
}

// ISA implements TrapFrame.ISA.
func (tf *trapFrameRV64) ISA() ISA {
	return RISCV64
}

// SetEntry implements TrapFrame.SetEntry.
func (tf *trapFrameRV64) SetEntry(fn Entry, arg any) {
	tf.entry = fn
	tf.arg = arg
	tf.Sepc = codePointer(fn)
}

// Entry implements TrapFrame.Entry.
func (tf *trapFrameRV64) Entry() (Entry, any) {
	return tf.entry, tf.arg
}

// PC implements TrapFrame.PC.
func (tf *trapFrameRV64) PC() uint64 {
	return tf.Sepc
}

// SetStackPointer implements TrapFrame.SetStackPointer.
func (tf *trapFrameRV64) SetStackPointer(sp uint64) {
	tf.X[2] = sp
}

// StackPointer implements TrapFrame.StackPointer.
func (tf *trapFrameRV64) StackPointer() uint64 {
	return tf.X[2]
}

// SetSupervisor implements TrapFrame.SetSupervisor. sret will restore SPIE
// into SIE, so interrupts come back on when the frame is resumed.
func (tf *trapFrameRV64) SetSupervisor() {
	tf.Sstatus |= SstatusSPP | SstatusSPIE
}

// Supervisor implements TrapFrame.Supervisor.
func (tf *trapFrameRV64) Supervisor() bool {
	return tf.Sstatus&SstatusSPP != 0
}
