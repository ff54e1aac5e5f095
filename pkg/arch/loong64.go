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

// PRMD bits relevant to exception return.
const (
	// PrmdPPLVMask holds the privilege level restored by ertn; level 0 is
	// kernel.
	PrmdPPLVMask = 0x3

	// PrmdPIE is the prior interrupt-enable bit, restored by ertn.
	PrmdPIE = 1 << 2
)

// trapFrameLA64 is the register snapshot pushed on exception entry on
// loongarch64. R[0] is hardwired zero; the stack pointer is R[3] (sp) and
// the first argument register is R[4] (a0).
type trapFrameLA64 struct {
	R    [32]uint64
	Era  uint64
	Prmd uint64

	// entry and arg carry the values behind Era and R[4] in this model.
	entry Entry
	arg   any
}

// ISA implements TrapFrame.ISA.
func (tf *trapFrameLA64) ISA() ISA {
	return LoongArch64
}

// SetEntry implements TrapFrame.SetEntry.
func (tf *trapFrameLA64) SetEntry(fn Entry, arg any) {
	tf.entry = fn
	tf.arg = arg
	tf.Era = codePointer(fn)
}

// Entry implements TrapFrame.Entry.
func (tf *trapFrameLA64) Entry() (Entry, any) {
	return tf.entry, tf.arg
}

// PC implements TrapFrame.PC.
func (tf *trapFrameLA64) PC() uint64 {
	return tf.Era
}

// SetStackPointer implements TrapFrame.SetStackPointer.
func (tf *trapFrameLA64) SetStackPointer(sp uint64) {
	tf.R[3] = sp
}

// StackPointer implements TrapFrame.StackPointer.
func (tf *trapFrameLA64) StackPointer() uint64 {
	return tf.R[3]
}

// SetSupervisor implements TrapFrame.SetSupervisor.
func (tf *trapFrameLA64) SetSupervisor() {
	tf.Prmd = (tf.Prmd &^ PrmdPPLVMask) | PrmdPIE
}

// Supervisor implements TrapFrame.Supervisor.
func (tf *trapFrameLA64) Supervisor() bool {
	return tf.Prmd&PrmdPPLVMask == 0
}
