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
	"fmt"
	"reflect"

	"basalt.dev/basalt/pkg/arch"
)

const (
	// KernelStackPages is the size of a task's kernel stack in frames. The
	// frames are contiguous.
	KernelStackPages = 4

	// TrapFramePages is the size of a task's trap-frame area in frames.
	TrapFramePages = 1
)

// TaskEntry is a task's entry function. Its return value becomes the task's
// exit status.
type TaskEntry func(t *Task, arg any) uint64

// TaskConfig defines a new task.
type TaskConfig struct {
	// Name is the task's friendly name. Defaults to "task-<id>".
	Name string

	// Entry is the function the task starts executing. Required.
	Entry TaskEntry

	// Arg is passed to Entry through the trap frame's argument register.
	Arg any

	// ThreadGroup is the thread group the task joins. Zero starts a new
	// group with the task as its leader.
	ThreadGroup ThreadID

	// Parent is the thread group ID of the creating process, or zero for a
	// parentless task.
	Parent ThreadID
}

// trampolinePC is the code address a new task's saved context returns into.
var trampolinePC = uint64(reflect.ValueOf((*Task).trampoline).Pointer())

// CreateTask allocates a new task, registers it in the task table, and
// makes it schedulable. The task starts in TaskRunnable and executes once a
// CPU dispatches it.
//
// The returned handle holds a reference on the task; the caller is
// responsible for dropping it, typically after Join.
//
// Returns errors.ErrResourceExhausted if the kernel stack or trap frame
// cannot be allocated; a partial allocation is rolled back.
func (k *Kernel) CreateTask(cfg TaskConfig) (*Task, error) {
	if cfg.Entry == nil {
		panic("CreateTask: no entry function")
	}
	kstack, err := k.mem.Allocate(KernelStackPages)
	if err != nil {
		k.memWarnLog.Warningf("task creation failed: %v", err)
		return nil, err
	}
	tfFrame, err := k.mem.Allocate(TrapFramePages)
	if err != nil {
		kstack.Release()
		k.memWarnLog.Warningf("task creation failed: %v", err)
		return nil, err
	}

	id := k.tasks.newID()
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("task-%d", id)
	}
	tgid := cfg.ThreadGroup
	if tgid == 0 {
		tgid = id
	}
	t := &Task{
		id:      id,
		tgid:    tgid,
		parent:  cfg.Parent,
		name:    name,
		k:       k,
		state:   TaskRunnable,
		exited:  make(chan struct{}),
		resume:  make(chan *CPU, 1),
		kstack:  kstack,
		tfFrame: tfFrame,
	}

	// The stack grows down from the top of the grant. The trap frame names
	// the entry point; the saved context names the trampoline, which
	// restores the trap frame on first dispatch.
	sp := kstack.End()
	tf := arch.NewTrapFrame(k.cfg.ISA)
	tf.SetSupervisor()
	tf.SetStackPointer(sp)
	tf.SetEntry(func(arg any) uint64 {
		return cfg.Entry(t, arg)
	}, cfg.Arg)
	t.tf = tf
	t.ctx.Set(trampolinePC, sp)

	k.tasks.add(t)
	t.IncRef() // held by t.run.
	go t.run()
	k.sched.enqueue(t)
	k.log.Debugf("%v: created, kstack [%#x, %#x)", t, kstack.Base(), kstack.End())
	return t, nil
}
