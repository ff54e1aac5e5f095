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

import "fmt"

// TaskState is a task's position in its lifecycle.
type TaskState int

const (
	// TaskRunnable means the task is on the run queue, waiting to be
	// dispatched.
	TaskRunnable TaskState = iota

	// TaskRunning means the task currently owns a CPU.
	TaskRunning

	// TaskInterruptible means the task is blocked and can be woken early by
	// Interrupt.
	TaskInterruptible

	// TaskUninterruptible means the task is blocked and only an explicit
	// wakeup resumes it.
	TaskUninterruptible

	// TaskStopped means the task has terminated. This state is final.
	TaskStopped
)

func (s TaskState) String() string {
	switch s {
	case TaskRunnable:
		return "Runnable"
	case TaskRunning:
		return "Running"
	case TaskInterruptible:
		return "Interruptible"
	case TaskUninterruptible:
		return "Uninterruptible"
	case TaskStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("unknown state (%d)", int(s))
	}
}

// blocked returns whether s is a blocked state.
func (s TaskState) blocked() bool {
	return s == TaskInterruptible || s == TaskUninterruptible
}
