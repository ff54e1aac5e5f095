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
	"basalt.dev/basalt/pkg/arch"
)

// run is the task's goroutine. It parks until the first dispatch, then
// resumes through the trampoline. The goroutine ends when the task's entry
// function returns or the task calls Exit.
func (t *Task) run() {
	defer t.DecRef()
	t.park()
	t.trampoline()
}

// trampoline is a new task's resume path. Switching to a task that has
// never run returns here (the saved context's return address), and the
// second stage restores the full trap frame, landing in the task's entry
// function.
func (t *Task) trampoline() {
	status := arch.Restore(t.tf)
	t.exit(status)
}
