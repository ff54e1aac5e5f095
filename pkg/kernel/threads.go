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

	"github.com/google/btree"

	"basalt.dev/basalt/pkg/atomicbitops"
	"basalt.dev/basalt/pkg/sync"
)

// ThreadID is a unique task identifier. IDs are allocated monotonically
// starting from 1 and are never reused.
type ThreadID int32

func (tid ThreadID) String() string {
	return fmt.Sprintf("%d", int32(tid))
}

// taskSetBTreeDegree is the branching factor of the task table.
const taskSetBTreeDegree = 8

// taskNode is a task table entry, ordered by thread ID.
type taskNode struct {
	id ThreadID
	t  *Task
}

// TaskSet is the table of all live tasks in a kernel, keyed by thread ID.
// Each entry holds a reference on its task; the reference is dropped when
// the task is reaped.
type TaskSet struct {
	// lastID is the most recently allocated thread ID.
	lastID atomicbitops.Int32

	// mu protects root.
	mu sync.Mutex

	// root is the ID-ordered table of live tasks.
	root *btree.BTreeG[taskNode]
}

func newTaskSet() *TaskSet {
	return &TaskSet{
		root: btree.NewG(taskSetBTreeDegree, func(a, b taskNode) bool {
			return a.id < b.id
		}),
	}
}

// newID allocates the next thread ID.
func (ts *TaskSet) newID() ThreadID {
	return ThreadID(ts.lastID.Add(1))
}

// add inserts t into the table, taking a reference on it.
func (ts *TaskSet) add(t *Task) {
	t.IncRef()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, dup := ts.root.ReplaceOrInsert(taskNode{id: t.id, t: t}); dup {
		panic(fmt.Sprintf("task table already contains thread ID %v", t.id))
	}
}

// remove deletes t from the table and drops the table's reference. It
// returns false if t was not present.
func (ts *TaskSet) remove(t *Task) bool {
	ts.mu.Lock()
	_, ok := ts.root.Delete(taskNode{id: t.id})
	ts.mu.Unlock()
	if ok {
		t.DecRef()
	}
	return ok
}

// Lookup returns the live task with the given thread ID, or nil.
func (ts *TaskSet) Lookup(id ThreadID) *Task {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if n, ok := ts.root.Get(taskNode{id: id}); ok {
		return n.t
	}
	return nil
}

// Len returns the number of live tasks.
func (ts *TaskSet) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.root.Len()
}

// forEach calls f on each live task in ascending thread ID order.
func (ts *TaskSet) forEach(f func(t *Task) bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.root.Ascend(func(n taskNode) bool {
		return f(n.t)
	})
}
