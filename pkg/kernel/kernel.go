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

// Package kernel provides the task core: tasks and their lifecycle, the
// round-robin scheduler, wait queues, and sleeping locks.
//
// Each task is backed by a goroutine. Execution is serialized through CPU
// tokens: a kernel with N CPUs has N tokens, and a task's goroutine runs
// only between receiving a token on its resume channel and handing the
// token to the next task at a switch point. Every CPU also has an idle
// task, which holds the token whenever no task is runnable.
//
// Lock order:
//
//	Task.mu
//	  scheduler lock (roundRobin.mu)
//	SleepLock.lk
//	  WaitQueue.lk
package kernel

import (
	"fmt"
	"time"

	"basalt.dev/basalt/pkg/arch"
	"basalt.dev/basalt/pkg/atomicbitops"
	"basalt.dev/basalt/pkg/errors"
	"basalt.dev/basalt/pkg/log"
	"basalt.dev/basalt/pkg/pgalloc"
	"basalt.dev/basalt/pkg/sync"
)

// DefaultMemoryPages is the frame pool size used when Config leaves both
// Allocator and MemoryPages unset.
const DefaultMemoryPages = 1024

// Config configures a Kernel.
type Config struct {
	// CPUs is the number of CPUs. Must be at least 1.
	CPUs int

	// ISA selects the target architecture for task trap frames.
	ISA arch.ISA

	// MemoryPages bounds the frame pool when Allocator is nil. Zero means
	// DefaultMemoryPages.
	MemoryPages int

	// Allocator backs kernel stacks and trap frames. If nil, a pgalloc.Pool
	// of MemoryPages frames is used.
	Allocator pgalloc.Allocator

	// PreemptQuantum, if nonzero, enables an internal timer that marks the
	// task running on each CPU for rescheduling once per quantum. Tasks
	// observe the mark at their next PreemptPoint.
	PreemptQuantum time.Duration

	// Log is the kernel's logger. If nil, the process-wide logger is used.
	Log log.Logger
}

// Kernel owns the task table, the scheduler and the CPUs.
type Kernel struct {
	cfg   Config
	log   log.Logger
	tasks *TaskSet
	sched scheduler
	cpus  []*CPU

	mem pgalloc.Allocator

	// memWarnLog rate-limits out-of-frames warnings, which otherwise flood
	// the log when a workload keeps retrying task creation.
	memWarnLog log.Logger

	// shutdownCh is closed by Shutdown to stop the CPUs.
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// wg tracks the CPU goroutines and the preemption timer.
	wg sync.WaitGroup
}

// New creates a stopped kernel from cfg. Call Start to bring the CPUs up.
func New(cfg Config) (*Kernel, error) {
	if cfg.CPUs < 1 {
		return nil, fmt.Errorf("invalid CPU count %d", cfg.CPUs)
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.Log()
	}
	mem := cfg.Allocator
	if mem == nil {
		pages := cfg.MemoryPages
		if pages == 0 {
			pages = DefaultMemoryPages
		}
		mem = pgalloc.NewPool(pages)
	}
	k := &Kernel{
		cfg:        cfg,
		log:        logger,
		mem:        mem,
		memWarnLog: log.RateLimitedLogger(logger, 5*time.Second),
		tasks:      newTaskSet(),
		shutdownCh: make(chan struct{}),
	}
	k.sched = newRoundRobin()
	k.cpus = make([]*CPU, cfg.CPUs)
	for i := range k.cpus {
		k.cpus[i] = newCPU(k, i)
	}
	k.log.Infof("kernel: %d %v CPU(s)", cfg.CPUs, cfg.ISA)
	return k, nil
}

// TaskSet returns the kernel's task table.
func (k *Kernel) TaskSet() *TaskSet {
	return k.tasks
}

// Start brings up the CPUs. Tasks created before Start are dispatched once
// a CPU is running.
func (k *Kernel) Start() {
	for _, c := range k.cpus {
		k.wg.Add(1)
		go c.run()
	}
	if k.cfg.PreemptQuantum > 0 {
		k.wg.Add(1)
		go k.preemptTimer()
	}
}

// Shutdown stops the CPUs and waits for them to exit. Callers are expected
// to have joined their tasks first; a task still blocked at shutdown is
// never resumed.
func (k *Kernel) Shutdown() {
	k.shutdownOnce.Do(func() {
		close(k.shutdownCh)
		k.sched.stop()
	})
	k.wg.Wait()
	k.log.Infof("kernel: stopped")
}

// Interrupt delivers an interrupt to the task with the given thread ID. It
// returns errors.ErrAlreadyTerminated if no such task is live.
func (k *Kernel) Interrupt(id ThreadID) error {
	t := k.tasks.Lookup(id)
	if t == nil {
		return errors.ErrAlreadyTerminated
	}
	t.Interrupt()
	return nil
}

// Tick simulates a timer interrupt on the given CPU: if the CPU has
// interrupts enabled and is running a task, the task is marked for
// rescheduling at its next preemption point.
func (k *Kernel) Tick(cpu int) {
	c := k.cpus[cpu]
	if !c.intrEnabled.Load() {
		return
	}
	if t := c.Current(); t != nil {
		t.needResched.Store(true)
	}
}

func (k *Kernel) preemptTimer() {
	defer k.wg.Done()
	ticker := time.NewTicker(k.cfg.PreemptQuantum)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for i := range k.cpus {
				k.Tick(i)
			}
		case <-k.shutdownCh:
			return
		}
	}
}

// CPU models a single hart. Its goroutine runs the per-CPU idle task: it
// pulls runnable tasks off the scheduler, hands them the CPU token, and
// waits for the token to come back.
type CPU struct {
	k  *Kernel
	id int

	// idle is this CPU's idle task. It is never on the run queue and never
	// in the task table.
	idle *Task

	// intrEnabled is the simulated interrupt-enable flag: cleared while the
	// task on this CPU has preemption disabled (spinlock held), recomputed
	// at each dispatch so the mask follows the task rather than sticking to
	// the CPU it was set on.
	intrEnabled atomicbitops.Bool

	// mu protects cur.
	mu sync.Mutex

	// cur is the task currently holding this CPU's token, or nil when the
	// idle task holds it.
	cur *Task
}

func newCPU(k *Kernel, id int) *CPU {
	c := &CPU{
		k:           k,
		id:          id,
		intrEnabled: atomicbitops.FromBool(true),
	}
	c.idle = &Task{
		name:   fmt.Sprintf("idle/%d", id),
		k:      k,
		state:  TaskRunning,
		resume: make(chan *CPU, 1),
	}
	return c
}

// ID returns the CPU's index.
func (c *CPU) ID() int {
	return c.id
}

// Current returns the task running on this CPU, or nil if the CPU is idle.
func (c *CPU) Current() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *CPU) setCurrent(t *Task) {
	c.mu.Lock()
	c.cur = t
	c.mu.Unlock()
}

// dispatch hands the CPU token to next. If next is a real task it becomes
// TaskRunning; the idle task takes the token when nothing is runnable.
//
// Preconditions: the caller owns c's token. If next is not c.idle, next was
// dequeued from the run queue and is TaskRunnable.
func (c *CPU) dispatch(next *Task) {
	if next != c.idle {
		next.mu.Lock()
		next.state = TaskRunning
		next.mu.Unlock()
		c.setCurrent(next)
		// The interrupt mask travels with the task: a task that yields
		// with preemption disabled resumes masked, whichever CPU it lands
		// on, and the CPU it left is unmasked for its next task.
		c.intrEnabled.Store(next.preemptCount.Load() == 0)
	} else {
		c.setCurrent(nil)
		c.intrEnabled.Store(true)
	}
	next.resume <- c
}

// reschedule passes c's token to the next runnable task, or to c's idle
// task if nothing is runnable. Called by a task that is giving up the CPU
// without remaining runnable.
func (c *CPU) reschedule() {
	next := c.k.sched.dequeue()
	if next == nil {
		next = c.idle
	}
	c.dispatch(next)
}

// run is the idle task's loop. The CPU starts out holding its own token.
func (c *CPU) run() {
	defer c.k.wg.Done()
	for {
		t, ok := c.k.sched.waitRunnable()
		if !ok {
			return
		}
		c.dispatch(t)
		select {
		case <-c.idle.resume:
			// Token returned; look for more work.
		case <-c.k.shutdownCh:
			return
		}
	}
}
