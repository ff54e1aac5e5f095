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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"basalt.dev/basalt/pkg/kernel"
	"basalt.dev/basalt/pkg/log"
	"basalt.dev/basalt/pkg/sync"
)

// demoCmd implements subcommands.Command for the "demo" command: it boots a
// kernel and runs a producer/consumer workload on it.
type demoCmd struct {
	config    string
	producers int
	consumers int
	items     int
}

// Name implements subcommands.Command.Name.
func (*demoCmd) Name() string {
	return "demo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*demoCmd) Synopsis() string {
	return "boot a kernel and run a producer/consumer workload"
}

// Usage implements subcommands.Command.Usage.
func (*demoCmd) Usage() string {
	return `demo [flags] - boot a kernel and run a demo workload
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *demoCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to a TOML boot configuration")
	f.IntVar(&c.producers, "producers", 2, "number of producer tasks")
	f.IntVar(&c.consumers, "consumers", 2, "number of consumer tasks")
	f.IntVar(&c.items, "items", 1000, "items sent by each producer")
}

// Execute implements subcommands.Command.Execute.
func (c *demoCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	cfg, err := loadBootConfig(c.config)
	if err != nil {
		fmt.Fprintln(flag.CommandLine.Output(), err)
		return subcommands.ExitUsageError
	}
	if err := cfg.setupLogging(); err != nil {
		fmt.Fprintln(flag.CommandLine.Output(), err)
		return subcommands.ExitUsageError
	}
	kcfg, err := cfg.kernelConfig()
	if err != nil {
		fmt.Fprintln(flag.CommandLine.Output(), err)
		return subcommands.ExitUsageError
	}
	k, err := kernel.New(kcfg)
	if err != nil {
		log.Warningf("creating kernel: %v", err)
		return subcommands.ExitFailure
	}
	k.Start()
	defer k.Shutdown()

	if err := c.runWorkload(k); err != nil {
		log.Warningf("demo: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// mailbox is a bounded single-slot channel between tasks, built from the
// kernel's own primitives: a spinlock over the slot and two wait queues for
// the full and empty transitions.
type mailbox struct {
	items kernel.WaitQueue
	space kernel.WaitQueue

	mu    sync.SpinLock
	full  bool
	value uint64
}

func (m *mailbox) put(t *kernel.Task, v uint64) {
	m.space.SleepUntil(t, false, func() bool {
		m.mu.Lock(t)
		defer m.mu.Unlock()
		if m.full {
			return false
		}
		m.full = true
		m.value = v
		return true
	})
	m.items.WakeUpOne(t)
}

func (m *mailbox) get(t *kernel.Task) uint64 {
	var v uint64
	m.items.SleepUntil(t, false, func() bool {
		m.mu.Lock(t)
		defer m.mu.Unlock()
		if !m.full {
			return false
		}
		m.full = false
		v = m.value
		return true
	})
	m.space.WakeUpOne(t)
	return v
}

// runWorkload pushes items through a mailbox between producer and consumer
// tasks, with a SleepLock-guarded tally, and verifies the totals.
func (c *demoCmd) runWorkload(k *kernel.Kernel) error {
	var (
		box   mailbox
		tally kernel.SleepLock
		sum   uint64
	)
	total := c.producers * c.items

	var eg errgroup.Group
	for i := 0; i < c.producers; i++ {
		i := i
		eg.Go(func() error {
			t, err := k.CreateTask(kernel.TaskConfig{
				Name: fmt.Sprintf("producer-%d", i),
				Entry: func(t *kernel.Task, arg any) uint64 {
					for j := 0; j < c.items; j++ {
						box.put(t, 1)
						t.PreemptPoint()
					}
					return 0
				},
			})
			if err != nil {
				return err
			}
			defer t.DecRef()
			_, err = t.Join(nil)
			return err
		})
	}

	// Consumers split the total between them; each pulls its share and adds
	// it to the shared tally.
	share := total / c.consumers
	remainder := total % c.consumers
	for i := 0; i < c.consumers; i++ {
		n := share
		if i == 0 {
			n += remainder
		}
		i := i
		eg.Go(func() error {
			t, err := k.CreateTask(kernel.TaskConfig{
				Name: fmt.Sprintf("consumer-%d", i),
				Entry: func(t *kernel.Task, arg any) uint64 {
					var local uint64
					for j := 0; j < n; j++ {
						local += box.get(t)
						t.PreemptPoint()
					}
					tally.Lock(t)
					sum += local
					tally.Unlock(t)
					return local
				},
			})
			if err != nil {
				return err
			}
			defer t.DecRef()
			_, err = t.Join(nil)
			return err
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	if sum != uint64(total) {
		return fmt.Errorf("tally is %d, want %d", sum, total)
	}
	log.Infof("demo: %d items through the mailbox, tally %d", total, sum)
	return nil
}
