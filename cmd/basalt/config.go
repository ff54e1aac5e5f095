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
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"basalt.dev/basalt/pkg/arch"
	"basalt.dev/basalt/pkg/kernel"
	"basalt.dev/basalt/pkg/log"
)

// duration wraps time.Duration so it can be given as a string in TOML, e.g.
// preempt-quantum = "10ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// bootConfig is the on-disk boot configuration.
type bootConfig struct {
	// CPUs is the number of CPUs to bring up.
	CPUs int `toml:"cpus"`

	// ISA is the target architecture: "riscv64" or "loongarch64".
	ISA string `toml:"isa"`

	// MemoryPages is the size of the frame pool.
	MemoryPages int `toml:"memory-pages"`

	// PreemptQuantum enables the preemption timer when nonzero.
	PreemptQuantum duration `toml:"preempt-quantum"`

	// Log configures the process-wide logger.
	Log logConfig `toml:"log"`
}

type logConfig struct {
	// Level is "warning", "info" or "debug".
	Level string `toml:"level"`

	// Format is "plain", "json" or "logrus".
	Format string `toml:"format"`
}

func defaultBootConfig() bootConfig {
	return bootConfig{
		CPUs:        2,
		ISA:         "riscv64",
		MemoryPages: kernel.DefaultMemoryPages,
		Log:         logConfig{Level: "info", Format: "plain"},
	}
}

// loadBootConfig reads path over the defaults. An empty path yields the
// defaults.
func loadBootConfig(path string) (bootConfig, error) {
	cfg := defaultBootConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func (c *bootConfig) isa() (arch.ISA, error) {
	switch c.ISA {
	case "riscv64":
		return arch.RISCV64, nil
	case "loongarch64", "loong64":
		return arch.LoongArch64, nil
	default:
		return 0, fmt.Errorf("unknown isa %q", c.ISA)
	}
}

// setupLogging points the process-wide logger at the configured emitter and
// level.
func (c *bootConfig) setupLogging() error {
	switch c.Log.Level {
	case "", "info":
		log.SetLevel(log.Info)
	case "warning":
		log.SetLevel(log.Warning)
	case "debug":
		log.SetLevel(log.Debug)
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "", "plain":
		log.SetTarget(&log.Writer{Next: os.Stderr})
	case "json":
		log.SetTarget(log.JSONEmitter{Writer: &log.Writer{Next: os.Stderr}})
	case "logrus":
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.DebugLevel)
		log.SetTarget(log.LogrusEmitter{Logger: l})
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// kernelConfig converts the boot configuration into a kernel.Config.
func (c *bootConfig) kernelConfig() (kernel.Config, error) {
	isa, err := c.isa()
	if err != nil {
		return kernel.Config{}, err
	}
	return kernel.Config{
		CPUs:           c.CPUs,
		ISA:            isa,
		MemoryPages:    c.MemoryPages,
		PreemptQuantum: c.PreemptQuantum.Duration,
	}, nil
}
