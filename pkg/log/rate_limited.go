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

package log

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimited forwards to the embedded Logger while its limiter permits and
// silently drops the rest. The kernel uses it on paths a misbehaving
// workload can hit in a tight loop, such as allocation failures during task
// creation, where every occurrence logged would drown the rest of the log.
type rateLimited struct {
	Logger
	lim *rate.Limiter
}

func (rl *rateLimited) Debugf(format string, v ...any) {
	if rl.lim.Allow() {
		rl.Logger.Debugf(format, v...)
	}
}

func (rl *rateLimited) Infof(format string, v ...any) {
	if rl.lim.Allow() {
		rl.Logger.Infof(format, v...)
	}
}

func (rl *rateLimited) Warningf(format string, v ...any) {
	if rl.lim.Allow() {
		rl.Logger.Warningf(format, v...)
	}
}

// RateLimitedLogger returns a Logger that forwards to logger at most once
// per every; messages over that budget are dropped, not queued.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimited{
		Logger: logger,
		lim:    rate.NewLimiter(rate.Every(every), 1),
	}
}
