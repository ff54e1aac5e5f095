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

	"github.com/sirupsen/logrus"
)

// LogrusEmitter forwards kernel log messages to a logrus logger, so that
// embedders already standardized on logrus can collect kernel output through
// their existing sinks and hooks.
type LogrusEmitter struct {
	// Logger is the destination logger. It must not be nil.
	Logger *logrus.Logger
}

// Emit implements Emitter.Emit.
func (e LogrusEmitter) Emit(_ int, level Level, timestamp time.Time, format string, v ...any) {
	entry := e.Logger.WithTime(timestamp)
	switch level {
	case Warning:
		entry.Warningf(format, v...)
	case Info:
		entry.Infof(format, v...)
	case Debug:
		entry.Debugf(format, v...)
	}
}
