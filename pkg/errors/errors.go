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

// Package errors holds the standardized error definitions for basalt.
//
// Errors are exported as error interface values instead of Errno so that
// comparison against a comparand of type error is cheap, while the syscall
// layer can still recover the errno via Errno().
package errors

import (
	"golang.org/x/sys/unix"
)

// Error represents a kernel error with a descriptive message and the errno
// it translates to at the system call boundary.
type Error struct {
	errno   unix.Errno
	message string
}

// New creates a new *Error.
func New(err unix.Errno, message string) *Error {
	return &Error{
		errno:   err,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Errno returns the underlying unix.Errno value.
func (e *Error) Errno() unix.Errno { return e.errno }

var (
	// ErrResourceExhausted is returned when task creation cannot obtain
	// kernel-stack or trap-frame backing from the frame allocator. The task
	// is not created and no partial state persists.
	ErrResourceExhausted = New(unix.ENOMEM, "out of physical frames")

	// ErrInterrupted is returned when an interruptible sleep is ended by an
	// external event other than the awaited condition.
	ErrInterrupted = New(unix.EINTR, "sleep was interrupted")

	// ErrAlreadyTerminated is returned by operations attempted against a
	// task that has already stopped and cannot be scheduled again.
	ErrAlreadyTerminated = New(unix.ESRCH, "task already terminated")

	// ErrWouldBlock is an internal error used to indicate that an operation
	// cannot be satisfied immediately and should be retried later, possibly
	// after a wait-queue wakeup.
	ErrWouldBlock = New(unix.EAGAIN, "request would block")
)
