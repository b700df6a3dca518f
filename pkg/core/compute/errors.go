// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/pkg/core/platform"
	"github.com/gomlx/hetero/pkg/core/ranges"
	"github.com/pkg/errors"
)

var (
	// ErrDeviceMismatch is returned when devices, queues and buffers of different contexts
	// (or platforms) are mixed.
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrInvalidCommandSequence is returned when a command group issues more than one operation, or none.
	ErrInvalidCommandSequence = errors.New("invalid command sequence")

	// ErrProfilingNotEnabled is returned by profiling queries on events of queues created without WithProfiling.
	ErrProfilingNotEnabled = errors.New("profiling not enabled")

	// ErrBarrierWaiting is returned when adding events to a Barrier while a Wait is in progress.
	ErrBarrierWaiting = errors.New("barrier is being waited on")

	// ErrBufferClosed is returned when using a buffer after Close.
	ErrBufferClosed = errors.New("buffer closed")

	// ErrDependencyFailed wraps the error of a predecessor: the command depending on it was not executed.
	ErrDependencyFailed = errors.New("dependency failed")
)

// Re-exported errors from other packages, so users of compute can test errors with errors.Is against them.
var (
	ErrDeviceOutOfMemory  = backends.ErrDeviceOutOfMemory
	ErrIndivisibleRange   = ranges.ErrIndivisibleRange
	ErrNoSuitableDevice   = platform.ErrNoSuitableDevice
	ErrBackendUnavailable = backends.ErrBackendUnavailable
)

// APIError is the error type returned by backends when an operation fails.
type APIError = backends.APIError
