// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBackendUnavailable is returned when a backend has no usable driver or no devices.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrDeviceOutOfMemory is returned when a device allocation can't be satisfied.
	ErrDeviceOutOfMemory = errors.New("device out of memory")
)

// APIError is returned when a backend call fails. It carries the backend-specific code and description.
type APIError struct {
	Backend     string
	Code        int
	Description string
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend %q error %d: %s", e.Backend, e.Code, e.Description)
}

// Error codes used by the backends in this module. Other backends may use their own native codes.
const (
	CodeUnknown = iota
	CodeInvalidArgument
	CodeKernelNotFound
	CodeKernelPanic
	CodeInvalidMemory
	CodeFinalized
)

// NewAPIError creates an *APIError with a formatted description and a stack trace.
func NewAPIError(backend string, code int, format string, args ...any) error {
	return errors.WithStack(&APIError{Backend: backend, Code: code, Description: fmt.Sprintf(format, args...)})
}
