// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a device driver needs to implement to be used by the hetero runtime.
//
// A backend enumerates its devices, allocates and frees device memory, copies data between host and device
// memory and launches registered kernels. Every asynchronous operation returns a Token the runtime
// uses to observe completion.
//
// The coordination logic (residency, conflicts, events) lives in package compute and only depends on this
// interface, never on a concrete backend.
//
// Backends register themselves during initialization (see Register), usually by importing them
// with a blank import:
//
//	import _ "github.com/gomlx/hetero/backends/default"
package backends

import (
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DeviceNum identifies a device within a backend. It's up to the backend to interpret it, but it should
// be between 0 and the number of devices returned by Backend.Devices.
type DeviceNum int

// Backend is the API that needs to be implemented by a hetero backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the pure Go CPU backend.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Platform returns the identity of the platform exposed by this backend.
	Platform() PlatformInfo

	// Devices enumerates the devices available. It returns ErrBackendUnavailable (possibly wrapped)
	// if there is no usable driver.
	Devices() ([]DeviceDesc, error)

	// Allocate reserves bytes of memory on the device. It returns ErrDeviceOutOfMemory (wrapped) if
	// the device doesn't have enough free memory. Allocated memory is zero-initialized.
	Allocate(dev DeviceNum, bytes int) (Memory, error)

	// Free releases memory returned by Allocate. The memory must not be used afterwards.
	Free(mem Memory) error

	// Copy transfers data between host and/or device memory regions, asynchronously on behalf of
	// the device dev. Any side of the copy may be host memory.
	Copy(dev DeviceNum, desc CopyDesc) (Token, error)

	// Launch executes the kernel asynchronously on device dev over the given shape and arguments.
	Launch(dev DeviceNum, kernel KernelID, shape LaunchShape, args []Arg) (Token, error)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	registrationOrder      []string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if _, found := registeredConstructors[name]; !found {
		registrationOrder = append(registrationOrder, name)
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered backends, in registration order.
func List() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	return slices.Clone(registrationOrder)
}

// HETERO_BACKENDS is the environment variable with the backends to use.
//
// The format is a ";" separated list of "<backend_name>[:<backend_configuration>]".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific (e.g.: for "simgpu" it is "gpus=2,memory=1GiB").
const HETERO_BACKENDS = "HETERO_BACKENDS"

// NewWithConfig creates a backend from a configuration string formatted as "<backend_name>:<backend_configuration>".
// If the name is empty, the first registered backend is used.
func NewWithConfig(config string) (Backend, error) {
	backendName, backendConfig := SplitConfig(config)
	muRegistry.Lock()
	if backendName == "" && len(registrationOrder) > 0 {
		backendName = registrationOrder[0]
	}
	constructor, found := registeredConstructors[backendName]
	numRegistered := len(registrationOrder)
	muRegistry.Unlock()
	if numRegistered == 0 {
		return nil, errors.Wrapf(ErrBackendUnavailable,
			`no registered backends -- maybe import the default ones with import _ "github.com/gomlx/hetero/backends/default"?`)
	}
	if !found {
		return nil, errors.Wrapf(ErrBackendUnavailable, "can't find backend %q for configuration %q given", backendName, config)
	}
	return constructor(backendConfig)
}

// SplitConfig splits "<backend_name>:<backend_configuration>" into its two parts.
func SplitConfig(config string) (name, backendConfig string) {
	config = strings.TrimSpace(config)
	if idx := strings.Index(config, ":"); idx != -1 {
		return config[:idx], config[idx+1:]
	}
	return config, ""
}

// FromEnv creates the backends listed in HETERO_BACKENDS, or every registered backend with an empty
// configuration if the variable is not set.
//
// Backends that fail to construct are logged and skipped, their errors returned as the second value.
func FromEnv() (created []Backend, failures []error) {
	var configs []string
	if env, found := os.LookupEnv(HETERO_BACKENDS); found && strings.TrimSpace(env) != "" {
		for part := range strings.SplitSeq(env, ";") {
			if part = strings.TrimSpace(part); part != "" {
				configs = append(configs, part)
			}
		}
	} else {
		configs = List()
	}
	for _, config := range configs {
		backend, err := NewWithConfig(config)
		if err != nil {
			klog.Warningf("backend %q not available: %v", config, err)
			failures = append(failures, err)
			continue
		}
		klog.V(1).Infof("backend %q created: %s", config, backend.Description())
		created = append(created, backend)
	}
	return
}
