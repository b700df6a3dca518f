// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simgpu implements emulated GPUs and accelerators, executed by the simplego engine.
//
// Each emulated device has its own memory arena with a fixed capacity, and an optional latency added
// to every copy and launch, which makes it useful to test residency and ordering logic of programs
// written for discrete devices on machines without one.
//
// Configuration (in HETERO_BACKENDS, e.g. "simgpu:gpus=2,memory=1GiB"):
//
//   - gpus=N: number of emulated GPUs (default 1).
//   - accelerators=N: number of emulated accelerators (default 0).
//   - memory=256MiB: memory capacity of each device.
//   - latency=0s: latency added to each command.
//   - parallelism=N: goroutines executing commands (see simplego).
//   - workgroup=1024: maximum work-group size.
package simgpu

import (
	"fmt"

	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/backends/simplego"
	"github.com/pkg/errors"
)

// BackendName to be used in HETERO_BACKENDS to specify this backend.
const BackendName = "simgpu"

// DefaultMemory is the default memory capacity of each emulated device.
const DefaultMemory = 256 << 20

// DefaultMaxWorkGroupSize is the default maximum number of items in a work-group.
const DefaultMaxWorkGroupSize = 1024

// GPUAspects are the aspects advertised by emulated GPUs. Accelerators don't support fp16 and fp64.
const GPUAspects = backends.AspectGPU | backends.AspectEmulated | backends.AspectFP16 | backends.AspectFP64 |
	backends.AspectAtomic64 | backends.AspectQueueProfiling | backends.AspectUSMDeviceAllocations

// AcceleratorAspects are the aspects advertised by emulated accelerators.
const AcceleratorAspects = backends.AspectAccelerator | backends.AspectEmulated | backends.AspectQueueProfiling |
	backends.AspectUSMDeviceAllocations

func init() {
	backends.Register(BackendName, New)
}

// New creates the emulated devices described by config. It returns backends.ErrBackendUnavailable if
// no device is configured.
func New(config string) (backends.Backend, error) {
	opts, err := backends.ParseOptions(config)
	if err != nil {
		return nil, err
	}
	numGPUs, err := opts.Int("gpus", 1)
	if err != nil {
		return nil, err
	}
	numAccelerators, err := opts.Int("accelerators", 0)
	if err != nil {
		return nil, err
	}
	memory, err := opts.Bytes("memory", DefaultMemory)
	if err != nil {
		return nil, err
	}
	latency, err := opts.Duration("latency", 0)
	if err != nil {
		return nil, err
	}
	parallelism, err := simplego.DefaultParallelism()
	if err != nil {
		return nil, err
	}
	if parallelism, err = opts.Int("parallelism", parallelism); err != nil {
		return nil, err
	}
	maxWorkGroup, err := opts.Int("workgroup", DefaultMaxWorkGroupSize)
	if err != nil {
		return nil, err
	}
	if err = opts.Unused(); err != nil {
		return nil, err
	}
	if numGPUs < 0 || numAccelerators < 0 {
		return nil, errors.Errorf("simgpu: negative number of devices in %q", config)
	}
	if numGPUs+numAccelerators == 0 {
		return nil, errors.Wrapf(backends.ErrBackendUnavailable, "simgpu: no devices configured in %q", config)
	}

	var specs []simplego.DeviceSpec
	for ii := range numGPUs {
		specs = append(specs, simplego.DeviceSpec{
			Type:             backends.GPU,
			Name:             fmt.Sprintf("SimGPU #%d", ii),
			Vendor:           "hetero",
			Aspects:          GPUAspects,
			Memory:           memory,
			Latency:          latency,
			ComputeUnits:     8,
			MaxWorkGroupSize: maxWorkGroup,
		})
	}
	for ii := range numAccelerators {
		specs = append(specs, simplego.DeviceSpec{
			Type:             backends.Accelerator,
			Name:             fmt.Sprintf("SimAccelerator #%d", ii),
			Vendor:           "hetero",
			Aspects:          AcceleratorAspects,
			Memory:           memory,
			Latency:          latency,
			ComputeUnits:     4,
			MaxWorkGroupSize: maxWorkGroup,
		})
	}
	return simplego.NewEngine(BackendName, "Emulated GPUs and accelerators",
		backends.PlatformInfo{Name: "SimGPU", Vendor: "hetero", Version: simplego.Version},
		specs, parallelism), nil
}
