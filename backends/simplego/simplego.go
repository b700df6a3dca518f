// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable backend for hetero.
//
// It executes registered Go kernels on a pool of goroutines, with a separate memory arena per device,
// so data transfers between host and device are real copies.
//
// Besides the default CPU device, it is also used as the engine of emulated devices (see package simgpu).
package simplego

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/internal/workerspool"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in HETERO_BACKENDS to specify this backend.
const BackendName = "go"

// HETERO_CPU_PARALLELISM is the environment variable with the default number of goroutines used to
// execute commands. It's overridden by the "parallelism" configuration option.
const HETERO_CPU_PARALLELISM = "HETERO_CPU_PARALLELISM"

// DefaultCPUMemory is the memory capacity of the CPU device, unless configured otherwise.
const DefaultCPUMemory = 4 << 30

// Version of the backend, reported as the platform version and device driver version.
const Version = "0.1.0"

// Registers New() as the default constructor for "go" backend.
func init() {
	backends.Register(BackendName, New)
}

// DeviceSpec describes a device to be emulated by the engine.
type DeviceSpec struct {
	Type    backends.DeviceType
	Name    string
	Vendor  string
	Aspects backends.Aspect

	// Memory capacity in bytes.
	Memory uint64

	// Latency is added before executing every copy and launch.
	Latency time.Duration

	// ComputeUnits is reported in the device description, and used as the default intra-kernel fan-out.
	ComputeUnits int

	// MaxWorkGroupSize limits the size of nd_range work-groups. 0 means no limit.
	MaxWorkGroupSize int
}

// CPUAspects are the aspects of the default CPU device.
const CPUAspects = backends.AspectCPU | backends.AspectFP16 | backends.AspectFP64 | backends.AspectAtomic64 |
	backends.AspectQueueProfiling | backends.AspectHostDebuggable | backends.AspectUSMDeviceAllocations |
	backends.AspectUSMHostAllocations | backends.AspectUSMSharedAllocations

// New constructs a new SimpleGo Backend with one CPU device.
//
// The configuration is a comma separated list of options:
//
//   - parallelism=N: number of goroutines used to execute commands, 0 to run inline and -1 for unlimited.
//     Defaults to $HETERO_CPU_PARALLELISM or runtime.NumCPU().
//   - memory=4GiB: memory capacity of the device.
func New(config string) (backends.Backend, error) {
	opts, err := backends.ParseOptions(config)
	if err != nil {
		return nil, err
	}
	parallelism, err := DefaultParallelism()
	if err != nil {
		return nil, err
	}
	if parallelism, err = opts.Int("parallelism", parallelism); err != nil {
		return nil, err
	}
	memory, err := opts.Bytes("memory", DefaultCPUMemory)
	if err != nil {
		return nil, err
	}
	if err = opts.Unused(); err != nil {
		return nil, err
	}
	spec := DeviceSpec{
		Type:         backends.CPU,
		Name:         "Go CPU",
		Vendor:       "hetero",
		Aspects:      CPUAspects,
		Memory:       memory,
		ComputeUnits: workerspool.New(workerspool.AutoParallelism).MaxParallelism(),
	}
	return NewEngine(BackendName, "Simple Go Portable Backend",
		backends.PlatformInfo{Name: "SimpleGo", Vendor: "hetero", Version: Version},
		[]DeviceSpec{spec}, parallelism), nil
}

// DefaultParallelism returns the parallelism configured in HETERO_CPU_PARALLELISM, or workerspool.AutoParallelism.
func DefaultParallelism() (int, error) {
	env, found := os.LookupEnv(HETERO_CPU_PARALLELISM)
	if !found || env == "" {
		return workerspool.AutoParallelism, nil
	}
	parallelism, err := strconv.Atoi(env)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid $%s=%q", HETERO_CPU_PARALLELISM, env)
	}
	return parallelism, nil
}

// Backend implements the backends.Backend interface.
type Backend struct {
	name, description string
	platform          backends.PlatformInfo
	devices           []*device

	// pool runs the commands (copies and launches); fanOut is the max number of goroutines
	// one kernel launch is split into.
	pool   *workerspool.Pool
	fanOut int

	finalized atomic.Bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// NewEngine creates a Backend with the given name and devices.
// parallelism follows the workerspool.New convention.
func NewEngine(name, description string, platform backends.PlatformInfo, specs []DeviceSpec, parallelism int) *Backend {
	b := &Backend{
		name:        name,
		description: description,
		platform:    platform,
		pool:        workerspool.New(parallelism),
	}
	b.fanOut = b.pool.MaxParallelism()
	if b.fanOut <= 0 {
		b.fanOut = 1
	}
	for ii, spec := range specs {
		num := backends.DeviceNum(ii)
		desc := backends.DeviceDesc{
			Num:              num,
			Type:             spec.Type,
			Aspects:          spec.Aspects,
			Name:             spec.Name,
			Vendor:           spec.Vendor,
			DriverVersion:    platform.Version,
			UUID:             backends.DeviceUUID(name, spec.Name, num),
			GlobalMemory:     spec.Memory,
			ComputeUnits:     max(spec.ComputeUnits, 1),
			MaxWorkGroupSize: spec.MaxWorkGroupSize,
		}
		b.devices = append(b.devices, newDevice(desc, spec.Latency))
	}
	klog.V(1).Infof("backend %q: %d device(s), parallelism %d", name, len(b.devices), b.pool.MaxParallelism())
	return b
}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return b.name }

// String implements fmt.Stringer.
func (b *Backend) String() string { return b.name }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string { return b.description }

// Platform implements backends.Backend.
func (b *Backend) Platform() backends.PlatformInfo { return b.platform }

// Parallelism returns the maximum number of commands executed concurrently.
func (b *Backend) Parallelism() int { return b.pool.MaxParallelism() }

// Devices implements backends.Backend.
func (b *Backend) Devices() ([]backends.DeviceDesc, error) {
	if b.finalized.Load() {
		return nil, errors.Wrapf(backends.ErrBackendUnavailable, "backend %q finalized", b.name)
	}
	if len(b.devices) == 0 {
		return nil, errors.Wrapf(backends.ErrBackendUnavailable, "backend %q has no devices configured", b.name)
	}
	descs := make([]backends.DeviceDesc, len(b.devices))
	for ii, dev := range b.devices {
		descs[ii] = dev.desc
	}
	return descs, nil
}

// device returns the device or an *APIError if not valid.
func (b *Backend) device(num backends.DeviceNum) (*device, error) {
	if b.finalized.Load() {
		return nil, backends.NewAPIError(b.name, backends.CodeFinalized, "backend finalized")
	}
	if num < 0 || int(num) >= len(b.devices) {
		return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument, "invalid device #%d", num)
	}
	return b.devices[num], nil
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	if b.finalized.Swap(true) {
		return
	}
	for _, dev := range b.devices {
		dev.releasePools()
	}
}
