// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DeviceType is a bitmask used both to describe a device and to filter devices.
type DeviceType uint32

const (
	CPU DeviceType = 1 << iota
	GPU
	Accelerator
	Custom
	Host

	// AllDevices matches any device type.
	AllDevices DeviceType = CPU | GPU | Accelerator | Custom | Host
)

//go:generate go tool enumer -type=DeviceType -transform=snake -output=gen_devicetype_enumer.go devices.go

// Matches returns whether t has any bits in common with filter.
func (t DeviceType) Matches(filter DeviceType) bool {
	return t&filter != 0
}

// Aspect is a capability bit a device may advertise. A device's aspects are a bitmask of them.
type Aspect uint64

const (
	AspectCPU Aspect = 1 << iota
	AspectGPU
	AspectAccelerator
	AspectCustom
	AspectEmulated
	AspectHostDebuggable
	AspectFP16
	AspectFP64
	AspectAtomic64
	AspectImage
	AspectOnlineCompiler
	AspectOnlineLinker
	AspectQueueProfiling
	AspectUSMDeviceAllocations
	AspectUSMHostAllocations
	AspectUSMAtomicHostAllocations
	AspectUSMSharedAllocations
	AspectUSMAtomicSharedAllocations
	AspectUSMSystemAllocations
)

var aspectNames = []string{
	"cpu", "gpu", "accelerator", "custom", "emulated", "host_debuggable", "fp16", "fp64", "atomic64", "image",
	"online_compiler", "online_linker", "queue_profiling", "usm_device_allocations", "usm_host_allocations",
	"usm_atomic_host_allocations", "usm_shared_allocations", "usm_atomic_shared_allocations",
	"usm_system_allocations",
}

// Has returns whether all the aspects in want are present.
func (a Aspect) Has(want Aspect) bool {
	return a&want == want
}

// String implements fmt.Stringer, listing the aspect names separated by "|".
func (a Aspect) String() string {
	return bitNames(uint64(a), aspectNames)
}

// AspectFromName returns the aspect with the given name (as in Aspect.String), or false if not known.
func AspectFromName(name string) (Aspect, bool) {
	for ii, n := range aspectNames {
		if n == name {
			return Aspect(1) << ii, true
		}
	}
	return 0, false
}

func bitNames(mask uint64, names []string) string {
	if mask == 0 {
		return "none"
	}
	var parts []string
	for mask != 0 {
		bit := bits.TrailingZeros64(mask)
		mask &^= 1 << bit
		if bit < len(names) {
			parts = append(parts, names[bit])
		} else {
			parts = append(parts, "?")
		}
	}
	return strings.Join(parts, "|")
}

// PlatformInfo identifies the platform exposed by a backend.
type PlatformInfo struct {
	Name, Vendor, Version string
}

// DeviceDesc describes a device as enumerated by its backend.
type DeviceDesc struct {
	Num           DeviceNum
	Type          DeviceType
	Aspects       Aspect
	Name          string
	Vendor        string
	DriverVersion string
	UUID          uuid.UUID

	// GlobalMemory is the device memory capacity in bytes.
	GlobalMemory uint64

	// ComputeUnits is the number of work-groups (or items for flat ranges) the device runs in parallel.
	ComputeUnits int

	// MaxWorkGroupSize is the largest number of items a work-group may have. 0 means no limit.
	MaxWorkGroupSize int
}

// DeviceUUID returns a stable name-based UUID for a device of a backend.
func DeviceUUID(backendName string, deviceName string, num DeviceNum) uuid.UUID {
	name := backendName + "/" + deviceName + "/" + strconv.Itoa(int(num))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}
