// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package platform

import "github.com/gomlx/hetero/backends"

// DeviceType is a bitmask used to describe and filter devices.
type DeviceType = backends.DeviceType

const (
	CPU         = backends.CPU
	GPU         = backends.GPU
	Accelerator = backends.Accelerator
	Custom      = backends.Custom
	Host        = backends.Host
	AllDevices  = backends.AllDevices
)

// Aspect is a capability bit a device may advertise.
type Aspect = backends.Aspect

const (
	AspectCPU                        = backends.AspectCPU
	AspectGPU                        = backends.AspectGPU
	AspectAccelerator                = backends.AspectAccelerator
	AspectCustom                     = backends.AspectCustom
	AspectEmulated                   = backends.AspectEmulated
	AspectHostDebuggable             = backends.AspectHostDebuggable
	AspectFP16                       = backends.AspectFP16
	AspectFP64                       = backends.AspectFP64
	AspectAtomic64                   = backends.AspectAtomic64
	AspectImage                      = backends.AspectImage
	AspectOnlineCompiler             = backends.AspectOnlineCompiler
	AspectOnlineLinker               = backends.AspectOnlineLinker
	AspectQueueProfiling             = backends.AspectQueueProfiling
	AspectUSMDeviceAllocations       = backends.AspectUSMDeviceAllocations
	AspectUSMHostAllocations         = backends.AspectUSMHostAllocations
	AspectUSMAtomicHostAllocations   = backends.AspectUSMAtomicHostAllocations
	AspectUSMSharedAllocations       = backends.AspectUSMSharedAllocations
	AspectUSMAtomicSharedAllocations = backends.AspectUSMAtomicSharedAllocations
	AspectUSMSystemAllocations       = backends.AspectUSMSystemAllocations
)
