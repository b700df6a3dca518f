// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package platform enumerates the platforms (one per backend) and their devices, and selects devices
// with scoring Selectors.
//
// The process-wide Registry returned by Default is populated once, on first use, from the backends
// configured in $HETERO_BACKENDS (see backends.FromEnv), and never torn down. Explicit registries can
// be created with NewRegistry, e.g. for tests.
//
// Devices are identity objects: a Registry creates each Device exactly once, so they can be compared
// with == and used as map keys.
package platform

import (
	"fmt"
	"sync"

	"github.com/gomlx/hetero/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Registry holds the platforms enumerated from a set of backends. It is immutable after creation.
type Registry struct {
	platforms []*Platform
	failures  []error
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, created on first call from backends.FromEnv.
func Default() *Registry {
	defaultOnce.Do(func() {
		created, failures := backends.FromEnv()
		defaultRegistry = NewRegistry(created...)
		defaultRegistry.failures = append(failures, defaultRegistry.failures...)
	})
	return defaultRegistry
}

// NewRegistry enumerates the devices of the given backends, in order.
//
// A backend whose enumeration fails (or that has no devices) yields no platform: the failure is logged
// and available in EnumerationErrors.
func NewRegistry(bs ...backends.Backend) *Registry {
	r := &Registry{}
	for _, backend := range bs {
		descs, err := backend.Devices()
		if err == nil && len(descs) == 0 {
			err = errors.Wrapf(backends.ErrBackendUnavailable, "backend %q has no devices", backend.Name())
		}
		if err != nil {
			klog.Warningf("platform: enumerating backend %q failed, no devices from it: %v", backend.Name(), err)
			r.failures = append(r.failures, errors.WithMessagef(err, "backend %q", backend.Name()))
			continue
		}
		p := &Platform{backend: backend, info: backend.Platform()}
		for _, desc := range descs {
			p.devices = append(p.devices, &Device{platform: p, desc: desc})
		}
		klog.V(1).Infof("platform %q: %d device(s)", p.Name(), len(p.devices))
		r.platforms = append(r.platforms, p)
	}
	return r
}

// NewRegistryFromConfigs creates the backends given by the configurations ("name:config", see
// backends.NewWithConfig) and enumerates their devices. Backends that fail to be created are
// reported in EnumerationErrors.
func NewRegistryFromConfigs(configs ...string) *Registry {
	var created []backends.Backend
	var failures []error
	for _, config := range configs {
		backend, err := backends.NewWithConfig(config)
		if err != nil {
			klog.Warningf("platform: backend %q not available: %v", config, err)
			failures = append(failures, err)
			continue
		}
		created = append(created, backend)
	}
	r := NewRegistry(created...)
	r.failures = append(failures, r.failures...)
	return r
}

// Platforms returns the enumerated platforms, in backend order.
func (r *Registry) Platforms() []*Platform {
	return r.platforms
}

// Devices returns the devices of all platforms matching the filter, in enumeration order.
func (r *Registry) Devices(filter DeviceType) []*Device {
	var devices []*Device
	for _, p := range r.platforms {
		devices = append(devices, p.Devices(filter)...)
	}
	return devices
}

// EnumerationErrors returns the errors of the backends that yielded no platform.
func (r *Registry) EnumerationErrors() []error {
	return r.failures
}

// Finalize finalizes the backends of all platforms. The registry and its devices must not be used afterwards.
func (r *Registry) Finalize() {
	for _, p := range r.platforms {
		p.backend.Finalize()
	}
}

// Platform groups the devices of one backend.
type Platform struct {
	backend backends.Backend
	info    backends.PlatformInfo
	devices []*Device
}

// Name of the platform.
func (p *Platform) Name() string { return p.info.Name }

// Vendor of the platform.
func (p *Platform) Vendor() string { return p.info.Vendor }

// Version of the platform.
func (p *Platform) Version() string { return p.info.Version }

// Backend implementing the platform.
func (p *Platform) Backend() backends.Backend { return p.backend }

// Devices returns the devices of the platform matching the filter.
func (p *Platform) Devices(filter DeviceType) []*Device {
	var devices []*Device
	for _, d := range p.devices {
		if d.desc.Type.Matches(filter) {
			devices = append(devices, d)
		}
	}
	return devices
}

// String implements fmt.Stringer.
func (p *Platform) String() string {
	return fmt.Sprintf("%s (%s, backend %q)", p.info.Name, p.info.Version, p.backend.Name())
}

// Device is a compute device of a Platform. Its queries are pure reads.
type Device struct {
	platform *Platform
	desc     backends.DeviceDesc
}

// Platform owning the device.
func (d *Device) Platform() *Platform { return d.platform }

// Backend of the device.
func (d *Device) Backend() backends.Backend { return d.platform.backend }

// Num is the device number within its backend.
func (d *Device) Num() backends.DeviceNum { return d.desc.Num }

// Type of the device.
func (d *Device) Type() DeviceType { return d.desc.Type }

// Aspects returns all the aspects of the device.
func (d *Device) Aspects() Aspect { return d.desc.Aspects }

// Has returns whether the device has all the given aspects.
func (d *Device) Has(aspect Aspect) bool { return d.desc.Aspects.Has(aspect) }

// IsCPU returns whether the device is a CPU.
func (d *Device) IsCPU() bool { return d.desc.Type == CPU }

// IsGPU returns whether the device is a GPU.
func (d *Device) IsGPU() bool { return d.desc.Type == GPU }

// IsAccelerator returns whether the device is an accelerator.
func (d *Device) IsAccelerator() bool { return d.desc.Type == Accelerator }

// Name of the device.
func (d *Device) Name() string { return d.desc.Name }

// Vendor of the device.
func (d *Device) Vendor() string { return d.desc.Vendor }

// DriverVersion of the device.
func (d *Device) DriverVersion() string { return d.desc.DriverVersion }

// UUID of the device.
func (d *Device) UUID() string { return d.desc.UUID.String() }

// GlobalMemory returns the device memory capacity in bytes.
func (d *Device) GlobalMemory() uint64 { return d.desc.GlobalMemory }

// ComputeUnits returns the number of parallel compute units of the device.
func (d *Device) ComputeUnits() int { return d.desc.ComputeUnits }

// MaxWorkGroupSize returns the maximum number of items in a work-group, 0 if unlimited.
func (d *Device) MaxWorkGroupSize() int { return d.desc.MaxWorkGroupSize }

// String implements fmt.Stringer.
func (d *Device) String() string {
	return fmt.Sprintf("%s [%s #%d, %s]", d.desc.Name, d.platform.backend.Name(), d.desc.Num, d.desc.Type)
}
