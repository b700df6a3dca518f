// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package platform

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNoSuitableDevice is returned when a Selector rejects every device.
var ErrNoSuitableDevice = errors.New("no suitable device")

// Selector scores a device: the device with the highest score is selected, negative scores reject it.
type Selector func(d *Device) int

// DefaultSelector prefers CPUs, GPUs and accelerators (score 1000) over anything else (score 1).
func DefaultSelector(d *Device) int {
	if d.Type().Matches(CPU | GPU | Accelerator) {
		return 1000
	}
	return 1
}

// CPUSelector accepts only CPUs.
func CPUSelector(d *Device) int { return acceptIf(d.IsCPU()) }

// GPUSelector accepts only GPUs.
func GPUSelector(d *Device) int { return acceptIf(d.IsGPU()) }

// AcceleratorSelector accepts only accelerators.
func AcceleratorSelector(d *Device) int { return acceptIf(d.IsAccelerator()) }

func acceptIf(ok bool) int {
	if ok {
		return 1
	}
	return -1
}

// AspectSelector accepts devices that have all the required aspects, scoring them as DefaultSelector.
func AspectSelector(required ...Aspect) Selector {
	var mask Aspect
	for _, a := range required {
		mask |= a
	}
	return func(d *Device) int {
		if !d.Has(mask) {
			return -1
		}
		return DefaultSelector(d)
	}
}

// Select returns the device with the highest non-negative score. Ties are broken by enumeration order,
// the first wins. It returns ErrNoSuitableDevice if every device is rejected, or if there are none.
func (r *Registry) Select(sel Selector) (*Device, error) {
	if sel == nil {
		sel = DefaultSelector
	}
	var best *Device
	bestScore := -1
	for _, d := range r.Devices(AllDevices) {
		score := sel(d)
		klog.V(2).Infof("selector: %s scored %d", d, score)
		if score < 0 {
			continue
		}
		if best == nil || score > bestScore {
			best, bestScore = d, score
		}
	}
	if best == nil {
		return nil, errors.Wrapf(ErrNoSuitableDevice, "%d device(s) enumerated", len(r.Devices(AllDevices)))
	}
	return best, nil
}

// Select a device from the Default registry.
func Select(sel Selector) (*Device, error) {
	return Default().Select(sel)
}
