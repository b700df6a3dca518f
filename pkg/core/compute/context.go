// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package compute implements the runtime coordination: contexts, queues, buffers and accessors, command
// handlers and the event graph.
//
// A typical program selects a device, creates a Queue on it, and submits command groups:
//
//	q, err := compute.NewQueueFromSelector(platform.Default(), platform.GPUSelector)
//	buf, err := compute.NewBufferFrom(q.Context(), data, ranges.R(len(data)))
//	ev, err := q.Submit(func(h *compute.Handler) error {
//		acc, err := h.Accessor(buf, compute.ReadWrite)
//		if err != nil {
//			return err
//		}
//		return h.ParallelFor(ranges.R(len(data)), myKernel, acc)
//	})
//	err = buf.Close() // Waits for the kernel and writes the result back to data.
//
// Buffers keep track of where their latest data is (host or device memory) and move it when a command needs it
// elsewhere. Commands accessing overlapping regions of a buffer, with at least one of them writing, are
// ordered automatically through the event graph, in submission order, even across queues. Non-overlapping or
// read-only accesses are never ordered against each other. Raw host slices used in copies are not tracked: the
// caller is responsible for synchronizing them.
package compute

import (
	"slices"
	"sync"

	"github.com/gomlx/hetero/pkg/core/platform"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// AsyncHandler receives the asynchronous errors found when draining a Queue (see Queue.Wait).
type AsyncHandler func(errs []error)

// Context binds a fixed, non-empty set of devices of one platform, and an optional AsyncHandler.
// Queues and buffers are created in a Context and can only be used with its devices.
type Context struct {
	platform   *platform.Platform
	devices    []*platform.Device
	handler    AsyncHandler
	properties map[string]any

	hostQueueOnce sync.Once
	hostQueue     *Queue
}

// ContextOption configures a Context.
type ContextOption func(ctx *Context)

// WithAsyncHandler sets the handler of asynchronous errors.
func WithAsyncHandler(handler AsyncHandler) ContextOption {
	return func(ctx *Context) { ctx.handler = handler }
}

// WithProperty sets an arbitrary property of the context.
func WithProperty(key string, value any) ContextOption {
	return func(ctx *Context) { ctx.properties[key] = value }
}

// NewContext creates a Context for the given devices, which must all belong to the same platform.
func NewContext(devices []*platform.Device, opts ...ContextOption) (*Context, error) {
	if len(devices) == 0 {
		return nil, errors.New("NewContext: no devices given")
	}
	ctx := &Context{properties: make(map[string]any)}
	for _, dev := range devices {
		if dev == nil {
			return nil, errors.New("NewContext: nil device")
		}
		if ctx.platform == nil {
			ctx.platform = dev.Platform()
		} else if dev.Platform() != ctx.platform {
			return nil, errors.Wrapf(ErrDeviceMismatch, "NewContext: device %s is from platform %s, not %s",
				dev, dev.Platform(), ctx.platform)
		}
		if !slices.Contains(ctx.devices, dev) {
			ctx.devices = append(ctx.devices, dev)
		}
	}
	for _, opt := range opts {
		opt(ctx)
	}
	klog.V(1).Infof("context created on %s with %d device(s)", ctx.platform, len(ctx.devices))
	return ctx, nil
}

// NewContextForDevice creates a Context with a single device.
func NewContextForDevice(dev *platform.Device, opts ...ContextOption) (*Context, error) {
	return NewContext([]*platform.Device{dev}, opts...)
}

// Platform of the context devices.
func (ctx *Context) Platform() *platform.Platform { return ctx.platform }

// Devices of the context.
func (ctx *Context) Devices() []*platform.Device { return slices.Clone(ctx.devices) }

// AsyncHandler returns the handler of asynchronous errors, or nil.
func (ctx *Context) AsyncHandler() AsyncHandler { return ctx.handler }

// HasDevice returns whether dev is one of the context devices.
func (ctx *Context) HasDevice(dev *platform.Device) bool {
	return ctx.domainOf(dev) > 0
}

// Property returns the value of a property set with WithProperty, and whether it was set.
func (ctx *Context) Property(key string) (any, bool) {
	value, found := ctx.properties[key]
	return value, found
}

// numDomains is the number of memory domains: host plus one per device.
func (ctx *Context) numDomains() int {
	return 1 + len(ctx.devices)
}

// hostDomain is the index of host memory.
const hostDomain = 0

// domainOf returns the memory domain index of the device: 1 + its position in the context, or -1.
func (ctx *Context) domainOf(dev *platform.Device) int {
	for ii, d := range ctx.devices {
		if d == dev {
			return ii + 1
		}
	}
	return -1
}

// deviceOf returns the device of a memory domain, nil for the host.
func (ctx *Context) deviceOf(domain int) *platform.Device {
	if domain == hostDomain {
		return nil
	}
	return ctx.devices[domain-1]
}

// internalHostQueue returns the queue used for host-side commands (host accessors, write-back).
func (ctx *Context) internalHostQueue() *Queue {
	ctx.hostQueueOnce.Do(func() {
		ctx.hostQueue = &Queue{ctx: ctx, domain: hostDomain}
	})
	return ctx.hostQueue
}
