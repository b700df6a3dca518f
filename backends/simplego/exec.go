// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/pkg/core/ranges"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Copy implements backends.Backend.
func (b *Backend) Copy(num backends.DeviceNum, desc backends.CopyDesc) (backends.Token, error) {
	dev, err := b.device(num)
	if err != nil {
		return nil, err
	}
	dst, err := b.resolve(desc.Dst)
	if err != nil {
		return nil, err
	}
	src, err := b.resolve(desc.Src)
	if err != nil {
		return nil, err
	}
	tok := backends.NewCompletion()
	b.pool.Submit(func() {
		dev.simulateLatency()
		tok.Start()
		err := desc.Apply(dst, src)
		if err != nil {
			err = backends.NewAPIError(b.name, backends.CodeInvalidArgument, "%s: %v", dev.desc.Name, err)
		}
		tok.Finish(err)
	})
	return tok, nil
}

func (d *device) simulateLatency() {
	if d.latency > 0 {
		time.Sleep(d.latency)
	}
}

// Launch implements backends.Backend.
func (b *Backend) Launch(num backends.DeviceNum, kernelID backends.KernelID, shape backends.LaunchShape,
	args []backends.Arg) (backends.Token, error) {
	dev, err := b.device(num)
	if err != nil {
		return nil, err
	}
	kernel, err := backends.LookupKernel(b.name, kernelID)
	if err != nil {
		return nil, err
	}
	l, err := b.newLaunch(dev, kernelID, kernel, shape, args)
	if err != nil {
		return nil, err
	}
	tok := backends.NewCompletion()
	b.pool.Submit(func() {
		dev.simulateLatency()
		tok.Start()
		tok.Finish(l.run())
	})
	return tok, nil
}

// launch is a kernel launch with its arguments resolved.
type launch struct {
	b      *Backend
	dev    *device
	id     backends.KernelID
	kernel backends.Kernel
	shape  backends.LaunchShape
	args   backends.Args

	// groups is the group range for nd_range launches.
	groups ranges.Range

	// localArgs are resolved to fresh memory for each work-group.
	localArgs []localArg
}

type localArg struct {
	index, offset, bytes int
}

func (b *Backend) newLaunch(dev *device, id backends.KernelID, kernel backends.Kernel, shape backends.LaunchShape,
	args []backends.Arg) (*launch, error) {
	l := &launch{b: b, dev: dev, id: id, kernel: kernel, shape: shape, args: make(backends.Args, len(args))}
	switch shape.Kind {
	case backends.LaunchSingleTask:
		l.shape.Global = ranges.R(1)
		l.shape.Offset = ranges.Zero(1)
	case backends.LaunchRange:
		if !shape.Global.Ok() {
			return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument, "%s: launch without a range", id)
		}
	case backends.LaunchNDRange:
		groups, err := ranges.ND(shape.Global, shape.Local).GroupRange()
		if err != nil {
			return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument, "%s: %v", id, err)
		}
		if maxSize := dev.desc.MaxWorkGroupSize; maxSize > 0 && shape.Local.Size() > maxSize {
			return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument,
				"%s: work-group size %d exceeds device maximum %d", id, shape.Local.Size(), maxSize)
		}
		l.groups = groups
	default:
		return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument, "%s: unknown launch kind %s", id, shape.Kind)
	}
	if _, isGroup := kernel.(backends.GroupKernel); isGroup && shape.Kind != backends.LaunchNDRange {
		return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument,
			"%s: group kernels can only be launched over an nd_range, got %s", id, shape.Kind)
	}
	for ii, arg := range args {
		value := backends.ResolvedArg{Kind: arg.Kind, Extent: arg.Extent, Offset: arg.Offset, Range: arg.Range, ElemSize: arg.ElemSize}
		switch arg.Kind {
		case backends.ArgBuffer:
			mem, err := b.memory(arg.Mem)
			if err != nil {
				return nil, err
			}
			if mem.dev != dev {
				return nil, backends.NewAPIError(b.name, backends.CodeInvalidMemory,
					"%s: argument #%d is in %s memory, launched on %s", id, ii, mem.dev.desc.Name, dev.desc.Name)
			}
			value.Data = mem.data
		case backends.ArgLocal:
			if arg.LocalOffset < 0 || arg.LocalOffset+arg.LocalBytes > shape.LocalMemBytes {
				return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument,
					"%s: local argument #%d [%d, %d) out of local memory of %d bytes", id, ii,
					arg.LocalOffset, arg.LocalOffset+arg.LocalBytes, shape.LocalMemBytes)
			}
		case backends.ArgValue:
			value.Data = arg.Value
		}
		l.args[ii] = value
	}
	for ii, arg := range args {
		if arg.Kind == backends.ArgLocal {
			l.localArgs = append(l.localArgs, localArg{index: ii, offset: arg.LocalOffset, bytes: arg.LocalBytes})
		}
	}
	return l, nil
}

// run executes the kernel, splitting the work in up to fanOut goroutines. Panics in the kernel are
// converted to an *backends.APIError.
func (l *launch) run() error {
	var numUnits int
	if l.shape.Kind == backends.LaunchNDRange {
		numUnits = l.groups.Size()
	} else {
		numUnits = l.shape.Global.Size()
	}
	if numUnits == 0 {
		return nil
	}
	numChunks := min(l.b.fanOut, l.dev.desc.ComputeUnits, numUnits)
	if numChunks <= 0 {
		numChunks = 1
	}
	klog.V(3).Infof("%s: launch %s on %s in %d chunks", l.id, l.shape, l.dev.desc.Name, numChunks)
	var g errgroup.Group
	for chunk := range numChunks {
		start := chunk * numUnits / numChunks
		end := (chunk + 1) * numUnits / numChunks
		g.Go(func() error {
			exception := exceptions.Try(func() {
				if l.shape.Kind == backends.LaunchNDRange {
					l.runGroups(start, end)
				} else {
					l.runItems(start, end)
				}
			})
			if exception != nil {
				return backends.NewAPIError(l.b.name, backends.CodeKernelPanic, "kernel %s panicked: %v", l.id, exception)
			}
			return nil
		})
	}
	return g.Wait()
}

// runItems executes an ItemKernel for the items with linear index in [start, end).
func (l *launch) runItems(start, end int) {
	kernel := l.kernel.(backends.ItemKernel)
	global := l.shape.Global
	offset := l.shape.Offset.Values()
	dims := global.Dims()
	for idx := start; idx < end; idx++ {
		id := global.Delinearize(idx).Values()
		for axis := range ranges.MaxDims {
			id[axis] += offset[axis]
		}
		kernel(backends.Item{
			ID:     ranges.I(id[:dims]...),
			Range:  global,
			Offset: l.shape.Offset,
		}, l.args)
	}
}

// runGroups executes the work-groups with linear index in [start, end), each with fresh zeroed local memory.
func (l *launch) runGroups(start, end int) {
	args := make(backends.Args, len(l.args))
	copy(args, l.args)
	localMem := make([]byte, l.shape.LocalMemBytes)
	for _, local := range l.localArgs {
		args[local.index].Data = localMem[local.offset : local.offset+local.bytes]
	}
	for idx := start; idx < end; idx++ {
		clear(localMem)
		group := &backends.Group{
			ID:          l.groups.Delinearize(idx),
			GroupRange:  l.groups,
			LocalRange:  l.shape.Local,
			GlobalRange: l.shape.Global,
		}
		switch kernel := l.kernel.(type) {
		case backends.GroupKernel:
			kernel(group, args)
		case backends.ItemKernel:
			group.ForEachItem(func(item backends.Item) { kernel(item, args) })
		}
	}
}
