// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/hetero/backends"
	"github.com/pkg/errors"
)

// device holds the state of one device: its memory accounting and pools of allocations.
type device struct {
	desc    backends.DeviceDesc
	latency time.Duration

	used     atomic.Int64
	capacity int64

	// pools of freed allocations, keyed by size. The underlying type is map[int]*sync.Pool.
	pools sync.Map
}

func newDevice(desc backends.DeviceDesc, latency time.Duration) *device {
	return &device{desc: desc, latency: latency, capacity: int64(desc.GlobalMemory)}
}

// Memory is the device memory handle of the simplego engine.
type Memory struct {
	dev   *device
	data  []byte
	valid atomic.Bool
}

var _ backends.Memory = (*Memory)(nil)

// Device implements backends.Memory.
func (m *Memory) Device() backends.DeviceNum { return m.dev.desc.Num }

// Size implements backends.Memory.
func (m *Memory) Size() int { return len(m.data) }

// getPool for allocations of the given size.
func (d *device) getPool(size int) *sync.Pool {
	poolInterface, ok := d.pools.Load(size)
	if !ok {
		poolInterface, _ = d.pools.LoadOrStore(size, &sync.Pool{
			New: func() any {
				return &Memory{dev: d, data: make([]byte, size)}
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

func (d *device) releasePools() {
	d.pools.Clear()
}

// Allocate implements backends.Backend.
func (b *Backend) Allocate(num backends.DeviceNum, bytes int) (backends.Memory, error) {
	dev, err := b.device(num)
	if err != nil {
		return nil, err
	}
	if bytes < 0 {
		return nil, backends.NewAPIError(b.name, backends.CodeInvalidArgument, "negative allocation of %d bytes", bytes)
	}
	if used := dev.used.Add(int64(bytes)); used > dev.capacity {
		dev.used.Add(-int64(bytes))
		return nil, errors.Wrapf(backends.ErrDeviceOutOfMemory, "%s: allocating %s with %s of %s in use",
			dev.desc.Name, humanize.IBytes(uint64(bytes)), humanize.IBytes(uint64(used-int64(bytes))),
			humanize.IBytes(uint64(dev.capacity)))
	}
	mem := dev.getPool(bytes).Get().(*Memory)
	clear(mem.data)
	mem.valid.Store(true)
	return mem, nil
}

// Free implements backends.Backend.
func (b *Backend) Free(m backends.Memory) error {
	mem, err := b.memory(m)
	if err != nil {
		return err
	}
	if !mem.valid.Swap(false) {
		return backends.NewAPIError(b.name, backends.CodeInvalidMemory, "memory %p freed twice", mem)
	}
	mem.dev.used.Add(-int64(len(mem.data)))
	mem.dev.getPool(len(mem.data)).Put(mem)
	return nil
}

// Used returns the number of bytes allocated on the device.
func (b *Backend) Used(num backends.DeviceNum) int64 {
	if int(num) >= len(b.devices) || num < 0 {
		return 0
	}
	return b.devices[num].used.Load()
}

// memory converts a backends.Memory to the concrete type, checking it belongs to this backend and is valid.
func (b *Backend) memory(m backends.Memory) (*Memory, error) {
	mem, ok := m.(*Memory)
	if !ok || mem == nil {
		return nil, backends.NewAPIError(b.name, backends.CodeInvalidMemory, "memory %v doesn't belong to backend", m)
	}
	if !mem.valid.Load() {
		return nil, backends.NewAPIError(b.name, backends.CodeInvalidMemory, "memory %p used after free", mem)
	}
	num := mem.dev.desc.Num
	if int(num) >= len(b.devices) || b.devices[num] != mem.dev {
		return nil, backends.NewAPIError(b.name, backends.CodeInvalidMemory, "memory %p doesn't belong to backend", mem)
	}
	return mem, nil
}

// resolve returns the bytes of a copy region, without the region offset applied.
func (b *Backend) resolve(r backends.Region) ([]byte, error) {
	if r.IsHost() {
		return r.Host, nil
	}
	mem, err := b.memory(r.Mem)
	if err != nil {
		return nil, err
	}
	return mem.data, nil
}
