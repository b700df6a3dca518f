// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"flag"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/hetero/backends"
	_ "github.com/gomlx/hetero/backends/simgpu"
	_ "github.com/gomlx/hetero/backends/simplego"
	"github.com/gomlx/hetero/pkg/core/dtypes"
	"github.com/gomlx/hetero/pkg/core/platform"
	"github.com/gomlx/hetero/pkg/core/ranges"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	flag.Parse()
	os.Exit(m.Run())
}

var (
	// addKernel adds the value args[1] to every element of args[0].
	addKernel = backends.RegisterKernel("compute_test.add", backends.ItemKernel(
		func(item backends.Item, args backends.Args) {
			v := backends.ViewOf[int32](args, 0)
			v.Set(item.ID, v.At(item.ID)+backends.ValueOf[int32](args, 1))
		}))

	// scaleKernel multiplies every element of args[0] by args[1].
	scaleKernel = backends.RegisterKernel("compute_test.scale", backends.ItemKernel(
		func(item backends.Item, args backends.Args) {
			v := backends.ViewOf[float32](args, 0)
			v.Set(item.ID, v.At(item.ID)*backends.ValueOf[float32](args, 1))
		}))

	// slowSetKernel waits a bit, then sets every element of args[0] to args[1].
	slowSetKernel = backends.RegisterKernel("compute_test.slow_set", backends.ItemKernel(
		func(item backends.Item, args backends.Args) {
			time.Sleep(20 * time.Millisecond)
			backends.ViewOf[int32](args, 0).Set(item.ID, backends.ValueOf[int32](args, 1))
		}))

	panicKernel = backends.RegisterKernel("compute_test.panic", backends.ItemKernel(
		func(backends.Item, backends.Args) { panic("kernel on fire") }))

	// rendezvousKernel announces its arrival (side args[1]) and waits for the other side.
	rendezvousArrived [2]chan struct{}
	rendezvousMet     atomic.Int32
	rendezvousKernel  = backends.RegisterKernel("compute_test.rendezvous", backends.ItemKernel(
		func(item backends.Item, args backends.Args) {
			side := backends.ValueOf[int32](args, 1)
			close(rendezvousArrived[side])
			select {
			case <-rendezvousArrived[1-side]:
				rendezvousMet.Add(1)
			case <-time.After(5 * time.Second):
			}
			backends.ViewOf[int32](args, 0).Set(item.ID, side+1)
		}))

	// groupSumKernel sums each work-group of args[0] into args[1], using the local memory args[2].
	groupSumKernel = backends.RegisterKernel("compute_test.group_sum", backends.GroupKernel(
		func(group *backends.Group, args backends.Args) {
			in := backends.ViewOf[int32](args, 0)
			out := backends.ViewOf[int32](args, 1)
			scratch := backends.LocalOf[int32](args, 2)
			group.ForEachItem(func(item backends.Item) {
				scratch[0] += in.At(item.ID)
			})
			out.Set(group.ID, scratch[0])
		}))
)

// newTestRegistry creates a registry with a CPU and 2 emulated GPUs.
func newTestRegistry(t *testing.T, gpuConfig string) *platform.Registry {
	if gpuConfig == "" {
		gpuConfig = "gpus=2,parallelism=4"
	}
	reg := platform.NewRegistryFromConfigs("go:parallelism=4", "simgpu:"+gpuConfig)
	require.Len(t, reg.Platforms(), 2, "enumeration errors: %v", reg.EnumerationErrors())
	t.Cleanup(reg.Finalize)
	return reg
}

// newGPUQueue returns a queue on the first emulated GPU.
func newGPUQueue(t *testing.T, reg *platform.Registry, opts ...QueueOption) *Queue {
	q, err := NewQueueFromSelector(reg, platform.GPUSelector, opts...)
	require.NoError(t, err)
	return q
}

func iota32(n int) []int32 {
	data := make([]int32, n)
	for ii := range data {
		data[ii] = int32(ii)
	}
	return data
}

func submitAdd(t *testing.T, q *Queue, buf *Buffer, delta int32, opts ...AccessorOption) *Event {
	ev, err := q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite, opts...)
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), addKernel, acc, Value(delta))
	})
	require.NoError(t, err)
	return ev
}

func TestRoundTripWriteBack(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	data := []float32{1, 2, 3, 4, 5, 6}
	buf, err := NewBufferFrom(q.Context(), data, ranges.R(2, 3))
	require.NoError(t, err)
	assert.True(t, buf.WriteBack())
	assert.Nil(t, buf.Residency())

	ev, err := q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite)
		if err != nil {
			return err
		}
		return h.ParallelFor(buf.Extent(), scaleKernel, acc, Value(float32(2)))
	})
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	assert.Equal(t, q.Device(), buf.Residency())
	assert.True(t, buf.WriteBackPending())

	require.NoError(t, buf.Close())
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12}, data)
	assert.False(t, buf.WriteBackPending())
	require.NoError(t, buf.Close())

	// Closed buffers can't be used anymore.
	_, err = q.Submit(func(h *Handler) error {
		_, err := h.Accessor(buf, Read)
		return err
	})
	assert.True(t, errors.Is(err, ErrBufferClosed))
}

func TestNoWriteBack(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	data := iota32(8)
	buf, err := NewBufferFrom(q.Context(), data, ranges.R(8))
	require.NoError(t, err)
	buf.SetWriteBack(false)
	submitAdd(t, q, buf, 100)
	require.NoError(t, q.Wait())
	got, err := ReadAll[int32](buf)
	require.NoError(t, err)
	assert.Equal(t, int32(107), got[7])
	require.NoError(t, buf.Close())
	assert.Equal(t, iota32(8), data)
}

func TestFillAndFinalData(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	buf, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(4, 4))
	require.NoError(t, err)
	assert.False(t, buf.WriteBack())
	assert.Equal(t, 64, buf.ByteSize())

	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, DiscardWrite, WithRange(ranges.R(2, 2)), WithOffset(ranges.I(1, 1)))
		if err != nil {
			return err
		}
		return h.Fill(acc, Value(int32(7)))
	})
	require.NoError(t, err)

	final := make([]int32, 16)
	require.NoError(t, SetFinalData(buf, final))
	require.Error(t, SetFinalData(buf, make([]float32, 16)))
	require.NoError(t, buf.Close())
	want := []int32{
		0, 0, 0, 0,
		0, 7, 7, 0,
		0, 7, 7, 0,
		0, 0, 0, 0,
	}
	assert.Equal(t, want, final)

	// Fill value must match the buffer type.
	buf2, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(4))
	require.NoError(t, err)
	defer func() { require.NoError(t, buf2.Close()) }()
	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf2, Write)
		if err != nil {
			return err
		}
		return h.Fill(acc, Value(float64(1)))
	})
	assert.Error(t, err)
}

func TestNonOverlappingAccessesRunConcurrently(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	// The buffer starts in host memory: the first writer also transfers it to the device, and the second
	// writer must only wait for that transfer, not for the first writer's kernel.
	buf, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(2))
	require.NoError(t, err)

	rendezvousArrived = [2]chan struct{}{make(chan struct{}), make(chan struct{})}
	rendezvousMet.Store(0)
	for side := range 2 {
		_, err := q.Submit(func(h *Handler) error {
			acc, err := h.Accessor(buf, Write, WithRange(ranges.R(1)), WithOffset(ranges.I(side)))
			if err != nil {
				return err
			}
			return h.SingleTask(rendezvousKernel, acc, Value(int32(side)))
		})
		require.NoError(t, err)
	}
	require.NoError(t, q.Wait())
	assert.Equal(t, int32(2), rendezvousMet.Load(), "writers to disjoint regions were serialized")
	got, err := ReadAll[int32](buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, got)
	require.NoError(t, buf.Close())
}

func TestOverlappingAccessesAreOrdered(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg, WithProfiling())
	buf, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(8))
	require.NoError(t, err)

	first, err := q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, DiscardWrite, WithRange(ranges.R(5)))
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), slowSetKernel, acc, Value(int32(1)))
	})
	require.NoError(t, err)
	// Overlaps elements 3 and 4 of the first command.
	second := submitAdd(t, q, buf, 10, WithRange(ranges.R(5)), WithOffset(ranges.I(3)))
	require.NoError(t, second.Wait())

	end, err := first.ProfilingEnd()
	require.NoError(t, err)
	start, err := second.ProfilingStart()
	require.NoError(t, err)
	assert.LessOrEqual(t, end, start)

	got, err := ReadAll[int32](buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 1, 1, 11, 11, 10, 10, 10}, got)
	require.NoError(t, buf.Close())
}

func TestCrossDeviceOrdering(t *testing.T) {
	reg := newTestRegistry(t, "")
	gpus := reg.Devices(platform.GPU)
	require.Len(t, gpus, 2)
	ctx, err := NewContext(gpus)
	require.NoError(t, err)
	q0, err := NewQueue(ctx, gpus[0])
	require.NoError(t, err)
	q1, err := NewQueue(ctx, gpus[1])
	require.NoError(t, err)

	data := iota32(16)
	buf, err := NewBufferFrom(ctx, data, ranges.R(4, 4))
	require.NoError(t, err)
	for range 3 {
		submitAdd(t, q0, buf, 1)
		submitAdd(t, q1, buf, 10)
	}
	require.NoError(t, q1.Wait())
	assert.Equal(t, gpus[1], buf.Residency())
	require.NoError(t, buf.Close())
	require.NoError(t, q0.Wait())
	for ii, v := range data {
		assert.Equal(t, int32(ii+33), v)
	}
}

func TestBarrier(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	buf, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(4))
	require.NoError(t, err)
	defer func() { require.NoError(t, buf.Close()) }()

	barrier := submitAdd(t, q, buf, 1).CreateBarrier()
	require.NoError(t, barrier.Add(submitAdd(t, q, buf, 1)))
	require.NoError(t, barrier.Add(submitAdd(t, q, buf, 1)))
	assert.Equal(t, 3, barrier.Len())
	const numWaits = 4
	for range numWaits + 1 {
		require.NoError(t, barrier.Wait())
	}
	got, err := ReadAll[int32](buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 3, 3, 3}, got)

	// Adding while a Wait is in progress fails.
	release := make(chan struct{})
	blocked, err := q.Submit(func(h *Handler) error {
		return h.HostTask(func() error {
			<-release
			return nil
		})
	})
	require.NoError(t, err)
	barrier = NewBarrier(blocked, nil)
	waitDone := make(chan error)
	go func() { waitDone <- barrier.Wait() }()
	require.Eventually(t, func() bool {
		barrier.mu.Lock()
		defer barrier.mu.Unlock()
		return barrier.waiters > 0
	}, 5*time.Second, time.Millisecond)
	err = barrier.Add(submitAdd(t, q, buf, 1))
	assert.True(t, errors.Is(err, ErrBarrierWaiting))
	close(release)
	require.NoError(t, <-waitDone)

	// Reusable after the wait.
	require.NoError(t, barrier.Add(submitAdd(t, q, buf, 1)))
	require.NoError(t, barrier.Wait())
	assert.Error(t, barrier.Add(nil))
}

func TestNDRange(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	ones := make([]int32, 64)
	for ii := range ones {
		ones[ii] = 1
	}
	in, err := NewBufferFrom(q.Context(), ones, ranges.R(8, 8))
	require.NoError(t, err)
	out, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(2, 2))
	require.NoError(t, err)

	submitSum := func(ndr ranges.NDRange) (*Event, error) {
		return q.Submit(func(h *Handler) error {
			inAcc, err := h.Accessor(in, Read)
			if err != nil {
				return err
			}
			outAcc, err := h.Accessor(out, DiscardWrite)
			if err != nil {
				return err
			}
			scratch, err := h.LocalAccessor(dtypes.Int32, ranges.R(1))
			if err != nil {
				return err
			}
			return h.ParallelForND(ndr, groupSumKernel, inAcc, outAcc, scratch)
		})
	}
	ev, err := submitSum(ranges.ND(ranges.R(8, 8), ranges.R(4, 4)))
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	got, err := ReadAll[int32](out)
	require.NoError(t, err)
	assert.Equal(t, []int32{16, 16, 16, 16}, got)

	_, err = submitSum(ranges.ND(ranges.R(8, 8), ranges.R(3, 4)))
	assert.True(t, errors.Is(err, ErrIndivisibleRange))

	// Local memory is only available to nd_range launches.
	_, err = q.Submit(func(h *Handler) error {
		scratch, err := h.LocalAccessor(dtypes.Int32, ranges.R(1))
		if err != nil {
			return err
		}
		return h.SingleTask(addKernel, scratch)
	})
	assert.Error(t, err)

	require.NoError(t, in.Close())
	require.NoError(t, out.Close())
}

func TestLocalAccessorLayout(t *testing.T) {
	h := &Handler{}
	a, err := h.LocalAccessor(dtypes.Int8, ranges.R(1))
	require.NoError(t, err)
	b, err := h.LocalAccessor(dtypes.Float32, ranges.R(4))
	require.NoError(t, err)
	c, err := h.LocalAccessor(dtypes.Int32, ranges.R(1))
	require.NoError(t, err)
	d, err := h.LocalAccessor(dtypes.Float64, ranges.R(1))
	require.NoError(t, err)
	e, err := h.LocalScalar(dtypes.Int16)
	require.NoError(t, err)
	f, err := h.LocalScalar(dtypes.Float64)
	require.NoError(t, err)
	assert.Equal(t, 0, a.offset)
	assert.Equal(t, 16, b.offset)
	// Single element arrays are still 16 bytes aligned.
	assert.Equal(t, 32, c.offset)
	assert.Equal(t, 48, d.offset)
	// Scalars are aligned to their own size.
	assert.Equal(t, 56, e.offset)
	assert.Equal(t, 64, f.offset)
	assert.Equal(t, 72, h.localSize)

	assert.Equal(t, 0, alignLocal(0, 8, true))
	assert.Equal(t, 32, alignLocal(17, 4, true))
	assert.Equal(t, 20, alignLocal(17, 4, false))
	assert.Equal(t, 17, alignLocal(17, 1, false))
}

func TestCopies(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg, WithProfiling())
	ctx := q.Context()
	src, err := NewBufferFrom(ctx, iota32(24), ranges.R(4, 6))
	require.NoError(t, err)
	dst, err := NewBuffer(ctx, dtypes.Int32, ranges.R(4, 6))
	require.NoError(t, err)

	// Device to device, then back to a host slice: the second copy depends on the first.
	first, err := q.Submit(func(h *Handler) error {
		srcAcc, err := h.Accessor(src, Read, WithRange(ranges.R(2, 3)), WithOffset(ranges.I(1, 2)))
		if err != nil {
			return err
		}
		dstAcc, err := h.Accessor(dst, DiscardWrite, WithRange(ranges.R(2, 3)))
		if err != nil {
			return err
		}
		return h.Copy(srcAcc, dstAcc)
	})
	require.NoError(t, err)
	sub := make([]int32, 6)
	ev, err := q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(dst, Read, WithRange(ranges.R(2, 3)))
		if err != nil {
			return err
		}
		return CopyToHostSlice(h, acc, sub)
	})
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	assert.Equal(t, []int32{8, 9, 10, 14, 15, 16}, sub)
	firstEnd, err := first.ProfilingEnd()
	require.NoError(t, err)
	secondStart, err := ev.ProfilingStart()
	require.NoError(t, err)
	assert.LessOrEqual(t, firstEnd, secondStart)

	// Host slice into a column of the buffer.
	ev, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(dst, Write, WithRange(ranges.R(4, 1)), WithOffset(ranges.I(0, 5)))
		if err != nil {
			return err
		}
		return CopyFromHostSlice(h, []int32{-1, -2, -3, -4}, acc)
	})
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	got, err := ReadAll[int32](dst)
	require.NoError(t, err)
	want := []int32{
		8, 9, 10, 0, 0, -1,
		14, 15, 16, 0, 0, -2,
		0, 0, 0, 0, 0, -3,
		0, 0, 0, 0, 0, -4,
	}
	assert.Equal(t, want, got)

	// Type and size mismatches.
	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(dst, Read)
		if err != nil {
			return err
		}
		return CopyToHostSlice(h, acc, make([]float32, 24))
	})
	assert.Error(t, err)
	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(dst, Read)
		if err != nil {
			return err
		}
		return h.CopyToHost(acc, make([]byte, 10))
	})
	assert.Error(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, dst.Close())
}

func TestPlanCopy(t *testing.T) {
	dev := backends.Region{Offset: 0}
	host := backends.Region{Host: make([]byte, 1)}

	// Contiguous block: a single run.
	r := ranges.R(2, 6)
	desc := planCopy(host, dev, denseSide(r), copySide{extent: ranges.R(4, 6), offset: ranges.I(1, 0)}, r, 4)
	assert.Equal(t, 1, desc.Dims())
	assert.Equal(t, 48, desc.RowBytes)
	assert.Equal(t, 24, desc.Src.Offset)

	// Full rows: 2D with pitch.
	r = ranges.R(2, 3, 6)
	desc = planCopy(host, dev, denseSide(r), copySide{extent: ranges.R(4, 5, 6), offset: ranges.I(1, 1, 0)}, r, 4)
	assert.Equal(t, 2, desc.Dims())
	assert.Equal(t, 3*6*4, desc.RowBytes)
	assert.Equal(t, 2, desc.Rows)
	assert.Equal(t, 5*6*4, desc.SrcRowPitch)
	assert.Equal(t, 3*6*4, desc.DstRowPitch)
	assert.Equal(t, (30+6)*4, desc.Src.Offset)

	// Partial rows: 3D.
	r = ranges.R(2, 3, 4)
	desc = planCopy(host, dev, denseSide(r), copySide{extent: ranges.R(4, 5, 6), offset: ranges.I(1, 1, 1)}, r, 4)
	assert.Equal(t, 3, desc.Dims())
	assert.Equal(t, 16, desc.RowBytes)
	assert.Equal(t, 3, desc.Rows)
	assert.Equal(t, 2, desc.Planes)
	assert.Equal(t, 24, desc.SrcRowPitch)
	assert.Equal(t, 120, desc.SrcPlanePitch)
	assert.Equal(t, 16, desc.DstRowPitch)
	assert.Equal(t, 48, desc.DstPlanePitch)
	assert.Equal(t, 37*4, desc.Src.Offset)
	assert.Equal(t, 2*3*4*4, desc.Bytes())
}

func TestHostTask(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	data := iota32(4)
	buf, err := NewBufferFrom(q.Context(), data, ranges.R(4))
	require.NoError(t, err)
	submitAdd(t, q, buf, 1)
	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite, WithRange(ranges.R(2)), WithOffset(ranges.I(2)))
		if err != nil {
			return err
		}
		return h.HostTask(func() error {
			view := HostView[int32](acc)
			for ii := range acc.Range().Get(0) {
				id := ranges.I(ii)
				view.Set(id, -view.At(id))
			}
			return nil
		})
	})
	require.NoError(t, err)
	submitAdd(t, q, buf, 1)
	require.NoError(t, buf.Close())
	assert.Equal(t, []int32{2, 3, -2, -3}, data)
}

func TestHostAccessor(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	buf, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(4))
	require.NoError(t, err)
	submitAdd(t, q, buf, 5)

	ha, err := buf.HostAccess(ReadWrite)
	require.NoError(t, err)
	view := HostView[int32](ha.Accessor())
	assert.Equal(t, []int32{5, 5, 5, 5}, view.Flat)
	view.Set(ranges.I(0), 100)

	ev := submitAdd(t, q, buf, 1)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, ev.IsComplete(), "command ran while the host accessor was held")
	ha.Release()
	ha.Release()
	require.NoError(t, ev.Wait())

	require.NoError(t, WriteAll(buf, []int32{1, 2, 3, 4}))
	submitAdd(t, q, buf, 1)
	got, err := ReadAll[int32](buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 3, 4, 5}, got)
	_, err = ReadAll[float32](buf)
	assert.Error(t, err)
	require.NoError(t, buf.Close())
}

func TestProfiling(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	assert.False(t, q.ProfilingEnabled())
	buf, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(16))
	require.NoError(t, err)
	defer func() { require.NoError(t, buf.Close()) }()

	ev := submitAdd(t, q, buf, 1)
	_, err = ev.ProfilingSubmit()
	assert.True(t, errors.Is(err, ErrProfilingNotEnabled))
	_, err = ev.ProfilingEnd()
	assert.True(t, errors.Is(err, ErrProfilingNotEnabled))

	pq, err := NewQueue(q.Context(), q.Device(), WithProfiling())
	require.NoError(t, err)
	ev = submitAdd(t, pq, buf, 1)
	submit, err := ev.ProfilingSubmit()
	require.NoError(t, err)
	start, err := ev.ProfilingStart()
	require.NoError(t, err)
	end, err := ev.ProfilingEnd()
	require.NoError(t, err)
	assert.LessOrEqual(t, submit, start)
	assert.LessOrEqual(t, start, end)
}

func TestProfilingUsesDeviceTimestamps(t *testing.T) {
	const latency = 50 * time.Millisecond
	reg := newTestRegistry(t, "gpus=1,parallelism=4,latency="+latency.String())
	q := newGPUQueue(t, reg, WithProfiling())
	buf, err := NewBufferFrom(q.Context(), iota32(16), ranges.R(16))
	require.NoError(t, err)
	defer func() { require.NoError(t, buf.Close()) }()

	// The buffer is transferred to the device first, and both the transfer and the launch pay the latency:
	// none of it is part of the execution window of the command.
	ev := submitAdd(t, q, buf, 1)
	submit, err := ev.ProfilingSubmit()
	require.NoError(t, err)
	start, err := ev.ProfilingStart()
	require.NoError(t, err)
	end, err := ev.ProfilingEnd()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Duration(start-submit), latency)
	assert.Less(t, time.Duration(end-start), latency)
}

func TestInOrderQueue(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg, WithInOrder(), WithProfiling())
	assert.True(t, q.InOrder())
	a, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(2))
	require.NoError(t, err)
	b, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(2))
	require.NoError(t, err)
	first, err := q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(a, DiscardWrite)
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), slowSetKernel, acc, Value(int32(3)))
	})
	require.NoError(t, err)
	// Independent buffer, but ordered by the queue.
	second := submitAdd(t, q, b, 1)
	end, err := first.ProfilingEnd()
	require.NoError(t, err)
	start, err := second.ProfilingStart()
	require.NoError(t, err)
	assert.LessOrEqual(t, end, start)
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestDependsOn(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg, WithProfiling())
	a, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(2))
	require.NoError(t, err)
	b, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(2))
	require.NoError(t, err)
	first, err := q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(a, DiscardWrite)
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), slowSetKernel, acc, Value(int32(3)))
	})
	require.NoError(t, err)
	second, err := q.Submit(func(h *Handler) error {
		h.DependsOn(first, nil)
		acc, err := h.Accessor(b, ReadWrite)
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), addKernel, acc, Value(int32(1)))
	})
	require.NoError(t, err)
	end, err := first.ProfilingEnd()
	require.NoError(t, err)
	start, err := second.ProfilingStart()
	require.NoError(t, err)
	assert.LessOrEqual(t, end, start)
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestParallelForOffset(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	data := iota32(6)
	buf, err := NewBufferFrom(q.Context(), data, ranges.R(6))
	require.NoError(t, err)
	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite)
		if err != nil {
			return err
		}
		return h.ParallelForOffset(ranges.R(3), ranges.I(2), addKernel, acc, Value(int32(10)))
	})
	require.NoError(t, err)
	require.NoError(t, buf.Close())
	assert.Equal(t, []int32{0, 1, 12, 13, 14, 5}, data)

	// Offset must have the same number of dimensions as the range.
	_, err = q.Submit(func(h *Handler) error {
		return h.ParallelForOffset(ranges.R(3), ranges.I(0, 1), addKernel)
	})
	assert.Error(t, err)
}

func TestOutOfMemory(t *testing.T) {
	reg := newTestRegistry(t, "gpus=1,memory=1KiB")
	q := newGPUQueue(t, reg)
	buf, err := NewBufferFrom(q.Context(), make([]float32, 512), ranges.R(512))
	require.NoError(t, err)
	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite)
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), scaleKernel, acc, Value(float32(2)))
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceOutOfMemory))
	assert.Nil(t, buf.Residency())
	assert.False(t, buf.WriteBackPending())
	require.NoError(t, q.Wait())
	require.NoError(t, buf.Close())
}

func TestInvalidCommandSequence(t *testing.T) {
	reg := newTestRegistry(t, "")
	q := newGPUQueue(t, reg)
	buf, err := NewBuffer(q.Context(), dtypes.Int32, ranges.R(4))
	require.NoError(t, err)
	defer func() { require.NoError(t, buf.Close()) }()

	_, err = q.Submit(func(h *Handler) error {
		_, err := h.Accessor(buf, Read)
		return err
	})
	assert.True(t, errors.Is(err, ErrInvalidCommandSequence))

	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite)
		if err != nil {
			return err
		}
		_ = h.ParallelFor(acc.Range(), addKernel, acc, Value(int32(1)))
		// Error ignored on purpose: Submit still fails.
		_ = h.Fill(acc, Value(int32(0)))
		return nil
	})
	assert.True(t, errors.Is(err, ErrInvalidCommandSequence))

	_, err = q.Submit(func(h *Handler) error { panic("oops") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")

	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, Read, WithRange(ranges.R(3)), WithOffset(ranges.I(2)))
		if err != nil {
			return err
		}
		return h.SingleTask(addKernel, acc)
	})
	assert.Error(t, err)

	_, err = q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite)
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), addKernel, acc, int32(1))
	})
	assert.Error(t, err)
}

func TestDeviceMismatch(t *testing.T) {
	reg := newTestRegistry(t, "")
	cpu, err := reg.Select(platform.CPUSelector)
	require.NoError(t, err)
	gpu, err := reg.Select(platform.GPUSelector)
	require.NoError(t, err)

	_, err = NewContext([]*platform.Device{cpu, gpu})
	assert.True(t, errors.Is(err, ErrDeviceMismatch))
	_, err = NewContext(nil)
	assert.Error(t, err)

	cpuCtx, err := NewContextForDevice(cpu)
	require.NoError(t, err)
	_, err = NewQueue(cpuCtx, gpu)
	assert.True(t, errors.Is(err, ErrDeviceMismatch))

	gpuQueue := newGPUQueue(t, reg)
	buf, err := NewBuffer(cpuCtx, dtypes.Int32, ranges.R(4))
	require.NoError(t, err)
	defer func() { require.NoError(t, buf.Close()) }()
	_, err = gpuQueue.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, Read)
		if err != nil {
			return err
		}
		return h.SingleTask(addKernel, acc)
	})
	assert.True(t, errors.Is(err, ErrDeviceMismatch))
}

func TestAsyncErrors(t *testing.T) {
	reg := newTestRegistry(t, "")
	gpu, err := reg.Select(platform.GPUSelector)
	require.NoError(t, err)
	var reported []error
	ctx, err := NewContextForDevice(gpu, WithAsyncHandler(func(errs []error) { reported = append(reported, errs...) }),
		WithProperty("name", "async"))
	require.NoError(t, err)
	name, found := ctx.Property("name")
	assert.True(t, found)
	assert.Equal(t, "async", name)
	q, err := NewQueue(ctx, gpu)
	require.NoError(t, err)

	data := iota32(4)
	buf, err := NewBufferFrom(ctx, data, ranges.R(4))
	require.NoError(t, err)
	failed, err := q.Submit(func(h *Handler) error {
		acc, err := h.Accessor(buf, ReadWrite)
		if err != nil {
			return err
		}
		return h.ParallelFor(acc.Range(), panicKernel, acc)
	})
	require.NoError(t, err)
	dependent := submitAdd(t, q, buf, 1)

	err = dependent.Wait()
	assert.True(t, errors.Is(err, ErrDependencyFailed))
	var apiErr *APIError
	require.True(t, errors.As(failed.Wait(), &apiErr))
	assert.Equal(t, backends.CodeKernelPanic, apiErr.Code)

	require.NoError(t, q.Wait())
	assert.Len(t, reported, 2)
	require.NoError(t, buf.Close())
	assert.Equal(t, iota32(4), data)

	// Without a handler the errors are returned.
	plainCtx, err := NewContextForDevice(gpu)
	require.NoError(t, err)
	q, err = NewQueue(plainCtx, gpu)
	require.NoError(t, err)
	_, err = q.Submit(func(h *Handler) error {
		return h.HostTask(func() error { return errors.New("host task failed") })
	})
	require.NoError(t, err)
	err = q.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host task failed")
	require.NoError(t, q.Wait())
}

func TestAccessModes(t *testing.T) {
	assert.Equal(t, "discard_read_write", DiscardReadWrite.String())
	assert.False(t, Read.Writes())
	assert.True(t, Write.Writes())
	assert.False(t, Write.Discards())
	assert.True(t, DiscardWrite.Discards())
	assert.False(t, AccessMode(7).IsValid())
	assert.Equal(t, "AccessMode(7)", AccessMode(7).String())
	mode, err := AccessModeString("discard_write")
	require.NoError(t, err)
	assert.Equal(t, DiscardWrite, mode)

	buf := &Buffer{extent: ranges.R(4)}
	full := &Accessor{buf: buf, mode: DiscardWrite, offset: ranges.Zero(1), rng: ranges.R(4)}
	part := &Accessor{buf: buf, mode: DiscardWrite, offset: ranges.I(1), rng: ranges.R(2)}
	read := &Accessor{buf: buf, mode: Read, offset: ranges.Zero(1), rng: ranges.R(4)}
	assert.Equal(t, bindUse{needsData: false, writes: true}, (&bufferUse{accessors: []*Accessor{full, part}}).bindUse())
	assert.Equal(t, bindUse{needsData: true, writes: true}, (&bufferUse{accessors: []*Accessor{part}}).bindUse())
	assert.Equal(t, bindUse{needsData: true, writes: true}, (&bufferUse{accessors: []*Accessor{full, read}}).bindUse())
	assert.Equal(t, bindUse{needsData: true}, (&bufferUse{accessors: []*Accessor{read}}).bindUse())
}
