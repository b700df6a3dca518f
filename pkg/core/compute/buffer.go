// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/internal/conflicts"
	"github.com/gomlx/hetero/pkg/core/dtypes"
	"github.com/gomlx/hetero/pkg/core/platform"
	"github.com/gomlx/hetero/pkg/core/ranges"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var nextBufferID atomic.Uint64

// Buffer owns the value of a 1 to 3 dimensional array, wherever its latest version is: host memory
// or the memory of one of the context devices.
//
// Each memory domain (the host and each device) holds a version of the data: the domain with the latest
// version is the authoritative residency. When a command needs the buffer in a domain holding a stale
// version, a whole-buffer transfer from the residency is executed as part of the command.
//
// Buffers must be closed (see Close) to release device memory and write the data back to the host.
type Buffer struct {
	ctx      *Context
	id       uint64
	dtype    dtypes.DType
	extent   ranges.Range
	elemSize int

	// mu protects everything below. Handlers lock all the buffers of a command, in id order.
	mu sync.Mutex

	host    []byte
	domains []*memoryDomain
	latest  uint64
	owner   int

	writeBack bool
	finalData []byte
	closed    bool
}

// memoryDomain is the state of a buffer in one memory space.
type memoryDomain struct {
	version uint64
	mem     backends.Memory
	tracker conflicts.Tracker[*Event]
}

// NewBuffer creates a zero initialized buffer. Write-back is disabled by default.
func NewBuffer(ctx *Context, dtype dtypes.DType, extent ranges.Range) (*Buffer, error) {
	if !dtype.IsValid() {
		return nil, errors.Errorf("NewBuffer: invalid dtype %s", dtype)
	}
	if !extent.Ok() {
		return nil, errors.New("NewBuffer: invalid extent")
	}
	b := newBuffer(ctx, dtype, extent)
	b.host = make([]byte, extent.Size()*b.elemSize)
	return b, nil
}

// NewBufferFrom creates a buffer initialized with the caller's data, which must have exactly extent.Size()
// elements.
//
// data is also the final destination of the buffer: write-back is enabled by default, so after Close
// data holds the final value of the buffer. The caller must not modify data until then.
func NewBufferFrom[T dtypes.Supported](ctx *Context, data []T, extent ranges.Range) (*Buffer, error) {
	if !extent.Ok() {
		return nil, errors.New("NewBufferFrom: invalid extent")
	}
	if len(data) != extent.Size() {
		return nil, errors.Errorf("NewBufferFrom: %d elements given for extent %s (%d elements)",
			len(data), extent, extent.Size())
	}
	b := newBuffer(ctx, dtypes.FromGenericsType[T](), extent)
	b.finalData = dtypes.AsBytes(data)
	b.host = slices.Clone(b.finalData)
	b.writeBack = true
	return b, nil
}

func newBuffer(ctx *Context, dtype dtypes.DType, extent ranges.Range) *Buffer {
	b := &Buffer{
		ctx:      ctx,
		id:       nextBufferID.Add(1),
		dtype:    dtype,
		extent:   extent,
		elemSize: dtype.Size(),
		domains:  make([]*memoryDomain, ctx.numDomains()),
		latest:   1,
		owner:    hostDomain,
	}
	for ii := range b.domains {
		b.domains[ii] = &memoryDomain{}
	}
	b.domains[hostDomain].version = 1
	klog.V(2).Infof("%s created", b)
	return b
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	return fmt.Sprintf("buffer#%d(%s%s)", b.id, b.dtype, b.extent)
}

// Context of the buffer.
func (b *Buffer) Context() *Context { return b.ctx }

// DType of the buffer elements.
func (b *Buffer) DType() dtypes.DType { return b.dtype }

// Extent of the buffer.
func (b *Buffer) Extent() ranges.Range { return b.extent }

// Size returns the number of elements.
func (b *Buffer) Size() int { return b.extent.Size() }

// ByteSize returns the size of the buffer in bytes.
func (b *Buffer) ByteSize() int { return b.extent.Size() * b.elemSize }

// SetWriteBack enables or disables writing the data back to the host on Close.
func (b *Buffer) SetWriteBack(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeBack = enabled
}

// WriteBack returns whether write-back on Close is enabled.
func (b *Buffer) WriteBack() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeBack
}

// SetFinalData sets where the final value of the buffer is copied to on Close, and enables write-back.
// dst must have the same number of elements as the buffer, and its type must match the buffer dtype.
// A nil dst disables write-back.
func SetFinalData[T dtypes.Supported](b *Buffer, dst []T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dst == nil {
		b.finalData = nil
		b.writeBack = false
		return nil
	}
	if dtype := dtypes.FromGenericsType[T](); dtype != b.dtype || len(dst) != b.Size() {
		return errors.Errorf("SetFinalData: %s needs %d %s elements, got %d %s", b, b.Size(), b.dtype, len(dst), dtype)
	}
	b.finalData = dtypes.AsBytes(dst)
	b.writeBack = true
	return nil
}

// Residency returns the device holding the latest version of the data, or nil if it is the host.
func (b *Buffer) Residency() *platform.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.domains[b.owner].version == b.latest {
		return b.ctx.deviceOf(b.owner)
	}
	// The owner's data was superseded by a pending transfer elsewhere: pick the first latest domain.
	for ii, d := range b.domains {
		if d.version == b.latest {
			return b.ctx.deviceOf(ii)
		}
	}
	return nil
}

// WriteBackPending returns whether write-back is enabled and the host doesn't hold the latest version.
func (b *Buffer) WriteBackPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeBack && b.domains[hostDomain].version < b.latest
}

// IsClosed returns whether Close was called.
func (b *Buffer) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// transfer is a whole-buffer copy between two memory domains, executed as part of a command.
type transfer struct {
	buf      *Buffer
	src, dst int
	srcMem   backends.Memory
	dstMem   backends.Memory
}

// execute the transfer, blocking until it's done.
func (t transfer) execute() error {
	ctx := t.buf.ctx
	size := t.buf.ByteSize()
	srcRegion := backends.Region{Host: t.buf.host, Mem: t.srcMem}
	dstRegion := backends.Region{Host: t.buf.host, Mem: t.dstMem}
	if t.srcMem != nil {
		srcRegion.Host = nil
	}
	if t.dstMem != nil {
		dstRegion.Host = nil
	}
	// The device side issues the copy.
	issuer := t.dst
	if issuer == hostDomain {
		issuer = t.src
	}
	dev := ctx.deviceOf(issuer)
	klog.V(2).Infof("%s: transfer %d bytes from domain %d to %d", t.buf, size, t.src, t.dst)
	tok, err := dev.Backend().Copy(dev.Num(), backends.Linear(dstRegion, srcRegion, size))
	if err != nil {
		return err
	}
	return backends.Await(tok)
}

// ensureMemory allocates the device memory of a domain, if not yet allocated.
// It must be called with b.mu locked.
func (b *Buffer) ensureMemory(domain int) error {
	if domain == hostDomain || b.domains[domain].mem != nil {
		return nil
	}
	dev := b.ctx.deviceOf(domain)
	mem, err := dev.Backend().Allocate(dev.Num(), b.ByteSize())
	if err != nil {
		return errors.WithMessagef(err, "allocating %s on %s", b, dev)
	}
	b.domains[domain].mem = mem
	klog.V(2).Infof("%s: allocated %d bytes on %s", b, b.ByteSize(), dev)
	return nil
}

// bindUse is how a command uses a buffer, merged over all its accessors to the buffer.
type bindUse struct {
	needsData bool
	writes    bool
}

// bind prepares the buffer to be used by a command of q in the given domain: it schedules the transfers
// needed to bring the latest version to the domain and updates the versions. It returns the events of
// the transfers, which the command must depend on.
//
// It must be called with b.mu locked, after ensureMemory(domain).
func (b *Buffer) bind(q *Queue, domain int, use bindUse) (transfers []*Event) {
	target := b.domains[domain]
	if target.version != b.latest && use.needsData {
		src := b.latestDomain()
		if src != hostDomain && domain != hostDomain {
			// Device to device: stage through host memory, which then also holds the latest version.
			transfers = append(transfers, b.scheduleTransfer(q, src, hostDomain))
			b.domains[hostDomain].version = b.latest
			src = hostDomain
		}
		transfers = append(transfers, b.scheduleTransfer(q, src, domain))
		target.version = b.latest
	}
	if use.writes {
		b.latest++
		target.version = b.latest
		b.owner = domain
	} else if target.version == b.latest && b.domains[b.owner].version != b.latest {
		b.owner = domain
	}
	return
}

// scheduleTransfer submits a whole-buffer transfer between two domains as an event of its own, ordered
// after the outstanding conflicting accesses in both domains. It must be called with b.mu locked.
func (b *Buffer) scheduleTransfer(q *Queue, src, dst int) *Event {
	t := transfer{buf: b, src: src, dst: dst, srcMem: b.domains[src].mem, dstMem: b.domains[dst].mem}
	ev := newEvent(q, fmt.Sprintf("transfer(%s, %d->%d)", b, src, dst), t.execute)
	whole := ranges.FullBox(b.extent)
	deps := b.domains[src].tracker.Acquire(whole, conflicts.Read, ev, isEventComplete)
	for _, dep := range b.domains[dst].tracker.Acquire(whole, conflicts.Write, ev, isEventComplete) {
		if !slices.Contains(deps, dep) {
			deps = append(deps, dep)
		}
	}
	for _, dep := range deps {
		ev.dependOn(dep)
	}
	ev.seal()
	return ev
}

// latestDomain returns the owner domain if it holds the latest version, or any domain that does.
// It must be called with b.mu locked.
func (b *Buffer) latestDomain() int {
	if b.domains[b.owner].version == b.latest {
		return b.owner
	}
	for ii, d := range b.domains {
		if d.version == b.latest {
			return ii
		}
	}
	return hostDomain
}

// access registers an accessor's region in the domain tracker, and returns the events it depends on.
// It must be called with b.mu locked.
func (b *Buffer) access(ev *Event, domain int, box ranges.Box, mode conflicts.Mode) []*Event {
	return b.domains[domain].tracker.Acquire(box, mode, ev, isEventComplete)
}

// Close waits for every outstanding access to the buffer (including host accessors not yet released),
// writes the data back to the host if write-back is enabled and the host is stale (or a final destination
// was set), and frees the device memory. Calling Close more than once is a no-op.
func (b *Buffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var outstanding []*Event
	for _, d := range b.domains {
		outstanding = append(outstanding, d.tracker.Outstanding()...)
	}
	b.mu.Unlock()

	for _, ev := range outstanding {
		if err := ev.Wait(); err != nil {
			// Reported to the queue that owns the event.
			klog.V(1).Infof("%s: outstanding %s failed: %v", b, ev, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.writeBack && b.domains[hostDomain].version < b.latest {
		src := b.latestDomain()
		klog.V(1).Infof("%s: write-back from %s", b, b.ctx.deviceOf(src))
		err = transfer{buf: b, src: src, dst: hostDomain, srcMem: b.domains[src].mem}.execute()
		if err == nil {
			b.domains[hostDomain].version = b.latest
		} else {
			err = errors.WithMessagef(err, "%s: write-back", b)
		}
	}
	if err == nil && b.writeBack && b.finalData != nil {
		copy(b.finalData, b.host)
	}
	for ii, d := range b.domains {
		if d.mem == nil {
			continue
		}
		if freeErr := b.ctx.deviceOf(ii).Backend().Free(d.mem); freeErr != nil {
			klog.Warningf("%s: failed to free device memory: %v", b, freeErr)
		}
		d.mem = nil
	}
	return err
}
