// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/pkg/core/dtypes"
	"github.com/gomlx/hetero/pkg/core/ranges"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type opKind int

const (
	opNone opKind = iota
	opLaunch
	opCopy
	opCopyToHost
	opCopyFromHost
	opFill
	opHostTask
	opHostAccess
)

// Handler builds one command: it is given to the command group function passed to Queue.Submit.
//
// The command group function creates the accessors the command needs and then issues exactly one
// operation: a kernel launch (SingleTask, ParallelFor, ParallelForOffset, ParallelForND), a copy
// (Copy, CopyToHost, CopyFromHost), a Fill or a HostTask.
//
// Errors are sticky: after the first failure, Submit returns it even if the command group function
// ignored it.
type Handler struct {
	queue     *Queue
	accessors []*Accessor
	locals    []*LocalAccessor
	localSize int
	deps      []*Event

	op   opKind
	name string
	err  error

	// Kernel launches.
	kernel backends.KernelID
	shape  backends.LaunchShape
	args   []any

	// Copies and fill.
	src, dst         *Accessor
	hostSrc, hostDst []byte
	fillValue        ValueArg

	// Host tasks and host accessors.
	hostTask   func() error
	hostAccess *HostAccessor
}

func newHandler(q *Queue) *Handler {
	return &Handler{queue: q}
}

// Queue the command is being submitted to.
func (h *Handler) Queue() *Queue { return h.queue }

// setErr records the first error and returns err.
func (h *Handler) setErr(err error) error {
	if h.err == nil {
		h.err = err
	}
	return err
}

// Err returns the first error found building the command, if any.
func (h *Handler) Err() error { return h.err }

// Accessor requests access to a region of buf (by default the whole buffer) with the given mode.
//
// The command will only run once earlier conflicting accesses to the region complete, and the data is
// moved to the queue's device if needed.
func (h *Handler) Accessor(buf *Buffer, mode AccessMode, opts ...AccessorOption) (*Accessor, error) {
	if buf == nil {
		return nil, h.setErr(errors.New("Handler.Accessor(nil)"))
	}
	if buf.ctx != h.queue.ctx {
		return nil, h.setErr(errors.Wrapf(ErrDeviceMismatch, "%s belongs to a different context than the queue", buf))
	}
	if buf.IsClosed() {
		return nil, h.setErr(errors.Wrapf(ErrBufferClosed, "Handler.Accessor(%s)", buf))
	}
	if !mode.IsValid() {
		return nil, h.setErr(errors.Errorf("Handler.Accessor(%s): invalid access mode %s", buf, mode))
	}
	offset, rng, err := resolveRegion(buf, opts)
	if err != nil {
		return nil, h.setErr(err)
	}
	acc := &Accessor{handler: h, buf: buf, mode: mode, offset: offset, rng: rng}
	h.accessors = append(h.accessors, acc)
	return acc, nil
}

// LocalAccessor allocates work-group local memory for an nd_range kernel: an array of r elements of dtype.
// Arrays are aligned to at least 16 bytes, even with a single element.
func (h *Handler) LocalAccessor(dtype dtypes.DType, r ranges.Range) (*LocalAccessor, error) {
	return h.localAccessor("LocalAccessor", dtype, r, true)
}

// LocalScalar allocates a single dtype element of work-group local memory, aligned to its own size.
func (h *Handler) LocalScalar(dtype dtypes.DType) (*LocalAccessor, error) {
	return h.localAccessor("LocalScalar", dtype, ranges.R(1), false)
}

func (h *Handler) localAccessor(what string, dtype dtypes.DType, r ranges.Range, isArray bool) (*LocalAccessor, error) {
	if !dtype.IsValid() {
		return nil, h.setErr(errors.Errorf("Handler.%s: invalid dtype %s", what, dtype))
	}
	if !r.Ok() {
		return nil, h.setErr(errors.Errorf("Handler.%s: invalid range", what))
	}
	elemSize := dtype.Size()
	offset := alignLocal(h.localSize, elemSize, isArray)
	la := &LocalAccessor{handler: h, dtype: dtype, rng: r, offset: offset, numBytes: r.Size() * elemSize}
	h.localSize = offset + la.numBytes
	h.locals = append(h.locals, la)
	return la, nil
}

// DependsOn adds explicit dependencies: the command only runs after the given events complete.
func (h *Handler) DependsOn(events ...*Event) {
	for _, ev := range events {
		if ev != nil {
			h.deps = append(h.deps, ev)
		}
	}
}

// setOp records the operation of the command, failing if one was already issued.
func (h *Handler) setOp(op opKind, name string) error {
	if h.op != opNone {
		return h.setErr(errors.Wrapf(ErrInvalidCommandSequence, "%s issued after %s in the same command group", name, h.name))
	}
	h.op = op
	h.name = name
	return nil
}

// ownAccessor checks that acc was created by this handler.
func (h *Handler) ownAccessor(acc *Accessor, what string) error {
	if acc == nil {
		return h.setErr(errors.Errorf("%s: nil accessor", what))
	}
	if acc.handler != h {
		return h.setErr(errors.Errorf("%s: %s was created by another command group", what, acc))
	}
	return nil
}

// checkArgs validates kernel arguments.
func (h *Handler) checkArgs(args []any, allowLocal bool) error {
	for ii, arg := range args {
		switch a := arg.(type) {
		case *Accessor:
			if err := h.ownAccessor(a, fmt.Sprintf("%s argument #%d", h.name, ii)); err != nil {
				return err
			}
		case *LocalAccessor:
			if a == nil || a.handler != h {
				return h.setErr(errors.Errorf("%s argument #%d: local accessor of another command group", h.name, ii))
			}
			if !allowLocal {
				return h.setErr(errors.Errorf("%s argument #%d: local memory can only be used with ParallelForND", h.name, ii))
			}
		case ValueArg:
		default:
			return h.setErr(errors.Errorf("%s argument #%d: unsupported type %T, use an *Accessor, *LocalAccessor or compute.Value()",
				h.name, ii, arg))
		}
	}
	return nil
}

func (h *Handler) launch(name string, kernel backends.KernelID, shape backends.LaunchShape, args []any) error {
	if err := h.setOp(opLaunch, fmt.Sprintf("%s(%s)", name, kernel.Name)); err != nil {
		return err
	}
	h.kernel = kernel
	h.shape = shape
	h.args = args
	return h.checkArgs(args, shape.Kind == backends.LaunchNDRange)
}

// SingleTask launches kernel once.
func (h *Handler) SingleTask(kernel backends.KernelID, args ...any) error {
	return h.launch("single_task", kernel, backends.LaunchShape{Kind: backends.LaunchSingleTask}, args)
}

// ParallelFor launches kernel once for each id in r.
func (h *Handler) ParallelFor(r ranges.Range, kernel backends.KernelID, args ...any) error {
	if !r.Ok() {
		return h.setErr(errors.New("ParallelFor: invalid range"))
	}
	return h.launch("parallel_for", kernel, backends.LaunchShape{Kind: backends.LaunchRange, Global: r,
		Offset: ranges.Zero(r.Dims())}, args)
}

// ParallelForOffset launches kernel once for each id in r shifted by offset.
func (h *Handler) ParallelForOffset(r ranges.Range, offset ranges.ID, kernel backends.KernelID, args ...any) error {
	if !r.Ok() || offset.Dims() != r.Dims() {
		return h.setErr(errors.Errorf("ParallelForOffset: offset %s doesn't match range %s", offset, r))
	}
	return h.launch("parallel_for", kernel, backends.LaunchShape{Kind: backends.LaunchRange, Global: r, Offset: offset}, args)
}

// ParallelForND launches kernel over an nd_range. The global range must be divisible by the local range,
// otherwise it fails with ErrIndivisibleRange.
func (h *Handler) ParallelForND(ndr ranges.NDRange, kernel backends.KernelID, args ...any) error {
	if err := ndr.Validate(); err != nil {
		return h.setErr(errors.WithMessage(err, "ParallelForND"))
	}
	return h.launch("parallel_for_nd", kernel, backends.LaunchShape{Kind: backends.LaunchNDRange, Global: ndr.Global,
		Offset: ranges.Zero(ndr.Global.Dims()), Local: ndr.Local}, args)
}

// Copy copies the region of src into the region of dst. Both must have the same range and element size,
// and dst must have a writing mode.
func (h *Handler) Copy(src, dst *Accessor) error {
	if err := h.setOp(opCopy, "copy"); err != nil {
		return err
	}
	if err := h.ownAccessor(src, "Copy source"); err != nil {
		return err
	}
	if err := h.ownAccessor(dst, "Copy destination"); err != nil {
		return err
	}
	if !src.rng.Equal(dst.rng) || src.buf.elemSize != dst.buf.elemSize {
		return h.setErr(errors.Errorf("Copy: source %s and destination %s don't match", src, dst))
	}
	if !dst.mode.Writes() {
		return h.setErr(errors.Errorf("Copy: destination %s is read-only", dst))
	}
	h.src, h.dst = src, dst
	return nil
}

// CopyToHost copies the region of src into the host slice dst, densely packed. dst must have at
// least the size of the region in bytes.
//
// dst is not tracked: the caller must not use it until the command completes.
func (h *Handler) CopyToHost(src *Accessor, dst []byte) error {
	if err := h.setOp(opCopyToHost, "copy_to_host"); err != nil {
		return err
	}
	if err := h.ownAccessor(src, "CopyToHost source"); err != nil {
		return err
	}
	if need := src.Size() * src.buf.elemSize; len(dst) < need {
		return h.setErr(errors.Errorf("CopyToHost: destination has %d bytes, %s needs %d", len(dst), src, need))
	}
	h.src, h.hostDst = src, dst
	return nil
}

// CopyFromHost copies the densely packed host slice src into the region of dst.
//
// src is not tracked: the caller must not modify it until the command completes.
func (h *Handler) CopyFromHost(src []byte, dst *Accessor) error {
	if err := h.setOp(opCopyFromHost, "copy_from_host"); err != nil {
		return err
	}
	if err := h.ownAccessor(dst, "CopyFromHost destination"); err != nil {
		return err
	}
	if !dst.mode.Writes() {
		return h.setErr(errors.Errorf("CopyFromHost: destination %s is read-only", dst))
	}
	if need := dst.Size() * dst.buf.elemSize; len(src) < need {
		return h.setErr(errors.Errorf("CopyFromHost: source has %d bytes, %s needs %d", len(src), dst, need))
	}
	h.hostSrc, h.dst = src, dst
	return nil
}

// CopyToHostSlice is a typed version of Handler.CopyToHost.
func CopyToHostSlice[T dtypes.Supported](h *Handler, src *Accessor, dst []T) error {
	if src != nil && src.buf.dtype != dtypes.FromGenericsType[T]() {
		return h.setErr(errors.Errorf("CopyToHostSlice: %s can't be copied to []%s", src, dtypes.FromGenericsType[T]()))
	}
	return h.CopyToHost(src, dtypes.AsBytes(dst))
}

// CopyFromHostSlice is a typed version of Handler.CopyFromHost.
func CopyFromHostSlice[T dtypes.Supported](h *Handler, src []T, dst *Accessor) error {
	if dst != nil && dst.buf.dtype != dtypes.FromGenericsType[T]() {
		return h.setErr(errors.Errorf("CopyFromHostSlice: []%s can't be copied to %s", dtypes.FromGenericsType[T](), dst))
	}
	return h.CopyFromHost(dtypes.AsBytes(src), dst)
}

// Fill sets every element of the region of dst to value.
func (h *Handler) Fill(dst *Accessor, value ValueArg) error {
	if err := h.setOp(opFill, "fill"); err != nil {
		return err
	}
	if err := h.ownAccessor(dst, "Fill"); err != nil {
		return err
	}
	if value.dtype != dst.buf.dtype {
		return h.setErr(errors.Errorf("Fill: value of type %s for %s", value.dtype, dst))
	}
	if !dst.mode.Writes() {
		return h.setErr(errors.Errorf("Fill: destination %s is read-only", dst))
	}
	h.dst, h.fillValue = dst, value
	return nil
}

// HostTask runs fn on the host. The accessors of the command are bound in host memory: fn can
// access them with HostView.
func (h *Handler) HostTask(fn func() error) error {
	if err := h.setOp(opHostTask, "host_task"); err != nil {
		return err
	}
	if fn == nil {
		return h.setErr(errors.New("HostTask(nil)"))
	}
	h.hostTask = fn
	return nil
}

// HostView returns a typed view of an accessor's region in host memory. It is only valid inside a HostTask
// of the command that created the accessor, or while a HostAccessor is held.
func HostView[T dtypes.Supported](acc *Accessor) backends.View[T] {
	return backends.ViewOf[T](backends.Args{acc.resolvedArg(acc.buf.host)}, 0)
}

// bufferUse merges the accessors to one buffer.
type bufferUse struct {
	buf       *Buffer
	accessors []*Accessor
}

func (u *bufferUse) bindUse() bindUse {
	allDiscard, anyFull := true, false
	var use bindUse
	for _, acc := range u.accessors {
		if acc.mode.Writes() {
			use.writes = true
		}
		if !acc.mode.Discards() {
			allDiscard = false
		} else if acc.IsFullExtent() {
			anyFull = true
		}
	}
	use.needsData = !(allDiscard && anyFull)
	return use
}

// finalize binds the accessors and creates the event of the command. The event is not sealed.
// It must be called with the queue locked.
func (h *Handler) finalize() (*Event, error) {
	if h.err != nil {
		return nil, h.err
	}
	if h.op == opNone {
		return nil, errors.Wrap(ErrInvalidCommandSequence, "command group issued no operation")
	}
	q := h.queue
	domain := q.domain
	if h.op == opHostTask || h.op == opHostAccess {
		domain = hostDomain
	}

	// Group accessors per buffer, and lock buffers in id order.
	var uses []*bufferUse
	for _, acc := range h.accessors {
		idx := slices.IndexFunc(uses, func(u *bufferUse) bool { return u.buf == acc.buf })
		if idx < 0 {
			uses = append(uses, &bufferUse{buf: acc.buf})
			idx = len(uses) - 1
		}
		uses[idx].accessors = append(uses[idx].accessors, acc)
	}
	slices.SortFunc(uses, func(a, b *bufferUse) int { return cmp.Compare(a.buf.id, b.buf.id) })
	for _, u := range uses {
		u.buf.mu.Lock()
	}
	defer func() {
		for _, u := range uses {
			u.buf.mu.Unlock()
		}
	}()
	for _, u := range uses {
		if u.buf.closed {
			return nil, errors.Wrapf(ErrBufferClosed, "submitting %s", h.name)
		}
	}
	for _, u := range uses {
		if err := u.buf.ensureMemory(domain); err != nil {
			return nil, err
		}
	}

	op, err := h.operation(domain)
	if err != nil {
		return nil, err
	}
	ev := newEvent(q, h.name, nil)
	ev.run = func() error { return op(ev) }

	// Transfers are commands of their own: the accessors of this command only cover their regions.
	var deps []*Event
	numTransfers := 0
	for _, u := range uses {
		transfers := u.buf.bind(q, domain, u.bindUse())
		numTransfers += len(transfers)
		deps = append(deps, transfers...)
		for _, acc := range u.accessors {
			deps = append(deps, u.buf.access(ev, domain, acc.box(), acc.mode.conflictMode())...)
		}
	}
	deps = append(deps, h.deps...)
	if q.inOrder && q.last != nil {
		deps = append(deps, q.last)
	}
	seen := make(map[*Event]bool, len(deps))
	for _, dep := range deps {
		if !seen[dep] {
			seen[dep] = true
			ev.dependOn(dep)
		}
	}
	klog.V(2).Infof("%s: %d transfer(s), %d dependencies", ev, numTransfers, len(seen))
	return ev, nil
}

// memoryOf returns the region of a buffer in a device domain. It must be called with the buffer locked.
func memoryOf(buf *Buffer, domain int) backends.Region {
	return backends.Region{Mem: buf.domains[domain].mem}
}

// operation returns the function executing the command's operation, with the memories of its buffers
// in the domain resolved. It must be called with the buffers locked.
func (h *Handler) operation(domain int) (func(ev *Event) error, error) {
	switch h.op {
	case opLaunch:
		args := make([]backends.Arg, len(h.args))
		for ii, arg := range h.args {
			switch a := arg.(type) {
			case *Accessor:
				args[ii] = backends.Arg{Kind: backends.ArgBuffer, Mem: a.buf.domains[domain].mem, Extent: a.buf.extent,
					Offset: a.offset, Range: a.rng, ElemSize: a.buf.elemSize}
			case *LocalAccessor:
				args[ii] = backends.Arg{Kind: backends.ArgLocal, LocalOffset: a.offset, LocalBytes: a.numBytes}
			case ValueArg:
				args[ii] = backends.Arg{Kind: backends.ArgValue, Value: a.data}
			}
		}
		shape := h.shape
		shape.LocalMemBytes = h.localSize
		return h.launchFn(h.kernel, shape, args), nil

	case opFill:
		dst := h.dst
		args := []backends.Arg{
			{Kind: backends.ArgBuffer, Mem: dst.buf.domains[domain].mem, Extent: dst.buf.extent,
				Offset: dst.offset, Range: dst.rng, ElemSize: dst.buf.elemSize},
			{Kind: backends.ArgValue, Value: h.fillValue.data},
		}
		shape := backends.LaunchShape{Kind: backends.LaunchRange, Global: dst.rng, Offset: ranges.Zero(dst.rng.Dims())}
		return h.launchFn(backends.FillKernel, shape, args), nil

	case opCopy:
		desc := planCopy(memoryOf(h.dst.buf, domain), memoryOf(h.src.buf, domain),
			accessorSide(h.dst), accessorSide(h.src), h.src.rng, h.src.buf.elemSize)
		return h.copyFn(desc), nil

	case opCopyToHost:
		desc := planCopy(backends.Region{Host: h.hostDst}, memoryOf(h.src.buf, domain),
			denseSide(h.src.rng), accessorSide(h.src), h.src.rng, h.src.buf.elemSize)
		return h.copyFn(desc), nil

	case opCopyFromHost:
		desc := planCopy(memoryOf(h.dst.buf, domain), backends.Region{Host: h.hostSrc},
			accessorSide(h.dst), denseSide(h.dst.rng), h.dst.rng, h.dst.buf.elemSize)
		return h.copyFn(desc), nil

	case opHostTask:
		return func(*Event) error { return h.hostTask() }, nil

	case opHostAccess:
		return func(*Event) error { return h.hostAccess.hold() }, nil
	}
	return nil, errors.Errorf("unknown operation %d", h.op)
}

func (h *Handler) launchFn(kernel backends.KernelID, shape backends.LaunchShape, args []backends.Arg) func(ev *Event) error {
	dev := h.queue.device
	return func(ev *Event) error {
		klog.V(3).Infof("launching %s %s on %s", kernel, shape, dev)
		tok, err := dev.Backend().Launch(dev.Num(), kernel, shape, args)
		if err != nil {
			return err
		}
		if backends.QueryCompletion(tok) {
			klog.V(3).Infof("%s: %s completed synchronously", ev, kernel)
		}
		return ev.awaitToken(tok)
	}
}

func (h *Handler) copyFn(desc backends.CopyDesc) func(ev *Event) error {
	dev := h.queue.device
	return func(ev *Event) error {
		tok, err := dev.Backend().Copy(dev.Num(), desc)
		if err != nil {
			return err
		}
		return ev.awaitToken(tok)
	}
}
