// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"fmt"

	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/internal/conflicts"
	"github.com/gomlx/hetero/pkg/core/dtypes"
	"github.com/gomlx/hetero/pkg/core/ranges"
	"github.com/pkg/errors"
)

// AccessMode of an Accessor.
type AccessMode int

const (
	// Read access: the data is brought to the device, and not modified.
	Read AccessMode = iota

	// Write access: the previous data is still brought to the device, since elements not written
	// by the kernel must keep their values.
	Write

	// ReadWrite access.
	ReadWrite

	// DiscardWrite access: the previous contents are not needed. If the accessor covers the whole buffer
	// no data is moved before the command.
	DiscardWrite

	// DiscardReadWrite is like DiscardWrite, but the kernel may read back what it wrote.
	DiscardReadWrite
)

//go:generate go tool enumer -type=AccessMode -transform=snake -output=gen_accessmode_enumer.go accessor.go

// IsValid returns whether m is one of the defined modes.
func (m AccessMode) IsValid() bool { return m.IsAAccessMode() }

// Writes returns whether the mode modifies the data.
func (m AccessMode) Writes() bool { return m != Read }

// Discards returns whether the mode doesn't need the previous contents.
func (m AccessMode) Discards() bool { return m == DiscardWrite || m == DiscardReadWrite }

// conflictMode converts to the mode used for dependency tracking.
func (m AccessMode) conflictMode() conflicts.Mode {
	switch m {
	case Read:
		return conflicts.Read
	case Write, DiscardWrite:
		return conflicts.Write
	default:
		return conflicts.ReadWrite
	}
}

// Accessor grants a command access to a region (offset + range) of a Buffer.
//
// Accessors are created with Handler.Accessor and are only valid within the command group that created
// them. They are passed to kernels as arguments, or used as the source or destination of copies.
type Accessor struct {
	handler *Handler
	buf     *Buffer
	mode    AccessMode
	offset  ranges.ID
	rng     ranges.Range
}

// AccessorOption configures the region of an Accessor.
type AccessorOption func(cfg *accessorConfig)

type accessorConfig struct {
	rng    ranges.Range
	offset ranges.ID
	hasOff bool
}

// WithRange limits the accessor to the given range. The default is the whole buffer extent.
func WithRange(r ranges.Range) AccessorOption {
	return func(cfg *accessorConfig) { cfg.rng = r }
}

// WithOffset sets the offset of the accessor region within the buffer. The default is zero.
func WithOffset(offset ranges.ID) AccessorOption {
	return func(cfg *accessorConfig) {
		cfg.offset = offset
		cfg.hasOff = true
	}
}

// resolveRegion applies the options to the buffer extent, and validates the region.
func resolveRegion(buf *Buffer, opts []AccessorOption) (offset ranges.ID, rng ranges.Range, err error) {
	var cfg accessorConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	extent := buf.Extent()
	rng = cfg.rng
	if !rng.Ok() {
		rng = extent
	}
	offset = ranges.Zero(extent.Dims())
	if cfg.hasOff {
		offset = cfg.offset
	}
	if rng.Dims() != extent.Dims() || offset.Dims() != extent.Dims() {
		err = errors.Errorf("accessor range %s / offset %s don't match the %d dimensions of %s",
			rng, offset, extent.Dims(), buf)
		return
	}
	if !extent.Contains(offset, rng) {
		err = errors.Errorf("accessor range %s at offset %s is out of the bounds of %s", rng, offset, buf)
	}
	return
}

// Buffer accessed.
func (acc *Accessor) Buffer() *Buffer { return acc.buf }

// Mode of the access.
func (acc *Accessor) Mode() AccessMode { return acc.mode }

// Offset of the region within the buffer.
func (acc *Accessor) Offset() ranges.ID { return acc.offset }

// Range of the region.
func (acc *Accessor) Range() ranges.Range { return acc.rng }

// Size returns the number of elements in the region.
func (acc *Accessor) Size() int { return acc.rng.Size() }

// box is the region of the accessor, for conflict tracking.
func (acc *Accessor) box() ranges.Box { return ranges.BoxOf(acc.offset, acc.rng) }

// IsFullExtent returns whether the accessor covers the whole buffer.
func (acc *Accessor) IsFullExtent() bool {
	return acc.offset.IsZero() && acc.rng.Equal(acc.buf.extent)
}

// String implements fmt.Stringer.
func (acc *Accessor) String() string {
	return fmt.Sprintf("accessor(%s, %s, %s@%s)", acc.buf, acc.mode, acc.rng, acc.offset)
}

// resolvedArg returns the view of the accessor over the given storage, as seen by kernels and host tasks.
func (acc *Accessor) resolvedArg(data []byte) backends.ResolvedArg {
	return backends.ResolvedArg{
		Kind:     backends.ArgBuffer,
		Data:     data,
		Extent:   acc.buf.extent,
		Offset:   acc.offset,
		Range:    acc.rng,
		ElemSize: acc.buf.elemSize,
	}
}

// LocalAccessor is per work-group scratch memory of a kernel launched over an nd_range.
// Each work-group sees its own zero initialized copy.
type LocalAccessor struct {
	handler  *Handler
	dtype    dtypes.DType
	rng      ranges.Range
	offset   int
	numBytes int
}

// DType of the elements.
func (la *LocalAccessor) DType() dtypes.DType { return la.dtype }

// Range of the local array.
func (la *LocalAccessor) Range() ranges.Range { return la.rng }

// ByteSize of the local array.
func (la *LocalAccessor) ByteSize() int { return la.numBytes }

// String implements fmt.Stringer.
func (la *LocalAccessor) String() string {
	return fmt.Sprintf("local(%s%s@%d)", la.dtype, la.rng, la.offset)
}

// alignLocal returns the offset of a local allocation of elemSize elements after used bytes.
// Arrays are aligned to at least 16 bytes, scalars to their own size.
func alignLocal(used, elemSize int, isArray bool) int {
	align := elemSize
	if isArray {
		align = max(elemSize, 16)
	}
	if align <= 1 {
		return used
	}
	if used&(align-1) != 0 {
		used = (used + align) &^ (align - 1)
	}
	return used
}

// ValueArg is a kernel argument passed by value.
type ValueArg struct {
	dtype dtypes.DType
	data  []byte
}

// Value creates a kernel argument holding v.
func Value[T dtypes.Supported](v T) ValueArg {
	return ValueArg{dtype: dtypes.FromGenericsType[T](), data: dtypes.ValueBytes(v)}
}

// DType of the value.
func (v ValueArg) DType() dtypes.DType { return v.dtype }

// String implements fmt.Stringer.
func (v ValueArg) String() string {
	return fmt.Sprintf("value(%s)", v.dtype)
}
