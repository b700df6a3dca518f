// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package compute

import (
	"github.com/gomlx/hetero/backends"
	"github.com/gomlx/hetero/pkg/core/ranges"
)

// copySide is one side of a copy of a sub-range: the extent of the whole array and the offset of the
// sub-range within it. Raw host slices are dense: their extent is the copied range itself.
type copySide struct {
	extent ranges.Range
	offset ranges.ID
}

// contiguity returns how many of the innermost axes of r are complete in the side's extent:
// 2 if the sub-range is a contiguous block, 1 if its rows (axis 2) are contiguous, 0 otherwise.
func (s copySide) contiguity(r ranges.Range) int {
	full2 := r.Get(2) == s.extent.Get(2)
	full1 := r.Get(1) == s.extent.Get(1)
	switch {
	case full1 && full2:
		return 2
	case full2:
		return 1
	default:
		return 0
	}
}

func (s copySide) byteOffset(elemSize int) int {
	return s.extent.Linear(s.offset) * elemSize
}

// planCopy returns the strided copy of the sub-range r between two arrays with elements of elemSize
// bytes. It uses the fewest dimensions the layouts of both sides allow: a single contiguous run,
// rows with a pitch, or rows within planes.
func planCopy(dst, src backends.Region, dstSide, srcSide copySide, r ranges.Range, elemSize int) backends.CopyDesc {
	dst.Offset += dstSide.byteOffset(elemSize)
	src.Offset += srcSide.byteOffset(elemSize)
	sizes := r.Sizes()
	level := min(dstSide.contiguity(r), srcSide.contiguity(r))
	switch level {
	case 2:
		return backends.Linear(dst, src, r.Size()*elemSize)
	case 1:
		return backends.CopyDesc{
			Dst: dst, Src: src,
			RowBytes:    sizes[1] * sizes[2] * elemSize,
			Rows:        sizes[0],
			Planes:      1,
			DstRowPitch: dstSide.extent.Get(1) * dstSide.extent.Get(2) * elemSize,
			SrcRowPitch: srcSide.extent.Get(1) * srcSide.extent.Get(2) * elemSize,
		}
	default:
		return backends.CopyDesc{
			Dst: dst, Src: src,
			RowBytes:      sizes[2] * elemSize,
			Rows:          sizes[1],
			Planes:        sizes[0],
			DstRowPitch:   dstSide.extent.Get(2) * elemSize,
			DstPlanePitch: dstSide.extent.Get(1) * dstSide.extent.Get(2) * elemSize,
			SrcRowPitch:   srcSide.extent.Get(2) * elemSize,
			SrcPlanePitch: srcSide.extent.Get(1) * srcSide.extent.Get(2) * elemSize,
		}
	}
}

// accessorSide returns the copy side of an accessor.
func accessorSide(acc *Accessor) copySide {
	return copySide{extent: acc.buf.extent, offset: acc.offset}
}

// denseSide returns the copy side of a raw host slice holding exactly the range r.
func denseSide(r ranges.Range) copySide {
	return copySide{extent: r, offset: ranges.Zero(r.Dims())}
}
