// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/pkg/errors"
)

// Memory is an opaque handle to memory allocated on a device. Only its backend knows how to read it.
type Memory interface {
	// Device that holds the memory.
	Device() DeviceNum

	// Size in bytes.
	Size() int
}

// Region is one side of a copy: either host memory (Host != nil) or device memory (Mem != nil),
// starting at byte Offset.
type Region struct {
	Host   []byte
	Mem    Memory
	Offset int
}

// IsHost returns whether the region is in host memory.
func (r Region) IsHost() bool { return r.Mem == nil }

// CopyDesc describes an up to 3D strided copy: Planes x Rows runs of RowBytes contiguous bytes.
//
// Source run (p, r) starts at Src.Offset + p*SrcPlanePitch + r*SrcRowPitch, and similarly for the
// destination. A 1D copy has Rows = Planes = 1.
type CopyDesc struct {
	Dst, Src Region

	RowBytes     int
	Rows, Planes int

	DstRowPitch, DstPlanePitch int
	SrcRowPitch, SrcPlanePitch int
}

// Linear returns the descriptor of a contiguous copy of n bytes.
func Linear(dst, src Region, n int) CopyDesc {
	return CopyDesc{Dst: dst, Src: src, RowBytes: n, Rows: 1, Planes: 1}
}

// Dims returns 1, 2 or 3 depending on the number of strided axes of the copy.
func (d CopyDesc) Dims() int {
	switch {
	case d.Planes > 1:
		return 3
	case d.Rows > 1:
		return 2
	default:
		return 1
	}
}

// Bytes returns the total number of bytes transferred.
func (d CopyDesc) Bytes() int {
	return d.RowBytes * max(d.Rows, 1) * max(d.Planes, 1)
}

// extents returns the number of bytes spanned, from the region offset, on the source and destination.
func (d CopyDesc) extents() (dstSpan, srcSpan int) {
	rows, planes := max(d.Rows, 1), max(d.Planes, 1)
	if d.Bytes() == 0 {
		return 0, 0
	}
	dstSpan = (planes-1)*d.DstPlanePitch + (rows-1)*d.DstRowPitch + d.RowBytes
	srcSpan = (planes-1)*d.SrcPlanePitch + (rows-1)*d.SrcRowPitch + d.RowBytes
	return
}

// Apply executes the copy over already resolved byte slices: dst and src correspond to Dst and Src
// regions without their offsets applied.
//
// It's used by backends that can address the memory directly, and by the runtime for host to host copies.
func (d CopyDesc) Apply(dst, src []byte) error {
	dstSpan, srcSpan := d.extents()
	if dstSpan == 0 {
		return nil
	}
	if d.Dst.Offset < 0 || d.Dst.Offset+dstSpan > len(dst) {
		return errors.Errorf("copy destination out of bounds: offset %d + span %d > %d bytes",
			d.Dst.Offset, dstSpan, len(dst))
	}
	if d.Src.Offset < 0 || d.Src.Offset+srcSpan > len(src) {
		return errors.Errorf("copy source out of bounds: offset %d + span %d > %d bytes",
			d.Src.Offset, srcSpan, len(src))
	}
	for p := range max(d.Planes, 1) {
		for r := range max(d.Rows, 1) {
			dstStart := d.Dst.Offset + p*d.DstPlanePitch + r*d.DstRowPitch
			srcStart := d.Src.Offset + p*d.SrcPlanePitch + r*d.SrcRowPitch
			copy(dst[dstStart:dstStart+d.RowBytes], src[srcStart:srcStart+d.RowBytes])
		}
	}
	return nil
}
