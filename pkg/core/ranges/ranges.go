// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ranges defines the index spaces used to describe buffers, accessors and kernel launches.
//
// A Range is the extent of an index space with 1 to 3 dimensions, an ID is a point (or offset) in
// such a space, and an NDRange is a launch shape split into work-groups.
//
// Axis 0 is the slowest varying one: the linear index of id (i, j, k) in a range (R0, R1, R2) is
// k + j*R2 + i*R1*R2, the same row-major layout used by Go multidimensional slices.
//
// Internally both Range and ID always hold 3 axes: unused axes of a Range are 1 and unused axes of
// an ID are 0, so most algorithms don't need to care about the number of dimensions.
package ranges

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// MaxDims is the maximum number of dimensions supported.
const MaxDims = 3

// ErrIndivisibleRange is returned when an NDRange global range is not a multiple of its local range.
var ErrIndivisibleRange = errors.New("global range is not divisible by the local range")

// Range is the extent of an index space with 1 to 3 dimensions.
type Range struct {
	dims  int
	sizes [MaxDims]int
}

// R returns a Range with the given dimensions. It panics if there are more than 3 dimensions or
// any of them is negative: this is a bug in the caller, not a runtime condition.
func R(dimensions ...int) Range {
	if len(dimensions) == 0 || len(dimensions) > MaxDims {
		panic(errors.Errorf("ranges.R(%v): ranges must have between 1 and %d dimensions", dimensions, MaxDims))
	}
	r := Range{dims: len(dimensions), sizes: [MaxDims]int{1, 1, 1}}
	for axis, dim := range dimensions {
		if dim < 0 {
			panic(errors.Errorf("ranges.R(%v): negative dimension for axis %d", dimensions, axis))
		}
		r.sizes[axis] = dim
	}
	return r
}

// Dims returns the number of dimensions of the range.
func (r Range) Dims() int { return r.dims }

// Ok returns whether the range was properly initialized.
func (r Range) Ok() bool { return r.dims > 0 }

// Get returns the size of the given axis. Axes beyond Dims are 1.
func (r Range) Get(axis int) int { return r.sizes[axis] }

// Sizes returns the 3 axes sizes, padded with 1.
func (r Range) Sizes() [MaxDims]int { return r.sizes }

// Size returns the total number of elements of the range.
func (r Range) Size() int {
	return r.sizes[0] * r.sizes[1] * r.sizes[2]
}

// Equal compares the dimensions and sizes of both ranges.
func (r Range) Equal(other Range) bool {
	return r.dims == other.dims && r.sizes == other.sizes
}

// Linear returns the linear (row-major) index of id within the range.
func (r Range) Linear(id ID) int {
	return id.values[2] + id.values[1]*r.sizes[2] + id.values[0]*r.sizes[1]*r.sizes[2]
}

// Delinearize is the inverse of Linear.
func (r Range) Delinearize(idx int) ID {
	id := ID{dims: r.dims}
	id.values[2] = idx % r.sizes[2]
	idx /= r.sizes[2]
	id.values[1] = idx % r.sizes[1]
	id.values[0] = idx / r.sizes[1]
	return id
}

// Contains returns whether the sub-range given by offset and extent fits in r.
func (r Range) Contains(offset ID, extent Range) bool {
	for axis := range MaxDims {
		if offset.values[axis] < 0 || offset.values[axis]+extent.sizes[axis] > r.sizes[axis] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (r Range) String() string {
	return "range" + formatAxes(r.sizes[:r.dims])
}

// ID is a point in (or an offset into) an index space.
type ID struct {
	dims   int
	values [MaxDims]int
}

// I returns an ID with the given values. It panics if there are more than 3 values.
func I(values ...int) ID {
	if len(values) == 0 || len(values) > MaxDims {
		panic(errors.Errorf("ranges.I(%v): ids must have between 1 and %d dimensions", values, MaxDims))
	}
	id := ID{dims: len(values)}
	copy(id.values[:], values)
	return id
}

// Zero returns the origin ID with the given number of dimensions.
func Zero(dims int) ID {
	return ID{dims: dims}
}

// Dims returns the number of dimensions of the id.
func (id ID) Dims() int { return id.dims }

// Get returns the value of the given axis. Axes beyond Dims are 0.
func (id ID) Get(axis int) int { return id.values[axis] }

// Values returns the 3 axes values, padded with 0.
func (id ID) Values() [MaxDims]int { return id.values }

// IsZero returns whether all axes are 0.
func (id ID) IsZero() bool { return id.values == [MaxDims]int{} }

// String implements fmt.Stringer.
func (id ID) String() string {
	dims := max(id.dims, 1)
	return "id" + formatAxes(id.values[:dims])
}

func formatAxes(values []int) string {
	parts := make([]string, len(values))
	for ii, v := range values {
		parts[ii] = fmt.Sprintf("%d", v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// NDRange is a launch shape given by a global range split into work-groups of the local range.
type NDRange struct {
	Global, Local Range
}

// ND creates an NDRange. Use Validate (or GroupRange) to check divisibility.
func ND(global, local Range) NDRange {
	return NDRange{Global: global, Local: local}
}

// Validate checks that global and local ranges have the same dimensions and that the global range
// is evenly divisible by the local range along every axis.
func (ndr NDRange) Validate() error {
	if ndr.Global.dims != ndr.Local.dims {
		return errors.Wrapf(ErrIndivisibleRange, "nd_range global %s and local %s have different dimensions",
			ndr.Global, ndr.Local)
	}
	for axis := range MaxDims {
		local := ndr.Local.sizes[axis]
		if local <= 0 || ndr.Global.sizes[axis]%local != 0 {
			return errors.Wrapf(ErrIndivisibleRange, "nd_range global %s, local %s, axis %d",
				ndr.Global, ndr.Local, axis)
		}
	}
	return nil
}

// GroupRange returns the number of work-groups along each axis.
func (ndr NDRange) GroupRange() (Range, error) {
	if err := ndr.Validate(); err != nil {
		return Range{}, err
	}
	groups := Range{dims: ndr.Global.dims}
	for axis := range MaxDims {
		groups.sizes[axis] = ndr.Global.sizes[axis] / ndr.Local.sizes[axis]
	}
	return groups, nil
}

// String implements fmt.Stringer.
func (ndr NDRange) String() string {
	return fmt.Sprintf("nd_range{global=%s, local=%s}", ndr.Global, ndr.Local)
}
