// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ranges

import "fmt"

// Box is an axis-aligned half-open region [Lo, Hi) of a 3-axes index space.
//
// It is used to decide whether two accessors over the same buffer touch common elements.
type Box struct {
	Lo, Hi [MaxDims]int
}

// BoxOf returns the region covered by a sub-range at the given offset.
func BoxOf(offset ID, extent Range) Box {
	var b Box
	for axis := range MaxDims {
		b.Lo[axis] = offset.values[axis]
		b.Hi[axis] = offset.values[axis] + extent.sizes[axis]
	}
	return b
}

// FullBox returns the region covering the whole range.
func FullBox(r Range) Box {
	return BoxOf(ID{}, r)
}

// Empty returns whether the box has no elements.
func (b Box) Empty() bool {
	for axis := range MaxDims {
		if b.Hi[axis] <= b.Lo[axis] {
			return true
		}
	}
	return false
}

// Overlaps returns whether both boxes share at least one element.
func (b Box) Overlaps(other Box) bool {
	if b.Empty() || other.Empty() {
		return false
	}
	for axis := range MaxDims {
		if b.Hi[axis] <= other.Lo[axis] || other.Hi[axis] <= b.Lo[axis] {
			return false
		}
	}
	return true
}

// Covers returns whether other is fully inside b.
func (b Box) Covers(other Box) bool {
	if other.Empty() {
		return true
	}
	for axis := range MaxDims {
		if other.Lo[axis] < b.Lo[axis] || other.Hi[axis] > b.Hi[axis] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (b Box) String() string {
	return fmt.Sprintf("[%v, %v)", b.Lo, b.Hi)
}
