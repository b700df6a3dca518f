// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ranges

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange(t *testing.T) {
	r := R(2, 3, 4)
	assert.Equal(t, 3, r.Dims())
	assert.Equal(t, 24, r.Size())
	assert.Equal(t, "range{2, 3, 4}", r.String())

	r1 := R(5)
	assert.Equal(t, [MaxDims]int{5, 1, 1}, r1.Sizes())
	assert.Equal(t, 5, r1.Size())

	assert.Panics(t, func() { R() })
	assert.Panics(t, func() { R(1, 2, 3, 4) })
	assert.Panics(t, func() { R(-1) })
}

func TestLinear(t *testing.T) {
	r := R(2, 3, 4)
	assert.Equal(t, 0, r.Linear(I(0, 0, 0)))
	assert.Equal(t, 1*12+2*4+3, r.Linear(I(1, 2, 3)))
	for idx := range r.Size() {
		assert.Equal(t, idx, r.Linear(r.Delinearize(idx)))
	}

	r1 := R(10)
	assert.Equal(t, 7, r1.Linear(I(7)))
}

func TestContains(t *testing.T) {
	r := R(8, 8)
	assert.True(t, r.Contains(I(0, 0), R(8, 8)))
	assert.True(t, r.Contains(I(4, 2), R(4, 6)))
	assert.False(t, r.Contains(I(4, 3), R(4, 6)))
	assert.False(t, r.Contains(I(-1, 0), R(1, 1)))
}

func TestNDRange(t *testing.T) {
	groups, err := ND(R(16, 16), R(4, 4)).GroupRange()
	require.NoError(t, err)
	assert.True(t, groups.Equal(R(4, 4)))

	_, err = ND(R(15, 16), R(4, 4)).GroupRange()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndivisibleRange))

	err = ND(R(16, 16), R(4)).Validate()
	assert.True(t, errors.Is(err, ErrIndivisibleRange))

	err = ND(R(16), R(0)).Validate()
	assert.True(t, errors.Is(err, ErrIndivisibleRange))
}

func TestBox(t *testing.T) {
	a := BoxOf(I(0), R(4))
	b := BoxOf(I(4), R(4))
	c := BoxOf(I(3), R(2))
	assert.False(t, a.Overlaps(b))
	assert.True(t, a.Overlaps(c))
	assert.True(t, b.Overlaps(c))

	full := FullBox(R(8))
	assert.True(t, full.Covers(a))
	assert.True(t, full.Covers(b))
	assert.False(t, a.Covers(full))

	// 2D: rows 0-1 vs. rows 2-3 never overlap, columns included.
	top := BoxOf(I(0, 0), R(2, 8))
	bottom := BoxOf(I(2, 0), R(2, 8))
	assert.False(t, top.Overlaps(bottom))
	left := BoxOf(I(0, 0), R(4, 4))
	right := BoxOf(I(0, 4), R(4, 4))
	assert.False(t, left.Overlaps(right))
	assert.True(t, left.Overlaps(top))

	empty := BoxOf(I(0), R(0))
	assert.True(t, empty.Empty())
	assert.False(t, empty.Overlaps(full))
}
