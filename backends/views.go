// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/hetero/pkg/core/dtypes"
	"github.com/gomlx/hetero/pkg/core/ranges"
)

// View is a typed view of a buffer argument inside a kernel. Ids are relative to the accessor offset.
type View[T dtypes.Supported] struct {
	arg  ResolvedArg
	Flat []T
}

// ViewOf returns the typed view of the buffer argument at position i.
// It panics if the argument is not a buffer, or if T doesn't match the element size.
func ViewOf[T dtypes.Supported](args Args, i int) View[T] {
	arg := args[i]
	if arg.Kind != ArgBuffer {
		exceptions.Panicf("kernel argument #%d is not a buffer", i)
	}
	if want := dtypes.FromGenericsType[T]().Size(); want != arg.ElemSize {
		exceptions.Panicf("kernel argument #%d has element size %d, requested %s (size %d)",
			i, arg.ElemSize, dtypes.FromGenericsType[T](), want)
	}
	return View[T]{arg: arg, Flat: dtypes.FromBytes[T](arg.Data)}
}

// At returns the element at id.
func (v View[T]) At(id ranges.ID) T {
	return v.Flat[v.arg.Index(id)]
}

// Set the element at id.
func (v View[T]) Set(id ranges.ID, value T) {
	v.Flat[v.arg.Index(id)] = value
}

// Range returns the range accessible through the view.
func (v View[T]) Range() ranges.Range { return v.arg.Range }

// LocalOf returns the local memory argument at position i as a slice of T.
func LocalOf[T dtypes.Supported](args Args, i int) []T {
	if args[i].Kind != ArgLocal {
		exceptions.Panicf("kernel argument #%d is not local memory", i)
	}
	return dtypes.FromBytes[T](args[i].Data)
}

// ValueOf returns the value argument at position i.
func ValueOf[T dtypes.Supported](args Args, i int) T {
	if args[i].Kind != ArgValue {
		exceptions.Panicf("kernel argument #%d is not a value", i)
	}
	values := dtypes.FromBytes[T](args[i].Data)
	if len(values) != 1 {
		exceptions.Panicf("kernel argument #%d has %d bytes, not a single %s", i, len(args[i].Data), dtypes.FromGenericsType[T]())
	}
	return values[0]
}

// FillKernel is the built-in kernel used to fill a buffer: argument 0 is the buffer, argument 1 the
// value pattern (the raw bytes of one element). It must be launched over the accessor range.
var FillKernel = RegisterKernel("hetero.fill", ItemKernel(fillKernel))

func fillKernel(item Item, args Args) {
	dst, pattern := args[0], args[1].Data
	start := dst.Index(item.ID) * dst.ElemSize
	copy(dst.Data[start:start+dst.ElemSize], pattern)
}
