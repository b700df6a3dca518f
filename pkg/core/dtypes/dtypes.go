// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes defines the DType enum for the element types a buffer can hold.
//
// It includes converters to/from Go native types (and reflect.Type), the byte size of each type
// and the Supported constraint used by the generic buffer constructors.
package dtypes

import (
	"reflect"
	"strconv"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DType is an enum representing the element type of a buffer.
type DType int32

const (
	InvalidDType DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	Float32
	Float64
	Complex64
	Complex128
)

// Supported lists the Go types that can be stored in a buffer.
type Supported interface {
	bool | int8 | int16 | int32 | int64 | int | uint8 | uint16 | uint32 | uint64 |
		float16.Float16 | float32 | float64 | complex64 | complex128
}

//go:generate go tool enumer -type=DType -output=gen_dtype_enumer.go dtypes.go

// IsValid returns whether dtype is one of the known types.
func (dtype DType) IsValid() bool {
	return dtype.IsADType() && dtype != InvalidDType
}

var goTypes = map[DType]reflect.Type{
	Bool:       reflect.TypeOf(false),
	Int8:       reflect.TypeOf(int8(0)),
	Int16:      reflect.TypeOf(int16(0)),
	Int32:      reflect.TypeOf(int32(0)),
	Int64:      reflect.TypeOf(int64(0)),
	Uint8:      reflect.TypeOf(uint8(0)),
	Uint16:     reflect.TypeOf(uint16(0)),
	Uint32:     reflect.TypeOf(uint32(0)),
	Uint64:     reflect.TypeOf(uint64(0)),
	Float16:    reflect.TypeOf(float16.Float16(0)),
	Float32:    reflect.TypeOf(float32(0)),
	Float64:    reflect.TypeOf(float64(0)),
	Complex64:  reflect.TypeOf(complex64(0)),
	Complex128: reflect.TypeOf(complex128(0)),
}

// GoType returns the Go reflect.Type corresponding to the dtype, or nil if it is not valid.
func (dtype DType) GoType() reflect.Type {
	return goTypes[dtype]
}

// Size returns the number of bytes for the given DType, or 0 if the dtype is not valid.
func (dtype DType) Size() int {
	t := dtype.GoType()
	if t == nil {
		return 0
	}
	return int(t.Size())
}

// FromGoType returns the DType for the given reflect.Type.
// It returns InvalidDType if the type is not supported.
func FromGoType(t reflect.Type) DType {
	if t == nil {
		return InvalidDType
	}
	if t.Kind() == reflect.Int {
		switch strconv.IntSize {
		case 32:
			return Int32
		default:
			return Int64
		}
	}
	for dtype, goType := range goTypes {
		if goType == t {
			return dtype
		}
	}
	return InvalidDType
}

// FromGenericsType returns the DType enum for the given type parameter.
func FromGenericsType[T Supported]() DType {
	var t T
	return FromGoType(reflect.TypeOf(t))
}

// FromAny introspects the underlying type of any and returns the corresponding DType.
func FromAny(value any) DType {
	return FromGoType(reflect.TypeOf(value))
}

// AsBytes reinterprets the flat slice as raw bytes, without copying.
// The returned slice aliases the same memory as flat.
func AsBytes[T Supported](flat []T) []byte {
	if len(flat) == 0 {
		return nil
	}
	var t T
	return unsafe.Slice((*byte)(unsafe.Pointer(&flat[0])), len(flat)*int(unsafe.Sizeof(t)))
}

// FromBytes reinterprets raw bytes as a flat slice of T, without copying.
// It panics if len(data) is not a multiple of the size of T.
func FromBytes[T Supported](data []byte) []T {
	var t T
	size := int(unsafe.Sizeof(t))
	if len(data)%size != 0 {
		panic(errors.Errorf("dtypes.FromBytes: %d bytes is not a multiple of %s size %d",
			len(data), FromGenericsType[T](), size))
	}
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/size)
}

// ValueBytes returns a copy of the raw bytes of a single value.
func ValueBytes[T Supported](value T) []byte {
	return append([]byte(nil), AsBytes([]T{value})...)
}
