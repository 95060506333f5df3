// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element types of the tensors yielded by the
// segmentation datasets.
//
// It is a reduced fork of github.com/gomlx/gomlx/pkg/core/dtypes: only the types images and masks
// are converted to are kept. It also includes the constraint used with generics (Supported).
package dtypes

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DType is an enum that represents the data type of a tensor.
type DType int32

const (
	// InvalidDType is the zero value, it represents an unset DType.
	InvalidDType DType = iota

	// Uint8 holds raw pixel values, without normalization.
	Uint8

	// Float16 is IEEE 754 half precision.
	Float16

	// Float32 is the default for images and masks.
	Float32

	// Float64 is IEEE 754 double precision.
	Float64
)

// Supported lists the Go types that can back a tensor.
type Supported interface {
	uint8 | float16.Float16 | float32 | float64
}

// MapOfNames maps names (and lower-case aliases) to DType.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
}

func init() {
	for key, dtype := range MapOfNames {
		lowerKey := strings.ToLower(key)
		if _, found := MapOfNames[lowerKey]; !found {
			MapOfNames[lowerKey] = dtype
		}
	}
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	switch dtype {
	case Uint8:
		return "Uint8"
	case Float16:
		return "Float16"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	}
	return "InvalidDType"
}

// Parse converts a name (case-insensitive, e.g. "float32" or "f32") to a DType.
func Parse(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(name)]
	}
	if !found || dtype == InvalidDType {
		return InvalidDType, errors.Errorf("unknown dtype %q", name)
	}
	return dtype, nil
}

// FromGenericsType returns the DType enum for the given Go type.
func FromGenericsType[T Supported]() DType {
	var t T
	switch (any(t)).(type) {
	case uint8:
		return Uint8
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return InvalidDType
}

// Size returns the number of bytes of one element of the given dtype.
func (dtype DType) Size() int {
	switch dtype {
	case Uint8:
		return 1
	case Float16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// IsFloat returns whether dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsSupported returns whether dtype is one of the known types.
func (dtype DType) IsSupported() bool {
	return dtype.Size() > 0
}
