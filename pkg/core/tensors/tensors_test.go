// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/gomlx/segmentation/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, tensor.Shape().Check(dtypes.Float32, 2, 3))
	assert.Equal(t, uintptr(24), tensor.Memory())
	assert.Equal(t, "Tensor(Float32)[2 3]", tensor.String())

	MustMutableFlatData(tensor, func(flat []float32) { flat[0] = 10 })
	flat, err := CopyFlatData[float32](tensor)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 2, 3, 4, 5, 6}, flat)

	err = ConstFlatData(tensor, func(flat []float64) {})
	require.Error(t, err)

	require.Panics(t, func() { FromFlatDataAndDimensions([]uint8{1, 2, 3}, 2, 2) })
}

func TestFromShape(t *testing.T) {
	for _, dtype := range []dtypes.DType{dtypes.Uint8, dtypes.Float16, dtypes.Float32, dtypes.Float64} {
		tensor := FromShape(shapes.Make(dtype, 2, 2))
		assert.Equal(t, dtype, tensor.DType())
		assert.Equal(t, []float64{0, 0, 0, 0}, tensor.Float64Values())
	}
}

func TestStack(t *testing.T) {
	a := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(2)}, 1, 2)
	b := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(3), float16.Fromfloat32(4)}, 1, 2)
	stacked, err := Stack([]*Tensor{a, b})
	require.NoError(t, err)
	require.NoError(t, stacked.Shape().Check(dtypes.Float16, 2, 1, 2))
	assert.Equal(t, []float64{1, 2, 3, 4}, stacked.Float64Values())

	_, err = Stack(nil)
	require.Error(t, err)
	_, err = Stack([]*Tensor{a, FromShape(shapes.Make(dtypes.Float16, 2, 1))})
	require.Error(t, err)
}

func TestEqualAndInDelta(t *testing.T) {
	a := FromFlatDataAndDimensions([]float64{1, 2}, 2)
	b := FromFlatDataAndDimensions([]float64{1, 2.001}, 2)
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
	assert.True(t, a.InDelta(b, 0.01))
	assert.False(t, a.InDelta(FromFlatDataAndDimensions([]float64{1, 2}, 1, 2), 0.01))
}
