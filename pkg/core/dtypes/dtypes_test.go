// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	assert.Equal(t, Float16, MapOfNames["Float16"])
	assert.Equal(t, Float16, MapOfNames["float16"])
	assert.Equal(t, Float16, MapOfNames["f16"])
	assert.Equal(t, Uint8, MapOfNames["u8"])
}

func TestParse(t *testing.T) {
	dtype, err := Parse("FLOAT32")
	require.NoError(t, err)
	assert.Equal(t, Float32, dtype)

	_, err = Parse("complex64")
	require.Error(t, err)
	_, err = Parse("invaliddtype")
	require.Error(t, err)
}

func TestFromGenericsType(t *testing.T) {
	assert.Equal(t, Uint8, FromGenericsType[uint8]())
	assert.Equal(t, Float16, FromGenericsType[float16.Float16]())
	assert.Equal(t, Float32, FromGenericsType[float32]())
	assert.Equal(t, Float64, FromGenericsType[float64]())
	assert.Equal(t, 2, Float16.Size())
	assert.True(t, Float16.IsFloat())
	assert.False(t, Uint8.IsFloat())
	assert.False(t, InvalidDType.IsSupported())
}
