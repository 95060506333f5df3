// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := Make(dtypes.Float32, 3, 64, 32)
	assert.Equal(t, 3, s.Rank())
	assert.Equal(t, 3*64*32, s.Size())
	assert.Equal(t, uintptr(4*3*64*32), s.Memory())
	assert.Equal(t, 32, s.Dim(-1))
	assert.Equal(t, "(Float32)[3 64 32]", s.String())
	require.NoError(t, s.Check(dtypes.Float32, 3, 64, 32))
	require.Error(t, s.Check(dtypes.Float64, 3, 64, 32))
	require.Error(t, s.Check(dtypes.Float32, 64, 32))

	s2 := s.Clone()
	s2.Dimensions[0] = 1
	assert.False(t, s.Equal(s2))
	assert.Equal(t, 3, s.Dimensions[0])

	assert.True(t, Make(dtypes.Uint8).IsScalar())
	assert.NotNil(t, exceptions.Try(func() { Make(dtypes.Float32, -1) }))
}
