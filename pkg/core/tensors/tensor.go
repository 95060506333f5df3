/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package tensors implement a `Tensor`, a representation of a multidimensional array held in host memory.
//
// Tensors are what the segmentation datasets yield: images shaped `[channels, height, width]` and
// masks shaped `[1, height, width]`, or batches of those with a leading batch axis.
//
// There are various ways to construct a Tensor from local data:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data. Example:
//
//     t := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2) // Tensor with [[1,2], [3,4]]
//
//   - Stack(tensors): concatenates tensors of the same shape on a new leading axis.
//
// The data is always stored as a flat slice of the underlying DType, in row-major order.
package tensors

import (
	"github.com/gomlx/segmentation/pkg/core/dtypes"
	"github.com/gomlx/segmentation/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional array defined by its shape -- a data type (dtypes.DType) and its
// axes' dimensions -- and its actual content stored as a flat (1D) slice of values.
type Tensor struct {
	shape shapes.Shape
	flat  any
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used by the tensor's data.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// CheckValid returns an error if the tensor is nil or its data doesn't match its shape.
func (t *Tensor) CheckValid() error {
	if t == nil {
		return errors.New("tensor is nil")
	}
	if !t.shape.DType.IsSupported() {
		return errors.Errorf("tensor has unsupported dtype %s", t.shape.DType)
	}
	if t.flat == nil {
		return errors.Errorf("tensor with shape %s has no data", t.shape)
	}
	return nil
}
